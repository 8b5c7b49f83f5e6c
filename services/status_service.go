package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/models"
)

// StatusService aggregates readiness for health checks. It holds no state
// of its own.
type StatusService struct {
	index       VectorIndex
	llm         LanguageModel
	state       *PipelineState
	callTimeout time.Duration
}

// NewStatusService creates a status reporter. A nil llm means the language
// model client could not be constructed.
func NewStatusService(index VectorIndex, llm LanguageModel, state *PipelineState, callTimeout time.Duration) *StatusService {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &StatusService{index: index, llm: llm, state: state, callTimeout: callTimeout}
}

// Status reports the current pipeline readiness. Index failures show up as
// a disconnected index and a zero chunk count.
func (s *StatusService) Status(ctx context.Context) models.PipelineStatus {
	status := models.PipelineStatus{
		DocumentsLoaded:        s.state.DocumentsLoaded(),
		LanguageModelConnected: s.llm != nil,
	}
	if s.index == nil {
		return status
	}

	c, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	status.VectorIndexConnected = s.index.HealthCheck(c)
	info, err := s.index.CollectionInfo(c)
	if err != nil {
		log.WithField("component", "status").Warnf("STATUS: Could not read collection info: %v", err)
		return status
	}
	status.Collection = info
	status.StoredChunkCount = info.PointCount
	return status
}
