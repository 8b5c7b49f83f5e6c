package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/models"
	"github.com/medtour/chatbot-service/services"
)

const serviceName = "Chatbot Service"

// StatusReporter reports pipeline readiness.
type StatusReporter interface {
	Status(ctx context.Context) models.PipelineStatus
}

// Ingester runs an on-demand ingestion.
type Ingester interface {
	Ingest(ctx context.Context) (models.IngestReport, error)
}

// Engine bundles the services behind the HTTP API. A nil *Engine means the
// pipeline could not be constructed; the API then answers 503.
type Engine struct {
	RAG       services.RAGService
	Status    StatusReporter
	Ingestion Ingester
}

// Info describes the running configuration for GET /info.
type Info struct {
	Version        string `json:"version"`
	LanguageModel  string `json:"llm"`
	EmbeddingModel string `json:"embeddings"`
	VectorStore    string `json:"vector_db"`
	Port           string `json:"port"`
}

// RAGController handles the HTTP requests for the chatbot API.
type RAGController struct {
	engine *Engine
	info   Info
}

// NewRAGController creates a controller. engine may be nil.
func NewRAGController(engine *Engine, info Info) *RAGController {
	return &RAGController{engine: engine, info: info}
}

// Chat is the handler for POST /chat.
func (c *RAGController) Chat(ctx *gin.Context) {
	if c.engine == nil {
		abortWithError(ctx, http.StatusServiceUnavailable, models.ErrEngineUnavailable.Error())
		return
	}

	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortWithError(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	logger := requestLogger(ctx)
	logger.Infof("CONTROLLER: New question: %s", truncate(req.Question, 100))

	answer := c.engine.RAG.Answer(ctx.Request.Context(), req.Question)

	logger.WithField("confidence", answer.Confidence).Info("CONTROLLER: Answer sent.")
	ctx.JSON(http.StatusOK, answer)
}

// Health is the handler for GET /health. A pipeline without documents is
// degraded but still answers 200.
func (c *RAGController) Health(ctx *gin.Context) {
	if c.engine == nil {
		ctx.JSON(http.StatusServiceUnavailable, models.HealthResponse{
			Service:      serviceName,
			Status:       "unhealthy",
			QdrantStatus: "disconnected",
			OpenAIStatus: "disconnected",
			Error:        models.ErrEngineUnavailable.Error(),
		})
		return
	}

	status := c.engine.Status.Status(ctx.Request.Context())
	health := models.HealthResponse{
		Service:         serviceName,
		Status:          "degraded",
		QdrantStatus:    connection(status.VectorIndexConnected),
		OpenAIStatus:    connection(status.LanguageModelConnected),
		DocumentsLoaded: status.StoredChunkCount,
	}
	if status.DocumentsLoaded {
		health.Status = "healthy"
	}
	ctx.JSON(http.StatusOK, health)
}

// PipelineStatus is the handler for GET /api/v1/status.
func (c *RAGController) PipelineStatus(ctx *gin.Context) {
	if c.engine == nil {
		abortWithError(ctx, http.StatusServiceUnavailable, models.ErrEngineUnavailable.Error())
		return
	}
	ctx.JSON(http.StatusOK, c.engine.Status.Status(ctx.Request.Context()))
}

// Ingest is the handler for POST /api/v1/ingest. It returns once the run
// has finished; a populated collection is reported as skipped.
func (c *RAGController) Ingest(ctx *gin.Context) {
	if c.engine == nil || c.engine.Ingestion == nil {
		abortWithError(ctx, http.StatusServiceUnavailable, models.ErrEngineUnavailable.Error())
		return
	}

	report, err := c.engine.Ingestion.Ingest(ctx.Request.Context())
	if err != nil {
		requestLogger(ctx).Errorf("CONTROLLER: Ingestion failed: %v", err)
		switch {
		case errors.Is(err, models.ErrNoDocuments):
			abortWithError(ctx, http.StatusUnprocessableEntity, err.Error())
		case models.IsKind(err, models.KindIndex):
			abortWithError(ctx, http.StatusServiceUnavailable, err.Error())
		default:
			abortWithError(ctx, http.StatusInternalServerError, err.Error())
		}
		return
	}

	message := fmt.Sprintf("Stored %d chunks from %d documents", report.Stored, report.Documents)
	if report.Skipped {
		message = fmt.Sprintf("Collection already holds %d chunks, ingestion skipped", report.Stored)
	}
	ctx.JSON(http.StatusOK, models.IngestResponse{Success: true, Message: message, Report: report})
}

// Root is the handler for GET /.
func (c *RAGController) Root(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"service":     serviceName,
		"status":      "running",
		"version":     c.info.Version,
		"description": "RAG based medical tourism consultation chatbot",
		"endpoints": gin.H{
			"chat":   "/chat",
			"health": "/health",
			"status": "/api/v1/status",
			"ingest": "/api/v1/ingest",
		},
	})
}

// ServiceInfo is the handler for GET /info.
func (c *RAGController) ServiceInfo(ctx *gin.Context) {
	body := gin.H{
		"service_name": serviceName,
		"version":      c.info.Version,
		"description":  "RAG based medical tourism consultation chatbot",
		"technology": gin.H{
			"llm":        c.info.LanguageModel,
			"embeddings": c.info.EmbeddingModel,
			"vector_db":  c.info.VectorStore,
			"framework":  "Gin",
		},
		"status": gin.H{},
		"port":   c.info.Port,
	}
	if c.engine != nil {
		body["status"] = c.engine.Status.Status(ctx.Request.Context())
	}
	ctx.JSON(http.StatusOK, body)
}

func abortWithError(ctx *gin.Context, code int, message string) {
	if code >= http.StatusInternalServerError {
		requestLogger(ctx).Errorf("CONTROLLER: HTTP %d: %s", code, message)
	}
	ctx.AbortWithStatusJSON(code, models.ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorCode: fmt.Sprintf("HTTP_%d", code),
	})
}

func connection(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func requestLogger(ctx *gin.Context) *log.Entry {
	return log.WithField("request_id", ctx.GetString(requestIDKey))
}
