package services

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/models"
)

const DefaultTopK = 5

// Fixed answers returned instead of a generated one.
const (
	MessageNotLoaded = "Sorry, the reference documents have not been loaded yet. Please try again shortly."
	MessageNotFound  = "Sorry, I could not find relevant information for your question."
	MessageError     = "Sorry, an error occurred while generating the answer. Please try again shortly."
)

// RAGService answers questions from the ingested documents.
type RAGService interface {
	// Answer never fails; every error becomes a fixed answer with
	// confidence 0.
	Answer(ctx context.Context, question string) models.Answer
}

// RAGConfig tunes retrieval.
type RAGConfig struct {
	TopK        int
	CallTimeout time.Duration
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	index    VectorIndex
	embedder EmbeddingProvider
	llm      LanguageModel
	state    *PipelineState
	topK     int
	timeout  time.Duration
}

// NewRAGService creates a new RAG service instance
func NewRAGService(index VectorIndex, embedder EmbeddingProvider, llm LanguageModel, state *PipelineState, cfg RAGConfig) RAGService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &ragServiceImpl{
		index:    index,
		embedder: embedder,
		llm:      llm,
		state:    state,
		topK:     cfg.TopK,
		timeout:  cfg.CallTimeout,
	}
}

// Answer implements RAGService
func (r *ragServiceImpl) Answer(ctx context.Context, question string) models.Answer {
	if !r.state.DocumentsLoaded() {
		return fixedAnswer(MessageNotLoaded)
	}

	logger := log.WithFields(log.Fields{"component": "rag", "question": truncate(question, 100)})

	results, err := r.retrieve(ctx, question)
	if err != nil {
		logger.WithField("kind", kindName(err)).Errorf("SERVICE: Retrieval failed: %v", err)
		return fixedAnswer(MessageError)
	}
	if len(results) == 0 {
		logger.Info("SERVICE: No relevant chunks found.")
		return fixedAnswer(MessageNotFound)
	}

	systemPrompt := GetSystemPrompt(BuildContext(results))

	var text string
	err = r.call(ctx, func(c context.Context) error {
		var err error
		text, err = r.llm.Complete(c, systemPrompt, question)
		return err
	})
	if err != nil {
		if _, ok := models.KindOf(err); !ok {
			err = models.NewError(models.KindModel, "complete", err)
		}
		logger.WithField("kind", kindName(err)).Errorf("SERVICE: Answer generation failed: %v", err)
		return fixedAnswer(MessageError)
	}

	answer := models.Answer{
		Answer:     text,
		Sources:    uniqueSources(results),
		Confidence: confidence(results[0].Score),
	}
	logger.WithField("confidence", answer.Confidence).Info("SERVICE: Answer generated.")
	return answer
}

// retrieve embeds the question and returns the closest chunks.
func (r *ragServiceImpl) retrieve(ctx context.Context, question string) ([]models.SearchResult, error) {
	var vector []float32
	err := r.call(ctx, func(c context.Context) error {
		var err error
		vector, err = r.embedder.EmbedOne(c, question)
		return err
	})
	if err != nil {
		if _, ok := models.KindOf(err); !ok {
			err = models.NewError(models.KindProvider, "embed question", err)
		}
		return nil, err
	}

	var results []models.SearchResult
	err = r.call(ctx, func(c context.Context) error {
		var err error
		results, err = r.index.Search(c, vector, r.topK)
		return err
	})
	if err != nil {
		if _, ok := models.KindOf(err); !ok {
			err = models.NewError(models.KindIndex, "search", err)
		}
		return nil, err
	}
	if len(results) > r.topK {
		results = results[:r.topK]
	}
	return results, nil
}

func (r *ragServiceImpl) call(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(c)
}

func fixedAnswer(message string) models.Answer {
	return models.Answer{Answer: message, Sources: []string{}, Confidence: 0}
}

// confidence clamps a similarity score to [0,1] and rounds it to two
// decimals.
func confidence(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100
}

// uniqueSources lists page references in first-seen order.
func uniqueSources(results []models.SearchResult) []string {
	seen := make(map[string]bool, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		ref := r.PageRef()
		if seen[ref] {
			continue
		}
		seen[ref] = true
		sources = append(sources, ref)
	}
	return sources
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
