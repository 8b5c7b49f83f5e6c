package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtour/chatbot-service/models"
)

func loadedState() *PipelineState {
	s := &PipelineState{}
	s.markLoaded()
	return s
}

func licensingResults() []models.SearchResult {
	return []models.SearchResult{
		{Text: "Foreign doctors must hold a licence issued by the ministry.", Page: 12, Source: "guide.pdf", Score: 0.87},
		{Text: "Licences are renewed every five years.", Page: 45, Source: "guide.pdf", Score: 0.81},
		{Text: "The ministry publishes the licence register.", Page: 12, Source: "guide.pdf", Score: 0.74},
	}
}

func TestAnswer(t *testing.T) {
	const question = "What are the licensing requirements for doctors?"

	t.Run("not loaded never calls the providers", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		llm := &fakeLLM{reply: "unused"}
		svc := NewRAGService(index, emb, llm, &PipelineState{}, RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Equal(t, MessageNotLoaded, answer.Answer)
		assert.Zero(t, answer.Confidence)
		assert.Empty(t, answer.Sources)
		assert.Equal(t, 0, emb.calls())
		assert.Equal(t, 0, llm.calls)
		assert.Equal(t, 0, index.searchCalls)
	})

	t.Run("no results gives the not found answer", func(t *testing.T) {
		llm := &fakeLLM{reply: "unused"}
		svc := NewRAGService(newFakeIndex(), newFakeEmbedder(4), llm, loadedState(), RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Equal(t, MessageNotFound, answer.Answer)
		assert.Zero(t, answer.Confidence)
		assert.NotNil(t, answer.Sources)
		assert.Empty(t, answer.Sources)
		assert.Equal(t, 0, llm.calls)
	})

	t.Run("grounded answer with sources and confidence", func(t *testing.T) {
		index := newFakeIndex()
		index.results = licensingResults()
		llm := &fakeLLM{reply: "Doctors need a ministry licence (page 12)."}
		svc := NewRAGService(index, newFakeEmbedder(4), llm, loadedState(), RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Equal(t, "Doctors need a ministry licence (page 12).", answer.Answer)
		assert.Equal(t, []string{"page_12", "page_45"}, answer.Sources)
		assert.Equal(t, 0.87, answer.Confidence)
		assert.Equal(t, question, llm.question)
	})

	t.Run("system instruction carries the tagged context in score order", func(t *testing.T) {
		index := newFakeIndex()
		index.results = licensingResults()
		llm := &fakeLLM{reply: "ok"}
		svc := NewRAGService(index, newFakeEmbedder(4), llm, loadedState(), RAGConfig{})

		svc.Answer(context.Background(), question)

		first := strings.Index(llm.system, "[Page 12] Foreign doctors")
		second := strings.Index(llm.system, "[Page 45] Licences are renewed")
		require.GreaterOrEqual(t, first, 0)
		require.GreaterOrEqual(t, second, 0)
		assert.Less(t, first, second)
		assert.Contains(t, llm.system, "medical professional")
		assert.Contains(t, llm.system, "same language")
		assert.Contains(t, llm.system, "not clear")
	})

	t.Run("top-k limits the context", func(t *testing.T) {
		index := newFakeIndex()
		for i := 0; i < 8; i++ {
			index.results = append(index.results, models.SearchResult{Text: "t", Page: i, Score: 0.5})
		}
		svc := NewRAGService(index, newFakeEmbedder(4), &fakeLLM{reply: "ok"}, loadedState(), RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Len(t, answer.Sources, DefaultTopK)
	})

	t.Run("embedding failure gives the error answer", func(t *testing.T) {
		emb := newFakeEmbedder(4)
		emb.oneErr = context.DeadlineExceeded
		llm := &fakeLLM{reply: "unused"}
		index := newFakeIndex()
		index.results = licensingResults()
		svc := NewRAGService(index, emb, llm, loadedState(), RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Equal(t, MessageError, answer.Answer)
		assert.Zero(t, answer.Confidence)
		assert.Empty(t, answer.Sources)
		assert.Equal(t, 0, index.searchCalls)
		assert.Equal(t, 0, llm.calls)
	})

	t.Run("index failure gives the error answer", func(t *testing.T) {
		index := newFakeIndex()
		index.searchErr = errors.New("connection reset")
		svc := NewRAGService(index, newFakeEmbedder(4), &fakeLLM{reply: "unused"}, loadedState(), RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Equal(t, MessageError, answer.Answer)
		assert.Zero(t, answer.Confidence)
	})

	t.Run("model failure gives the error answer", func(t *testing.T) {
		index := newFakeIndex()
		index.results = licensingResults()
		svc := NewRAGService(index, newFakeEmbedder(4), &fakeLLM{err: errors.New("quota exceeded")}, loadedState(), RAGConfig{})

		answer := svc.Answer(context.Background(), question)

		assert.Equal(t, MessageError, answer.Answer)
		assert.Zero(t, answer.Confidence)
		assert.Empty(t, answer.Sources)
	})
}

func TestConfidence(t *testing.T) {
	cases := map[string]struct {
		score float64
		want  float64
	}{
		"rounds to two decimals": {0.8749, 0.87},
		"clamps above one":       {1.7, 1},
		"clamps below zero":      {-0.3, 0},
		"keeps exact values":     {0.5, 0.5},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, confidence(tc.score))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "의료...", truncate("의료진 자격", 2))
}
