package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/config"
	"github.com/medtour/chatbot-service/controller"
	"github.com/medtour/chatbot-service/embedding"
	"github.com/medtour/chatbot-service/llm"
	"github.com/medtour/chatbot-service/models"
	"github.com/medtour/chatbot-service/services"
	"github.com/medtour/chatbot-service/vectorstore"
)

// pipeline owns every long-lived dependency of the engine.
type pipeline struct {
	index     services.VectorIndex
	embedder  services.EmbeddingProvider
	llm       services.LanguageModel
	ingestion *services.IngestionService
	rag       services.RAGService
	status    *services.StatusService
}

func buildPipeline(ctx context.Context, cfg *config.AppConfig) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model, err := newLanguageModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	segmenter, err := services.NewSegmenter(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	source, err := services.NewFileDocumentSource(cfg.Documents.Dir, cfg.Documents.PDFExtractor, cfg.UnidocLicenseKey())
	if err != nil {
		return nil, err
	}
	index, err := newVectorIndex(cfg)
	if err != nil {
		return nil, err
	}

	state := &services.PipelineState{}
	p := &pipeline{
		index:    index,
		embedder: embedder,
		llm:      model,
		ingestion: services.NewIngestionService(index, embedder, segmenter, source, state, services.IngestionConfig{
			EmbedBatchSize:  cfg.Ingestion.EmbedBatchSize,
			UploadBatchSize: cfg.Ingestion.UploadBatchSize,
			CallTimeout:     cfg.CallTimeout(),
		}),
		rag: services.NewRAGService(index, embedder, model, state, services.RAGConfig{
			TopK:        cfg.Retrieval.TopK,
			CallTimeout: cfg.CallTimeout(),
		}),
		status: services.NewStatusService(index, model, state, cfg.CallTimeout()),
	}
	log.WithFields(log.Fields{
		"vector_store": cfg.VectorStore.Type,
		"embedder":     embedder.ModelName(),
		"llm":          model.ModelName(),
	}).Info("RAG engine initialized.")
	return p, nil
}

func (p *pipeline) engine() *controller.Engine {
	return &controller.Engine{RAG: p.rag, Status: p.status, Ingestion: p.ingestion}
}

func (p *pipeline) close() {
	if err := p.index.Close(); err != nil {
		log.Warnf("Warning: Failed to close vector index: %v", err)
	}
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig) (services.EmbeddingProvider, error) {
	e := cfg.Embedder
	switch e.Type {
	case config.EmbedderOpenAI:
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:     cfg.EmbedderAPIKey(),
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Timeout:    cfg.CallTimeout(),
		})
	case config.EmbedderOllama:
		return embedding.NewOllama(embedding.OllamaConfig{
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Timeout:    cfg.CallTimeout(),
		}), nil
	case config.EmbedderGemini:
		return embedding.NewGemini(ctx, embedding.GeminiConfig{
			APIKey:     cfg.EmbedderAPIKey(),
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
		})
	}
	return nil, models.ConfigError("embedder", "unknown embedder type %q", e.Type)
}

func newLanguageModel(ctx context.Context, cfg *config.AppConfig) (services.LanguageModel, error) {
	c := llm.Config{
		APIKey:      cfg.LLMAPIKey(),
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: &cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.CallTimeout(),
	}
	switch cfg.LLM.Type {
	case config.LLMOpenAI:
		return llm.NewOpenAI(c)
	case config.LLMGemini:
		return llm.NewGemini(ctx, c)
	}
	return nil, models.ConfigError("llm", "unknown llm type %q", cfg.LLM.Type)
}

func newVectorIndex(cfg *config.AppConfig) (services.VectorIndex, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case config.StoreQdrant:
		return vectorstore.NewQdrant(vectorstore.QdrantConfig{
			URL:        vs.Qdrant.URL,
			APIKey:     cfg.QdrantAPIKey(),
			Collection: vs.Collection,
			Timeout:    cfg.CallTimeout(),
		}), nil
	case config.StoreChroma:
		return vectorstore.NewChroma(vs.Chroma.URL, vs.Collection)
	case config.StoreBolt:
		return vectorstore.NewBolt(vs.Bolt.Path, vs.Collection)
	case config.StoreMemory:
		return vectorstore.NewMemory(vs.Collection), nil
	}
	return nil, models.ConfigError("vector store", "unknown vector store type %q", vs.Type)
}
