package services

import (
	"context"

	"github.com/medtour/chatbot-service/models"
)

// EmbeddingProvider turns text into fixed-length vectors.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the vector size the collection is created with.
	Dimensions() int
	ModelName() string
}

// LanguageModel produces a completion for a system instruction and a user
// message.
type LanguageModel interface {
	Complete(ctx context.Context, systemInstruction, userMessage string) (string, error)
	ModelName() string
}

// VectorIndex is a single named collection of embedded chunks.
type VectorIndex interface {
	// CreateCollection is a no-op when the collection already exists.
	CreateCollection(ctx context.Context, vectorSize int) error
	// Upsert overwrites points with the same ID.
	Upsert(ctx context.Context, points []models.Point) error
	// Search returns at most limit results by descending score. An empty,
	// missing or unreachable collection yields an empty slice and no error.
	Search(ctx context.Context, vector []float32, limit int) ([]models.SearchResult, error)
	CollectionInfo(ctx context.Context) (models.CollectionInfo, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

// DocumentSource discovers and loads the reference documents.
type DocumentSource interface {
	Discover() ([]string, error)
	Load(path string) (models.Document, error)
}
