package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/medtour/chatbot-service/models"
)

// Gemini defaults.
const (
	DefaultGeminiModel      = "text-embedding-004"
	DefaultGeminiDimensions = 768
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// Gemini generates embeddings with the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, models.ConfigError("gemini embedder", "api key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultGeminiDimensions
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, models.NewError(models.KindConfig, "gemini embedder", err)
	}
	return &Gemini{client: client, model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

func (g *Gemini) Dimensions() int   { return g.dimensions }
func (g *Gemini) ModelName() string { return g.model }

func (g *Gemini) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}
	dims := int32(g.dimensions)
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, models.NewError(models.KindProvider, "gemini embed", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, models.NewError(models.KindProvider, "gemini embed",
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
