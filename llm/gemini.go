package llm

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/medtour/chatbot-service/models"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini completes prompts with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, models.ConfigError("gemini llm", "api key is not set")
	}
	cfg = cfg.withDefaults(DefaultGeminiModel)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, models.NewError(models.KindConfig, "gemini llm", err)
	}
	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: float32(*cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (g *Gemini) ModelName() string { return g.model }

// Complete generates a single response; text parts of the first candidate
// are concatenated.
func (g *Gemini) Complete(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userMessage), &genai.GenerateContentConfig{
		SystemInstruction: genai.Text(systemInstruction)[0],
		Temperature:       &g.temperature,
		MaxOutputTokens:   g.maxTokens,
	})
	if err != nil {
		return "", models.NewError(models.KindModel, "gemini complete", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", models.NewError(models.KindModel, "gemini complete", errors.New("response has no candidates"))
	}

	var responseText strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	return responseText.String(), nil
}
