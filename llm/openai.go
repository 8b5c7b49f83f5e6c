// Package llm holds the language model adapters.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/medtour/chatbot-service/models"
)

// Generation defaults shared by the adapters.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1000
	DefaultOpenAIModel = "gpt-4o-mini"
)

// Config configures a language model adapter. A nil Temperature takes the
// default; zero is a valid setting.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// OpenAI completes prompts with the chat completions API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAI fails with a config error when no API key is given.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, models.ConfigError("openai llm", "api key is not set")
	}
	cfg = cfg.withDefaults(DefaultOpenAIModel)

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: *cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *OpenAI) ModelName() string { return o.model }

// Complete sends the system instruction and the user message as a two-turn
// chat and returns the first choice verbatim.
func (o *OpenAI) Complete(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userMessage),
		},
		Temperature: openai.Float(o.temperature),
		MaxTokens:   openai.Int(int64(o.maxTokens)),
	})
	if err != nil {
		return "", models.NewError(models.KindModel, "openai complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.NewError(models.KindModel, "openai complete", errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}
