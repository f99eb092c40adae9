package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
		tracer: otel.Tracer("github.com/noah-isme/readalong-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("provider", "openai").Logger(),
	}, nil
}

// Generate sends the prompt to OpenAI in JSON mode.
func (g *OpenAIGenerator) Generate(parent context.Context, req Request) (Response, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.String("kind", string(req.Kind)),
	))
	defer span.End()

	start := time.Now()
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          g.model,
		MaxTokens:      req.MaxTokens,
		Temperature:    float32(req.Temperature),
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		err = mapOpenAIError(err)
		observe("openai", req.Kind, start, Usage{}, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	if len(resp.Choices) == 0 {
		err := &InvalidResponseError{Err: fmt.Errorf("no choices returned from openai")}
		observe("openai", req.Kind, start, Usage{}, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	content, err := ExtractJSON(resp.Choices[0].Message.Content)
	usage := Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	observe("openai", req.Kind, start, usage, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	g.logger.Debug().Str("kind", string(req.Kind)).Int("output_tokens", usage.OutputTokens).Dur("duration", time.Since(start)).Msg("openai generation complete")
	return Response{Content: content, Model: resp.Model, Usage: usage}, nil
}

// Model returns the configured model id.
func (g *OpenAIGenerator) Model() string {
	return g.model
}

func mapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &RateLimitError{Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &UnavailableError{Err: err}
		case apiErr.HTTPStatusCode >= 400:
			return fmt.Errorf("%w: openai: %v", ErrRejected, err)
		}
	}
	return &UnavailableError{Err: err}
}
