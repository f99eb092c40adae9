package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var anthropicModels = map[string]string{
	"claude-sonnet": "claude-sonnet-4-20250514",
	"claude-haiku":  "claude-haiku-4-5-20251001",
}

// AnthropicConfig configures the Anthropic generator.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  zerolog.Logger
}

// AnthropicGenerator implements Generator using the Anthropic messages API.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicGenerator constructs an Anthropic backed generator.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-haiku"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicGenerator{
		client: &client,
		model:  resolveModel(cfg.Model, anthropicModels),
		tracer: otel.Tracer("github.com/noah-isme/readalong-api/pkg/ai/anthropic"),
		logger: cfg.Logger.With().Str("provider", "anthropic").Logger(),
	}, nil
}

// Generate sends the prompt as a single user message.
func (g *AnthropicGenerator) Generate(parent context.Context, req Request) (Response, error) {
	ctx, span := g.tracer.Start(parent, "anthropic.generate", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.String("kind", string(req.Kind)),
	))
	defer span.End()

	start := time.Now()
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
		}},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		err = mapAnthropicError(err)
		observe("anthropic", req.Kind, start, Usage{}, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	usage := Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}

	content, err := ExtractJSON(text.String())
	observe("anthropic", req.Kind, start, usage, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	g.logger.Debug().Str("kind", string(req.Kind)).Int("output_tokens", usage.OutputTokens).Dur("duration", time.Since(start)).Msg("anthropic generation complete")
	return Response{Content: content, Model: string(msg.Model), Usage: usage}, nil
}

// Model returns the resolved model id.
func (g *AnthropicGenerator) Model() string {
	return g.model
}

func mapAnthropicError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &RateLimitError{Err: err}
		case apiErr.StatusCode >= 500:
			return &UnavailableError{Err: err}
		case apiErr.StatusCode >= 400:
			return fmt.Errorf("%w: anthropic: %v", ErrRejected, err)
		}
	}
	return &UnavailableError{Err: err}
}

func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
