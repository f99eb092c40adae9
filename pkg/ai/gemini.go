package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.0-flash",
	"gemini-pro":   "gemini-2.0-pro",
}

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// GeminiGenerator implements Generator using the Google Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiGenerator constructs a Gemini backed generator.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  resolveModel(cfg.Model, geminiModels),
		tracer: otel.Tracer("github.com/noah-isme/readalong-api/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("provider", "gemini").Logger(),
	}, nil
}

// Generate requests a JSON response from Gemini.
func (g *GeminiGenerator) Generate(parent context.Context, req Request) (Response, error) {
	ctx, span := g.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.String("kind", string(req.Kind)),
	))
	defer span.End()

	start := time.Now()
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		err = mapGeminiError(err)
		observe("gemini", req.Kind, start, Usage{}, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	var usage Usage
	if result.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	content, err := ExtractJSON(result.Text())
	observe("gemini", req.Kind, start, usage, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	g.logger.Debug().Str("kind", string(req.Kind)).Int("output_tokens", usage.OutputTokens).Dur("duration", time.Since(start)).Msg("gemini generation complete")
	return Response{Content: content, Model: g.model, Usage: usage}, nil
}

// Model returns the resolved model id.
func (g *GeminiGenerator) Model() string {
	return g.model
}

func mapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &RateLimitError{Err: err}
		case apiErr.Code >= 500:
			return &UnavailableError{Err: err}
		case apiErr.Code >= 400:
			return fmt.Errorf("%w: gemini: %v", ErrRejected, err)
		}
	}
	return &UnavailableError{Err: err}
}
