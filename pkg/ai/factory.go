package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects and tunes the generator provider.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
	Retry             RetryConfig
	Logger            zerolog.Logger
}

// New builds the configured provider wrapped with a per-attempt timeout, rate
// limiting and retries.
// An empty provider returns ErrNotConfigured.
func New(ctx context.Context, cfg Config) (Generator, error) {
	var (
		base Generator
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, ErrNotConfigured
	case "openai":
		base, err = NewOpenAIGenerator(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Logger: cfg.Logger})
	case "anthropic":
		base, err = NewAnthropicGenerator(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Logger: cfg.Logger})
	case "gemini":
		base, err = NewGeminiGenerator(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model, Logger: cfg.Logger})
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	return WithRetry(WithRateLimit(WithTimeout(base, cfg.Timeout), PerMinute(cfg.RequestsPerMinute)), retry), nil
}
