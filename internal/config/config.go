package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	AppBaseURL  string
	CORSOrigins string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	EventsChannel  string

	JWTSecret string

	LogLevel string
	LogFile  string

	GeneratorProvider       string
	GeneratorModel          string
	GeneratorBaseURL        string
	OpenAIAPIKey            string
	AnthropicAPIKey         string
	GeminiAPIKey            string
	GeneratorTimeout        time.Duration
	GeneratorMaxAttempts    int
	GeneratorInitialBackoff time.Duration
	GeneratorMaxBackoff     time.Duration
	GeneratorRequestsPerMin int
	GenerationRateLimit     int

	ContentCacheTTL        time.Duration
	ContentLockTTL         time.Duration
	ContentWaitTimeout     time.Duration
	ContentFallbackEnabled bool
	ContentPrimeOnUnlock   bool

	ScoringMinElapsedSeconds float64

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int

	SESRegion    string
	SESFromEmail string
	SESFromName  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ProviderAPIKey returns the credential for the configured generator provider.
func (c Config) ProviderAPIKey() string {
	switch c.GeneratorProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("READALONG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "ReadAlong API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.base_url", "http://localhost:3000")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("events.channel", "readalong")
	v.SetDefault("log.level", "info")
	v.SetDefault("generator.provider", "openai")
	v.SetDefault("generator.timeout", "20s")
	v.SetDefault("generator.max_attempts", 3)
	v.SetDefault("generator.initial_backoff", "500ms")
	v.SetDefault("generator.max_backoff", "5s")
	v.SetDefault("generator.requests_per_minute", 60)
	v.SetDefault("generator.route_limit", 10)
	v.SetDefault("content.cache_ttl", "720h")
	v.SetDefault("content.lock_ttl", "90s")
	v.SetDefault("content.wait_timeout", "3s")
	v.SetDefault("content.fallback_enabled", true)
	v.SetDefault("content.prime_on_unlock", true)
	v.SetDefault("scoring.min_elapsed_seconds", 10)
	v.SetDefault("cloudinary.folder", "readalong/recordings")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("ses.region", "us-east-1")
	v.SetDefault("ses.from_name", "ReadAlong")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"generator.timeout", "generator.initial_backoff", "generator.max_backoff",
		"content.cache_ttl", "content.lock_ttl", "content.wait_timeout",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		AppBaseURL:               strings.TrimRight(v.GetString("app.base_url"), "/"),
		CORSOrigins:              v.GetString("cors.origins"),
		DatabaseDriver:           strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:              v.GetString("database.url"),
		RedisURL:                 v.GetString("redis.url"),
		NATSURL:                  v.GetString("nats.url"),
		EventsChannel:            v.GetString("events.channel"),
		JWTSecret:                v.GetString("jwt.secret"),
		LogLevel:                 strings.ToLower(v.GetString("log.level")),
		LogFile:                  v.GetString("log.file"),
		GeneratorProvider:        strings.ToLower(strings.TrimSpace(v.GetString("generator.provider"))),
		GeneratorModel:           v.GetString("generator.model"),
		GeneratorBaseURL:         v.GetString("generator.base_url"),
		OpenAIAPIKey:             v.GetString("openai_api_key"),
		AnthropicAPIKey:          v.GetString("anthropic_api_key"),
		GeminiAPIKey:             v.GetString("gemini_api_key"),
		GeneratorTimeout:         durations["generator.timeout"],
		GeneratorMaxAttempts:     v.GetInt("generator.max_attempts"),
		GeneratorInitialBackoff:  durations["generator.initial_backoff"],
		GeneratorMaxBackoff:      durations["generator.max_backoff"],
		GeneratorRequestsPerMin:  v.GetInt("generator.requests_per_minute"),
		GenerationRateLimit:      v.GetInt("generator.route_limit"),
		ContentCacheTTL:          durations["content.cache_ttl"],
		ContentLockTTL:           durations["content.lock_ttl"],
		ContentWaitTimeout:       durations["content.wait_timeout"],
		ContentFallbackEnabled:   v.GetBool("content.fallback_enabled"),
		ContentPrimeOnUnlock:     v.GetBool("content.prime_on_unlock"),
		ScoringMinElapsedSeconds: v.GetFloat64("scoring.min_elapsed_seconds"),
		CloudinaryCloudName:      v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:         v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:      v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder:   v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:          v.GetInt("upload.max_size_mb"),
		SESRegion:                v.GetString("ses.region"),
		SESFromEmail:             v.GetString("ses.from_email"),
		SESFromName:              v.GetString("ses.from_name"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.GeneratorProvider {
	case "openai", "anthropic", "gemini", "mock", "":
	default:
		return Config{}, fmt.Errorf("unsupported generator provider %q", cfg.GeneratorProvider)
	}

	if cfg.GeneratorMaxAttempts <= 0 {
		cfg.GeneratorMaxAttempts = 3
	}
	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}
	if cfg.ScoringMinElapsedSeconds <= 0 {
		cfg.ScoringMinElapsedSeconds = 10
	}

	return cfg, nil
}
