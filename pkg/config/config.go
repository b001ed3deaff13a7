package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// devJWTSecret signs tokens in staging when JWT_SECRET_KEY is unset.
const devJWTSecret = "charla-staging-secret"

// Config holds every runtime setting of the chat server.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"staging"`
	Port   string `env:"PORT" envDefault:"5000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	JWTSecret   string        `env:"JWT_SECRET_KEY"`
	JWTLifetime time.Duration `env:"JWT_LIFETIME" envDefault:"24h"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000,http://localhost:5173,http://127.0.0.1:5173"`

	// DBDriver selects the gorm dialector: sqlite, postgres or mysql.
	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"app.db"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	DefaultModel    string `env:"CHAT_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	MultimodalModel string `env:"CHAT_MULTIMODAL_MODEL" envDefault:"gpt-4o"`
	TitleMaxLength  int    `env:"CHAT_TITLE_MAX_LENGTH" envDefault:"80"`

	GuestLimit  int           `env:"GUEST_CONVERSATION_LIMIT" envDefault:"5"`
	GuestWindow time.Duration `env:"GUEST_WINDOW" envDefault:"24h"`

	// StorageBackend selects the blob store: local or s3.
	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"local"`
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./uploads"`
	LocalStorageURL  string `env:"LOCAL_STORAGE_BASE_URL" envDefault:"http://127.0.0.1:5000/uploads"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3PublicURL      string `env:"S3_PUBLIC_URL"`
	S3Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3AccessKeyID    string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey      string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	MaxUploadBytes   int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	// runtime tunables
	RateLimitWindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"10"`
	RateLimitCapacity      int `env:"RATE_LIMIT_CAPACITY" envDefault:"5"`
	ExtractCacheTTLSeconds int `env:"EXTRACT_CACHE_TTL_SECONDS" envDefault:"600"`
	ExtractCacheMaxItems   int `env:"EXTRACT_CACHE_MAX_ITEMS" envDefault:"500"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads .env outside production, then parses the environment.
func Load() (*Config, error) {
	// .env is never read in production
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that env tags cannot express.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"staging", "production"}, c.AppEnv) {
		return errors.New("environment variable APP_ENV must be 'staging' or 'production'")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET_KEY must be set in production")
		}
		c.JWTSecret = devJWTSecret
	}
	if !slices.Contains([]string{"sqlite", "postgres", "mysql"}, c.DBDriver) {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if !slices.Contains([]string{"local", "s3"}, c.StorageBackend) {
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 * 1024 * 1024
	}
	if c.TitleMaxLength <= 0 {
		c.TitleMaxLength = 80
	}
	if c.GuestLimit < 0 {
		c.GuestLimit = 0
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func (c *Config) IsStaging() bool { return c.AppEnv == "staging" }

// ProviderEnabled reports whether turns go to the OpenAI API instead of the local provider.
func (c *Config) ProviderEnabled() bool { return strings.TrimSpace(c.OpenAIAPIKey) != "" }

func (c *Config) Addr() string { return ":" + c.Port }

// LogSummary prints the settings that matter when debugging an environment.
func (c *Config) LogSummary(log zerolog.Logger) {
	log.Info().
		Str("app_env", c.AppEnv).
		Str("db_driver", c.DBDriver).
		Str("storage", c.StorageBackend).
		Bool("provider_enabled", c.ProviderEnabled()).
		Str("default_model", c.DefaultModel).
		Str("multimodal_model", c.MultimodalModel).
		Msg("config loaded")
	log.Info().
		Int("rate_window_s", c.RateLimitWindowSeconds).
		Int("rate_capacity", c.RateLimitCapacity).
		Int("guest_limit", c.GuestLimit).
		Dur("guest_window", c.GuestWindow).
		Int64("max_upload_bytes", c.MaxUploadBytes).
		Msg("limits")
}
