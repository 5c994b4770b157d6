package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Backend holds settings for the reference backend service.
type Backend struct {
	Addr string

	DBDriver    string
	DatabaseURL string
	// AutoMigrate applies embedded migrations at startup.
	AutoMigrate bool

	OpenAIAPIKey  string
	OpenAIBaseURL string
	RealtimeModel string
	DefaultVoice  string

	MaxBodyBytes int64

	ReadHeaderTimeout   time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	LogLevel  string
	LogFormat string
}

func LoadBackendFromEnv() (Backend, error) {
	cfg := Backend{
		Addr:                envOr("TUTOR_BACKEND_ADDR", ":3000"),
		DBDriver:            strings.ToLower(envOr("TUTOR_BACKEND_DB_DRIVER", DriverSQLite)),
		DatabaseURL:         envOr("TUTOR_BACKEND_DATABASE_URL", "file:tutor.db"),
		AutoMigrate:         envBoolOr("TUTOR_BACKEND_AUTO_MIGRATE", true),
		OpenAIAPIKey:        envOr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       envOr("TUTOR_BACKEND_OPENAI_BASE_URL", "https://api.openai.com"),
		RealtimeModel:       envOr("TUTOR_BACKEND_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		DefaultVoice:        envOr("TUTOR_DEFAULT_VOICE", "shimmer"),
		MaxBodyBytes:        envInt64Or("TUTOR_BACKEND_MAX_BODY_BYTES", 64<<10),
		ReadHeaderTimeout:   envDurationOr("TUTOR_BACKEND_READ_HEADER_TIMEOUT", 10*time.Second),
		HandlerTimeout:      envDurationOr("TUTOR_BACKEND_HANDLER_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("TUTOR_BACKEND_SHUTDOWN_GRACE", 15*time.Second),
		LogLevel:            envOr("TUTOR_LOG_LEVEL", "info"),
		LogFormat:           envOr("TUTOR_LOG_FORMAT", "text"),
	}

	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return Backend{}, fmt.Errorf("TUTOR_BACKEND_DB_DRIVER must be one of sqlite|postgres")
	}
	if cfg.OpenAIAPIKey == "" {
		return Backend{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if err := validateHTTPURL("TUTOR_BACKEND_OPENAI_BASE_URL", cfg.OpenAIBaseURL); err != nil {
		return Backend{}, err
	}
	if cfg.MaxBodyBytes <= 0 {
		return Backend{}, fmt.Errorf("TUTOR_BACKEND_MAX_BODY_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Backend{}, fmt.Errorf("TUTOR_BACKEND_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Backend{}, fmt.Errorf("TUTOR_BACKEND_HANDLER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Backend{}, fmt.Errorf("TUTOR_BACKEND_SHUTDOWN_GRACE must be > 0")
	}
	return cfg, nil
}
