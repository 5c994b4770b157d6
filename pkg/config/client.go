package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vango-go/vai-tutor/pkg/backend"
	"github.com/vango-go/vai-tutor/pkg/core/types"
	"github.com/vango-go/vai-tutor/pkg/realtime/protocol"
	"github.com/vango-go/vai-tutor/pkg/realtime/stream"
)

// Client holds settings for the tutoring client (CLI).
type Client struct {
	APIURL      string
	AuthToken   string
	RealtimeURL string

	Temperature     float64
	MaxOutputTokens int
	DefaultVoice    string

	// ReportRetryDelay is the pause before the single outcome retry.
	ReportRetryDelay time.Duration

	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
	HTTPTimeout    time.Duration

	LogLevel  string
	LogFormat string
}

func LoadClientFromEnv() (Client, error) {
	cfg := Client{
		APIURL:           firstEnvOr(backend.DefaultBaseURL, "TUTOR_API_URL", "EXPO_PUBLIC_API_URL"),
		AuthToken:        envOr("TUTOR_AUTH_TOKEN", ""),
		RealtimeURL:      envOr("TUTOR_REALTIME_URL", stream.DefaultURL),
		Temperature:      envFloat64Or("TUTOR_TEMPERATURE", protocol.DefaultTemperature),
		MaxOutputTokens:  envIntOr("TUTOR_MAX_OUTPUT_TOKENS", protocol.DefaultMaxResponseOutputTokens),
		DefaultVoice:     envOr("TUTOR_DEFAULT_VOICE", types.DefaultVoice),
		ReportRetryDelay: envDurationOr("TUTOR_REPORT_RETRY_DELAY", 0),
		WSPingInterval:   envDurationOr("TUTOR_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:   envDurationOr("TUTOR_WS_WRITE_TIMEOUT", 5*time.Second),
		HTTPTimeout:      envDurationOr("TUTOR_HTTP_TIMEOUT", 30*time.Second),
		LogLevel:         envOr("TUTOR_LOG_LEVEL", "info"),
		LogFormat:        envOr("TUTOR_LOG_FORMAT", "text"),
	}

	if err := validateHTTPURL("TUTOR_API_URL", cfg.APIURL); err != nil {
		return Client{}, err
	}
	u, err := url.Parse(cfg.RealtimeURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return Client{}, fmt.Errorf("TUTOR_REALTIME_URL must be a ws:// or wss:// URL")
	}
	if cfg.Temperature < protocol.MinTemperature || cfg.Temperature > protocol.MaxTemperature {
		return Client{}, fmt.Errorf("TUTOR_TEMPERATURE must be between %.1f and %.1f", protocol.MinTemperature, protocol.MaxTemperature)
	}
	if cfg.MaxOutputTokens < 1 || cfg.MaxOutputTokens > protocol.MaxResponseOutputTokensCap {
		return Client{}, fmt.Errorf("TUTOR_MAX_OUTPUT_TOKENS must be between 1 and %d", protocol.MaxResponseOutputTokensCap)
	}
	if cfg.ReportRetryDelay < 0 {
		return Client{}, fmt.Errorf("TUTOR_REPORT_RETRY_DELAY must be >= 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Client{}, fmt.Errorf("TUTOR_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Client{}, fmt.Errorf("TUTOR_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Client{}, fmt.Errorf("TUTOR_HTTP_TIMEOUT must be > 0")
	}
	return cfg, nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http:// or https:// URL", name)
	}
	return nil
}
