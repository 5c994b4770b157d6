package config

import (
	"strings"
	"testing"
	"time"
)

var tutorEnvKeys = []string{
	"TUTOR_API_URL",
	"EXPO_PUBLIC_API_URL",
	"TUTOR_AUTH_TOKEN",
	"TUTOR_REALTIME_URL",
	"TUTOR_TEMPERATURE",
	"TUTOR_MAX_OUTPUT_TOKENS",
	"TUTOR_DEFAULT_VOICE",
	"TUTOR_REPORT_RETRY_DELAY",
	"TUTOR_WS_PING_INTERVAL",
	"TUTOR_WS_WRITE_TIMEOUT",
	"TUTOR_HTTP_TIMEOUT",
	"TUTOR_LOG_LEVEL",
	"TUTOR_LOG_FORMAT",
	"TUTOR_BACKEND_ADDR",
	"TUTOR_BACKEND_DB_DRIVER",
	"TUTOR_BACKEND_DATABASE_URL",
	"TUTOR_BACKEND_AUTO_MIGRATE",
	"OPENAI_API_KEY",
	"TUTOR_BACKEND_OPENAI_BASE_URL",
	"TUTOR_BACKEND_REALTIME_MODEL",
	"TUTOR_BACKEND_MAX_BODY_BYTES",
	"TUTOR_BACKEND_READ_HEADER_TIMEOUT",
	"TUTOR_BACKEND_HANDLER_TIMEOUT",
	"TUTOR_BACKEND_SHUTDOWN_GRACE",
}

func clearTutorEnv(t *testing.T) {
	t.Helper()
	for _, key := range tutorEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadClientFromEnv_Defaults(t *testing.T) {
	clearTutorEnv(t)

	cfg, err := LoadClientFromEnv()
	if err != nil {
		t.Fatalf("LoadClientFromEnv() error = %v", err)
	}
	if cfg.APIURL != "http://localhost:3000" {
		t.Fatalf("APIURL=%q", cfg.APIURL)
	}
	if !strings.HasPrefix(cfg.RealtimeURL, "wss://api.openai.com/v1/realtime") {
		t.Fatalf("RealtimeURL=%q", cfg.RealtimeURL)
	}
	if cfg.Temperature != 0.8 || cfg.MaxOutputTokens != 4096 || cfg.DefaultVoice != "shimmer" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ReportRetryDelay != 0 || cfg.WSPingInterval != 20*time.Second || cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadClientFromEnv_ExpoFallback(t *testing.T) {
	clearTutorEnv(t)
	t.Setenv("EXPO_PUBLIC_API_URL", "https://tutor.example.com")

	cfg, err := LoadClientFromEnv()
	if err != nil {
		t.Fatalf("LoadClientFromEnv() error = %v", err)
	}
	if cfg.APIURL != "https://tutor.example.com" {
		t.Fatalf("APIURL=%q", cfg.APIURL)
	}

	t.Setenv("TUTOR_API_URL", "http://127.0.0.1:9000")
	cfg, err = LoadClientFromEnv()
	if err != nil {
		t.Fatalf("LoadClientFromEnv() error = %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9000" {
		t.Fatalf("APIURL=%q, want TUTOR_API_URL to win", cfg.APIURL)
	}
}

func TestLoadClientFromEnv_Validation(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"TUTOR_API_URL", "localhost:3000", "TUTOR_API_URL"},
		{"TUTOR_REALTIME_URL", "https://api.openai.com/v1/realtime", "TUTOR_REALTIME_URL"},
		{"TUTOR_TEMPERATURE", "1.5", "TUTOR_TEMPERATURE"},
		{"TUTOR_TEMPERATURE", "0.5", "TUTOR_TEMPERATURE"},
		{"TUTOR_MAX_OUTPUT_TOKENS", "0", "TUTOR_MAX_OUTPUT_TOKENS"},
		{"TUTOR_MAX_OUTPUT_TOKENS", "5000", "TUTOR_MAX_OUTPUT_TOKENS"},
		{"TUTOR_REPORT_RETRY_DELAY", "-1s", "TUTOR_REPORT_RETRY_DELAY"},
		{"TUTOR_WS_PING_INTERVAL", "0s", "TUTOR_WS_PING_INTERVAL"},
		{"TUTOR_HTTP_TIMEOUT", "-5s", "TUTOR_HTTP_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearTutorEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadClientFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadBackendFromEnv_Defaults(t *testing.T) {
	clearTutorEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadBackendFromEnv()
	if err != nil {
		t.Fatalf("LoadBackendFromEnv() error = %v", err)
	}
	if cfg.Addr != ":3000" || cfg.DBDriver != DriverSQLite || cfg.DatabaseURL != "file:tutor.db" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("AutoMigrate=false, want true")
	}
	if cfg.OpenAIBaseURL != "https://api.openai.com" {
		t.Fatalf("OpenAIBaseURL=%q", cfg.OpenAIBaseURL)
	}
}

func TestLoadBackendFromEnv_Overrides(t *testing.T) {
	clearTutorEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TUTOR_BACKEND_DB_DRIVER", "Postgres")
	t.Setenv("TUTOR_BACKEND_DATABASE_URL", "postgres://tutor@localhost/tutor")
	t.Setenv("TUTOR_BACKEND_AUTO_MIGRATE", "off")
	t.Setenv("TUTOR_BACKEND_SHUTDOWN_GRACE", "3s")

	cfg, err := LoadBackendFromEnv()
	if err != nil {
		t.Fatalf("LoadBackendFromEnv() error = %v", err)
	}
	if cfg.DBDriver != DriverPostgres || cfg.AutoMigrate || cfg.ShutdownGracePeriod != 3*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadBackendFromEnv_Validation(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"TUTOR_BACKEND_DB_DRIVER", "mysql", "TUTOR_BACKEND_DB_DRIVER"},
		{"OPENAI_API_KEY", "", "OPENAI_API_KEY"},
		{"TUTOR_BACKEND_OPENAI_BASE_URL", "api.openai.com", "TUTOR_BACKEND_OPENAI_BASE_URL"},
		{"TUTOR_BACKEND_MAX_BODY_BYTES", "0", "TUTOR_BACKEND_MAX_BODY_BYTES"},
		{"TUTOR_BACKEND_HANDLER_TIMEOUT", "0s", "TUTOR_BACKEND_HANDLER_TIMEOUT"},
		{"TUTOR_BACKEND_SHUTDOWN_GRACE", "-1s", "TUTOR_BACKEND_SHUTDOWN_GRACE"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearTutorEnv(t)
			t.Setenv("OPENAI_API_KEY", "sk-test")
			t.Setenv(tt.key, tt.value)
			_, err := LoadBackendFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
