package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the UL builder gateway.
// The registry's snapshot location and TTL are read by internal/store
// itself (UL_DATA_DIR, UL_BUILD_TTL).
type Config struct {
	Port             int
	Version          string
	DefaultUserEmail string
	Architect        ArchitectConfig
	Telemetry        TelemetryConfig
	Progress         ProgressConfig
	Notify           NotifyConfig
	APIKeys          []string
}

// ArchitectConfig locates the upstream Architect Service.
type ArchitectConfig struct {
	BaseURL string
	Timeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// ProgressConfig tunes the cosmetic build progress run. Tests use
// millisecond ticks; the UI default paces a run at several seconds.
type ProgressConfig struct {
	TickMillis   int
	TicksPerStep int
}

// NotifyConfig lists webhook endpoints for build milestone events.
type NotifyConfig struct {
	WebhookURLs []string
	Secret      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:             envInt("UL_PORT", 8080),
		Version:          envStr("UL_VERSION", "0.1.0"),
		DefaultUserEmail: envStr("UL_DEFAULT_USER_EMAIL", "dev@localhost"),
		Architect: ArchitectConfig{
			BaseURL: envStr("UL_ARCHITECT_URL", "http://localhost:8000"),
			Timeout: time.Duration(envInt("UL_ARCHITECT_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "ul-gateway"),
		},
		Progress: ProgressConfig{
			TickMillis:   envInt("UL_PROGRESS_TICK_MILLIS", 150),
			TicksPerStep: envInt("UL_PROGRESS_TICKS_PER_STEP", 6),
		},
		Notify: NotifyConfig{
			WebhookURLs: envList("UL_WEBHOOK_URLS"),
			Secret:      envStr("UL_NOTIFY_SECRET", ""),
		},
		APIKeys: envList("UL_API_KEYS"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
