// Package config loads and validates application configuration.
//
// Values come from an optional YAML file (METAREC_CONFIG_FILE) overlaid by
// environment variables; environment always wins so deployments can patch a
// single setting without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage locations.
	DataDir  string // Conversation database directory.
	TraceDir string // Debug run trace directory.

	// Frontend.
	CORSAllowedOrigins []string
	GoogleMapsAPIKey   string

	// LLM settings (OpenAI-compatible chat completions).
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Debug console settings.
	DebugUIEnabled         bool
	DebugLLMExplainEnabled bool
	DebugCookieName        string
	DebugCookieSecure      bool
	DebugAdminToken        string
	DebugAdminTokenHash    string
	DebugSessionTTL        time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// fileConfig is the YAML shape of METAREC_CONFIG_FILE. Only a subset of
// settings makes sense in a checked-in file; credentials stay in the
// environment.
type fileConfig struct {
	Port               int      `yaml:"port"`
	DataDir            string   `yaml:"data_dir"`
	TraceDir           string   `yaml:"trace_dir"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	LLMBaseURL         string   `yaml:"llm_base_url"`
	LLMModel           string   `yaml:"llm_model"`
	DebugUIEnabled     *bool    `yaml:"debug_ui_enabled"`
	DebugCookieName    string   `yaml:"debug_cookie_name"`
	ServiceName        string   `yaml:"service_name"`
	LogLevel           string   `yaml:"log_level"`
}

// Load reads configuration with sensible defaults.
func Load() (Config, error) {
	var file fileConfig
	if path := os.Getenv("METAREC_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	debugEnabledDefault := false
	if file.DebugUIEnabled != nil {
		debugEnabledDefault = *file.DebugUIEnabled
	}

	cfg := Config{
		Port:                   envInt("METAREC_PORT", orInt(file.Port, 8000)),
		ReadTimeout:            envDuration("METAREC_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:           envDuration("METAREC_WRITE_TIMEOUT", 120*time.Second),
		DataDir:                envStr("METAREC_DATA_DIR", orStr(file.DataDir, "data")),
		TraceDir:               envStr("METAREC_TRACE_DIR", orStr(file.TraceDir, "debug_traces")),
		CORSAllowedOrigins:     envList("METAREC_CORS_ORIGINS", file.CORSAllowedOrigins),
		GoogleMapsAPIKey:       envStr("VITE_GOOGLE_MAPS_API_KEY", ""),
		LLMBaseURL:             envStr("LLM_BASE_URL", orStr(file.LLMBaseURL, "https://api.openai.com/v1")),
		LLMAPIKey:              envStr("OPENAI_API_KEY", ""),
		LLMModel:               envStr("LLM_MODEL", file.LLMModel),
		DebugUIEnabled:         envBool("DEBUG_UI_ENABLED", debugEnabledDefault),
		DebugLLMExplainEnabled: envBool("DEBUG_LLM_EXPLAIN_ENABLED", true),
		DebugCookieName:        envStr("DEBUG_SESSION_COOKIE_NAME", orStr(file.DebugCookieName, "metarec_debug_session")),
		DebugCookieSecure:      envBool("DEBUG_SESSION_COOKIE_SECURE", false),
		DebugAdminToken:        envStr("DEBUG_ADMIN_TOKEN", ""),
		DebugAdminTokenHash:    envStr("DEBUG_ADMIN_TOKEN_HASH", ""),
		DebugSessionTTL:        time.Duration(envInt("DEBUG_SESSION_TTL_HOURS", 8)) * time.Hour,
		OTELEndpoint:           envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:           envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:            envStr("OTEL_SERVICE_NAME", orStr(file.ServiceName, "metarec")),
		LogLevel:               envStr("METAREC_LOG_LEVEL", orStr(file.LogLevel, "info")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: METAREC_PORT must be a valid port (got %d)", c.Port)
	}
	if c.TraceDir == "" {
		return fmt.Errorf("config: METAREC_TRACE_DIR must not be empty")
	}
	if c.DebugSessionTTL <= 0 {
		return fmt.Errorf("config: DEBUG_SESSION_TTL_HOURS must be positive")
	}
	if c.DebugUIEnabled && c.DebugAdminToken == "" && c.DebugAdminTokenHash == "" {
		return fmt.Errorf("config: debug UI enabled but neither DEBUG_ADMIN_TOKEN nor DEBUG_ADMIN_TOKEN_HASH is set")
	}
	return nil
}

// LLMConfigured reports whether an outbound LLM client can be built.
func (c Config) LLMConfigured() bool {
	return c.LLMAPIKey != "" && c.LLMModel != ""
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func orStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
