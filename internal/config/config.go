package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store backend selection values.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Model provider selection values.
const (
	ProviderGemini = "gemini"
	ProviderDummy  = "dummy"
)

// BotConfig holds configuration for the webhook server process.
type BotConfig struct {
	Port                   int
	LINEChannelSecret      string
	LINEChannelAccessToken string
	LINEAPIBase            string
	HTTPTimeoutSeconds     int

	ModelProvider        string
	GeminiAPIKey         string
	GeminiModel          string
	DummyGeneratorScript string

	StoreBackend string
	StorePath    string

	RetentionDays      int
	MaxRecords         int
	PromptWindow       int
	MaxReplyChars      int
	MentionToken       string
	BotName            string
	SystemPrompt       string
	Location           *time.Location
	GenerateTimeout    time.Duration
	GenerateMaxRetries int
}

// LoadBotConfig reads bot configuration from environment variables.
// Missing credentials are a startup error: the process fails fast instead of
// limping along unable to verify or answer anything.
func LoadBotConfig() (BotConfig, error) {
	channelSecret := os.Getenv("LINE_CHANNEL_SECRET")
	if channelSecret == "" {
		return BotConfig{}, fmt.Errorf("LINE_CHANNEL_SECRET is required in environment")
	}
	accessToken := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	if accessToken == "" {
		return BotConfig{}, fmt.Errorf("LINE_CHANNEL_ACCESS_TOKEN is required in environment")
	}

	provider := envOrDefault("CHOUSEI_MODEL_PROVIDER", ProviderGemini)
	if provider != ProviderGemini && provider != ProviderDummy {
		return BotConfig{}, fmt.Errorf("CHOUSEI_MODEL_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderDummy, provider)
	}
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if provider == ProviderGemini && geminiKey == "" {
		return BotConfig{}, fmt.Errorf("GEMINI_API_KEY is required in environment when CHOUSEI_MODEL_PROVIDER=gemini")
	}

	backend := envOrDefault("CHOUSEI_STORE_BACKEND", BackendFile)
	if backend != BackendFile && backend != BackendSQLite {
		return BotConfig{}, fmt.Errorf("CHOUSEI_STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendSQLite, backend)
	}
	storePath := os.Getenv("CHOUSEI_STORE_PATH")
	if storePath == "" {
		storePath = filepath.Join("data", "history.json")
		if backend == BackendSQLite {
			storePath = filepath.Join("data", "history.db")
		}
	}

	loc := time.Local
	if tz := os.Getenv("CHOUSEI_TIMEZONE"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return BotConfig{}, fmt.Errorf("CHOUSEI_TIMEZONE %q is not a valid IANA zone: %w", tz, err)
		}
		loc = parsed
	}

	cfg := BotConfig{
		Port:                   envIntOrDefault("PORT", 10000),
		LINEChannelSecret:      channelSecret,
		LINEChannelAccessToken: accessToken,
		LINEAPIBase:            envOrDefault("LINE_API_BASE", "https://api.line.me"),
		HTTPTimeoutSeconds:     envIntOrDefault("CHOUSEI_HTTP_TIMEOUT_SECONDS", 10),

		ModelProvider:        provider,
		GeminiAPIKey:         geminiKey,
		GeminiModel:          envOrDefault("CHOUSEI_GEMINI_MODEL", "gemini-2.0-flash"),
		DummyGeneratorScript: envOrDefault("CHOUSEI_DUMMY_GENERATOR_SCRIPT", "ok"),

		StoreBackend: backend,
		StorePath:    storePath,

		RetentionDays:      envIntOrDefault("CHOUSEI_RETENTION_DAYS", 180),
		MaxRecords:         envIntOrDefault("CHOUSEI_MAX_RECORDS", 2000),
		PromptWindow:       envIntOrDefault("CHOUSEI_PROMPT_WINDOW", 200),
		MaxReplyChars:      envIntOrDefault("CHOUSEI_MAX_REPLY_CHARS", 4000),
		MentionToken:       envOrDefault("CHOUSEI_MENTION_TOKEN", "@調整マン"),
		BotName:            envOrDefault("CHOUSEI_BOT_NAME", "調整マン"),
		SystemPrompt:       envOrDefault("CHOUSEI_SYSTEM_PROMPT", ""),
		Location:           loc,
		GenerateTimeout:    time.Duration(envIntOrDefault("CHOUSEI_GENERATE_TIMEOUT_SECONDS", 30)) * time.Second,
		GenerateMaxRetries: envIntOrDefault("CHOUSEI_GENERATE_MAX_RETRIES", 2),
	}

	if cfg.RetentionDays <= 0 {
		return BotConfig{}, fmt.Errorf("CHOUSEI_RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	if cfg.MaxRecords <= 0 {
		return BotConfig{}, fmt.Errorf("CHOUSEI_MAX_RECORDS must be positive, got %d", cfg.MaxRecords)
	}
	if cfg.PromptWindow <= 0 {
		return BotConfig{}, fmt.Errorf("CHOUSEI_PROMPT_WINDOW must be positive, got %d", cfg.PromptWindow)
	}
	if cfg.MaxReplyChars <= 0 {
		return BotConfig{}, fmt.Errorf("CHOUSEI_MAX_REPLY_CHARS must be positive, got %d", cfg.MaxReplyChars)
	}
	if strings.TrimSpace(cfg.MentionToken) == "" {
		return BotConfig{}, fmt.Errorf("CHOUSEI_MENTION_TOKEN must not be blank")
	}
	if cfg.GenerateTimeout <= 0 {
		return BotConfig{}, fmt.Errorf("CHOUSEI_GENERATE_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// Retention returns the configured retention window as a duration.
func (c BotConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
