package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultPersona = "You are Rapi, a calm and dependable companion. " +
	"Stay in character, keep continuity with the conversation history, " +
	"and never change the topic on your own. If nothing new was said, " +
	"continue naturally from the most recent exchange."

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	OpenAIBaseURL        string
	ProviderConnect      time.Duration
	ProviderTimeout      time.Duration

	Persona             string
	CompactionThreshold int
	TailLimit           int
	RecallK             int
	EmbeddingDim        int

	DatabaseURL   string
	TranscriptDir string
	UploadDir     string
	RecallPath    string

	WritebackWorkers int
	WritebackBuffer  int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "rapport"),
		AllowAnyOrigin:       false,
		OpenAIAPIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:          envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAIBaseURL:        envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ProviderConnect:      5 * time.Second,
		ProviderTimeout:      60 * time.Second,
		Persona:              envOrDefault("APP_PERSONA", defaultPersona),
		CompactionThreshold:  50,
		TailLimit:            15,
		RecallK:              5,
		EmbeddingDim:         1536,
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TranscriptDir:        envOrDefault("APP_TRANSCRIPT_DIR", "data/chat_logs"),
		UploadDir:            envOrDefault("APP_UPLOAD_DIR", "data/uploads"),
		RecallPath:           strings.TrimSpace(os.Getenv("APP_RECALL_PATH")),
		ShutdownTimeout:      15 * time.Second,
		WritebackWorkers:     2,
		WritebackBuffer:      64,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderConnect, err = durationFromEnv("APP_PROVIDER_CONNECT_TIMEOUT", cfg.ProviderConnect)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("APP_PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompactionThreshold, err = intFromEnv("APP_COMPACTION_THRESHOLD", cfg.CompactionThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.TailLimit, err = intFromEnv("APP_TAIL_LIMIT", cfg.TailLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.RecallK, err = intFromEnv("APP_RECALL_K", cfg.RecallK)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("APP_EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.WritebackWorkers, err = intFromEnv("APP_WRITEBACK_WORKERS", cfg.WritebackWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.WritebackBuffer, err = intFromEnv("APP_WRITEBACK_BUFFER", cfg.WritebackBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.CompactionThreshold <= 0 {
		return Config{}, fmt.Errorf("APP_COMPACTION_THRESHOLD must be positive")
	}
	if cfg.TailLimit <= 0 {
		return Config{}, fmt.Errorf("APP_TAIL_LIMIT must be positive")
	}
	if cfg.RecallK <= 0 {
		return Config{}, fmt.Errorf("APP_RECALL_K must be positive")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("APP_EMBEDDING_DIM must be positive")
	}
	if cfg.WritebackWorkers <= 0 {
		return Config{}, fmt.Errorf("APP_WRITEBACK_WORKERS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
