package config

import (
	"testing"
	"time"
)

func setCoreEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_PERSONA",
		"APP_COMPACTION_THRESHOLD",
		"APP_TAIL_LIMIT",
		"APP_RECALL_K",
		"APP_EMBEDDING_DIM",
		"APP_TRANSCRIPT_DIR",
		"APP_UPLOAD_DIR",
		"APP_RECALL_PATH",
		"APP_WRITEBACK_WORKERS",
		"APP_WRITEBACK_BUFFER",
		"APP_PROVIDER_CONNECT_TIMEOUT",
		"APP_PROVIDER_TIMEOUT",
		"OPENAI_MODEL",
		"OPENAI_EMBEDDING_MODEL",
		"OPENAI_BASE_URL",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setCoreEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.CompactionThreshold != 50 || cfg.TailLimit != 15 || cfg.RecallK != 5 {
		t.Fatalf("memory knobs = %d/%d/%d, want 50/15/5",
			cfg.CompactionThreshold, cfg.TailLimit, cfg.RecallK)
	}
	if cfg.EmbeddingDim != 1536 {
		t.Fatalf("EmbeddingDim = %d, want 1536", cfg.EmbeddingDim)
	}
	if cfg.ProviderConnect != 5*time.Second || cfg.ProviderTimeout != 60*time.Second {
		t.Fatalf("provider timeouts = %v/%v, want 5s/60s", cfg.ProviderConnect, cfg.ProviderTimeout)
	}
	if cfg.Persona == "" {
		t.Fatal("Persona default is empty")
	}
	if cfg.TranscriptDir != "data/chat_logs" {
		t.Fatalf("TranscriptDir = %q", cfg.TranscriptDir)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() without OPENAI_API_KEY succeeded, want error")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("APP_COMPACTION_THRESHOLD", "10")
	t.Setenv("APP_TAIL_LIMIT", "4")
	t.Setenv("APP_RECALL_K", "2")
	t.Setenv("APP_PROVIDER_TIMEOUT", "90s")
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CompactionThreshold != 10 || cfg.TailLimit != 4 || cfg.RecallK != 2 {
		t.Fatalf("memory knobs = %d/%d/%d, want 10/4/2",
			cfg.CompactionThreshold, cfg.TailLimit, cfg.RecallK)
	}
	if cfg.ProviderTimeout != 90*time.Second {
		t.Fatalf("ProviderTimeout = %v, want 90s", cfg.ProviderTimeout)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("OpenAIModel = %q, want gpt-4o", cfg.OpenAIModel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_COMPACTION_THRESHOLD": "-1",
		"APP_RECALL_K":             "0",
		"APP_TAIL_LIMIT":           "not-a-number",
		"APP_PROVIDER_TIMEOUT":     "soon",
		"APP_ALLOW_ANY_ORIGIN":     "maybe",
	}

	for key, val := range cases {
		setCoreEnv(t)
		t.Setenv(key, val)
		if _, err := Load(); err == nil {
			t.Fatalf("Load() with %s=%q succeeded, want error", key, val)
		}
	}
}
