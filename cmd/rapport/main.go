package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chayanin-k/rapport/internal/config"
	"github.com/chayanin-k/rapport/internal/engine"
	"github.com/chayanin-k/rapport/internal/httpapi"
	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/recall"
	"github.com/chayanin-k/rapport/internal/transcript"
	"github.com/chayanin-k/rapport/internal/writeback"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := transcript.NewStore(ctx, cfg.DatabaseURL, cfg.TranscriptDir)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer store.Close()

	index, err := recall.New(cfg.RecallPath)
	if err != nil {
		log.Fatalf("recall index init failed: %v", err)
	}

	chat := provider.NewChatClient(provider.ChatConfig{
		BaseURL:        cfg.OpenAIBaseURL,
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.OpenAIModel,
		ConnectTimeout: cfg.ProviderConnect,
		OverallTimeout: cfg.ProviderTimeout,
	})
	embedder := provider.NewEmbeddingClient(provider.EmbeddingConfig{
		BaseURL:        cfg.OpenAIBaseURL,
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.OpenAIEmbeddingModel,
		Dimensions:     cfg.EmbeddingDim,
		ConnectTimeout: cfg.ProviderConnect,
		OverallTimeout: cfg.ProviderTimeout,
	})

	compactor := engine.NewCompactor(store, chat, embedder, index, cfg.CompactionThreshold, metrics)
	assembler := engine.NewAssembler(engine.AssemblerConfig{
		Persona:             cfg.Persona,
		CompactionThreshold: cfg.CompactionThreshold,
		TailLimit:           cfg.TailLimit,
		RecallK:             cfg.RecallK,
	}, store, index, embedder, compactor, metrics)

	queue := writeback.NewQueue(store, index, embedder, metrics, cfg.WritebackWorkers, cfg.WritebackBuffer)
	eng := engine.New(assembler, chat, queue, metrics)

	api := httpapi.New(cfg, eng, store)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// Let in-flight writeback finish so replies already sent still reach
	// the transcript and the recall index.
	if err := queue.Drain(shutdownCtx); err != nil {
		log.Printf("writeback drain incomplete: %v", err)
	}

	log.Printf("shutdown complete")
}
