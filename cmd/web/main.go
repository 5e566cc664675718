package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"transcriptorClinico/internal/config"
	"transcriptorClinico/internal/engine"
	"transcriptorClinico/internal/handlers"
	"transcriptorClinico/internal/inference"
	"transcriptorClinico/internal/pipeline"
	"transcriptorClinico/internal/transcoder"
	"transcriptorClinico/internal/transcribe"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	eng := engine.New(logger, cfg.EngineDir, cfg.EngineAssetURL)
	tc := transcoder.NewService(logger, eng)
	client := transcribe.NewClient(logger, transcribeEndpoint(cfg))

	provider := buildProvider(logger, cfg)

	pl := pipeline.New(logger, tc, client)
	app := handlers.NewApp(logger, pl, provider, cfg.MaxUploadBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pl.StartCleanupLoop(ctx, cfg.CleanupInterval, cfg.SessionTTL)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	logger.Info("server stopped")
}

// transcribeEndpoint defaults to this server's own inference boundary.
func transcribeEndpoint(cfg config.Config) string {
	if cfg.TranscribeEndpoint != "" {
		return cfg.TranscribeEndpoint
	}
	host := cfg.Addr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host + "/api/transcribe"
}

func buildProvider(logger *slog.Logger, cfg config.Config) inference.Provider {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			return inference.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		}
	default:
		if cfg.GeminiAPIKey != "" {
			return inference.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
		}
	}
	logger.Warn("no inference provider configured, /api/transcribe will reject requests",
		"provider", cfg.Provider)
	return nil
}
