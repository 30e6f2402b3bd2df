package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/theimaginaryfoundation/review-insights/insights"
	"github.com/theimaginaryfoundation/review-insights/insights/logger"
	"github.com/theimaginaryfoundation/review-insights/insights/metrics"
	"github.com/theimaginaryfoundation/review-insights/insights/provider"
	"github.com/theimaginaryfoundation/review-insights/insights/server"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := loadEnvFile(cfg.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		Console:    true,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 30,
	})

	extractor, streamer, err := buildBackend(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := server.NewRegistry(func(id string) *insights.Session {
		return insights.NewSession(id,
			insights.NewAnalyzer(extractor, cfg.AnalysisTimeout),
			insights.NewChatEngine(streamer, cfg.ChatTimeout),
		)
	}, cfg.SessionTTL)
	go sessions.Run(ctx, cfg.SweepInterval)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(sessions, metrics.New(), server.Options{CORSOrigins: cfg.CORSOrigins, MaxBodyBytes: cfg.MaxBodyBytes}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "model", cfg.Model, "chat_model", cfg.ChatModel, "mock", cfg.Mock)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "err", err)
		}
		slog.Info("server stopped")
	}
}

func buildBackend(cfg Config) (insights.Extractor, insights.ConversationStreamer, error) {
	if cfg.Mock {
		m := provider.NewMock()
		return m, m, nil
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, nil, errors.New("missing OPENAI_API_KEY (or pass -api-key, or -mock)")
	}
	o := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:          apiKey,
		BaseURL:         cfg.BaseURL,
		Model:           cfg.Model,
		ChatModel:       cfg.ChatModel,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	return o, o, nil
}

// loadEnvFile loads path into the environment without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
