package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parcom/reviewd/internal/agent"
	"github.com/parcom/reviewd/internal/analytics"
	"github.com/parcom/reviewd/internal/cache"
	"github.com/parcom/reviewd/internal/config"
	"github.com/parcom/reviewd/internal/llm"
	"github.com/parcom/reviewd/internal/ratelimit"
	"github.com/parcom/reviewd/internal/review"
	"github.com/parcom/reviewd/internal/search"
	"github.com/parcom/reviewd/internal/server"
	"github.com/parcom/reviewd/internal/session"
	"github.com/parcom/reviewd/internal/storage"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("reviewd failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	model, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir %s: %w", dir, err)
		}
	}
	kv, err := storage.NewSQLiteKV(context.Background(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer kv.Close()

	index, err := search.New(cfg.SearchPath)
	if err != nil {
		return err
	}
	defer index.Close()

	prompts, err := review.NewPromptLibrary(cfg.PromptDir)
	if err != nil {
		return err
	}
	defer prompts.Close()

	sessions := session.NewStore(kv)
	reviewCache := cache.New(kv, cfg.CacheTTL)
	limiter := ratelimit.New(kv)
	aggregator := analytics.New(kv)

	a := agent.New(model, prompts, sessions, reviewCache, index, cfg.MaxTokens)

	srv := server.New(a, reviewCache, limiter, aggregator, ratelimit.Policy{
		Name:   "api",
		Max:    cfg.RateLimitMax,
		Window: cfg.RateLimitWindow,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("reviewd listening on :%d (provider=%s model=%s)", cfg.Port, cfg.Provider, model.Model())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
