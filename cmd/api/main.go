package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/recommendation/internal/api"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/persistence/store"
	httptransport "example.com/recommendation/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "error", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStore, err := store.Open(ctx, store.Config{
		Driver:      cfg.StoreDriver,
		PostgresURL: cfg.PostgresURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	handler := api.NewHandler(domain.NewService(repo), log)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.RequestLogger(log, mux))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("recommendation api listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-shutdownCh:
	case runErr = <-serveErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
	return runErr
}
