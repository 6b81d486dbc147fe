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
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/consumer"
	"example.com/recommendation/internal/dedupe"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/oracle"
	"example.com/recommendation/internal/persistence/store"
	"example.com/recommendation/internal/publish"
	"example.com/recommendation/internal/recommender"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("consumer exited", "error", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, log, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "recommendation-consumer",
		Endpoint:    cfg.OTelEndpoint,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	repo, closeStore, err := store.Open(ctx, store.Config{
		Driver:      cfg.StoreDriver,
		PostgresURL: cfg.PostgresURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer closeStore()

	ai, err := oracle.New(ctx, oracle.Config{
		Backend: cfg.OracleBackend,
		URL:     cfg.OracleURL,
		Model:   cfg.OracleModel,
		APIKey:  cfg.OracleAPIKey,
		Timeout: cfg.OracleTimeout,
	})
	if err != nil {
		return err
	}

	guard, closeGuard, err := buildGuard(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGuard()

	opts := []recommender.Option{
		recommender.WithLogger(log),
		recommender.WithGuard(guard),
		recommender.WithOracleTimeout(cfg.OracleTimeout),
		recommender.WithFailurePolicy(recommender.ParseFailurePolicy(cfg.OracleFailurePolicy)),
	}
	if cfg.RecommendationTopic != "" {
		producer := publish.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		opts = append(opts, recommender.WithPublisher(publish.NewPublisher(producer, cfg.RecommendationTopic)))
	}
	pipeline := recommender.New(ai, repo, opts...)
	handler := consumer.NewActivityHandler(pipeline, log)

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("consumer metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	workers := cfg.ConsumerConcurrency
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range cfg.ConsumerTopics {
		for i := 0; i < workers; i++ {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:         cfg.KafkaBrokers,
				GroupID:         cfg.ConsumerGroupID,
				Topic:           topic,
				MinBytes:        1e3,
				MaxBytes:        10e6,
				CommitInterval:  time.Second,
				RetentionTime:   24 * time.Hour,
				ReadLagInterval: -1,
			})
			proc := consumer.NewProcessor(reader, handler,
				consumer.WithLogger(log.With("topic", topic, "worker", i)),
				consumer.WithHandlerTimeout(cfg.HandlerTimeout),
			)

			g.Go(func() error {
				defer reader.Close()
				log.Info("consumer started", "topic", topic, "worker", i, "group", cfg.ConsumerGroupID)
				if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("consumer %s/%d: %w", topic, i, err)
				}
				return nil
			})
		}
	}

	<-gctx.Done()
	log.Info("consumer shutdown requested")

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", "error", err)
	}
	return runErr
}

func buildGuard(ctx context.Context, cfg config.Config) (dedupe.Guard, func(), error) {
	switch cfg.DedupeBackend {
	case "none":
		return dedupe.Noop{}, func() {}, nil
	case "redis":
		guard, err := dedupe.NewRedisGuard(ctx, cfg.RedisAddr, cfg.DedupeTTL)
		if err != nil {
			return nil, nil, err
		}
		return guard, func() { _ = guard.Close() }, nil
	default:
		guard, err := dedupe.NewMemoryGuard(cfg.DedupeSize)
		if err != nil {
			return nil, nil, err
		}
		return guard, func() {}, nil
	}
}
