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

	"golang.org/x/sync/errgroup"

	pkglog "github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/metrics"
	"github.com/weiawesome/picpipe/pkg/mq"
	"github.com/weiawesome/picpipe/pkg/storage"
	"github.com/weiawesome/picpipe/resize-service/internal/config"
	"github.com/weiawesome/picpipe/resize-service/internal/processor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(cfg.Log)
	defer pkglog.Close()
	l := pkglog.L()
	l.Info().Msg("resize-service starting")

	if err := run(cfg); err != nil {
		l.Fatal().Err(err).Msg("resize-service failed")
	}
	l.Info().Msg("shutdown complete")
}

func run(cfg *config.Config) error {
	l := pkglog.L()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	l.Info().Str("type", cfg.Storage.Type).Str("bucket", cfg.Storage.S3.Bucket).Msg("storage initialised")

	producer, err := mq.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Partitions, cfg.Kafka.NotificationsTopic)
	if err != nil {
		return fmt.Errorf("init kafka producer: %w", err)
	}
	defer producer.Close()

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		Topic:           cfg.Kafka.TasksTopic,
		GroupID:         cfg.Kafka.GroupID,
		AutoOffsetReset: "earliest",
	})
	if err != nil {
		return fmt.Errorf("init kafka consumer: %w", err)
	}
	defer consumer.Close()

	proc := processor.New(store, producer, cfg.Kafka.NotificationsTopic, cfg.Processor)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	health := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port),
		Handler:     pkglog.HTTPMiddleware(*l, "/health", "/metrics")(mux),
		ReadTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// Run returns once the in-flight task has been reported.
	g.Go(func() error { return consumer.Run(gctx, proc) })
	g.Go(func() error {
		l.Info().Str("addr", health.Addr).Msg("health server listening")
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down: waiting for in-flight task to complete")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
