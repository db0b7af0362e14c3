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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/picpipe/notify-service/internal/bus"
	"github.com/weiawesome/picpipe/notify-service/internal/config"
	"github.com/weiawesome/picpipe/notify-service/internal/dispatcher"
	"github.com/weiawesome/picpipe/notify-service/internal/handler"
	"github.com/weiawesome/picpipe/notify-service/internal/hub"
	"github.com/weiawesome/picpipe/notify-service/internal/listener"
	"github.com/weiawesome/picpipe/notify-service/internal/repository"
	"github.com/weiawesome/picpipe/notify-service/internal/router"
	"github.com/weiawesome/picpipe/notify-service/internal/service"
	"github.com/weiawesome/picpipe/notify-service/internal/subscription"
	"github.com/weiawesome/picpipe/pkg/database"
	pkglog "github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/mq"
	"github.com/weiawesome/picpipe/pkg/pubsub"
	"github.com/weiawesome/picpipe/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(cfg.Log)
	defer pkglog.Close()
	l := pkglog.L().With().Str(pkglog.FieldInstance, cfg.InstanceID).Logger()

	if err := run(cfg); err != nil {
		l.Fatal().Err(err).Msg("notify service failed")
	}
	l.Info().Msg("notify service stopped")
}

func run(cfg *config.Config) error {
	l := pkglog.L().With().Str(pkglog.FieldInstance, cfg.InstanceID).Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = pkglog.WithLogger(ctx, l)

	// Redis: subscription keys and, by default, the broadcast channel.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	l.Info().Str("address", cfg.Redis.Address).Msg("connected to Redis")

	broadcast, err := pubsub.NewPubSub(cfg.Broadcast, rdb)
	if err != nil {
		return fmt.Errorf("create broadcast: %w", err)
	}
	defer broadcast.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create object storage: %w", err)
	}

	repo, err := openRepository(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open project store: %w", err)
	}
	defer repo.Close(context.Background())

	producer, err := mq.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Partitions, cfg.Kafka.TasksTopic)
	if err != nil {
		return fmt.Errorf("create task producer: %w", err)
	}
	defer producer.Close()

	objectConsumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ObjectEventsTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return fmt.Errorf("create object event consumer: %w", err)
	}
	defer objectConsumer.Close()

	notificationConsumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.NotificationsTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return fmt.Errorf("create notification consumer: %w", err)
	}
	defer notificationConsumer.Close()

	// Core wiring.
	wsHub := hub.NewHub()
	mgr := subscription.NewManager(cfg.InstanceID, wsHub, router.New(rdb, broadcast, cfg.Redis.KeyPrefix))
	b := bus.New()
	service.NewHandlers(repo, dispatcher.NewKafkaDispatcher(producer, cfg.Kafka.TasksTopic), mgr, store, cfg.URLs.DownloadTTL).Register(b)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), pkglog.GinMiddleware(l, "/health", "/metrics"))
	handler.NewHandler(service.NewProjectService(repo, store, cfg.URLs.DownloadTTL, cfg.URLs.UploadTTL)).RegisterRoutes(engine)
	handler.NewWSHandler(mgr, b, hub.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}).RegisterRoutes(engine)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return mgr.Run(gctx) })

	// A listener that dies is logged; the server keeps serving subscriptions.
	g.Go(func() error {
		if err := objectConsumer.Run(gctx, listener.NewObjectEvents(b)); err != nil {
			l.Error().Err(err).Msg("object event listener stopped")
		}
		return nil
	})
	g.Go(func() error {
		if err := notificationConsumer.Run(gctx, listener.NewNotifications(b)); err != nil {
			l.Error().Err(err).Msg("task notification listener stopped")
		}
		return nil
	})

	g.Go(func() error {
		l.Info().Str("addr", server.Addr).Msg("notify service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down notify service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	b.Wait()
	return err
}

func openRepository(ctx context.Context, cfg config.StoreConfig) (repository.ProjectRepository, error) {
	switch cfg.Type {
	case "sql":
		db, err := database.New(&cfg.SQL)
		if err != nil {
			return nil, err
		}
		return repository.NewGormProjectRepository(db)
	case "mongo", "":
		return repository.NewMongoProjectRepository(ctx, repository.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
