package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"reconcile/internal/contact"
	"reconcile/internal/contact/events"
	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/service"
	"reconcile/internal/contact/store/redislock"
	"reconcile/internal/platform/config"
	"reconcile/internal/platform/httpserver"
	"reconcile/internal/platform/logger"
	"reconcile/internal/platform/metrics"
	"reconcile/internal/platform/redis"
	httptransport "reconcile/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	store, closeStore, err := contact.OpenStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open contact store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("failed to close contact store", "error", err)
		}
	}()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(contactmetrics.New()),
		service.WithTxTimeout(cfg.TxTimeout),
	}

	lockOpt, closeRedis, err := buildLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRedis()
	if lockOpt != nil {
		opts = append(opts, lockOpt)
	}

	publisher, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close event publisher", "error", err)
		}
	}()
	opts = append(opts, service.WithPublisher(publisher))

	svc := contact.NewService(store, opts...)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.RequestTimeout,
		Gatherer:       prometheus.DefaultGatherer,
	}, contact.NewHandler(svc, log))

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, ln, log)
	})
	log.Info("identity reconciliation service started",
		"addr", cfg.Addr,
		"store", cfg.Store,
		"lock", cfg.LockMode,
		"events", cfg.Kafka.Enabled(),
	)
	return g.Wait()
}

// buildLocker returns a service option installing the Redis lock when the
// redis lock mode is selected.
func buildLocker(ctx context.Context, cfg config.Server, log *slog.Logger) (service.Option, func(), error) {
	noop := func() {}
	if cfg.LockMode != config.LockRedis {
		return nil, noop, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, noop, fmt.Errorf("connect redis: %w", err)
	}
	if err := client.Health(ctx); err != nil {
		_ = client.Close()
		return nil, noop, fmt.Errorf("redis health: %w", err)
	}
	locker := redislock.New(client.Client,
		redislock.WithTTL(cfg.Redis.LockTTL),
		redislock.WithLogger(log),
	)
	log.Info("using redis identify lock", "key", redislock.DefaultKey, "ttl", cfg.Redis.LockTTL)
	return service.WithLocker(locker), func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	}, nil
}

type closingPublisher interface {
	service.EventPublisher
	Close() error
}

func buildPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (closingPublisher, error) {
	if !cfg.Kafka.Enabled() {
		return events.NewLogPublisher(log), nil
	}
	publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	if err := publisher.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", cfg.Kafka.Topic, err)
	}
	log.Info("publishing contact events to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	return publisher, nil
}
