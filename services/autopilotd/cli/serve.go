package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/engine"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/kafka"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/notify"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/postgres"
	redisstore "github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/redis"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/pkg/telemetry"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/services/autopilotd"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/services/autopilotd/config"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/services/autopilotd/handler"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/services/autopilotd/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine: signals consumer, HTTP API, and resync schedule",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("signals-topic", "signals.snapshot", "Kafka topic carrying signal snapshots")
	serveCmd.Flags().String("notify-topic", "notifications.ops", "Kafka topic for notification delivery ops")
	serveCmd.Flags().String("consumer-group", "autopilotd", "Kafka consumer group ID")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("resync-cron", "*/5 * * * *", "cron expression for the forced notification resync")
	serveCmd.Flags().Int("snapshot-rate-limit", 30, "max snapshots per workspace per minute; 0 disables")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("signals_topic", serveCmd.Flags(), "signals-topic")
	bindFlag("notify_topic", serveCmd.Flags(), "notify-topic")
	bindFlag("consumer_group", serveCmd.Flags(), "consumer-group")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("resync_cron", serveCmd.Flags(), "resync-cron")
	bindFlag("snapshot_rate_limit", serveCmd.Flags(), "snapshot-rate-limit")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "autopilotd")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "autopilotd", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	repo := redisstore.NewWorkspaceRepository(redisClient, logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	archive := postgres.NewArchive(pool)

	outbox := notify.NewOutbox(redisClient, producer, cfg.NotifyTopic, logger)
	scheduler := notify.NewScheduler(outbox, notify.WithSchedulerLogger(logger))

	eng := engine.New(repo, scheduler,
		engine.WithLogger(logger),
		engine.WithArchive(archive),
	)

	consumer := kafka.NewConsumer(brokers, cfg.SignalsTopic, cfg.ConsumerGroup, logger)
	defer func() { _ = consumer.Close() }()

	svcOpts := []autopilotd.Option{autopilotd.WithLogger(logger)}
	if cfg.SnapshotRateLimit > 0 {
		limiter := redisstore.NewRateLimiter(redisClient, cfg.SnapshotRateLimit, time.Minute)
		svcOpts = append(svcOpts, autopilotd.WithLimiter(limiter))
	}
	svc := autopilotd.NewService(consumer, eng, svcOpts...)

	if err := svc.StartResync(cfg.ResyncCron); err != nil {
		return err
	}
	defer svc.StopResync()

	// ── HTTP server ───────────────────────────────────────────────────────────
	restHandler := handler.NewREST(eng, archive, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", restHandler.Healthz)
	r.Get("/readyz", restHandler.Readyz)
	r.Route("/api/v1", restHandler.Routes)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	consumerDone := make(chan error, 1)
	go func() {
		logger.Info("signals consumer starting",
			slog.String("topic", cfg.SignalsTopic),
			slog.String("group", cfg.ConsumerGroup),
		)
		consumerDone <- svc.Run(runCtx)
	}()

	go func() {
		logger.Info("autopilotd HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", slog.String("error", err.Error()))
	}

	// Drain in-flight notification syncs and archive writes.
	eng.Wait()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
