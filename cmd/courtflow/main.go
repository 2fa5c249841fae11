package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"courtflow/internal/api"
	"courtflow/internal/config"
	"courtflow/internal/events"
	"courtflow/internal/export"
	"courtflow/internal/logging"
	"courtflow/internal/metrics"
	"courtflow/internal/models"
	"courtflow/internal/remote"
	"courtflow/internal/repository"
	"courtflow/internal/service"
	"courtflow/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	store, err := repository.NewSQLiteStore(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("local store init failed")
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, drafts := initDraftService(ctx, cfg, store, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	backend := remote.NewClient(cfg.Backend, &logger)
	if redisClient != nil {
		backend.UseRedisCache(redisClient, time.Duration(cfg.Backend.CacheTTLSeconds)*time.Second)
	}

	eventBus := events.NewEventBus()
	subscribeAuditLog(eventBus, &logger)

	backend.OnSessionExpired(func() {
		logger.Warn().Msg("backend session expired")
		_ = eventBus.PublishJSON(events.EventSessionExpired, nil)
	})

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	retrier := initConfirmRetrier(cfg, backend, store, drafts, eventBus, &logger)
	go retrier.Start(ctx)

	processor := remote.NewProcessorClient(cfg.Payment, &logger)
	flow := service.NewReservationFlow(backend, drafts, eventBus, cfg.Booking.MaxAdvanceDays, &logger)
	payments := service.NewPaymentCoordinator(backend, processor, drafts, store, eventBus, &logger)
	payments.OnConfirmQueued(retrier.Notify)

	var apiServer *api.HTTPServer
	if cfg.API.Enabled {
		exporter := export.NewExporter(cfg.Exports.Path, &logger)
		apiServer = api.NewHTTPServer(cfg.API, flow, payments, drafts, backend, exporter, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("api server error")
				stop()
			}
		}()
	}

	logger.Info().Str("backend", cfg.Backend.BaseURL).Msg("courtflow started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if apiServer != nil {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api server shutdown failed")
		}
	}
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "courtflow-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("database directory create failed")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("export directory create failed")
			return err
		}
	}
	return nil
}

// initDraftService wires the draft store: Redis is the primary so
// drafts survive process restarts cheaply, with the SQLite store as
// the durable fallback when Redis is away.
func initDraftService(ctx context.Context, cfg *config.Config, store *repository.SQLiteStore, logger *zerolog.Logger) (*redis.Client, *service.DraftService) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primaryRepo := repository.NewRedisDraftRepository(redisClient, time.Duration(models.DefaultRedisTTL)*time.Second)
	draftRepo := repository.NewFailoverDraftRepository(primaryRepo, store, logger)
	return redisClient, service.NewDraftService(draftRepo, logger)
}

func initConfirmRetrier(cfg *config.Config, backend *remote.Client, store *repository.SQLiteStore, drafts *service.DraftService, eventBus *events.EventBus, logger *zerolog.Logger) *worker.ConfirmRetrier {
	retry := worker.RetryPolicy{
		MaxRetries:    cfg.Payment.ConfirmRetry.MaxRetries,
		InitialDelay:  time.Duration(cfg.Payment.ConfirmRetry.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.Payment.ConfirmRetry.MaxDelaySeconds) * time.Second,
		BackoffFactor: 2,
	}
	pollInterval := time.Duration(cfg.Payment.ConfirmRetry.PollIntervalSeconds) * time.Second
	return worker.NewConfirmRetrier(backend, store, drafts, eventBus, retry, pollInterval, logger)
}

// subscribeAuditLog mirrors every reservation event into the log so an
// operator can reconstruct what a session did.
func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(ev *events.Event) error {
		logger.Info().Str("event", ev.Type).RawJSON("payload", normalizePayload(ev.Payload)).Msg("reservation event")
		return nil
	}

	for _, eventType := range []string{
		events.EventHoldCreated,
		events.EventHoldConflict,
		events.EventHoldExpired,
		events.EventHoldReleased,
		events.EventBookingConfirmed,
		events.EventBookingCanceled,
		events.EventPaymentConfirmed,
		events.EventPaymentFailed,
		events.EventSessionExpired,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func normalizePayload(raw []byte) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("null")
	}
	return raw
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
