package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seatwarden/internal/api"
	"seatwarden/internal/clock"
	"seatwarden/internal/config"
	"seatwarden/internal/database"
	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/logging"
	"seatwarden/internal/metrics"
	"seatwarden/internal/repository"
	"seatwarden/internal/retry"
	"seatwarden/internal/service"
	"seatwarden/internal/telemetry"
	"seatwarden/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const memoryQueueSize = 10000

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.Init(ctx, cfg.Tracing, cfg.App, logging.Component(&logger, "tracing"))
	if err != nil {
		logger.Error().Err(err).Msg("init tracing")
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
	go backup.Start(ctx)

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus()
	forwarder := events.NewForwarder(notificationQueue(cfg, redisClient, &logger), 0, logging.Component(&logger, "forwarder"))
	forwarder.Attach(bus)
	forwarder.Start(ctx)

	policy := retry.Policy{
		MaxRetries:    cfg.Concurrency.MaxRetries,
		InitialDelay:  cfg.Concurrency.InitialDelay,
		MaxDelay:      cfg.Concurrency.MaxDelay,
		BackoffFactor: 2,
	}
	coord := service.NewCoordinator(db, clock.NewSystem(), policy, logging.Component(&logger, "coordinator"))
	holds := service.NewHoldService(coord, cfg.Holds.TTL, cfg.Sweeper.BatchSize, bus, logging.Component(&logger, "holds"))
	svc := api.Services{
		Departures:   service.NewDepartureService(coord, bus, logging.Component(&logger, "departures")),
		Blocks:       service.NewBlockService(coord, bus, logging.Component(&logger, "blocks")),
		Availability: service.NewAvailabilityService(coord, logging.Component(&logger, "availability")),
		Holds:        holds,
		Bookings:     service.NewBookingService(coord, holds, bus, logging.Component(&logger, "bookings")),
	}

	if err := runSeed(ctx, cfg, db, svc.Departures, &logger); err != nil {
		return err
	}

	var sweeper *worker.ExpirySweeper
	if cfg.Sweeper.IsEnabled() {
		sweeper = worker.NewExpirySweeper(holds, cfg.Sweeper.Interval, logging.Component(&logger, "sweeper"))
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("expiry sweeper disabled; lapsed holds are retired only when touched")
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, db, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, db, &logger)

	startMetrics(ctx, cfg, &logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, &logger)

	if sweeper != nil {
		sweeper.Stop()
	}
	forwarder.Wait()
	sent, dropped := forwarder.Stats()
	logger.Info().Int64("events_sent", sent).Int64("events_dropped", dropped).Msg("notification forwarder drained")
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, notifications start on the memory queue")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

// notificationQueue prefers redis and falls back to a bounded in-memory list.
func notificationQueue(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.NotificationQueue {
	memory := repository.NewMemoryNotificationQueue(memoryQueueSize)
	if client == nil {
		return memory
	}
	primary := repository.NewRedisNotificationQueue(client, cfg.Redis.QueueKey, memoryQueueSize)
	return repository.NewFailoverNotificationQueue(primary, memory, logging.Component(logger, "notifications"))
}

func runSeed(ctx context.Context, cfg *config.Config, store domain.Store, departures domain.DepartureService, logger *zerolog.Logger) error {
	path := os.Getenv("DEPARTURES_PATH")
	if path == "" {
		path = cfg.Seed.DeparturesFile
	}
	if path == "" {
		return nil
	}

	inputs, err := loadSeed(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("load seed departures")
		return err
	}
	created, err := seedDepartures(ctx, store, departures, inputs, logger)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("seed departures")
		return err
	}
	logger.Info().Int("created", created).Int("listed", len(inputs)).Msg("seed departures applied")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	grpcAddr := ""
	if grpcServer != nil {
		grpcAddr = grpcServer.Addr()
	}
	logger.Info().Str("grpc_addr", grpcAddr).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
