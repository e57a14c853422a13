package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/djlord-it/easybooking/internal/analytics"
	"github.com/djlord-it/easybooking/internal/api"
	"github.com/djlord-it/easybooking/internal/booking"
	"github.com/djlord-it/easybooking/internal/circuitbreaker"
	"github.com/djlord-it/easybooking/internal/config"
	"github.com/djlord-it/easybooking/internal/dispatcher"
	"github.com/djlord-it/easybooking/internal/logging"
	"github.com/djlord-it/easybooking/internal/metrics"
	"github.com/djlord-it/easybooking/internal/store/memory"
	"github.com/djlord-it/easybooking/internal/store/postgres"
	"github.com/djlord-it/easybooking/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`easybooking - translation job booking service

Usage:
  easybooking <command>

Commands:
  serve      Start the HTTP API and notification dispatcher
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Variables are read from the environment, then from .env if present.

Environment Variables:
  APP_ENV                   "development" enables debug console logging (default: "production")
  STORE_DRIVER              postgres or memory (default: "postgres"); memory is for development and tests
  MEMORY_SEED_FILE          JSON users/languages fixture for the memory store (optional)
  DATABASE_URL              PostgreSQL connection string (required for postgres)
  HTTP_ADDR                 HTTP server address (default: ":8080", or ":$PORT")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DISPATCHER_DRAIN_TIMEOUT  Async notification drain timeout (default: "30s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path on the HTTP server (default: "/metrics")

  NOTIFY_MODE               sync or async (default: "sync")
  EVENTBUS_BUFFER_SIZE      Async notification buffer (default: "100")
  NOTIFY_TRANSPORT          log or nats (default: "log")
  NATS_URL                  NATS server URL (required for nats)
  NATS_SUBJECT              Subject mail requests are published on (default: "easybooking.notifications.email")
  NOTIFY_PARALLELISM        Concurrent sends per event (default: "4")
  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before a recipient is skipped, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  How long a recipient stays skipped (default: "2m")

  REDIS_ADDR                Redis address for notification stats (optional)
  NOTIFY_STATS_WINDOW       Stats bucket: 1m, 5m, 1h or 24h (default: "1h")
  NOTIFY_STATS_RETENTION    Stats key lifetime (default: "168h")`)
}

// loadConfig reads .env, then the environment.
func loadConfig() (config.Config, error) {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return config.Config{}, err
	}
	return config.Load(), nil
}

// backend is the store and directory pair selected by STORE_DRIVER.
type backend struct {
	store     booking.Store
	directory booking.Directory
	health    api.HealthChecker
	close     func() error
}

func openBackend(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		directory := memory.NewDirectory()
		if cfg.MemorySeedFile != "" {
			if err := directory.LoadSeedFile(cfg.MemorySeedFile); err != nil {
				return nil, err
			}
			logger.Info().Str("file", cfg.MemorySeedFile).Msg("memory directory seeded")
		}
		store := memory.New()
		return &backend{
			store:     store,
			directory: directory,
			health:    store,
			close:     store.Close,
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	logger.Info().
		Int("max_open", cfg.DBMaxOpenConns).
		Int("max_idle", cfg.DBMaxIdleConns).
		Dur("max_lifetime", cfg.DBConnMaxLifetime).
		Dur("max_idle_time", cfg.DBConnMaxIdleTime).
		Msg("db pool configured")

	store := postgres.New(db).WithOpTimeout(cfg.DBOpTimeout)
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &backend{
		store:     store,
		directory: store,
		health:    store,
		close:     db.Close,
	}, nil
}

// newSender returns the mail transport and a function releasing it.
func newSender(cfg config.Config, logger zerolog.Logger) (dispatcher.Sender, func(), error) {
	if cfg.NotifyTransport != config.NotifyTransportNATS {
		return dispatcher.NewLogSender(logger), func() {}, nil
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("easybooking"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info().Str("subject", cfg.NATSSubject).Msg("notifications published to nats")

	release := func() {
		if err := nc.Drain(); err != nil {
			logger.Warn().Err(err).Msg("nats drain failed")
		}
	}
	return dispatcher.NewNATSSender(nc, cfg.NATSSubject), release, nil
}

// logConfigWarnings surfaces configuration that is valid but risky.
func logConfigWarnings(logger zerolog.Logger, cfg config.Config) {
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		if cfg.MemorySeedFile == "" {
			logger.Warn().Msg("STORE_DRIVER=memory without MEMORY_SEED_FILE: the user directory is empty and every create fails validation")
		}
		logger.Warn().Msg("STORE_DRIVER=memory: jobs are lost on restart")
	}
	if cfg.NotifyMode == config.NotifyModeAsync {
		logger.Warn().Msg("NOTIFY_MODE=async: buffered notifications are lost if the process crashes")
	}
	if cfg.NotifyTransport == config.NotifyTransportLog && !cfg.IsDevelopment() {
		logger.Warn().Msg("NOTIFY_TRANSPORT=log: notifications are only logged, no mail is sent")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		logger.Info().Msg("CIRCUIT_BREAKER_THRESHOLD=0: circuit breaker disabled")
	}
	if !cfg.MetricsEnabled {
		logger.Info().Msg("METRICS_ENABLED not set; metrics disabled")
	}
}

func runServe() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logger := logging.New(cfg.AppEnv)
	logConfigWarnings(logger, cfg)

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.DBOpTimeout*2)
	be, err := openBackend(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return exitRuntimeError
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	sender, releaseSender, err := newSender(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set up notification transport")
		return exitRuntimeError
	}
	defer releaseSender()

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logger)
		logger.Info().Str("path", cfg.MetricsPath).Msg("metrics enabled")
	}

	disp := dispatcher.New(be.directory, sender).
		WithLogger(logger).
		WithParallelism(cfg.NotifyParallelism).
		WithDrainTimeout(cfg.DispatcherDrainTimeout)
	if metricsSink != nil {
		disp = disp.WithMetrics(metricsSink)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		disp = disp.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}

	// Wire notification stats if Redis is configured
	var stats *analytics.RedisSink
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		stats = analytics.NewRedisSink(redisClient, cfg.NotifyStatsWindow, cfg.NotifyStatsRetention).
			WithLogger(logger)
		disp = disp.WithStats(stats)
		logger.Info().Str("redis", cfg.RedisAddr).Dur("window", cfg.NotifyStatsWindow).Msg("notification stats enabled")
	}

	var notifier booking.Notifier = disp
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	var dispatcherWg sync.WaitGroup

	if cfg.NotifyMode == config.NotifyModeAsync {
		busOpts := []channel.Option{channel.WithLogger(logger)}
		if metricsSink != nil {
			busOpts = append(busOpts, channel.WithMetrics(metricsSink))
		}
		bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)
		notifier = bus

		dispatcherWg.Add(1)
		go func() {
			defer dispatcherWg.Done()
			disp.Run(dispatcherCtx, bus.Channel())
		}()
	}

	svc := booking.New(be.store, be.directory, notifier).WithLogger(logger)
	if metricsSink != nil {
		svc = svc.WithMetrics(metricsSink)
	}

	handler := api.NewHandler(svc).
		WithLogger(logger).
		WithHealthChecker(be.health)
	if stats != nil {
		handler = handler.WithStats(stats)
	}
	if cfg.MetricsEnabled {
		handler = handler.WithMetricsHandler(cfg.MetricsPath, promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info().
		Str("version", version).
		Str("store", cfg.StoreDriver).
		Str("notify_mode", cfg.NotifyMode).
		Str("notify_transport", cfg.NotifyTransport).
		Msg("started")

	exitCode := exitSuccess
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case received := <-sig:
		logger.Info().Str("signal", received.String()).Msg("shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("http server failed")
		exitCode = exitRuntimeError
	}

	// Phase 1: stop accepting requests so no new events are produced.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("http server stopped")

	// Phase 2: drain buffered notifications.
	cancelDispatcher()
	dispatcherWg.Wait()
	logger.Info().Msg("dispatcher stopped")

	logger.Info().Msg("stopped")
	return exitCode
}

func runValidate() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	for _, w := range cfg.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("easybooking version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
