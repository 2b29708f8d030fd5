package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"datamarket/config"
	"datamarket/core/events"
	"datamarket/core/state"
	"datamarket/gateway/middleware"
	"datamarket/gateway/routes"
	"datamarket/indexer"
	"datamarket/native/market"
	"datamarket/observability"
	"datamarket/observability/logging"
	telemetry "datamarket/observability/otel"
	"datamarket/storage"
)

const serviceName = "marketd"

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var cfgPath string
	var adminFlag string
	flag.StringVar(&cfgPath, "config", "./market.toml", "path to marketplace configuration (TOML or YAML)")
	flag.StringVar(&adminFlag, "admin", "", "override the configured admin address")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(adminFlag) != "" {
		cfg.AdminAddress = strings.TrimSpace(adminFlag)
	}
	if env := strings.TrimSpace(os.Getenv("MARKET_ENV")); env != "" {
		cfg.Env = env
	}

	logger := logging.Setup(serviceName, cfg.Env, cfg.LogLevel, logging.FileOptions{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
	})
	if err := run(cfg, logger); err != nil {
		logger.Error("marketd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	headers := make(map[string]string, len(cfg.Telemetry.Headers))
	for key, value := range telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")) {
		headers[key] = value
	}
	for key, value := range cfg.Telemetry.Headers {
		headers[key] = value
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		StorageBackend: cfg.StorageBackend,
		IndexDriver:    indexer.Driver(cfg.IndexDSN),
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        headers,
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval.Duration,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	admin, err := cfg.Admin()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := state.NewStore(db)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	index, err := indexer.Open(cfg.IndexDSN, logger)
	if err != nil {
		return fmt.Errorf("open event index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("close event index", "error", err)
		}
	}()

	metrics := observability.Market()
	engine := market.NewEngine(store)
	engine.SetEmitter(events.Multi{index, metrics})

	mp, err := engine.Bootstrap(admin, cfg.PlatformFeePct)
	if err != nil {
		return fmt.Errorf("bootstrap marketplace: %w", err)
	}
	logger.Info("marketplace ready",
		"admin", fmt.Sprintf("0x%x", mp.Admin),
		"platform_fee_pct", mp.PlatformFeePct,
		"paused", mp.Paused,
		"storage", cfg.StorageBackend,
		"version", version,
		"auth_enabled", cfg.Auth.Enabled,
		"auth_secret", logging.MaskValue(cfg.Auth.HMACSecret))

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; principals are taken from request headers")
	}

	limiter := middleware.NewRateLimiter(rateLimits(cfg), logger)
	limiter.SetThrottleRecorder(metrics)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: serviceName,
		LogRequests: true,
		Enabled:     true,
	}, logger)
	obs.SetOperationObserver(metrics)

	router, err := routes.New(routes.Config{
		Engine:        engine,
		Events:        index,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.HeaderRequestID, middleware.HeaderPrincipal, middleware.HeaderScopes},
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	handler := router
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(router, serviceName)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout.Duration,
		WriteTimeout:      cfg.WriteTimeout.Duration,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	logger.Info("marketd stopped")
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	default:
		db, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open leveldb at %s: %w", cfg.DataDir, err)
		}
		return db, nil
	}
}

func rateLimits(cfg *config.Config) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for id, entry := range cfg.RateLimits {
		limits[id] = middleware.RateLimit{
			RatePerSecond: entry.Rate(),
			Burst:         entry.Burst,
			DefaultTokens: entry.DefaultTokens,
			Tokens:        entry.Tokens,
		}
	}
	if len(limits) == 0 {
		limits[routes.RateLimitMarket] = middleware.RateLimit{RatePerSecond: 5, Burst: 20}
		limits[routes.RateLimitAdmin] = middleware.RateLimit{RatePerSecond: 1, Burst: 5}
	}
	return limits
}
