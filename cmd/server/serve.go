package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Mythses/polystat/config"
	"github.com/Mythses/polystat/internal/application/identity"
	"github.com/Mythses/polystat/internal/application/query"
	"github.com/Mythses/polystat/internal/application/session"
	"github.com/Mythses/polystat/internal/domain/track"
	"github.com/Mythses/polystat/internal/infrastructure/external/polytrack"
	"github.com/Mythses/polystat/internal/infrastructure/persistence/redis"
	"github.com/Mythses/polystat/internal/infrastructure/scheduler"
	"github.com/Mythses/polystat/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/Mythses/polystat/internal/interface/http"
	"github.com/Mythses/polystat/pkg/logger"
	"github.com/Mythses/polystat/pkg/retry"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Observability.LogFormat = logFormat
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json",
		"log output format (json, text)")
	return cmd
}

// runServe wires the application layers together and blocks until a shutdown
// signal arrives.
func runServe(cfg *config.Config) error {
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddSource: cfg.App.Debug,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Upstream Polytrack client.
	clientCfg := polytrack.DefaultClientConfig(cfg.Polytrack.BaseURL, cfg.Polytrack.ProxyURL)
	clientCfg.Version = cfg.Polytrack.Version
	clientCfg.Timeout = cfg.Polytrack.RequestTimeout
	clientCfg.RateLimiterConfig.RequestsPerSecond = float64(cfg.Polytrack.RateLimit)
	clientCfg.RateLimiterConfig.BurstSize = cfg.Polytrack.RateLimitBurst
	clientCfg.CircuitBreakerConfig.FailureThreshold = cfg.Polytrack.CircuitBreakerThreshold
	clientCfg.CircuitBreakerConfig.Timeout = cfg.Polytrack.CircuitBreakerTimeout
	clientCfg.CircuitBreakerConfig.HalfOpenMaxRetries = cfg.Polytrack.CircuitBreakerHalfOpenMax
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug
	if cfg.Observability.MetricsEnabled {
		clientCfg.Registerer = registry
	}
	client := polytrack.NewClient(clientCfg)

	// Redis is optional; without it every read hits the upstream.
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize
		rc.MinIdleConns = cfg.Redis.MinIdleConns
		rc.DialTimeout = cfg.Redis.DialTimeout
		rc.ReadTimeout = cfg.Redis.ReadTimeout
		rc.WriteTimeout = cfg.Redis.WriteTimeout

		c, err := redis.NewCache(rc)
		if err != nil {
			log.Warn("redis unavailable, continuing without cache", logger.Err(err))
		} else {
			cache = c
			defer cache.Close()
		}
	}

	flags := cfg.Features
	catalog, err := track.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load track catalog: %w", err)
	}

	// Application layer.
	var pages *redis.PageCache
	if cache != nil && flags.IsEnabled(config.FeaturePageCache) {
		pages = redis.NewPageCache(cache).
			WithTTLs(cfg.Polytrack.PageCacheTTL, cfg.Polytrack.ProfileCacheTTL)
	}
	var fetchPage *query.FetchPageHandler
	if pages != nil {
		fetchPage = query.NewFetchPageHandler(client, pages, catalog, log)
	} else {
		fetchPage = query.NewFetchPageHandler(client, nil, catalog, log)
	}
	fetchPage.
		WithEnrichment(flags.IsEnabled(config.FeatureRankEnrichment)).
		WithRecordings(flags.IsEnabled(config.FeatureRecordings))

	listTracks := query.NewListTracksHandler(catalog)
	resolver := identity.NewResolver(client, catalog, log)
	if pages != nil {
		resolver.WithProfileCache(pages)
	}

	retrier := retry.New(
		retry.WithMaxAttempts(cfg.Resolver.MaxAttempts),
		retry.WithInitialDelay(cfg.Resolver.RetryBaseDelay),
		retry.WithMaxDelay(cfg.Resolver.RetryMaxDelay),
	)
	trackResolver := session.NewTrackResolver(client, retrier, log)

	sessCfg := session.Config{
		Stagger:          cfg.Resolver.Stagger,
		MaxAutoRetries:   cfg.Resolver.MaxAutoRetries,
		DebounceInterval: cfg.Resolver.DebounceInterval,
		MaxSessions:      cfg.Resolver.MaxSessions,
	}

	var manager *session.Manager
	if cache != nil && flags.IsEnabled(config.FeatureSessionPersist) {
		manager = session.NewManager(trackResolver, catalog, sessCfg, redis.NewSessionStore(cache), log)
	} else {
		manager = session.NewManager(trackResolver, catalog, sessCfg, nil, log)
	}
	defer manager.Close()

	// Background jobs.
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(log)

		if flags.IsEnabled(config.FeatureAutoRetry) {
			jitter := scheduler.NewJitterSchedule(
				cfg.Scheduler.AutoRetryInterval,
				cfg.Scheduler.AutoRetryJitterMin,
				cfg.Scheduler.AutoRetryJitterMax,
			)
			if err := sched.Register(jobs.NewAutoRetryJob(manager, log), jitter); err != nil {
				return fmt.Errorf("register auto-retry job: %w", err)
			}
		}
		if flags.IsEnabled(config.FeatureSessionJanitor) {
			janitor := jobs.NewSessionJanitorJob(manager, cfg.Resolver.SessionRetention, log)
			interval := scheduler.NewIntervalSchedule(cfg.Scheduler.JanitorInterval)
			if err := sched.Register(janitor, interval); err != nil {
				return fmt.Errorf("register session janitor: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// HTTP interface.
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.Server.Host
	httpCfg.Port = cfg.Server.Port
	httpCfg.ReadTimeout = cfg.Server.ReadTimeout
	httpCfg.WriteTimeout = cfg.Server.WriteTimeout
	httpCfg.IdleTimeout = cfg.Server.IdleTimeout
	httpCfg.EnableCORS = cfg.Server.EnableCORS
	httpCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	httpCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	httpCfg.EnableProfileLookup = flags.IsEnabled(config.FeatureProfileLookup)

	deps := httpserver.Dependencies{
		FetchPage:  fetchPage,
		ListTracks: listTracks,
		Resolver:   resolver,
		Sessions:   manager,
		Catalog:    catalog,
		Logger:     log,
	}
	if cache != nil {
		deps.HealthChecker = redisHealth{cache: cache}
	}

	srv := httpserver.NewServer(httpCfg, deps, registry)

	log.Info("polystats starting",
		slog.String("addr", httpCfg.Address()),
		slog.String("environment", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
	)

	errCh := srv.StartAsync()
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop", logger.Err(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("polystats stopped")
	return nil
}

// redisHealth adapts the cache ping to the readiness probe.
type redisHealth struct {
	cache *redis.Cache
}

func (r redisHealth) HealthCheck(ctx context.Context) error {
	return r.cache.Ping(ctx)
}
