package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"guardslot/internal/api"
	"guardslot/internal/availability"
	"guardslot/internal/booking"
	"guardslot/internal/catalog"
	"guardslot/internal/checkout"
	"guardslot/internal/config"
	"guardslot/internal/events"
	"guardslot/internal/hold"
	"guardslot/internal/metrics"
	"guardslot/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("GUARDSLOT_CONFIG_PATH"))
	if err != nil {
		bootstrap := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootstrap.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	database, err := store.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	providers := catalog.NewCached(database, rdb, cfg.CatalogCacheTTL(), &logger)

	var (
		holder    hold.SlotHolder
		memHolder *hold.MemoryHolder
	)
	clock := availability.SystemClock{Location: cfg.Location()}
	if rdb != nil {
		holder = hold.NewRedisHolder(rdb, "guardslot:hold:")
	} else {
		memHolder = hold.NewMemoryHolder(clock.Now)
		holder = memHolder
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial load + hot reload of the provider catalog
	if err := config.WatchProviders(ctx, cfg.Catalog.ProvidersPath, cfg.CatalogReloadInterval(), func(updated *config.ProvidersConfig) {
		if err := database.SyncProvidersFromConfig(ctx, updated); err != nil {
			logger.Error().Err(err).Msg("failed to apply providers config")
			return
		}
		if err := providers.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to invalidate provider cache")
		}
		active, err := database.ListProviders(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to list providers after sync")
			return
		}
		logger.Info().Int("providers", len(active)).Str("db", database.Path()).Time("reloaded_at", time.Now()).Msg("providers config applied")
	}, func(err error) {
		logger.Error().Err(err).Msg("providers config rejected; keeping previous catalog")
	}); err != nil {
		logger.Error().Err(err).Msg("providers watch failed")
	}

	bus := events.NewBus(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Msg("event handler failed")
	})
	bus.Subscribe("*", func(e events.Event) error {
		logger.Debug().Str("event", e.Type).Str("session", e.SessionID).Str("provider", e.ProviderID).Msg("wizard event")
		return nil
	})
	bus.Subscribe(events.TypeBookingCompleted, func(e events.Event) error {
		logger.Info().Str("session", e.SessionID).RawJSON("receipt", e.Payload).Msg("booking completed")
		return nil
	})

	sessions := booking.NewSessionStore(cfg.SessionTimeout(), clock)
	payments := checkout.SimulatedPayments{Delay: cfg.PaymentDelay()}
	checkoutSvc := checkout.NewService(holder, payments, bus, clock, cfg.HoldTTL(), &logger)

	rps, burst := cfg.RateLimit()
	server := api.NewHTTPServer(api.Config{
		Port:              cfg.Server.Port,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerSecond: rps,
		Burst:             burst,
	}, providers, sessions, checkoutSvc, bus, clock, &logger)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Booking.CleanupSchedule, func() {
		removed := sessions.Cleanup()
		metrics.SetSessions(sessions.Len())
		clients := server.EvictIdleClients(clientIdleTimeout)
		holds := 0
		if memHolder != nil {
			holds = memHolder.Sweep()
		}
		if removed > 0 || clients > 0 || holds > 0 {
			logger.Info().Int("sessions", removed).Int("clients", clients).Int("holds", holds).Msg("expired state removed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Booking.CleanupSchedule).Msg("invalid cleanup schedule")
	}

	if cfg.Backup.Enabled {
		backups := store.NewBackupService(database, store.BackupConfig{
			Enabled:       true,
			Dir:           cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		if _, err := scheduler.AddFunc(cfg.Backup.Schedule, backups.Run); err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.Backup.Schedule).Msg("invalid backup schedule")
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("location", cfg.Location().String()).Msg("guardslot started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
}

// Idle time after which a client's rate limit bucket is dropped.
const clientIdleTimeout = 10 * time.Minute

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Log.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, database *store.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
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
