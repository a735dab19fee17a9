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
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/services"
	httphandlers "bintunet/internal/handlers/http"
	"bintunet/internal/infrastructure/events"
	"bintunet/internal/infrastructure/monitoring"
	repositories "bintunet/internal/infrastructure/repositories"
	wshub "bintunet/internal/infrastructure/signal"
	"bintunet/pkg/circuitbreaker"
	"bintunet/pkg/config"
	"bintunet/pkg/distributed"
	"bintunet/pkg/logger"
	"bintunet/pkg/retry"
	"bintunet/pkg/tracing"
)

const storeLockTTL = 10 * time.Second

var defaultConfigPaths = []string{
	"configs/config.yaml",
	"/etc/bintunet/config.yaml",
	"config.yaml",
}

// loadConfig reads the given file, or the first default path that exists.
// With no file at all the defaults plus environment overrides apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.Load("")
}

func runServe(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		JaegerURL:      cfg.Tracing.JaegerURL,
		Environment:    "production",
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	clock := clockwork.NewRealClock()

	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, clock, log)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("Error closing repository factory", "error", err)
		}
	}()

	streamStore, err := repoFactory.CreateStreamStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create stream store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewPrometheusCollector(reg)

	health := monitoring.NewHealthChecker()
	health.AddStoreCheck("storage", streamStore, cfg.Server.ReadTimeout)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, cfg.Server.ReadTimeout)
	}

	hubCfg := wshub.DefaultHubConfig()
	hubCfg.AllowedOrigins = cfg.Auth.AllowedOrigins
	hub := wshub.NewHub(hubCfg, log.With("component", "hub"))
	defer hub.Close()

	fanout := events.NewFanout(hub)
	instanceID := uuid.NewString()

	if cfg.Events.RedisPubSub.Enabled {
		redisPub := events.NewRedisPublisher(repoFactory.RedisClient(), cfg.Events.RedisPubSub.Channel, instanceID, log)
		fanout.Add(events.NewGuarded(redisPub, newBreaker("redis_pubsub", clock, log)))
		go func() {
			// events from other instances reach this instance's websocket clients
			if err := redisPub.Subscribe(ctx, func(e domain.StreamEvent) { hub.Deliver(e) }); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("Redis event subscription ended", "error", err)
			}
		}()
	}

	if cfg.Events.NATS.Enabled {
		conn, err := events.ConnectNATS(cfg.Events.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		natsPub := events.NewNATSPublisher(conn, cfg.Events.NATS.SubjectPrefix, log)
		defer natsPub.Close()
		fanout.Add(events.NewGuarded(natsPub, newBreaker("nats", clock, log)))
		health.AddCheck("nats", natsPub.Healthy, cfg.Server.ReadTimeout)
	}

	scoped := services.NewScopedStore(streamStore).WithBackend(cfg.Storage.Backend)
	if client := repoFactory.RedisClient(); client != nil && cfg.Storage.Backend != "memory" && cfg.Storage.Backend != "file" {
		// other instances write the same document or table
		scoped.WithLocker(distributed.NewRedisLock(client, cfg.Storage.Redis.Key+":lock", storeLockTTL))
	}

	engineDeps := services.EngineDeps{
		Config: services.EngineConfig{
			BootDelay:           cfg.Simulation.BootDelay,
			TeardownDelay:       cfg.Simulation.TeardownDelay,
			TickInterval:        cfg.Simulation.TickInterval,
			DroppedFrameWarning: cfg.Simulation.DroppedFrameWarning,
		},
		Clock:     clock,
		Store:     scoped,
		Publisher: fanout,
		Observer:  collector,
		Simulator: services.NewTelemetrySimulator(cfg.Simulation.Seed),
		Retry:     retry.DefaultConfig(),
		Logger:    log.With("component", "engine"),
	}

	sessions := services.NewSessionManager(
		services.NewIdentityService(services.CredentialsFromConfig(cfg.Auth.Users), cfg.Auth.LoginLatency, clock),
		services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, clock),
		repoFactory.CreateSessionStore(),
		services.NewEngineFactory(engineDeps),
		collector,
		clock,
		log.With("component", "sessions"),
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:   cfg,
		Sessions: sessions,
		Hub:      hub,
		Health:   health,
		Gatherer: reg,
		Logger:   zapLogger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting bintunet server", "address", cfg.Server.Address, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
		shutdown(cfg, srv, sessions, log)
		return err
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	shutdown(cfg, srv, sessions, log)
	log.Info("bintunet server stopped")
	return nil
}

// shutdown stops accepting requests, then closes every engine so pending
// snapshots reach storage.
func shutdown(cfg *config.Config, srv *http.Server, sessions *services.SessionManager, log *zap.SugaredLogger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error closing stream engines", "error", err)
	}
}

func newBreaker(name string, clock clockwork.Clock, log *zap.SugaredLogger) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(name, circuitbreaker.DefaultConfig(), clock)
	cb.OnStateChange(func(name string, from, to circuitbreaker.State) {
		log.Warnw("Event publisher circuit changed", "publisher", name, "from", from.String(), "to", to.String())
	})
	return cb
}
