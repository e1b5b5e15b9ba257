package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"classroll/internal/attendance"
	"classroll/internal/backend"
	"classroll/internal/config"
	"classroll/internal/httpapi"
	"classroll/internal/journal"
	"classroll/internal/logger"
	"classroll/internal/metrics"
	"classroll/internal/queue"
	"classroll/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api server failed")
	}
}

func run(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	clock, err := attendance.NewZoneClock(cfg.TimeZone)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := attendance.NewService(stores.Sessions, stores.Roster, clock, cfg.Coordinator(), log)
	svc.AddObserver(m)

	checks := map[string]httpapi.HealthCheck{}
	if stores.Healthy != nil {
		checks["db"] = stores.Healthy
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case config.QueueRedis:
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		checks["redis"] = redisClient.Healthy
	default:
		// Without a shared queue the journal is drained in-process.
		mem := queue.NewInMemory(256)
		q = mem
		go func() {
			if err := journal.NewConsumer(mem, log, m).Run(ctx); err != nil {
				log.Error().Err(err).Msg("journal consumer stopped")
			}
		}()
	}
	svc.AddObserver(journal.NewPublisher(q, log))

	var standing *attendance.Standing
	if cfg.Mode == config.ModeSingle {
		standing = attendance.NewStanding(svc, cfg.Standing)
		sess, err := standing.Start(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("session_id", sess.ID).Dur("ttl", cfg.StandingTTL).Msg("standing session ready")
		go standing.Run(ctx, cfg.RolloverInterval)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:               httpapi.NewHandler(svc, standing, clock, log),
		Log:                   log,
		AllowedOrigins:        cfg.AllowedOrigins,
		RateLimitPerMin:       cfg.RateLimitPerMin,
		SubmitRateLimitPerMin: cfg.SubmitRateLimitPerMin,
		Checks:                checks,
		Gatherer:              reg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("mode", cfg.Mode).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
