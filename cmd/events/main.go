package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/meower-media/feedsync/pkg/api/events"
	"github.com/meower-media/feedsync/pkg/config"
	"github.com/meower-media/feedsync/pkg/logging"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/meower-media/feedsync/pkg/rdb"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.AppEnv)

	// Initialise Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
	}); err != nil {
		logger.Fatal().Err(err).Msg("sentry init failed")
	}
	defer sentry.Flush(time.Second * 5)

	// Init Redis
	if err := rdb.Init(context.Background(), cfg.RedisURI, "feedsync-events"); err != nil {
		logger.Fatal().Err(err).Msg("redis init failed")
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	if cfg.MetricsAddress != "" {
		metrics.StartServer(ctx, logger, cfg.MetricsAddress)
	}

	// Create & run server
	server := events.NewServer(events.RedisSource{Client: rdb.Client}, events.Options{
		Logger: logger.With().Str("component", "relay").Logger(),
	})
	srv := &http.Server{
		Addr:    cfg.EventsAddress,
		Handler: server,
	}
	go func() {
		<-ctx.Done()
		server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", srv.Addr).Msg("serving events")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("events server stopped")
	}
}
