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
	"github.com/meower-media/feedsync/pkg/api/rest"
	v0_rest "github.com/meower-media/feedsync/pkg/api/rest/v0"
	"github.com/meower-media/feedsync/pkg/config"
	"github.com/meower-media/feedsync/pkg/db"
	"github.com/meower-media/feedsync/pkg/logging"
	"github.com/meower-media/feedsync/pkg/meowid"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/meower-media/feedsync/pkg/networks"
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

	// Init Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
	}); err != nil {
		logger.Fatal().Err(err).Msg("sentry init failed")
	}
	defer sentry.Flush(time.Second * 5)

	// Init MeowID
	if err := meowid.Init(cfg.NodeId); err != nil {
		logger.Fatal().Err(err).Msg("meowid init failed")
	}

	// Init MongoDB
	if err := db.Init(cfg.MongoURI, cfg.MongoDB); err != nil {
		logger.Fatal().Err(err).Msg("mongodb init failed")
	}

	// Init Redis
	if err := rdb.Init(context.Background(), cfg.RedisURI, "feedsync-rest"); err != nil {
		logger.Fatal().Err(err).Msg("redis init failed")
	}
	defer rdb.Close()

	if cfg.TokenSecret == "" {
		logger.Fatal().Msg("TOKEN_SECRET is required")
	}
	loc, err := cfg.FeedLocation()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid FEED_LOCATION")
	}

	blocklist, err := networks.NewBlocklist(cfg.BlockedNetworks)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid BLOCKED_NETWORKS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	metrics.MustRegister(prometheus.DefaultRegisterer)
	if cfg.MetricsAddress != "" {
		metrics.StartServer(ctx, logger, cfg.MetricsAddress)
	}

	// Serve HTTP router
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: rest.Router(rest.Options{
			Options: v0_rest.Options{
				TokenSecret: []byte(cfg.TokenSecret),
				Location:    loc,
				Logger:      logger,
				Blocklist:   blocklist,
			},
			RealIPHeader: cfg.RealIPHeader,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", srv.Addr).Msg("serving HTTP")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("HTTP server stopped")
	}
}
