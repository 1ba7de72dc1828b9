// Command feedwatch tails one channel's feed through the sync engine and logs
// every change of the cached snapshot.
//
//	feedwatch <channelId> [date]
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

	"github.com/meower-media/feedsync/pkg/cache"
	"github.com/meower-media/feedsync/pkg/config"
	"github.com/meower-media/feedsync/pkg/feed"
	"github.com/meower-media/feedsync/pkg/fetcher"
	"github.com/meower-media/feedsync/pkg/logging"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/rdb"
	"github.com/meower-media/feedsync/pkg/realtime"
	"github.com/meower-media/feedsync/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const sessionTTL = 24 * time.Hour

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: feedwatch <channelId> [date]")
		os.Exit(2)
	}
	key := posts.FeedKey{ChannelId: os.Args[1]}
	if len(os.Args) > 2 {
		key.Date = os.Args[2]
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.AppEnv)
	loc, err := cfg.FeedLocation()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid FEED_LOCATION")
	}

	// Session token
	token, userId, err := session(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("no usable session")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	if cfg.MetricsAddress != "" {
		metrics.StartServer(ctx, logger, cfg.MetricsAddress)
	}

	// Change-feed transport
	var transport realtime.Transport
	switch cfg.Feed.Transport {
	case "websocket":
		transport = realtime.NewWebsocketTransport(cfg.EventsURL)
	case "redis":
		if err := rdb.Init(ctx, cfg.RedisURI, "feedwatch"); err != nil {
			logger.Fatal().Err(err).Msg("redis init failed")
		}
		defer rdb.Close()
		transport = realtime.NewRedisTransport(rdb.Client)
	default:
		logger.Fatal().Str("transport", cfg.Feed.Transport).Msg("unknown REALTIME_TRANSPORT")
	}

	engine := feed.New(
		fetcher.NewClient(cfg.APIURL, token, &http.Client{Timeout: 30 * time.Second}),
		transport,
		logger,
		feed.Options{
			UserId:       userId,
			PageSize:     cfg.Feed.PageSize,
			Location:     loc,
			WriteTimeout: cfg.Feed.WriteTimeout,
			Backoff: realtime.Options{
				InitialBackoff: cfg.Backoff.Initial,
				MaxBackoff:     cfg.Backoff.Max,
			},
		},
	)
	go engine.Run(ctx)

	changes, unsubscribe := engine.Cache().Subscribe()
	defer unsubscribe()

	snap, err := engine.Open(ctx, key)
	if err != nil {
		logger.Fatal().Err(err).Str("feed", key.String()).Msg("loading feed failed")
	}
	key = snap.Key
	logSnapshot(logger, snap)

	for {
		select {
		case <-ctx.Done():
			engine.Close(key.ChannelId)
			return
		case <-changes:
			if snap, ok := engine.Cache().Feed(key); ok {
				logSnapshot(logger, snap)
			}
		}
	}
}

// session returns the API token and the user it belongs to. Without TOKEN a
// token is minted for USER_ID when TOKEN_SECRET is known.
func session(cfg config.Config) (string, string, error) {
	if cfg.Token != "" {
		userId, err := users.Subject(cfg.Token)
		return cfg.Token, userId, err
	}
	if cfg.TokenSecret == "" || cfg.UserId == "" {
		return "", "", errors.New("set TOKEN, or TOKEN_SECRET and USER_ID")
	}
	token, err := users.IssueToken([]byte(cfg.TokenSecret), cfg.UserId, sessionTTL)
	return token, cfg.UserId, err
}

func logSnapshot(logger zerolog.Logger, snap cache.FeedSnapshot) {
	logger.Info().
		Str("feed", snap.Key.String()).
		Int("pages", len(snap.Pages)).
		Int("posts", len(snap.Posts())).
		Bool("done", snap.Done).
		Int("pending_new", snap.PendingNewCount).
		Bool("stale", snap.Stale).
		Msg("feed updated")
}
