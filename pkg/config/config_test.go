package config

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REALTIME_TRANSPORT", "websocket")
	t.Setenv("BACKOFF_MAX", "1m")
	t.Setenv("BLOCKED_NETWORKS", "10.0.0.0/8,192.0.2.1")

	cfg, err := Load()
	assert.Equal(t, nil, err)
	assert.Equal(t, 10, cfg.Feed.PageSize)
	assert.Equal(t, "websocket", cfg.Feed.Transport)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.BlockedNetworks)

	loc, err := cfg.FeedLocation()
	assert.Equal(t, nil, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("WRITE_TIMEOUT", "soon")

	_, err := Load()
	assert.NotEqual(t, nil, err)
}
