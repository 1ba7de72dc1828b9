// Package rdb holds the shared Redis client used for change-feed fan-out
// and request rate limiting.
package rdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var Client *redis.Client

// Init connects the shared client to uri and waits for it to answer a ping.
// name is reported to the server as the connection's client name unless the
// URI already sets one. Client is left untouched when Init fails.
func Init(ctx context.Context, uri string, name string) error {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis uri: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = name
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	Client = client
	return nil
}

// Close releases the shared client.
func Close() error {
	if Client == nil {
		return nil
	}
	err := Client.Close()
	Client = nil
	return err
}
