package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Source delivers the frames published on a change-feed channel.
type Source interface {
	Subscribe(ctx context.Context, channelName string) (Feed, error)
}

type Feed interface {
	Frames() <-chan []byte
	Close() error
}

// RedisSource subscribes to change-feed channels on Redis pub/sub.
type RedisSource struct {
	Client *redis.Client
}

func (s RedisSource) Subscribe(ctx context.Context, channelName string) (Feed, error) {
	pubsub := s.Client.Subscribe(ctx, channelName)

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	f := &redisFeed{pubsub: pubsub, frames: make(chan []byte, 64)}
	go func() {
		defer close(f.frames)
		for msg := range pubsub.Channel() {
			f.frames <- []byte(msg.Payload)
		}
	}()
	return f, nil
}

type redisFeed struct {
	pubsub *redis.PubSub
	frames chan []byte
}

func (f *redisFeed) Frames() <-chan []byte {
	return f.frames
}

func (f *redisFeed) Close() error {
	return f.pubsub.Close()
}
