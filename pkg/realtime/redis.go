package realtime

import (
	"context"

	"github.com/meower-media/feedsync/pkg/events"
	"github.com/redis/go-redis/v9"
)

// RedisTransport subscribes to the change-feed channels published by the
// backend.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Open(ctx context.Context, channelId string, relation events.Relation) (Stream, error) {
	pubsub := t.client.Subscribe(ctx, events.ChannelName(channelId, relation))

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	s := newStream(pubsub.Close)
	go func() {
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				s.end(err)
				return
			}
			if !s.deliver([]byte(msg.Payload)) {
				s.end(nil)
				return
			}
		}
	}()
	return s, nil
}
