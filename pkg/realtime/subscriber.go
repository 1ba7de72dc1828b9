package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/meower-media/feedsync/pkg/cache"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/rs/zerolog"
)

type State uint8

const (
	Closed State = iota
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	}
	return "closed"
}

type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Subscriber keeps one push stream per watched relation open for every
// enabled channel, decodes what arrives and merges it into the cache.
// Dropped streams are reopened with exponential backoff; until every stream
// of a channel is back the channel is flagged stale.
type Subscriber struct {
	transport Transport
	cache     *cache.Cache
	log       zerolog.Logger
	opts      Options

	mu       sync.Mutex
	channels map[string]*channel
}

type channel struct {
	id     string
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state State
	up    map[events.Relation]bool
	stale bool
	lost  bool // frames may have been missed while stale
}

func NewSubscriber(transport Transport, c *cache.Cache, logger zerolog.Logger, opts Options) *Subscriber {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Subscriber{
		transport: transport,
		cache:     c,
		log:       logger.With().Str("component", "realtime").Logger(),
		opts:      opts,
		channels:  make(map[string]*channel),
	}
}

// Enable starts watching a channel. Enabling a channel that is already
// enabled does nothing.
func (s *Subscriber) Enable(ctx context.Context, channelId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channelId]; ok {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := &channel{
		id:     channelId,
		cancel: cancel,
		state:  Opening,
		up:     make(map[events.Relation]bool),
	}
	s.channels[channelId] = ch

	for _, relation := range events.Relations {
		ch.wg.Add(1)
		go func(relation events.Relation) {
			defer ch.wg.Done()
			s.run(ctx, ch, relation)
		}(relation)
	}
	s.log.Debug().Str("channel", channelId).Msg("subscription enabled")
}

// Disable tears down every stream of a channel and waits for them to stop.
// It is safe to call on a channel that is not enabled.
func (s *Subscriber) Disable(channelId string) {
	s.mu.Lock()
	ch := s.channels[channelId]
	delete(s.channels, channelId)
	s.mu.Unlock()
	if ch == nil {
		return
	}

	ch.cancel()
	ch.wg.Wait()

	ch.mu.Lock()
	ch.state = Closed
	wasStale := ch.stale
	ch.stale = false
	ch.mu.Unlock()
	if wasStale {
		metrics.StaleChanged(false)
	}
	s.cache.SetStale(channelId, false)
	s.log.Debug().Str("channel", channelId).Msg("subscription disabled")
}

// DisableAll tears down every channel.
func (s *Subscriber) DisableAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Disable(id)
	}
}

func (s *Subscriber) State(channelId string) State {
	s.mu.Lock()
	ch := s.channels[channelId]
	s.mu.Unlock()
	if ch == nil {
		return Closed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (s *Subscriber) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Subscriber) run(ctx context.Context, ch *channel, relation events.Relation) {
	log := s.log.With().Str("channel", ch.id).Str("relation", string(relation)).Logger()
	b := s.newBackoff()

	for {
		stream, err := s.transport.Open(ctx, ch.id, relation)
		if err == nil {
			b.Reset()
			s.relationUp(ch, relation, stream.Resumed())
			err = s.consume(ctx, ch.id, stream)
			stream.Close()
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Msg("change feed stream down")
		s.relationDown(ch, relation)

		wait := b.NextBackOff()
		metrics.ObserveReconnect(string(relation))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// consume feeds a stream's frames to the cache until the stream drops.
func (s *Subscriber) consume(ctx context.Context, channelId string, stream Stream) error {
	frames := stream.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return errors.New("stream ended")
			}
			s.handle(channelId, frame)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscriber) handle(channelId string, frame []byte) {
	ev, err := events.Decode(frame)
	if err != nil {
		var decodeErr *events.DecodeError
		if !errors.As(err, &decodeErr) {
			decodeErr = &events.DecodeError{Err: err}
		}
		metrics.ObserveEvent(decodeErr.Table.String(), decodeErr.Op.String(), "insufficient")
		s.log.Warn().Err(err).Str("channel", channelId).Msg("revalidating after undecodable event")
		s.cache.Invalidate(channelId, decodeErr)
		return
	}

	if ev.ChannelId != "" && ev.ChannelId != channelId {
		metrics.ObserveEvent(ev.Table.String(), ev.Op.String(), "scoped_out")
		s.log.Debug().Stringer("event", ev).Str("channel", channelId).Msg("event for another channel")
		return
	}

	outcome := s.cache.Merge(ev)
	metrics.ObserveEvent(ev.Table.String(), ev.Op.String(), outcome.String())
}

func (s *Subscriber) relationUp(ch *channel, relation events.Relation, resumed bool) {
	ch.mu.Lock()
	ch.up[relation] = true
	if !resumed && ch.stale {
		ch.lost = true
	}
	if len(ch.up) < len(events.Relations) {
		ch.mu.Unlock()
		return
	}
	ch.state = Open
	recovered := ch.stale
	revalidate := ch.lost
	ch.stale = false
	ch.lost = false
	ch.mu.Unlock()

	if !recovered {
		s.log.Info().Str("channel", ch.id).Msg("subscription open")
		return
	}
	metrics.StaleChanged(false)
	s.cache.SetStale(ch.id, false)
	s.log.Info().Str("channel", ch.id).Bool("revalidate", revalidate).Msg("subscription recovered")
	if revalidate {
		s.cache.Revalidate(ch.id, "reconnect")
	}
}

func (s *Subscriber) relationDown(ch *channel, relation events.Relation) {
	ch.mu.Lock()
	delete(ch.up, relation)
	ch.state = Opening
	if ch.stale {
		ch.mu.Unlock()
		return
	}
	ch.stale = true
	ch.mu.Unlock()

	metrics.StaleChanged(true)
	s.cache.SetStale(ch.id, true)
}
