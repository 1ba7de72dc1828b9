package realtime

import (
	"context"
	"sync"

	"github.com/meower-media/feedsync/pkg/events"
)

// Transport opens push streams of raw change-feed frames, one per
// (channel, relation).
type Transport interface {
	Open(ctx context.Context, channelId string, relation events.Relation) (Stream, error)
}

// Stream delivers frames until it drops or is closed. Once Frames is closed,
// Err returns the cause of the drop (nil after Close).
type Stream interface {
	Frames() <-chan []byte
	Err() error

	// Resumed reports whether the stream picked up where a previous stream of
	// the same relation left off, so no frames were lost in between.
	Resumed() bool

	Close() error
}

type stream struct {
	frames  chan []byte
	closed  chan struct{}
	resumed bool
	err     error

	closeOnce sync.Once
	closeErr  error
	closer    func() error
}

func newStream(closer func() error) *stream {
	return &stream{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
		closer: closer,
	}
}

func (s *stream) Frames() <-chan []byte {
	return s.frames
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Resumed() bool {
	return s.resumed
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.closer()
	})
	return s.closeErr
}

// deliver hands a frame to the reader. It returns false once the stream is
// closed.
func (s *stream) deliver(frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	case <-s.closed:
		return false
	}
}

// end is called once by the producing goroutine.
func (s *stream) end(err error) {
	select {
	case <-s.closed:
		err = nil
	default:
	}
	s.err = err
	close(s.frames)
}
