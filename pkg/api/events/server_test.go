package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/realtime"
	"github.com/rs/zerolog"
)

type fakeFeed struct {
	frames    chan []byte
	closeOnce sync.Once
}

func (f *fakeFeed) Frames() <-chan []byte {
	return f.frames
}

func (f *fakeFeed) Close() error {
	f.closeOnce.Do(func() { close(f.frames) })
	return nil
}

type fakeSource struct {
	mu    sync.Mutex
	feeds map[string]*fakeFeed
}

func (s *fakeSource) Subscribe(ctx context.Context, channelName string) (Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &fakeFeed{frames: make(chan []byte, 16)}
	s.feeds[channelName] = f
	return f, nil
}

func (s *fakeSource) feed(channelName string) *fakeFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds[channelName]
}

func startRelay(t *testing.T) (*Server, *fakeSource, string) {
	source := &fakeSource{feeds: make(map[string]*fakeFeed)}
	server := NewServer(source, Options{Logger: zerolog.Nop()})
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		httpServer.Close()
	})
	return server, source, "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/"
}

func nextFrame(t *testing.T, stream realtime.Stream) []byte {
	select {
	case frame, ok := <-stream.Frames():
		assert.Equal(t, true, ok)
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestRelayDeliversFrames(t *testing.T) {
	_, source, url := startRelay(t)
	transport := realtime.NewWebsocketTransport(url)

	stream, err := transport.Open(context.Background(), "c1", events.RelationPosts)
	assert.Equal(t, nil, err)
	defer stream.Close()
	assert.Equal(t, false, stream.Resumed())

	source.feed(events.ChannelName("c1", events.RelationPosts)).frames <- []byte("a")
	assert.Equal(t, []byte("a"), nextFrame(t, stream))
}

func TestRelayResumesSession(t *testing.T) {
	server, source, url := startRelay(t)
	transport := realtime.NewWebsocketTransport(url)
	channelName := events.ChannelName("c1", events.RelationComments)

	stream, err := transport.Open(context.Background(), "c1", events.RelationComments)
	assert.Equal(t, nil, err)
	feed := source.feed(channelName)
	feed.frames <- []byte("a")
	assert.Equal(t, []byte("a"), nextFrame(t, stream))

	// drop the connection, then publish while it is down
	stream.Close()
	feed.frames <- []byte("b")

	stream, err = transport.Open(context.Background(), "c1", events.RelationComments)
	assert.Equal(t, nil, err)
	defer stream.Close()
	assert.Equal(t, true, stream.Resumed())
	assert.Equal(t, []byte("b"), nextFrame(t, stream))
	assert.Equal(t, 1, server.SessionCount())
}

func TestRelayUnknownSessionStartsFresh(t *testing.T) {
	_, _, url := startRelay(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?channel=c1&relation=posts&sid=bogus&nonce=5", nil)
	assert.Equal(t, nil, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	assert.Equal(t, nil, err)
	hello, err := events.UnmarshalEnvelope(msg)
	assert.Equal(t, nil, err)
	assert.Equal(t, events.CmdHello, hello.Cmd)
	assert.Equal(t, false, hello.Resumed)
	assert.NotEqual(t, "bogus", hello.SessionId)
	assert.Equal(t, DefaultPingInterval.Milliseconds(), hello.PingInterval)
}

func TestRelayRejectsBadRelation(t *testing.T) {
	server, _, _ := startRelay(t)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?channel=c1&relation=users", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?relation=posts", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
