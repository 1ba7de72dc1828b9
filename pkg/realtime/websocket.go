package realtime

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meower-media/feedsync/pkg/events"
)

var ErrNoHello = errors.New("relay did not greet")

const writeWait = 10 * time.Second

// WebsocketTransport reads change-feed frames from the events relay. It
// remembers the session and last nonce of every relation so a reconnect
// resumes without losing frames while the relay still holds them.
type WebsocketTransport struct {
	url    string
	dialer *websocket.Dialer

	mu       sync.Mutex
	sessions map[string]resumeState
}

type resumeState struct {
	sid   string
	nonce int64
}

func NewWebsocketTransport(relayURL string) *WebsocketTransport {
	return &WebsocketTransport{
		url: relayURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		sessions: make(map[string]resumeState),
	}
}

func (t *WebsocketTransport) Open(ctx context.Context, channelId string, relation events.Relation) (Stream, error) {
	key := events.ChannelName(channelId, relation)

	u, err := url.Parse(t.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("channel", channelId)
	q.Set("relation", string(relation))
	t.mu.Lock()
	rs, resuming := t.sessions[key]
	t.mu.Unlock()
	if resuming {
		q.Set("sid", rs.sid)
		q.Set("nonce", strconv.FormatInt(rs.nonce, 10))
	}
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	// Wait for hello
	hello, err := readEnvelope(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hello.Cmd != events.CmdHello || hello.SessionId == "" {
		conn.Close()
		return nil, ErrNoHello
	}
	if !hello.Resumed {
		rs = resumeState{sid: hello.SessionId, nonce: hello.Nonce}
		t.setResume(key, rs)
	}

	// Keep the connection alive while the relay pings
	deadline := 2 * time.Duration(hello.PingInterval) * time.Millisecond
	if deadline > 0 {
		conn.SetReadDeadline(time.Now().Add(deadline))
		conn.SetPingHandler(func(data string) error {
			conn.SetReadDeadline(time.Now().Add(deadline))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		})
	}

	s := newStream(conn.Close)
	s.resumed = hello.Resumed
	go func() {
		for {
			env, err := readEnvelope(conn)
			if err != nil {
				s.end(err)
				return
			}
			if env.Cmd != events.CmdFrame {
				continue
			}
			rs.nonce = env.Nonce
			t.setResume(key, rs)
			if !s.deliver(env.Data) {
				s.end(nil)
				return
			}
		}
	}()
	return s, nil
}

func (t *WebsocketTransport) setResume(key string, rs resumeState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[key] = rs
}

func readEnvelope(conn *websocket.Conn) (events.Envelope, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return events.Envelope{}, err
	}
	return events.UnmarshalEnvelope(msg)
}
