package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meower-media/feedsync/pkg/events"
)

const writeWait = 10 * time.Second

type Session struct {
	id          string
	server      *Server
	channelName string
	feed        Feed

	mu             sync.Mutex
	conn           *websocket.Conn
	packets        []*Packet
	trimmedThrough int64 // highest nonce dropped from packets
	disconnectedAt time.Time
	ended          bool
	done           chan struct{}
}

func newSession(server *Server, id string, channelName string, feed Feed) *Session {
	s := &Session{
		id:          id,
		server:      server,
		channelName: channelName,
		feed:        feed,
		packets:     []*Packet{},
		done:        make(chan struct{}),
	}

	// Relay thread
	go func() {
		for frame := range feed.Frames() {
			p, err := createPacket(server, &events.Envelope{Cmd: events.CmdFrame, Data: frame})
			if err != nil {
				server.logger.Error().Err(err).Str("sid", s.id).Msg("failed encoding frame")
				continue
			}
			s.send(p)
		}
		s.endSession()
	}()

	// Background thread
	go func() {
		ticker := time.NewTicker(server.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
			if s.tick() {
				s.endSession()
				return
			}
		}
	}()

	return s
}

// tick pings the connection and drops history older than the ping interval.
// It reports whether the session has gone unattended for too long.
func (s *Session) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.server.pingInterval)
	if s.conn == nil {
		return s.disconnectedAt.Before(cutoff)
	}

	s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))

	itemsToRemove := 0
	for _, packet := range s.packets {
		if packet.CreatedAt >= cutoff.UnixMilli() {
			break
		}
		s.trimmedThrough = packet.Nonce
		itemsToRemove++
	}
	s.packets = s.packets[itemsToRemove:]
	return false
}

// canResume reports whether every packet after lastNonce is still held.
func (s *Session) canResume(lastNonce int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended && lastNonce >= s.trimmedThrough
}

func (s *Session) send(p *Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}

	// Add to packets history
	s.packets = append(s.packets, p)

	// Write message to conn if one exists
	s.writeToConn(p)
}

func (s *Session) registerConn(conn *websocket.Conn, resumed bool, lastNonce int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}

	// Close current connection if one exists
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"), time.Now().Add(writeWait))
		s.conn.Close()
	}
	s.conn = conn

	// Send hello
	hello, err := createPacket(s.server, &events.Envelope{
		Cmd:          events.CmdHello,
		SessionId:    s.id,
		PingInterval: s.server.pingInterval.Milliseconds(),
		Resumed:      resumed,
	})
	if err != nil {
		return err
	}
	s.writeToConn(hello)

	// Re-send missed packets
	if resumed {
		for _, packet := range s.packets {
			if packet.Nonce > lastNonce {
				s.writeToConn(packet)
			}
		}
	}

	// Read incoming messages until connection ends
	go s.readConn(conn)

	return nil
}

func (s *Session) readConn(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.endSession()
				return
			}
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.disconnectedAt = time.Now()
			}
			s.mu.Unlock()
			conn.Close()
			return
		}
	}
}

// writeToConn must be called with s.mu held.
func (s *Session) writeToConn(packet *Packet) {
	if s.conn == nil {
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, packet.Encoded); err != nil {
		s.conn.Close()
		s.conn = nil
		s.disconnectedAt = time.Now()
	}
}

func (s *Session) endSession() {
	s.mu.Lock()
	// Make sure session hasn't already ended
	if s.ended {
		s.mu.Unlock()
		return
	}

	// Set ended state
	s.ended = true
	close(s.done)
	s.packets = nil

	// Close connection if one exists
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	// De-register
	s.server.removeSession(s.id)
	if err := s.feed.Close(); err != nil {
		s.server.logger.Debug().Err(err).Str("sid", s.id).Msg("closing feed")
	}
}
