package events

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const DefaultPingInterval = 45 * time.Second

type Options struct {
	PingInterval time.Duration
	Logger       zerolog.Logger
}

// Server relays change-feed frames to websocket clients. Every connection
// watches one (channel, relation) pair; its session outlives the connection
// for one ping interval so a client can resume where it left off.
type Server struct {
	httpMux      *http.ServeMux
	source       Source
	logger       zerolog.Logger
	pingInterval time.Duration

	sessions   map[string]*Session
	sessionsMu sync.Mutex

	nextNonce  int64
	nonceMutex sync.Mutex
}

func NewServer(source Source, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}

	// Create WebSocket upgrader
	upgrader := websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}

	// Create server
	s := &Server{
		httpMux:      http.NewServeMux(),
		source:       source,
		logger:       opts.Logger,
		pingInterval: opts.PingInterval,

		sessions:  make(map[string]*Session),
		nextNonce: 1,
	}
	s.httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		channelId := query.Get("channel")
		relation := events.Relation(query.Get("relation"))
		if channelId == "" || !slices.Contains(events.Relations, relation) {
			http.Error(w, "Missing or invalid channel/relation.", http.StatusBadRequest)
			return
		}
		channelName := events.ChannelName(channelId, relation)

		// Get current session or create new session
		var session *Session
		var lastNonce int64
		resumed := false
		if query.Has("sid") && query.Has("nonce") {
			lastNonce, _ = strconv.ParseInt(query.Get("nonce"), 10, 64)
			session = s.getSession(query.Get("sid"))
			if session != nil && session.channelName == channelName && session.canResume(lastNonce) {
				resumed = true
			} else {
				session = nil
			}
		}
		if session == nil {
			var err error
			session, err = s.newSession(channelName)
			if err != nil {
				s.logger.Error().Err(err).Str("channel", channelName).Msg("subscribe failed")
				http.Error(w, "Failed subscribing to channel.", http.StatusServiceUnavailable)
				return
			}
		}

		// Upgrade connection
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if !resumed {
				session.endSession()
			}
			return
		}

		// Register connection
		if err := session.registerConn(conn, resumed, lastNonce); err != nil {
			s.logger.Warn().Err(err).Str("sid", session.id).Msg("failed registering connection to session")
			conn.Close()
		}
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpMux.ServeHTTP(w, r)
}

func (s *Server) getNextNonce() int64 {
	s.nonceMutex.Lock()
	defer s.nonceMutex.Unlock()
	nonce := s.nextNonce
	s.nextNonce++
	return nonce
}

func (s *Server) getSession(id string) *Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return s.sessions[id]
}

func (s *Server) newSession(channelName string) (*Session, error) {
	feed, err := s.source.Subscribe(context.Background(), channelName)
	if err != nil {
		return nil, err
	}

	session := newSession(s, ulid.Make().String(), channelName, feed)
	s.sessionsMu.Lock()
	s.sessions[session.id] = session
	s.sessionsMu.Unlock()
	return session, nil
}

func (s *Server) removeSession(id string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, id)
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// Close ends every session.
func (s *Server) Close() {
	s.sessionsMu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessionsMu.Unlock()

	for _, session := range sessions {
		session.endSession()
	}
}
