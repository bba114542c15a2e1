package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/pkg/protocol"
)

const writeWait = 10 * time.Second

// Options tunes per-connection limits and keepalive.
type Options struct {
	ReadLimit    int64
	PingInterval time.Duration
	PongWait     time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	return o
}

// Session is one client connection. Inbound messages are handled one at a
// time in arrival order; outbound writes are serialized.
type Session struct {
	id     string
	remote string
	conn   *websocket.Conn
	opts   Options
	log    zerolog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	identity string

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, conn *websocket.Conn, opts Options, log zerolog.Logger) *Session {
	return &Session{
		id:     id,
		remote: conn.RemoteAddr().String(),
		conn:   conn,
		opts:   opts,
		log:    log.With().Str("session_id", id).Logger(),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) RemoteAddr() string { return s.remote }

// Identity is the user id authenticated on this connection, or "".
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) SetIdentity(userID string) {
	s.mu.Lock()
	s.identity = userID
	s.mu.Unlock()
}

// Send writes one envelope as a text frame.
func (s *Session) Send(env protocol.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, b)
}

func (s *Session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// Close terminates the connection. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

// serve runs the read loop until the connection ends.
func (s *Session) serve(ctx context.Context, r *Router) {
	s.conn.SetReadLimit(s.opts.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	go s.keepalive()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("session closed unexpectedly")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			r.Dispatch(ctx, s, line)
		}
	}
}

func (s *Session) keepalive() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
