package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server upgrades HTTP requests to sessions and serves them until the
// connection ends.
type Server struct {
	hub      *Hub
	router   *Router
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(hub *Hub, router *Router, opts Options, log zerolog.Logger) *Server {
	return &Server{
		hub:    hub,
		router: router,
		opts:   opts.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP blocks for the lifetime of the session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := newSession(uuid.NewString(), conn, s.opts, s.log)
	s.hub.add(sess)
	sess.log.Info().Str("remote", sess.RemoteAddr()).Msg("session opened")

	defer func() {
		s.hub.remove(sess)
		sess.Close()
		sess.log.Info().Str("identity", sess.Identity()).Msg("session closed")
	}()

	sess.serve(r.Context(), s.router)
}
