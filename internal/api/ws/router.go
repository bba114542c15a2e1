package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/api/metrics"
	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/pkg/protocol"
)

// Validator validates a decoded payload.
type Validator interface {
	Validate(i any) error
}

type route struct {
	reply  string
	handle func(ctx context.Context, s *Session, raw json.RawMessage) (protocol.Result, error)
}

// Router maps request kinds to typed handlers. Every handled message yields
// exactly one reply; unknown kinds are ignored.
type Router struct {
	routes   map[string]route
	validate Validator
	log      zerolog.Logger
}

func NewRouter(v Validator, log zerolog.Logger) *Router {
	return &Router{routes: make(map[string]route), validate: v, log: log}
}

// payloadError marks a frame whose payload could not be decoded or validated.
type payloadError struct{ msg string }

func (e *payloadError) Error() string { return e.msg }

// Handle registers fn for kind. The payload is decoded into T and validated
// before fn runs; fn's outcome is sent back as reply.
func Handle[T any](r *Router, kind, reply string, fn func(ctx context.Context, s *Session, req *T) (protocol.Result, error)) {
	r.routes[kind] = route{
		reply: reply,
		handle: func(ctx context.Context, s *Session, raw json.RawMessage) (protocol.Result, error) {
			req := new(T)
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, req); err != nil {
					return protocol.Result{}, &payloadError{msg: "malformed payload: " + err.Error()}
				}
			}
			if r.validate != nil {
				if err := r.validate.Validate(req); err != nil {
					return protocol.Result{}, &payloadError{msg: err.Error()}
				}
			}
			return fn(ctx, s, req)
		},
	}
}

// Dispatch decodes one frame and runs its handler to completion.
func (r *Router) Dispatch(ctx context.Context, s *Session, frame []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Type == "" {
		metrics.CommandsTotal.WithLabelValues("unknown", "invalid").Inc()
		r.sendError(s, "", "malformed envelope")
		return
	}

	rt, ok := r.routes[env.Type]
	if !ok {
		s.log.Debug().Str("kind", env.Type).Msg("ignoring unknown message kind")
		return
	}

	start := time.Now()
	log := s.log.With().Str("kind", env.Type).Logger()

	res, err := rt.handle(ctx, s, env.Payload)
	metrics.CommandDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())

	var pe *payloadError
	switch {
	case errors.As(err, &pe):
		metrics.CommandsTotal.WithLabelValues(env.Type, "invalid").Inc()
		log.Debug().Str("reason", pe.msg).Msg("rejected payload")
		r.sendError(s, env.Type, pe.msg)
		return
	case err != nil:
		metrics.CommandsTotal.WithLabelValues(env.Type, "failed").Inc()
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrBusy) {
			metrics.AssignmentConflictsTotal.WithLabelValues(env.Type).Inc()
		}
		msg, internal := reasonFor(err)
		if internal {
			log.Error().Err(err).Msg("command failed")
		} else {
			log.Debug().Err(err).Msg("command refused")
		}
		res = protocol.Result{Status: false, Msg: msg}
	default:
		metrics.CommandsTotal.WithLabelValues(env.Type, "ok").Inc()
	}

	r.send(s, log, rt.reply, res)
}

func (r *Router) sendError(s *Session, request, msg string) {
	r.send(s, s.log, protocol.KindError, protocol.ErrorReply{Status: false, Msg: msg, Request: request})
}

func (r *Router) send(s *Session, log zerolog.Logger, kind string, payload any) {
	env, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		log.Error().Err(err).Msg("encode reply")
		return
	}
	if err := s.Send(env); err != nil {
		log.Debug().Err(err).Msg("reply dropped, connection gone")
	}
}

// refusals are reported with their own text.
var refusals = []error{
	domain.ErrInvalidCredentials,
	domain.ErrUserExists,
	domain.ErrPalletNotFound,
	domain.ErrNothingHeld,
	domain.ErrAlreadyHolding,
	domain.ErrPalletUnavailable,
	domain.ErrVersionConflict,
	domain.ErrBusy,
}

// detailed refusals keep the context that follows the sentinel text.
var detailed = []error{
	domain.ErrInvalidTransition,
	domain.ErrInconsistentState,
	domain.ErrInvalidInput,
}

// reasonFor maps a handler error to the client-facing message. internal is
// true when the cause must not leak and has to be logged instead.
func reasonFor(err error) (msg string, internal bool) {
	if errors.Is(err, domain.ErrUserNotFound) {
		return "User not found", false
	}
	for _, target := range refusals {
		if errors.Is(err, target) {
			return target.Error(), false
		}
	}
	for _, target := range detailed {
		if errors.Is(err, target) {
			full := err.Error()
			if i := strings.Index(full, target.Error()); i >= 0 {
				return full[i:], false
			}
			return target.Error(), false
		}
	}
	return "internal error", true
}
