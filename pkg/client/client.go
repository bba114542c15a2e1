// Package client is the device-side coordinator for the pallet session
// channel. It keeps the operator's working state (who is logged in, which
// task is in progress, the last pallet and position seen), checks requests
// locally before they reach the wire and applies replies as state changes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/pkg/protocol"
)

const writeWait = 10 * time.Second

var (
	// ErrDisconnected is returned once the connection is gone. All task
	// state is discarded and the caller has to dial and authenticate again.
	ErrDisconnected = errors.New("client: disconnected")
	// ErrNotAuthenticated is returned by operations that act as the current user.
	ErrNotAuthenticated = errors.New("client: not authenticated")
	// ErrInvalidRequest wraps local validation failures. Such requests are never sent.
	ErrInvalidRequest = errors.New("client: invalid request")
	// ErrNoPosition is returned by Release when no position was ever reported.
	ErrNoPosition = errors.New("client: no position reported")
)

// ReplyError is a failure reply from the server.
type ReplyError struct {
	Kind string
	Msg  string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Task is the flow the operator is currently in.
type Task string

const (
	TaskNone    Task = "none"
	TaskClaim   Task = "claim"
	TaskRelease Task = "release"
	TaskUpdate  Task = "update"
	TaskCreate  Task = "create"
)

// State is a snapshot of the coordinator's working state.
type State struct {
	CurrentUser  string
	CurrentTask  Task
	LastPallet   *protocol.Pallet
	LastPosition *protocol.Position
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Coordinator) { c.dialer = d }
}

// Coordinator owns one session with the server. Requests are issued one at
// a time; each waits for its single reply.
type Coordinator struct {
	dialer   *websocket.Dialer
	conn     *websocket.Conn
	validate *validator.Validate
	log      zerolog.Logger

	callMu  sync.Mutex
	writeMu sync.Mutex
	inbox   chan protocol.Envelope

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the session endpoint at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		dialer:   websocket.DefaultDialer,
		validate: newValidate(),
		log:      zerolog.Nop(),
		inbox:    make(chan protocol.Envelope, 8),
		state:    State{CurrentTask: TaskNone},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	c.conn = conn
	go c.readLoop()
	return c, nil
}

func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// State returns a copy of the current working state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.LastPallet != nil {
		p := *s.LastPallet
		s.LastPallet = &p
	}
	if s.LastPosition != nil {
		pos := *s.LastPosition
		s.LastPosition = &pos
	}
	return s
}

// Done is closed when the connection is gone.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Close ends the session and discards all state.
func (c *Coordinator) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.disconnect()
	return c.conn.Close()
}

func (c *Coordinator) disconnect() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.state = State{CurrentTask: TaskNone}
		c.mu.Unlock()
	})
}

func (c *Coordinator) readLoop() {
	defer func() {
		c.disconnect()
		_ = c.conn.Close()
	}()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("session read ended")
			}
			return
		}
		for _, line := range bytes.Split(frame, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var env protocol.Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				c.log.Warn().Err(err).Msg("dropping undecodable frame")
				continue
			}
			select {
			case c.inbox <- env:
			default:
				c.log.Warn().Str("type", env.Type).Msg("dropping unsolicited reply")
			}
		}
	}
}

// call sends one request and waits for its reply, turning a failure reply
// into a *ReplyError. A caller that gives up before the reply arrives leaves
// the session out of step, so the session is closed in that case.
func (c *Coordinator) call(ctx context.Context, kind string, req any) (json.RawMessage, error) {
	res, err := c.exchange(ctx, kind, req)
	if err != nil {
		return nil, err
	}
	if !res.Status {
		return nil, &ReplyError{Kind: kind, Msg: res.Msg}
	}
	if len(res.Data) == 0 || bytes.Equal(res.Data, []byte("null")) {
		return nil, nil
	}
	return res.Data, nil
}

// exchange is call without the status check, for replies whose failure
// status is itself an answer.
func (c *Coordinator) exchange(ctx context.Context, kind string, req any) (protocol.RawResult, error) {
	if req != nil {
		if err := c.validate.Struct(req); err != nil {
			return protocol.RawResult{}, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, kind, err)
		}
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	select {
	case <-c.done:
		return protocol.RawResult{}, ErrDisconnected
	default:
	}
	c.drain()

	env, err := protocol.NewEnvelope(kind, req)
	if err != nil {
		return protocol.RawResult{}, fmt.Errorf("client: encode %s: %w", kind, err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return protocol.RawResult{}, fmt.Errorf("client: encode %s: %w", kind, err)
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()
	if err != nil {
		c.disconnect()
		return protocol.RawResult{}, ErrDisconnected
	}

	select {
	case reply := <-c.inbox:
		return c.decode(kind, reply)
	case <-c.done:
		return protocol.RawResult{}, ErrDisconnected
	case <-ctx.Done():
		c.log.Warn().Str("kind", kind).Msg("reply not awaited, closing session")
		_ = c.Close()
		return protocol.RawResult{}, ctx.Err()
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case env := <-c.inbox:
			c.log.Debug().Str("type", env.Type).Msg("discarding stale reply")
		default:
			return
		}
	}
}

func (c *Coordinator) decode(kind string, env protocol.Envelope) (protocol.RawResult, error) {
	if env.Type == protocol.KindError {
		var e protocol.ErrorReply
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return protocol.RawResult{}, fmt.Errorf("client: decode error reply: %w", err)
		}
		return protocol.RawResult{}, &ReplyError{Kind: kind, Msg: e.Msg}
	}
	if want := protocol.ReplyKind(kind); env.Type != want {
		return protocol.RawResult{}, fmt.Errorf("client: expected %s reply, got %s", want, env.Type)
	}

	var res protocol.RawResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return protocol.RawResult{}, fmt.Errorf("client: decode %s reply: %w", kind, err)
	}
	return res, nil
}

func decodeData[T any](kind string, data json.RawMessage) (*T, error) {
	if data == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("client: decode %s data: %w", kind, err)
	}
	return &v, nil
}
