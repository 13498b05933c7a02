// ABOUTME: Session transport over a WebSocket-framed channel
// ABOUTME: Owns connect/handshake/reconnect and serializes outbound sends
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisuthe/sendspin-player/pkg/protocol"
)

// State is one node in the transport's connection state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnectError wraps a dial failure.
type ConnectError struct{ Err error }

func (e *ConnectError) Error() string { return fmt.Sprintf("transport: connect failed: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// HandshakeTimeoutError is returned when server/hello does not arrive
// within the configured handshake timeout.
type HandshakeTimeoutError struct{}

func (e *HandshakeTimeoutError) Error() string {
	return "transport: handshake timed out waiting for server/hello"
}

// ProtocolError is returned for malformed inbound frames, including a
// malformed server/hello during handshake.
type ProtocolError struct{ Msg string }

func (e *ProtocolError) Error() string { return "transport: protocol error: " + e.Msg }

// ClosedByPeerError reports a WebSocket close frame sent by the server.
type ClosedByPeerError struct {
	Code   int
	Reason string
}

func (e *ClosedByPeerError) Error() string {
	return fmt.Sprintf("transport: closed by peer (code=%d reason=%q)", e.Code, e.Reason)
}

// Config configures a Transport's endpoint, identity, and reconnect
// policy. Zero-value duration/backoff fields fall back to spec defaults.
type Config struct {
	URL            string
	ClientID       string
	Name           string
	Version        int
	SupportedRoles []string

	DeviceInfo        protocol.DeviceInfo
	PlayerSupport     *protocol.PlayerV1Support
	ArtworkSupport    *protocol.ArtworkV1Support
	VisualizerSupport *protocol.VisualizerV1Support

	HandshakeTimeout time.Duration

	AutoReconnect bool
	BaseDelay     time.Duration
	Multiplier    float64
	MaxDelay      time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 1.5
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Version == 0 {
		c.Version = 1
	}
	if len(c.SupportedRoles) == 0 {
		c.SupportedRoles = []string{"player"}
	}
	return c
}

// InboundMessage is one decoded JSON envelope: the type tag plus its
// still-encoded payload, left for the caller to unmarshal into the
// concrete protocol struct its type implies.
type InboundMessage struct {
	Type    string
	Payload json.RawMessage
}

type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dialer abstracts the WebSocket dial so tests can substitute a fake.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader map[string][]string) (*websocket.Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) DialContext(ctx context.Context, urlStr string, _ map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	return conn, err
}

// Transport maintains one session-level connection: dial, handshake,
// reconnect with backoff, and serialized sends. It dispatches inbound
// traffic on Messages (JSON envelopes) and Frames (binary audio/artwork/
// visualizer chunks), and reports state transitions and errors on
// StateChanges and Errors.
type Transport struct {
	cfg    Config
	dialer Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	sendMu sync.Mutex

	stateMu sync.RWMutex
	state   State

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	Messages     chan InboundMessage
	Frames       chan protocol.Frame
	StateChanges chan State
	Errors       chan error
}

// New creates a Transport in the Disconnected state. Call Run to start
// the connect/reconnect loop.
func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:          cfg,
		dialer:       gorillaDialer{},
		ctx:          ctx,
		cancel:       cancel,
		Messages:     make(chan InboundMessage, 64),
		Frames:       make(chan protocol.Frame, 256),
		StateChanges: make(chan State, 16),
		Errors:       make(chan error, 16),
	}
}

// State returns the transport's current connection state.
func (t *Transport) State() State {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state
}

// Run drives the connect/handshake/reconnect loop until Disconnect is
// called or auto-reconnect is disabled and a connection attempt fails.
// It blocks; call it from its own goroutine.
func (t *Transport) Run() {
	attempt := 0
	for {
		if t.ctx.Err() != nil {
			t.setState(Disconnected)
			return
		}

		t.setState(Connecting)
		if err := t.connectAndHandshake(); err != nil {
			t.emitError(err)
			if !t.cfg.AutoReconnect || t.ctx.Err() != nil {
				t.setState(Disconnected)
				return
			}
			attempt++
			t.setState(Reconnecting)
			if !t.sleep(backoffDelay(t.cfg, attempt)) {
				t.setState(Disconnected)
				return
			}
			continue
		}

		attempt = 0
		t.setState(Connected)
		t.readLoop()

		if t.ctx.Err() != nil {
			t.setState(Disconnected)
			return
		}
		if !t.cfg.AutoReconnect {
			t.setState(Disconnected)
			return
		}
		attempt++
		t.setState(Reconnecting)
		if !t.sleep(backoffDelay(t.cfg, attempt)) {
			t.setState(Disconnected)
			return
		}
	}
}

func (t *Transport) sleep(d time.Duration) bool {
	select {
	case <-t.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	return time.Duration(d)
}

func (t *Transport) connectAndHandshake() error {
	conn, err := t.dialer.DialContext(t.ctx, t.cfg.URL, nil)
	if err != nil {
		return &ConnectError{Err: err}
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.setState(Handshaking)

	if err := t.sendHello(); err != nil {
		conn.Close()
		return &ConnectError{Err: err}
	}

	conn.SetReadDeadline(time.Now().Add(t.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return &HandshakeTimeoutError{}
		}
		return &ConnectError{Err: err}
	}

	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		conn.Close()
		return &ProtocolError{Msg: fmt.Sprintf("malformed server/hello: %v", err)}
	}
	if env.Type != protocol.TypeServerHello {
		conn.Close()
		return &ProtocolError{Msg: fmt.Sprintf("expected server/hello, got %q", env.Type)}
	}

	var hello protocol.ServerHello
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		conn.Close()
		return &ProtocolError{Msg: fmt.Sprintf("malformed server/hello payload: %v", err)}
	}

	select {
	case t.Messages <- InboundMessage{Type: env.Type, Payload: env.Payload}:
	default:
	}

	return nil
}

func (t *Transport) sendHello() error {
	hello := protocol.ClientHello{
		ClientID:            t.cfg.ClientID,
		Name:                t.cfg.Name,
		Version:             t.cfg.Version,
		SupportedRoles:      t.cfg.SupportedRoles,
		DeviceInfo:          &t.cfg.DeviceInfo,
		PlayerV1Support:     t.cfg.PlayerSupport,
		ArtworkV1Support:    t.cfg.ArtworkSupport,
		VisualizerV1Support: t.cfg.VisualizerSupport,
	}
	return t.sendJSON(protocol.TypeClientHello, hello)
}

func (t *Transport) readLoop() {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()

	defer func() {
		conn.Close()
		t.connMu.Lock()
		t.conn = nil
		t.connMu.Unlock()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				t.emitError(&ClosedByPeerError{Code: ce.Code, Reason: ce.Text})
			} else if t.ctx.Err() == nil {
				t.emitError(fmt.Errorf("transport: read error: %w", err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			frame, err := protocol.ParseFrame(data)
			if err != nil {
				t.emitError(&ProtocolError{Msg: err.Error()})
				continue
			}
			select {
			case t.Frames <- frame:
			case <-t.ctx.Done():
				return
			}

		case websocket.TextMessage:
			var env inboundEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.emitError(&ProtocolError{Msg: fmt.Sprintf("malformed message: %v", err)})
				continue
			}
			select {
			case t.Messages <- InboundMessage{Type: env.Type, Payload: env.Payload}:
			case <-t.ctx.Done():
				return
			}
		}

		if t.ctx.Err() != nil {
			return
		}
	}
}

func (t *Transport) sendJSON(msgType string, payload interface{}) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	return conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// SendState sends a client/state message.
func (t *Transport) SendState(state protocol.ClientStateMessage) error {
	return t.sendJSON(protocol.TypeClientState, state)
}

// SendClientTime sends a client/time message, stamping T1 as t1.
// Satisfies pkg/syncdriver.Sender.
func (t *Transport) SendClientTime(t1 int64) error {
	return t.sendJSON(protocol.TypeClientTime, protocol.ClientTime{ClientTransmitted: t1})
}

// Disconnect gracefully and permanently closes the transport: it sends
// client/goodbye if connected, cancels pending sends, and moves to
// Disconnected. Idempotent; safe to call more than once or concurrently.
func (t *Transport) Disconnect(reason string) {
	t.closeOnce.Do(func() {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()

		if conn != nil {
			_ = t.sendJSON(protocol.TypeClientGoodbye, protocol.ClientGoodbye{Reason: reason})
		}

		t.cancel()

		if conn != nil {
			conn.Close()
		}

		t.setState(Disconnected)
	})
}

func (t *Transport) setState(s State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
	select {
	case t.StateChanges <- s:
	default:
	}
}

func (t *Transport) emitError(err error) {
	select {
	case t.Errors <- err:
	default:
	}
}
