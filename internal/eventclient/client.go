// Package eventclient implements the real-time event-service ingress:
// a persistent WebSocket connection with a heartbeat watchdog and
// linear-falloff reconnect, delivering typed Dispatch events to
// subscribers. Grounded on spec.md §4.4 and, for the connect/reconnect
// state-machine shape and the generation-counted WaitOnline primitive,
// on the teacher's internal/infra/telegram/connection.Manager
// (con_manager.go) — the MTProto-specific RPC ping monitor is replaced
// here with the spec's heartbeat-watchdog + linear-falloff reconnect,
// but the "closed channel means online, fresh channel means offline"
// wait-primitive shape is carried over unchanged.
package eventclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-faster/errors"

	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// ErrNotConnected is returned by Send* methods when no connection is
// currently open.
var ErrNotConnected = errors.New("eventclient: not connected")

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultBackoffBase       = 2000 * time.Millisecond
	defaultMaxFalloff        = 60
)

// wireConn is the minimal duplex frame transport Client depends on; the
// default implementation wraps github.com/coder/websocket, and tests
// substitute a fake to drive the reconnect state machine without a real
// socket.
type wireConn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, f Frame) error
	Close(reason string) error
}

type connectFunc func(ctx context.Context, url string) (wireConn, error)

// Client maintains one logical connection to the event service.
type Client struct {
	url     string
	connect connectFunc

	state atomic.Int32

	heartbeatInterval atomic.Int64 // nanoseconds
	lastFrameAt       atomic.Int64 // UnixNano

	policy *falloffPolicy

	connMu sync.RWMutex
	conn   wireConn

	waitMu sync.RWMutex
	waitCh chan struct{}

	listenersMu sync.Mutex
	listeners   []func(DispatchEvent)

	stateListenersMu sync.Mutex
	stateListeners   []func(prev, next State)

	cancel context.CancelFunc
}

// Option configures a Client at construction.
type Option func(*Client)

// WithHeartbeatInterval overrides the default 25s heartbeat interval,
// used until a Hello frame instructs otherwise.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) { c.heartbeatInterval.Store(int64(d)) }
}

// WithBackoffBase overrides the default 2000ms reconnect base interval.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) { c.policy.base = d }
}

// WithBackoffCap overrides the default falloff cap of 60.
func WithBackoffCap(n int) Option {
	return func(c *Client) { c.policy.maxFalloff = n }
}

// New returns a Client for url, not yet connected. Call Run to start the
// connect/reconnect loop.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		waitCh: make(chan struct{}),
	}
	c.heartbeatInterval.Store(int64(defaultHeartbeatInterval))
	c.policy = newFalloffPolicy(defaultBackoffBase, defaultMaxFalloff)
	c.connect = defaultConnect
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the client's current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	if s == Open && prev != Open {
		c.markOpen()
	}
	if s != Open && prev == Open {
		c.markDisconnected()
	}
	c.broadcastState(prev, s)
}

// OnStateChange registers fn to be called on every state transition.
// Used by SubscriptionMultiplexer to detect Disconnected→Open and
// replay the client's owned subscription set, per spec.md §4.5.
func (c *Client) OnStateChange(fn func(prev, next State)) {
	c.stateListenersMu.Lock()
	defer c.stateListenersMu.Unlock()
	c.stateListeners = append(c.stateListeners, fn)
}

func (c *Client) broadcastState(prev, next State) {
	c.stateListenersMu.Lock()
	listeners := append([]func(prev, next State){}, c.stateListeners...)
	c.stateListenersMu.Unlock()
	for _, fn := range listeners {
		fn(prev, next)
	}
}

func (c *Client) markOpen() {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	select {
	case <-c.waitCh:
	default:
		close(c.waitCh)
	}
}

func (c *Client) markDisconnected() {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	c.waitCh = make(chan struct{})
}

// WaitOnline blocks until the client reaches Open or ctx is canceled.
// Grounded on connection.WaitOnline's generation-snapshot loop: each
// iteration takes a fresh snapshot of the current wait channel so a
// wakeup on a stale (already-superseded) generation does not return
// prematurely.
func (c *Client) WaitOnline(ctx context.Context) error {
	if c.State() == Open {
		return nil
	}
	for {
		c.waitMu.RLock()
		ch := c.waitCh
		c.waitMu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			if c.State() == Open {
				return nil
			}
		}
	}
}

// OnDispatch registers fn to be called for every decoded Dispatch
// opcode. Not unregisterable; intended for long-lived subscribers wired
// up once at startup (app.handleDispatch, attached to every client the
// app constructs, pooled ones included).
func (c *Client) OnDispatch(fn func(DispatchEvent)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) broadcast(ev DispatchEvent) {
	c.listenersMu.Lock()
	listeners := append([]func(DispatchEvent){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// SendSubscribe sends a Subscribe frame for sub over the current
// connection. Returns ErrNotConnected if no connection is open.
func (c *Client) SendSubscribe(ctx context.Context, sub Subscription) error {
	return c.sendFrame(ctx, OpSubscribe, subscribePayload{Type: sub.Kind, Condition: sub.Condition})
}

// SendUnsubscribe sends an Unsubscribe frame for sub.
func (c *Client) SendUnsubscribe(ctx context.Context, sub Subscription) error {
	return c.sendFrame(ctx, OpUnsubscribe, subscribePayload{Type: sub.Kind, Condition: sub.Condition})
}

func (c *Client) sendFrame(ctx context.Context, op Opcode, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal frame payload")
	}
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteFrame(ctx, Frame{Op: op, D: data})
}

// Stop requests the client to close cleanly and stop reconnecting. Run
// returns once the in-flight connection (if any) has been closed.
func (c *Client) Stop() {
	c.setState(Closing)
	if c.cancel != nil {
		c.cancel()
	}
}

// Run drives the connect/reconnect loop until ctx is canceled or Stop is
// called. Blocking; callers typically run it in its own goroutine.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	for {
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return ctx.Err()
		}

		c.setState(Connecting)
		conn, err := c.connect(ctx, c.url)
		if err != nil {
			c.setState(Disconnected)
			wait := c.policy.NextBackOff()
			logger.Warnf("eventclient: connect failed, retrying in %s: %v", wait, err)
			if !c.sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		c.setState(Open)
		c.policy.Reset()

		reason := c.serveConn(ctx, conn)

		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()

		switch reason {
		case reasonStop:
			c.setState(Disconnected)
			return nil
		case reasonReconnectOpcode:
			// Server-directed reopen: falloff is not incremented.
			c.setState(Disconnected)
			continue
		case reasonEndOfStream:
			c.setState(Disconnected)
			c.policy.Reset()
			wait := c.policy.NextBackOff()
			if !c.sleep(ctx, wait) {
				return ctx.Err()
			}
		default:
			c.setState(Disconnected)
			wait := c.policy.NextBackOff()
			logger.Warnf("eventclient: connection lost, retrying in %s", wait)
			if !c.sleep(ctx, wait) {
				return ctx.Err()
			}
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// serveConn runs the read loop and heartbeat watchdog for one connection
// and returns why it ended.
func (c *Client) serveConn(ctx context.Context, conn wireConn) closeReason {
	c.lastFrameAt.Store(time.Now().UnixNano())

	stopWatchdog := make(chan struct{})
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		c.runHeartbeatWatchdog(ctx, conn, stopWatchdog)
	}()
	defer func() {
		close(stopWatchdog)
		<-watchdogDone
	}()

	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return reasonStop
			}
			return reasonError
		}
		c.lastFrameAt.Store(time.Now().UnixNano())

		switch frame.Op {
		case OpHello:
			var hello HelloPayload
			if err := json.Unmarshal(frame.D, &hello); err != nil {
				logger.Warnf("eventclient: malformed hello: %v", err)
				continue
			}
			if hello.HeartbeatIntervalMs > 0 {
				c.heartbeatInterval.Store(int64(time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond))
			}
		case OpHeartbeat, OpAck:
			// Liveness only; lastFrameAt already updated above.
		case OpDispatch:
			var ev DispatchEvent
			if err := json.Unmarshal(frame.D, &ev); err != nil {
				logger.Warnf("eventclient: malformed dispatch: %v", err)
				continue
			}
			c.broadcast(ev)
		case OpReconnect:
			return reasonReconnectOpcode
		case OpEndOfStream:
			return reasonEndOfStream
		case OpError:
			logger.Warnf("eventclient: server error frame: %s", string(frame.D))
		default:
			logger.Debugf("eventclient: unhandled opcode %d", frame.Op)
		}
	}
}

func (c *Client) runHeartbeatWatchdog(ctx context.Context, conn wireConn, stop <-chan struct{}) {
	interval := time.Duration(c.heartbeatInterval.Load())
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastFrameAt.Load())
			threshold := time.Duration(c.heartbeatInterval.Load()) * 3
			if time.Since(last) > threshold {
				logger.Warn("eventclient: missed heartbeat, closing connection")
				_ = conn.Close("missed heartbeat")
				return
			}
		}
	}
}

// realConn adapts *websocket.Conn to wireConn.
type realConn struct {
	conn *websocket.Conn
}

func (r *realConn) ReadFrame(ctx context.Context) (Frame, error) {
	var f Frame
	err := wsjson.Read(ctx, r.conn, &f)
	return f, err
}

func (r *realConn) WriteFrame(ctx context.Context, f Frame) error {
	return wsjson.Write(ctx, r.conn, f)
}

func (r *realConn) Close(reason string) error {
	return r.conn.Close(websocket.StatusNormalClosure, reason)
}

func defaultConnect(ctx context.Context, url string) (wireConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial event service")
	}
	return &realConn{conn: conn}, nil
}
