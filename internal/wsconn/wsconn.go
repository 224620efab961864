// Package wsconn is the shared WebSocket transport under every venue feed.
// It owns the dial/read/redial cycle so the per-venue feeds only deal with
// decoded frames: reconnects back off geometrically between ReconnectMin and
// ReconnectMax, a connection counts as established only once the first
// inbound frame arrives, and an optional stale timer tears down a socket
// that has gone silent.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/predikt/arb-agent/internal/wsconn"
	meterName  = "github.com/predikt/arb-agent/internal/wsconn"

	defaultBackoffGrowth = 1.7
)

// State is the coarse connection state surfaced to feeds and watchdogs.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("wsconn: client closed")

// Config tunes one venue connection.
type Config struct {
	URL     string
	Name    string      // venue label for metrics/traces
	Headers http.Header // extra handshake headers (venue API keys)

	ReconnectMin  time.Duration // first retry delay
	ReconnectMax  time.Duration // delay ceiling
	BackoffGrowth float64       // per-attempt multiplier, 0 means 1.7

	StaleTimeout   time.Duration // abort a silent socket after this; 0 disables
	PingInterval   time.Duration // 0 disables the keepalive ping loop
	WriteTimeout   time.Duration
	MaxMessageSize int64 // read limit in bytes; 0 keeps the library default
}

// DefaultConfig returns the settings the venue feeds start from.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		ReconnectMin:   time.Second,
		ReconnectMax:   30 * time.Second,
		BackoffGrowth:  defaultBackoffGrowth,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 10 << 20,
	}
}

// MessageHandler receives each inbound text/binary frame in arrival order.
type MessageHandler func(ctx context.Context, msg []byte)

// StateChangeHandler observes state transitions. err is non-nil for
// transitions caused by a failure.
type StateChangeHandler func(state State, err error)

type instruments struct {
	connectionUp metric.Int64Gauge
	messagesIn   metric.Int64Counter
	messagesOut  metric.Int64Counter
	reconnects   metric.Int64Counter
	staleAborts  metric.Int64Counter
}

// Client maintains one persistent, self-healing WebSocket connection.
// A single goroutine (the session loop started by ConnectWithRetry) owns
// dialing, reading, and redialing; everything else only inspects state.
type Client struct {
	cfg Config

	connMu sync.RWMutex
	conn   *websocket.Conn

	stateMu sync.RWMutex
	state   State

	handlersMu    sync.RWMutex
	onMessage     MessageHandler
	onStateChange StateChangeHandler

	lastMessageNs atomic.Int64  // UnixNano of most recent inbound frame
	messageCount  atomic.Uint64 // total inbound frames across all connections
	connFrames    atomic.Uint64 // inbound frames on the current connection

	closed atomic.Bool
	done   chan struct{}

	tracer trace.Tracer
	inst   instruments
}

// New builds a Client. The connection is not dialed until ConnectWithRetry.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("wsconn: empty URL")
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.BackoffGrowth <= 1 {
		cfg.BackoffGrowth = defaultBackoffGrowth
	}
	c := &Client{
		cfg:    cfg,
		state:  StateDisconnected,
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}
	if err := c.initInstruments(); err != nil {
		return nil, fmt.Errorf("wsconn: init instruments: %w", err)
	}
	return c, nil
}

func (c *Client) initInstruments() error {
	meter := otel.Meter(meterName)
	var err error
	if c.inst.connectionUp, err = meter.Int64Gauge("ws_connection_up",
		metric.WithDescription("1 while the venue socket is open, 0 otherwise")); err != nil {
		return err
	}
	if c.inst.messagesIn, err = meter.Int64Counter("ws_messages_in_total",
		metric.WithDescription("Inbound WebSocket frames"), metric.WithUnit("{message}")); err != nil {
		return err
	}
	if c.inst.messagesOut, err = meter.Int64Counter("ws_messages_out_total",
		metric.WithDescription("Outbound WebSocket frames"), metric.WithUnit("{message}")); err != nil {
		return err
	}
	if c.inst.reconnects, err = meter.Int64Counter("ws_reconnects_total",
		metric.WithDescription("Reconnect attempts"), metric.WithUnit("{attempt}")); err != nil {
		return err
	}
	if c.inst.staleAborts, err = meter.Int64Counter("ws_stale_aborts_total",
		metric.WithDescription("Sockets torn down by the stale timer"), metric.WithUnit("{socket}")); err != nil {
		return err
	}
	return nil
}

func (c *Client) attrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("ws.venue", c.cfg.Name))
}

// OnMessage registers the inbound frame handler. Must be set before
// ConnectWithRetry; frames arriving with no handler are discarded.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	c.onMessage = h
	c.handlersMu.Unlock()
}

// OnStateChange registers the state transition observer.
func (c *Client) OnStateChange(h StateChangeHandler) {
	c.handlersMu.Lock()
	c.onStateChange = h
	c.handlersMu.Unlock()
}

// ConnectWithRetry runs the connection session: dial, read until the socket
// fails, back off, redial. It returns only when ctx is cancelled or Close
// is called, so callers run it in its own goroutine.
//
// The retry delay grows by BackoffGrowth per attempt from ReconnectMin up
// to ReconnectMax, with up to 25% jitter. It resets to ReconnectMin only
// after a connection proves itself by delivering at least one frame;
// a dial that succeeds but goes silent keeps escalating.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	delay := c.cfg.ReconnectMin
	attempt := 0

	for {
		if c.closed.Load() {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected, ctx.Err())
			return ctx.Err()
		default:
		}

		if attempt == 0 {
			c.setState(StateConnecting, nil)
		} else {
			c.setState(StateReconnecting, nil)
			c.inst.reconnects.Add(ctx, 1, c.attrs())
		}

		err := c.runSession(ctx)
		if c.closed.Load() {
			return ErrClosed
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected, ctx.Err())
			return ctx.Err()
		}

		if c.connFrames.Load() > 0 {
			// The last connection was established, so start the
			// backoff schedule over.
			delay = c.cfg.ReconnectMin
			attempt = 1
		} else {
			attempt++
			delay = c.nextDelay(delay)
		}
		c.setState(StateDisconnected, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case <-time.After(withJitter(delay)):
		}
	}
}

// nextDelay advances the backoff schedule by one attempt.
func (c *Client) nextDelay(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * c.cfg.BackoffGrowth)
	if next > c.cfg.ReconnectMax {
		next = c.cfg.ReconnectMax
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// runSession dials once and reads until the socket dies.
func (c *Client) runSession(ctx context.Context) error {
	c.connFrames.Store(0)
	dialCtx, span := c.tracer.Start(ctx, "ws.dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ws.url", c.cfg.URL),
			attribute.String("ws.venue", c.cfg.Name),
		))
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
		HTTPHeader:      c.cfg.Headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		span.End()
		return fmt.Errorf("wsconn: dial %s: %w", c.cfg.Name, err)
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.inst.connectionUp.Record(ctx, 1, c.attrs())
	c.setState(StateConnected, nil)

	pingDone := make(chan struct{})
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(ctx, conn, pingDone)
	} else {
		close(pingDone)
	}

	readErr := c.readUntilError(ctx, conn)

	c.connMu.Lock()
	c.conn = nil
	c.connMu.Unlock()
	conn.Close(websocket.StatusGoingAway, "session over")
	<-pingDone
	c.inst.connectionUp.Record(context.Background(), 0, c.attrs())
	return readErr
}

// readUntilError applies frames in arrival order until the socket fails or
// the stale timer fires.
func (c *Client) readUntilError(ctx context.Context, conn *websocket.Conn) error {
	for {
		if c.closed.Load() || ctx.Err() != nil {
			return ctx.Err()
		}

		readCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.StaleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.cfg.StaleTimeout)
		}
		msgType, data, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if c.cfg.StaleTimeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				c.inst.staleAborts.Add(ctx, 1, c.attrs())
				return fmt.Errorf("wsconn: %s silent for %s: %w", c.cfg.Name, c.cfg.StaleTimeout, err)
			}
			return err
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		c.lastMessageNs.Store(time.Now().UnixNano())
		c.messageCount.Add(1)
		c.connFrames.Add(1)
		c.inst.messagesIn.Add(ctx, 1, c.attrs())

		c.handlersMu.RLock()
		handler := c.onMessage
		c.handlersMu.RUnlock()
		if handler != nil {
			handler(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// Force the read loop to notice.
				conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

// Send writes one text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return errors.New("wsconn: not connected")
	}

	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("wsconn: write %s: %w", c.cfg.Name, err)
	}
	c.inst.messagesOut.Add(ctx, 1, c.attrs())
	return nil
}

// SendJSON marshals v and writes it as one text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn: marshal: %w", err)
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// IsEstablished reports whether the current connection has delivered at
// least one frame. Reconnect backoff only resets once this is true.
func (c *Client) IsEstablished() bool {
	return c.IsConnected() && c.connFrames.Load() > 0
}

// LastMessageAt returns the arrival time of the most recent inbound frame,
// zero if none has arrived yet.
func (c *Client) LastMessageAt() time.Time {
	ns := c.lastMessageNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// MessageCount returns the total number of inbound frames across all
// connections of this client.
func (c *Client) MessageCount() uint64 {
	return c.messageCount.Load()
}

// Close tears the connection down for good. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) setState(s State, err error) {
	c.stateMu.Lock()
	prev := c.state
	if prev == StateClosed && s != StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = s
	c.stateMu.Unlock()
	if prev == s {
		return
	}

	c.handlersMu.RLock()
	h := c.onStateChange
	c.handlersMu.RUnlock()
	if h != nil {
		h(s, err)
	}
}
