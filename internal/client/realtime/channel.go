package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultHeartbeatInterval = 25 * time.Second

var (
	// ErrNoCredential: a channel is never opened without a token.
	ErrNoCredential = errors.New("no credential for realtime channel")

	// ErrNotConnected: Send requires an open connection; nothing is
	// queued or buffered.
	ErrNotConnected = errors.New("realtime channel not connected")
)

// State of the channel. A closed channel is terminal unless the
// reconnect option is enabled.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Handler receives every inbound frame that is valid JSON and not a
// heartbeat control frame.
type Handler func(payload json.RawMessage)

type controlFrame struct {
	Type string `json:"type"`
}

// Channel owns one WebSocket connection for the lifetime of a
// credential: dial, heartbeat, inbound dispatch, teardown.
type Channel struct {
	endpoint  string
	token     string
	heartbeat time.Duration
	reconnect bool
	maxRetry  uint64
	log       *zap.SugaredLogger
	dialer    *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	handler Handler
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

type Option func(*Channel)

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Channel) { c.heartbeat = d }
}

// WithReconnect enables bounded exponential-backoff redialing after
// an abnormal closure. Off by default: the owner reconnects by
// building a new channel with a fresh credential.
func WithReconnect(maxRetries uint64) Option {
	return func(c *Channel) {
		c.reconnect = true
		c.maxRetry = maxRetries
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Channel) { c.log = log }
}

func New(endpoint, token string, opts ...Option) *Channel {
	c := &Channel{
		endpoint:  endpoint,
		token:     token,
		heartbeat: DefaultHeartbeatInterval,
		log:       zap.NewNop().Sugar(),
		dialer:    websocket.DefaultDialer,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHandler installs the inbound callback. May be swapped at any
// time without touching the connection.
func (c *Channel) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint with the token in the query string and
// starts the read loop and heartbeat.
func (c *Channel) Connect(ctx context.Context) error {
	if c.token == "" {
		return ErrNoCredential
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.heartbeatLoop()
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint+"?token="+url.QueryEscape(c.token), nil)
	if err != nil {
		c.log.Errorw("realtime dial failed", "endpoint", c.endpoint, "err", err)
		return nil, err
	}
	return conn, nil
}

// Send writes v as JSON. Returns ErrNotConnected when the channel is
// not open so the caller can surface the dropped message.
func (c *Channel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

func (c *Channel) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateOpen && c.conn != nil {
				if err := c.conn.WriteJSON(controlFrame{Type: "ping"}); err != nil {
					c.log.Debugw("heartbeat write failed", "err", err)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			next, ok := c.handleDisconnect()
			if !ok {
				return
			}
			conn = next
			continue
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		// Non-JSON frames are expected noise (plain-text acks).
		return
	}
	if frame.Type == "ping" || frame.Type == "pong" {
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(json.RawMessage(data))
	}
}

// handleDisconnect decides what a broken connection means: terminal
// closure, or a redial when reconnect is enabled. Returns the new
// connection when one was established.
func (c *Channel) handleDisconnect() (*websocket.Conn, bool) {
	c.mu.Lock()
	c.conn = nil
	if c.closed || !c.reconnect {
		c.state = StateClosed
		c.mu.Unlock()
		return nil, false
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.log.Infow("realtime connection lost, reconnecting")

	var conn *websocket.Conn
	operation := func() error {
		if c.isClosed() {
			return backoff.Permanent(ErrNotConnected)
		}
		next, err := c.dial(context.Background())
		if err != nil {
			return err
		}
		conn = next
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetry)
	if err := backoff.Retry(operation, bo); err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		c.log.Errorw("realtime reconnect gave up", "err", err)
		return nil, false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, false
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	return conn, true
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears the channel down: heartbeat stopped, connection closed,
// read loop drained. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosed
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}
