package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/events"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/cbodonnell/roadtrip/pkg/queue"
	"github.com/cbodonnell/roadtrip/pkg/telemetry"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultInvokeTimeout         = 10 * time.Second
	DefaultReconnectInitialDelay = time.Second
	DefaultReconnectMaxDelay     = 30 * time.Second
	DefaultReadLimit             = 1 << 20

	reconnectJitter = 0.2
)

type NewTransportSessionOptions struct {
	URL        string
	PlayerID   string
	PlayerName string
	Token      string
	// ClientInstanceID identifies this process to the server. Generated when empty.
	ClientInstanceID string

	DialTimeout           time.Duration
	InvokeTimeout         time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	// MaxReconnectAttempts of 0 retries until the transport is closed.
	MaxReconnectAttempts int
	ReadLimit            int64

	// Inbound receives every decoded push message in arrival order.
	Inbound queue.Queue[*messages.Message]
	Metrics *telemetry.Metrics
}

type invocationResult struct {
	completion *messages.Completion
	err        error
}

// TransportSession owns one auto-reconnecting websocket to the session server.
type TransportSession struct {
	opts      NewTransportSessionOptions
	lifecycle events.Topic[LifecycleEvent]
	rtt       rttTracker

	running atomic.Bool
	closed  atomic.Bool
	// connections counts successful dials
	connections atomic.Uint64

	connMu sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	pendingMu sync.Mutex
	pending   map[string]chan invocationResult
}

func NewTransportSession(opts NewTransportSessionOptions) (*TransportSession, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("transport url is required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("invalid transport url %q: %w", opts.URL, err)
	}
	if opts.Inbound == nil {
		return nil, fmt.Errorf("inbound queue is required")
	}
	if opts.ClientInstanceID == "" {
		opts.ClientInstanceID = uuid.NewString()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = DefaultInvokeTimeout
	}
	if opts.ReconnectInitialDelay <= 0 {
		opts.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}

	return &TransportSession{
		opts:    opts,
		pending: make(map[string]chan invocationResult),
	}, nil
}

// Lifecycle publishes connection lifecycle signals on the goroutine running Run.
func (t *TransportSession) Lifecycle() *events.Topic[LifecycleEvent] {
	return &t.lifecycle
}

func (t *TransportSession) ClientInstanceID() string {
	return t.opts.ClientInstanceID
}

// Connected reports whether a connection is currently open.
func (t *TransportSession) Connected() bool {
	return t.currentConn() != nil
}

// Latency is the smoothed invocation round trip time.
func (t *TransportSession) Latency() time.Duration {
	return t.rtt.Latency()
}

func (t *TransportSession) dialURL() string {
	u, _ := url.Parse(t.opts.URL)
	q := u.Query()
	q.Set("playerId", t.opts.PlayerID)
	if t.opts.PlayerName != "" {
		q.Set("name", t.opts.PlayerName)
	}
	if t.opts.Token != "" {
		q.Set("token", t.opts.Token)
	}
	q.Set("clientInstanceId", t.opts.ClientInstanceID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Run connects and keeps the connection alive until ctx is done, Close is
// called or the reconnect budget is exhausted. Closed is always the last
// lifecycle signal.
func (t *TransportSession) Run(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("transport is already running")
	}
	defer t.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.connMu.Lock()
	t.cancel = cancel
	t.connMu.Unlock()
	if t.closed.Load() {
		cancel()
	}

	defer t.lifecycle.Publish(LifecycleClosed)

	t.lifecycle.Publish(LifecycleConnecting)
	log.Info("Connecting to %s", t.opts.URL)
	conn, err := t.dial(ctx)
	everConnected := err == nil
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("Initial connection failed: %v", err)
	} else {
		t.lifecycle.Publish(LifecycleConnected)
		log.Info("Connected to %s", t.opts.URL)
	}

	for {
		if conn != nil {
			err = t.readLoop(ctx, conn, t.connections.Load())
			t.dropConn(conn)
			if ctx.Err() != nil {
				log.Debug("Connection ended: %v", err)
				return nil
			}
			log.Warn("Connection lost: %v", err)
		}

		conn, err = t.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if everConnected {
			t.lifecycle.Publish(LifecycleReconnected)
			log.Info("Reconnected to %s", t.opts.URL)
		} else {
			everConnected = true
			t.lifecycle.Publish(LifecycleConnected)
			log.Info("Connected to %s", t.opts.URL)
		}
	}
}

// Close stops Run and closes the open connection. It is safe to call more than once.
func (t *TransportSession) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.connMu.RLock()
	cancel := t.cancel
	t.connMu.RUnlock()
	if cancel != nil {
		cancel()
	}
	t.failPending(ErrTransportClosed)
	return nil
}

func (t *TransportSession) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.opts.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.dialURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.opts.URL, err)
	}
	conn.SetReadLimit(t.opts.ReadLimit)
	t.rtt.Reset()
	t.connections.Add(1)

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	return conn, nil
}

func (t *TransportSession) reconnect(ctx context.Context) (*websocket.Conn, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     t.opts.ReconnectInitialDelay,
		RandomizationFactor: reconnectJitter,
		Multiplier:          2,
		MaxInterval:         t.opts.ReconnectMaxDelay,
	}
	b.Reset()

	for attempt := 1; ; attempt++ {
		if t.opts.MaxReconnectAttempts > 0 && attempt > t.opts.MaxReconnectAttempts {
			return nil, fmt.Errorf("giving up after %d reconnect attempts", t.opts.MaxReconnectAttempts)
		}

		delay := b.NextBackOff()
		t.lifecycle.Publish(LifecycleReconnecting)
		t.opts.Metrics.Reconnect()
		log.Debug("Reconnect attempt %d in %s", attempt, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		conn, err := t.dial(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Reconnect attempt %d failed: %v", attempt, err)
	}
}

// readLoop stamps every message with the connection it arrived on.
func (t *TransportSession) readLoop(ctx context.Context, conn *websocket.Conn, connection uint64) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &ErrConnectionClosedByClient{}
			}
			if status := websocket.CloseStatus(err); status != -1 {
				return &ErrConnectionClosedByServer{Code: int(status), Reason: closeReason(err)}
			}
			return err
		}

		msg, err := messages.DeserializeMessage(data)
		if err != nil {
			log.Warn("Dropping malformed message: %v", err)
			t.opts.Metrics.InboundDropped("malformed")
			continue
		}
		msg.Connection = connection
		log.Trace("Received message of type %s", msg.Type)

		if msg.Type == messages.MessageTypeCompletion {
			t.complete(msg)
			continue
		}
		if err := t.opts.Inbound.Enqueue(msg); err != nil {
			log.Warn("Dropping %s message: %v", msg.Type, err)
			t.opts.Metrics.InboundDropped("queue_full")
		}
	}
}

func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

func (t *TransportSession) dropConn(conn *websocket.Conn) {
	t.connMu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.connMu.Unlock()

	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		log.Trace("Error closing connection: %v", err)
	}
	t.failPending(ErrConnectionLost)
}

func (t *TransportSession) currentConn() *websocket.Conn {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn
}

// Send writes a fire-and-forget message.
func (t *TransportSession) Send(ctx context.Context, msgType messages.MessageType, payload interface{}) error {
	msg, err := messages.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return t.write(ctx, msg)
}

// Invoke calls a server method and waits for its completion. A nil reply
// discards the result.
func (t *TransportSession) Invoke(ctx context.Context, method messages.MessageType, args interface{}, reply interface{}) error {
	msg, err := messages.NewMessage(method, args)
	if err != nil {
		return err
	}
	msg.InvocationID = uuid.NewString()

	results := make(chan invocationResult, 1)
	t.pendingMu.Lock()
	t.pending[msg.InvocationID] = results
	t.pendingMu.Unlock()
	defer t.removePending(msg.InvocationID)

	ctx, cancel := context.WithTimeout(ctx, t.opts.InvokeTimeout)
	defer cancel()

	start := time.Now()
	if err := t.write(ctx, msg); err != nil {
		return err
	}

	select {
	case res := <-results:
		if res.err != nil {
			return fmt.Errorf("invocation %s: %w", method, res.err)
		}
		t.rtt.Add(time.Since(start))
		if res.completion.Error != "" {
			return &InvocationError{Method: string(method), Message: res.completion.Error}
		}
		if reply != nil && len(res.completion.Result) > 0 {
			if err := json.Unmarshal(res.completion.Result, reply); err != nil {
				return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrInvocationTimeout, method)
		}
		return ctx.Err()
	}
}

func (t *TransportSession) write(ctx context.Context, msg *messages.Message) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	conn := t.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	msg.Timestamp = time.Now().UnixMilli()
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}
	return nil
}

func (t *TransportSession) complete(msg *messages.Message) {
	t.pendingMu.Lock()
	results, ok := t.pending[msg.InvocationID]
	delete(t.pending, msg.InvocationID)
	t.pendingMu.Unlock()
	if !ok {
		log.Debug("Completion for unknown invocation %q", msg.InvocationID)
		return
	}

	completion := &messages.Completion{}
	if len(msg.Payload) > 0 {
		if err := msg.DecodePayload(completion); err != nil {
			results <- invocationResult{err: err}
			return
		}
	}
	results <- invocationResult{completion: completion}
}

func (t *TransportSession) removePending(id string) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	delete(t.pending, id)
}

func (t *TransportSession) failPending(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, results := range t.pending {
		results <- invocationResult{err: err}
		delete(t.pending, id)
	}
}
