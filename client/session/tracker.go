package session

import (
	"sync"
	"time"

	"github.com/cbodonnell/roadtrip/client/network"
	"github.com/cbodonnell/roadtrip/pkg/events"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ConnectionState struct {
	Status            Status    `json:"status"`
	LastOnline        time.Time `json:"lastOnline"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}

// ConnectionStateChange is published for every lifecycle signal, in signal order.
type ConnectionStateChange struct {
	Event    network.LifecycleEvent
	Previous ConnectionState
	Current  ConnectionState
}

// ConnectionStateTracker mirrors transport lifecycle signals into a public
// connection state. It never initiates retries.
type ConnectionStateTracker struct {
	changes *events.Topic[ConnectionStateChange]
	now     func() time.Time

	// emitMu keeps notifications in signal order
	emitMu sync.Mutex
	mu     sync.RWMutex
	state  ConnectionState
}

func NewConnectionStateTracker(changes *events.Topic[ConnectionStateChange], now func() time.Time) *ConnectionStateTracker {
	if changes == nil {
		changes = &events.Topic[ConnectionStateChange]{}
	}
	if now == nil {
		now = time.Now
	}
	return &ConnectionStateTracker{changes: changes, now: now}
}

func (t *ConnectionStateTracker) State() ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *ConnectionStateTracker) Connected() bool {
	return t.State().Status == StatusConnected
}

func (t *ConnectionStateTracker) Changes() *events.Topic[ConnectionStateChange] {
	return t.changes
}

// Handle applies a lifecycle signal and notifies subscribers.
func (t *ConnectionStateTracker) Handle(event network.LifecycleEvent) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	previous := t.state
	next := previous
	switch event {
	case network.LifecycleClosed:
		next.Status = StatusDisconnected
	case network.LifecycleReconnecting:
		next.Status = StatusConnecting
		next.ReconnectAttempts++
	case network.LifecycleConnected, network.LifecycleReconnected:
		next.Status = StatusConnected
		next.ReconnectAttempts = 0
		next.LastOnline = t.now()
	case network.LifecycleConnecting:
		next.Status = StatusConnecting
	}
	t.state = next
	t.mu.Unlock()

	t.changes.Publish(ConnectionStateChange{Event: event, Previous: previous, Current: next})
}
