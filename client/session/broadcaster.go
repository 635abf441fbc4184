package session

import (
	"context"
	"sync"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/cbodonnell/roadtrip/pkg/telemetry"
)

const DefaultBroadcastInterval = 200 * time.Millisecond

// LocalPlayerSource provides the local player's current state. ok is false
// while there is nothing to send yet.
type LocalPlayerSource interface {
	Snapshot() (frame messages.OutboundFrame, ok bool)
}

// Sender is the fire-and-forget half of the transport.
type Sender interface {
	Send(ctx context.Context, msgType messages.MessageType, payload interface{}) error
}

type NewOutboundStateBroadcasterOptions struct {
	Interval time.Duration
	Source   LocalPlayerSource
	Sender   Sender
	Tracker  *ConnectionStateTracker
	Metrics  *telemetry.Metrics
}

// OutboundStateBroadcaster pushes the local player's state on a fixed period
// while connected. Frames are latest-wins: a failed send is not retried.
type OutboundStateBroadcaster struct {
	interval time.Duration
	source   LocalPlayerSource
	sender   Sender
	tracker  *ConnectionStateTracker
	metrics  *telemetry.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewOutboundStateBroadcaster(opts NewOutboundStateBroadcasterOptions) *OutboundStateBroadcaster {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &OutboundStateBroadcaster{
		interval: interval,
		source:   opts.Source,
		sender:   opts.Sender,
		tracker:  opts.Tracker,
		metrics:  opts.Metrics,
	}
}

// Start begins broadcasting until Stop is called or ctx is done.
func (b *OutboundStateBroadcaster) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		log.Warn("Broadcaster already started")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(ctx, b.done)
}

// Stop cancels the timer and waits for an in-flight tick. Safe to call when stopped.
func (b *OutboundStateBroadcaster) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *OutboundStateBroadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *OutboundStateBroadcaster) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick sends one frame if connected. It reports whether a send was attempted.
func (b *OutboundStateBroadcaster) tick(ctx context.Context) bool {
	if !b.tracker.Connected() {
		b.metrics.BroadcastFrame("skipped")
		return false
	}
	frame, ok := b.source.Snapshot()
	if !ok {
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.interval)
	defer cancel()
	if err := b.sender.Send(sendCtx, messages.MessageTypeUpdatePosition, frame); err != nil {
		log.Debug("Failed to broadcast position: %v", err)
		b.metrics.BroadcastFrame("failed")
		return true
	}
	b.metrics.BroadcastFrame("sent")
	return true
}
