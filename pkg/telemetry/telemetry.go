package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/cbodonnell/roadtrip"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics groups the client's instruments.
// Uses the global OTel meter, which is a no-op unless the embedder installs a provider.
type Metrics struct {
	inboundMessages metric.Int64Counter
	inboundDropped  metric.Int64Counter
	broadcastFrames metric.Int64Counter
	modelLoads      metric.Int64Counter
	reconnects      metric.Int64Counter
	remoteEntities  metric.Int64ObservableGauge
}

// New creates the instruments on the global meter. entityCount is observed
// for the remote entity gauge; it may be nil.
func New(entityCount func() int) (*Metrics, error) {
	return NewWithMeter(meter(), entityCount)
}

func NewWithMeter(m metric.Meter, entityCount func() int) (*Metrics, error) {
	metrics := &Metrics{}

	var err error
	metrics.inboundMessages, err = m.Int64Counter(
		"roadtrip.inbound.messages",
		metric.WithDescription("Inbound server messages dispatched"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inbound messages counter: %w", err)
	}

	metrics.inboundDropped, err = m.Int64Counter(
		"roadtrip.inbound.dropped",
		metric.WithDescription("Inbound messages or entries dropped"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inbound dropped counter: %w", err)
	}

	metrics.broadcastFrames, err = m.Int64Counter(
		"roadtrip.broadcast.frames",
		metric.WithDescription("Outbound position frames by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating broadcast frames counter: %w", err)
	}

	metrics.modelLoads, err = m.Int64Counter(
		"roadtrip.model.loads",
		metric.WithDescription("Remote model loads by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating model loads counter: %w", err)
	}

	metrics.reconnects, err = m.Int64Counter(
		"roadtrip.transport.reconnects",
		metric.WithDescription("Transport reconnect attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reconnects counter: %w", err)
	}

	metrics.remoteEntities, err = m.Int64ObservableGauge(
		"roadtrip.remote.entities",
		metric.WithDescription("Remote entities currently tracked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating remote entities gauge: %w", err)
	}

	if entityCount != nil {
		_, err = m.RegisterCallback(
			func(ctx context.Context, o metric.Observer) error {
				o.ObserveInt64(metrics.remoteEntities, int64(entityCount()))
				return nil
			},
			metrics.remoteEntities,
		)
		if err != nil {
			return nil, fmt.Errorf("registering remote entities callback: %w", err)
		}
	}

	return metrics, nil
}

// CountSource lets a gauge be registered before the value it observes exists.
// It reads 0 until Set is called. Safe for concurrent use.
type CountSource struct {
	fn atomic.Pointer[func() int]
}

func (c *CountSource) Set(fn func() int) {
	c.fn.Store(&fn)
}

func (c *CountSource) Value() int {
	fn := c.fn.Load()
	if fn == nil || *fn == nil {
		return 0
	}
	return (*fn)()
}

func (m *Metrics) InboundMessage(messageType string) {
	if m == nil {
		return
	}
	m.inboundMessages.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", messageType)))
}

func (m *Metrics) InboundDropped(reason string) {
	if m == nil {
		return
	}
	m.inboundDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) BroadcastFrame(result string) {
	if m == nil {
		return
	}
	m.broadcastFrames.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) ModelLoad(result string) {
	if m == nil {
		return
	}
	m.modelLoads.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Add(context.Background(), 1)
}
