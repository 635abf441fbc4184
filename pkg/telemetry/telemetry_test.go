package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew_WithGlobalNoopMeter(t *testing.T) {
	m, err := New(func() int { return 3 })
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.InboundMessage("PlayerLeft")
		m.InboundDropped("malformed")
		m.BroadcastFrame("sent")
		m.ModelLoad("failed")
		m.Reconnect()
	})
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InboundMessage("ChatMessage")
		m.BroadcastFrame("skipped")
		m.Reconnect()
	})
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestNewWithMeter_RecordsMeasurements(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	entities := 4
	m, err := NewWithMeter(provider.Meter("test"), func() int { return entities })
	require.NoError(t, err)

	m.InboundMessage("PlayerLeft")
	m.InboundMessage("PlayerLeft")
	m.InboundDropped("malformed")
	m.Reconnect()

	data := collect(t, reader)

	inbound, ok := data["roadtrip.inbound.messages"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, inbound.DataPoints, 1)
	assert.Equal(t, int64(2), inbound.DataPoints[0].Value)
	typ, ok := inbound.DataPoints[0].Attributes.Value(attribute.Key("type"))
	require.True(t, ok)
	assert.Equal(t, "PlayerLeft", typ.AsString())

	reconnects, ok := data["roadtrip.transport.reconnects"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), reconnects.DataPoints[0].Value)

	gauge, ok := data["roadtrip.remote.entities"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}

func TestCountSource_ObservedBeforeAndAfterSet(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var source CountSource
	_, err := NewWithMeter(provider.Meter("test"), source.Value)
	require.NoError(t, err)

	gauge := func() int64 {
		data, ok := collect(t, reader)["roadtrip.remote.entities"].(metricdata.Gauge[int64])
		require.True(t, ok)
		require.Len(t, data.DataPoints, 1)
		return data.DataPoints[0].Value
	}
	assert.Equal(t, int64(0), gauge())

	source.Set(func() int { return 7 })
	assert.Equal(t, int64(7), gauge())
}

func TestCountSource_ConcurrentSetAndValue(t *testing.T) {
	var source CountSource
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			source.Set(func() int { return 1 })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			v := source.Value()
			assert.True(t, v == 0 || v == 1)
		}
	}()
	wg.Wait()
	assert.Equal(t, 1, source.Value())
}
