package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cbodonnell/roadtrip/client/network"
	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/pkg/config"
	"github.com/cbodonnell/roadtrip/pkg/events"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/cbodonnell/roadtrip/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invocation struct {
	method messages.MessageType
	args   interface{}
}

// fakeTransport publishes Connected when Run starts and Closed when it returns.
type fakeTransport struct {
	lifecycle events.Topic[network.LifecycleEvent]
	sends     atomic.Int32
	// reply is JSON decoded into the invocation reply. A non-nil invokeErr wins.
	reply     string
	invokeErr error
	runErr    error

	mu          sync.Mutex
	invocations []invocation
}

func (f *fakeTransport) Send(ctx context.Context, msgType messages.MessageType, payload interface{}) error {
	f.sends.Add(1)
	return nil
}

func (f *fakeTransport) Invoke(ctx context.Context, method messages.MessageType, args interface{}, reply interface{}) error {
	f.mu.Lock()
	f.invocations = append(f.invocations, invocation{method: method, args: args})
	f.mu.Unlock()
	if f.invokeErr != nil {
		return f.invokeErr
	}
	return json.Unmarshal([]byte(f.reply), reply)
}

func (f *fakeTransport) Invocations() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.invocations...)
}

func (f *fakeTransport) Lifecycle() *events.Topic[network.LifecycleEvent] {
	return &f.lifecycle
}

func (f *fakeTransport) Latency() time.Duration {
	return 42 * time.Millisecond
}

func (f *fakeTransport) Run(ctx context.Context) error {
	defer f.lifecycle.Publish(network.LifecycleClosed)
	f.lifecycle.Publish(network.LifecycleConnecting)
	f.lifecycle.Publish(network.LifecycleConnected)
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

type sessionFixture struct {
	session   *Session
	transport *fakeTransport
	inbound   *queue.InMemoryQueue[*messages.Message]
	renderer  *render.TrackingRenderer
	system    *systemMessages
}

type systemMessages struct {
	mu    sync.Mutex
	lines []string
}

func (s *systemMessages) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *systemMessages) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func newSessionFixture(t *testing.T, transport *fakeTransport) *sessionFixture {
	t.Helper()
	if transport == nil {
		transport = &fakeTransport{}
	}
	cfg := &config.Config{
		Session: config.SessionConfig{
			FrameInterval:     5 * time.Millisecond,
			BroadcastInterval: 10 * time.Millisecond,
			SweepInterval:     time.Hour,
			InactiveTimeout:   time.Minute,
		},
	}
	inbound := queue.NewInMemoryQueue[*messages.Message](64)
	renderer := render.NewTrackingRenderer()
	s, err := NewSession(NewSessionOptions{
		LocalPlayerID: localID,
		Transport:     transport,
		Inbound:       inbound,
		LocalPlayer:   &staticSource{ok: true},
		Models:        testCatalog(t),
		Renderer:      renderer,
		Config:        cfg,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	system := &systemMessages{}
	s.Bus().ChatSystemMessage.Subscribe(system.add)
	return &sessionFixture{session: s, transport: transport, inbound: inbound, renderer: renderer, system: system}
}

func TestNewSession_RequiresDependencies(t *testing.T) {
	_, err := NewSession(NewSessionOptions{})
	assert.Error(t, err)

	_, err = NewSession(NewSessionOptions{
		LocalPlayerID: localID,
		Transport:     &fakeTransport{},
		Inbound:       queue.NewInMemoryQueue[*messages.Message](1),
		LocalPlayer:   &staticSource{},
	})
	assert.Error(t, err, "registry needs a model source and a renderer")
}

func TestSession_ConnectionSystemMessages(t *testing.T) {
	f := newSessionFixture(t, nil)
	lifecycle := f.transport.Lifecycle()

	lifecycle.Publish(network.LifecycleConnecting)
	lifecycle.Publish(network.LifecycleConnected)
	lifecycle.Publish(network.LifecycleReconnecting)
	lifecycle.Publish(network.LifecycleReconnecting)
	assert.Equal(t, 2, f.session.Tracker().State().ReconnectAttempts)
	lifecycle.Publish(network.LifecycleReconnected)
	lifecycle.Publish(network.LifecycleClosed)
	lifecycle.Publish(network.LifecycleClosed)

	assert.Equal(t, []string{
		SystemMessageConnectionLost,
		SystemMessageReconnected,
		SystemMessageOffline,
	}, f.system.Lines())
	assert.Equal(t, StatusDisconnected, f.session.Tracker().State().Status)
}

func TestSession_ReconnectAcceptsNewSnapshot(t *testing.T) {
	f := newSessionFixture(t, nil)
	lifecycle := f.transport.Lifecycle()

	lifecycle.Publish(network.LifecycleConnected)
	require.NoError(t, f.inbound.Enqueue(snapshotOn(t, 1, "p1", "p2")))
	f.session.Update()
	require.Equal(t, 2, f.session.Registry().Count())

	lifecycle.Publish(network.LifecycleReconnecting)
	lifecycle.Publish(network.LifecycleReconnected)
	require.NoError(t, f.inbound.Enqueue(snapshotOn(t, 1, "stale")))
	require.NoError(t, f.inbound.Enqueue(snapshotOn(t, 2, "p2")))
	f.session.Update()

	assert.Equal(t, 1, f.session.Registry().Count())
	_, ok := f.session.Registry().Get("p2")
	assert.True(t, ok)
	f.session.Registry().Clear()
}

func TestSession_RunProcessesInboundAndTearsDown(t *testing.T) {
	f := newSessionFixture(t, nil)

	var counts []int
	var countsMu sync.Mutex
	f.session.Bus().PlayerCountChanged.Subscribe(func(n int) {
		countsMu.Lock()
		defer countsMu.Unlock()
		counts = append(counts, n)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.session.Tracker().Connected() }, time.Second, time.Millisecond)
	require.NoError(t, f.inbound.Enqueue(mustMessage(t, messages.MessageTypeInitialState, snapshotOf("p1", "p2"))))

	assert.Eventually(t, func() bool { return f.session.Registry().Count() == 2 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return f.renderer.Live() == 2 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return f.transport.sends.Load() > 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.session.Run(ctx), ErrSessionRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}

	assert.Equal(t, 0, f.session.Registry().Count())
	assert.Equal(t, 0, f.renderer.Live())
	assert.Equal(t, StatusDisconnected, f.session.Tracker().State().Status)
	assert.Contains(t, f.system.Lines(), SystemMessageOffline)

	countsMu.Lock()
	defer countsMu.Unlock()
	assert.Equal(t, []int{2, 0}, counts)
}

func TestSession_TransportGivingUpKeepsSessionAlive(t *testing.T) {
	f := newSessionFixture(t, &fakeTransport{runErr: errors.New("giving up after 3 reconnect attempts")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return f.session.Tracker().State().Status == StatusDisconnected && len(f.system.Lines()) > 0
	}, time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("session stopped with the transport")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestSession_SendChatMessage(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		reply      string
		invokeErr  error
		want       bool
		wantInvoke bool
		wantSystem bool
	}{
		{name: "accepted", text: "  hello there ", reply: "true", want: true, wantInvoke: true},
		{name: "rejected", text: "hello", reply: "false", wantInvoke: true, wantSystem: true},
		{name: "blank", text: "   "},
		{name: "too long", text: strings.Repeat("é", MaxChatMessageLength+1), wantSystem: true},
		{name: "longest allowed", text: strings.Repeat("é", MaxChatMessageLength), reply: "true", want: true, wantInvoke: true},
		{name: "transport failure", text: "hello", invokeErr: network.ErrNotConnected, wantInvoke: true, wantSystem: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t, &fakeTransport{reply: tt.reply, invokeErr: tt.invokeErr})

			got := f.session.SendChatMessage(context.Background(), tt.text)

			assert.Equal(t, tt.want, got)
			invocations := f.transport.Invocations()
			if tt.wantInvoke {
				require.Len(t, invocations, 1)
				assert.Equal(t, messages.MessageTypeSendChatMessage, invocations[0].method)
				assert.Equal(t, messages.SendChatMessageRequest{Message: strings.TrimSpace(tt.text)}, invocations[0].args)
			} else {
				assert.Empty(t, invocations)
			}
			assert.Equal(t, tt.wantSystem, len(f.system.Lines()) > 0)
		})
	}
}

func TestSession_ChangePlayerName(t *testing.T) {
	tests := []struct {
		name       string
		newName    string
		reply      string
		want       bool
		wantInvoke bool
	}{
		{name: "valid", newName: "Road Runner 2", reply: "true", want: true, wantInvoke: true},
		{name: "rejected by server", newName: "Ada", reply: "false", wantInvoke: true},
		{name: "empty", newName: ""},
		{name: "too long", newName: "abcdefghijklmnopq"},
		{name: "special characters", newName: "Ada!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t, &fakeTransport{reply: tt.reply})

			got := f.session.ChangePlayerName(context.Background(), tt.newName)

			assert.Equal(t, tt.want, got)
			invocations := f.transport.Invocations()
			if !tt.wantInvoke {
				assert.Empty(t, invocations)
				assert.NotEmpty(t, f.system.Lines())
				return
			}
			require.Len(t, invocations, 1)
			assert.Equal(t, messages.ChangePlayerNameRequest{NewName: tt.newName}, invocations[0].args)
			assert.Equal(t, !tt.want, len(f.system.Lines()) > 0)
		})
	}
}

func TestSession_AddRaceResult(t *testing.T) {
	t.Run("personal best", func(t *testing.T) {
		f := newSessionFixture(t, &fakeTransport{reply: `{"success":true,"isPersonalBest":true,"rank":3}`})

		response, ok := f.session.AddRaceResult(context.Background(), "coast", "Coast Road", 61500)

		require.True(t, ok)
		assert.True(t, response.IsPersonalBest)
		assert.Equal(t, 3, response.Rank)
		require.Len(t, f.transport.Invocations(), 1)
		assert.Equal(t, messages.AddRaceResultRequest{TrackID: "coast", TrackName: "Coast Road", Time: 61500}, f.transport.Invocations()[0].args)
		assert.Empty(t, f.system.Lines())
	})

	t.Run("server refuses", func(t *testing.T) {
		f := newSessionFixture(t, &fakeTransport{reply: `{"success":false,"message":"Time too fast"}`})

		_, ok := f.session.AddRaceResult(context.Background(), "coast", "Coast Road", 10)

		assert.False(t, ok)
		assert.Equal(t, []string{"Time too fast"}, f.system.Lines())
	})

	t.Run("timeout", func(t *testing.T) {
		f := newSessionFixture(t, &fakeTransport{invokeErr: network.ErrInvocationTimeout})

		_, ok := f.session.AddRaceResult(context.Background(), "coast", "Coast Road", 61500)

		assert.False(t, ok)
		assert.Len(t, f.system.Lines(), 1)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newSessionFixture(t, nil)

		_, ok := f.session.AddRaceResult(context.Background(), "", "Coast Road", 61500)
		assert.False(t, ok)
		_, ok = f.session.AddRaceResult(context.Background(), "coast", "Coast Road", 0)
		assert.False(t, ok)
		assert.Empty(t, f.transport.Invocations())
	})
}

func TestSession_Latency(t *testing.T) {
	f := newSessionFixture(t, nil)
	assert.Equal(t, 42*time.Millisecond, f.session.Latency())
}

func TestSession_NextSweepDelayIsJittered(t *testing.T) {
	f := newSessionFixture(t, nil)
	f.session.sweepInterval = 30 * time.Second
	f.session.sweepJitter = 0.1

	for i := 0; i < 100; i++ {
		d := f.session.nextSweepDelay()
		assert.GreaterOrEqual(t, d, 27*time.Second)
		assert.LessOrEqual(t, d, 33*time.Second)
	}

	f.session.sweepJitter = 0
	assert.Equal(t, 30*time.Second, f.session.nextSweepDelay())
}
