package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cbodonnell/roadtrip/client/network"
	"github.com/cbodonnell/roadtrip/client/remote"
	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/pkg/config"
	"github.com/cbodonnell/roadtrip/pkg/events"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/cbodonnell/roadtrip/pkg/queue"
	"github.com/cbodonnell/roadtrip/pkg/telemetry"
)

const (
	MaxChatMessageLength = 200
	MaxPlayerNameLength  = 16

	DefaultFrameInterval   = 50 * time.Millisecond
	DefaultSweepInterval   = 30 * time.Second
	DefaultInactiveTimeout = 50 * time.Second

	SystemMessageConnectionLost = "Connection lost. Reconnecting…"
	SystemMessageReconnected    = "Reconnected."
	SystemMessageOffline        = "You are offline."
)

var (
	ErrSessionRunning = errors.New("session is already running")

	playerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)
)

// Transport is the part of network.TransportSession the session drives.
type Transport interface {
	Sender
	Invoke(ctx context.Context, method messages.MessageType, args interface{}, reply interface{}) error
	Lifecycle() *events.Topic[network.LifecycleEvent]
	Latency() time.Duration
	Run(ctx context.Context) error
}

type NewSessionOptions struct {
	LocalPlayerID string
	Transport     Transport
	// Inbound must be the queue the transport enqueues pushes into.
	Inbound     queue.Queue[*messages.Message]
	LocalPlayer LocalPlayerSource
	Models      remote.ModelSource
	Renderer    render.Renderer
	Config      *config.Config
	Metrics     *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is the per-connection context object. It owns the tracker, registry,
// dispatcher and broadcaster and runs the single logical thread that mutates
// the registry.
type Session struct {
	localPlayerID   string
	transport       Transport
	inbound         queue.Queue[*messages.Message]
	bus             *Bus
	tracker         *ConnectionStateTracker
	registry        *remote.Registry
	dispatcher      *InboundUpdateDispatcher
	broadcaster     *OutboundStateBroadcaster
	frameInterval   time.Duration
	sweepInterval   time.Duration
	sweepJitter     float64
	inactiveTimeout time.Duration

	running     atomic.Bool
	unsubscribe []func()
}

func NewSession(opts NewSessionOptions) (*Session, error) {
	if opts.LocalPlayerID == "" {
		return nil, fmt.Errorf("local player id is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Inbound == nil {
		return nil, fmt.Errorf("inbound queue is required")
	}
	if opts.LocalPlayer == nil {
		return nil, fmt.Errorf("local player source is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	s := &Session{
		localPlayerID:   opts.LocalPlayerID,
		transport:       opts.Transport,
		inbound:         opts.Inbound,
		bus:             &Bus{},
		frameInterval:   durationOr(cfg.Session.FrameInterval, DefaultFrameInterval),
		sweepInterval:   durationOr(cfg.Session.SweepInterval, DefaultSweepInterval),
		sweepJitter:     cfg.Session.SweepJitter,
		inactiveTimeout: durationOr(cfg.Session.InactiveTimeout, DefaultInactiveTimeout),
	}

	s.tracker = NewConnectionStateTracker(&s.bus.ConnectionStateChanged, opts.Now)

	registry, err := remote.NewRegistry(remote.NewRegistryOptions{
		LocalPlayerID: opts.LocalPlayerID,
		Models:        opts.Models,
		Renderer:      opts.Renderer,
		Retry: remote.RetryPolicy{
			MaxAttempts: cfg.Models.MaxAttempts,
			BaseDelay:   cfg.Models.InitialDelay,
			Multiplier:  cfg.Models.Multiplier,
			MaxDelay:    cfg.Models.MaxDelay,
		},
		DefaultModel:   cfg.Models.DefaultModel,
		Compact:        cfg.Display.Compact,
		Metrics:        opts.Metrics,
		Now:            opts.Now,
		OnCountChanged: s.bus.PlayerCountChanged.Publish,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create remote player registry: %w", err)
	}
	s.registry = registry

	s.dispatcher = NewInboundUpdateDispatcher(NewInboundUpdateDispatcherOptions{
		LocalPlayerID:    opts.LocalPlayerID,
		Registry:         registry,
		Bus:              s.bus,
		Metrics:          opts.Metrics,
		ChatHistoryLimit: cfg.Session.ChatHistoryLimit,
	})

	s.broadcaster = NewOutboundStateBroadcaster(NewOutboundStateBroadcasterOptions{
		Interval: cfg.Session.BroadcastInterval,
		Source:   opts.LocalPlayer,
		Sender:   opts.Transport,
		Tracker:  s.tracker,
		Metrics:  opts.Metrics,
	})

	s.unsubscribe = append(s.unsubscribe,
		opts.Transport.Lifecycle().Subscribe(s.tracker.Handle),
		s.bus.ConnectionStateChanged.Subscribe(s.announceConnectionChange),
	)

	return s, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *Session) Bus() *Bus {
	return s.bus
}

func (s *Session) Tracker() *ConnectionStateTracker {
	return s.tracker
}

func (s *Session) Registry() *remote.Registry {
	return s.registry
}

func (s *Session) Latency() time.Duration {
	return s.transport.Latency()
}

func (s *Session) announceConnectionChange(change ConnectionStateChange) {
	switch change.Event {
	case network.LifecycleReconnecting:
		if change.Previous.Status == StatusConnected {
			s.systemMessage(SystemMessageConnectionLost)
		}
	case network.LifecycleReconnected:
		s.systemMessage(SystemMessageReconnected)
	case network.LifecycleClosed:
		if change.Previous.Status != StatusDisconnected {
			s.systemMessage(SystemMessageOffline)
		}
	}
}

func (s *Session) systemMessage(text string) {
	s.bus.ChatSystemMessage.Publish(text)
}

// Run starts the transport and the broadcaster and processes inbound messages
// until ctx is done. The transport giving up leaves the session running offline.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	transportDone := make(chan error, 1)
	go func() {
		transportDone <- s.transport.Run(ctx)
	}()
	s.broadcaster.Start(ctx)

	defer func() {
		s.broadcaster.Stop()
		cancel()
		if transportDone != nil {
			if err := <-transportDone; err != nil && !errors.Is(err, context.Canceled) {
				log.Debug("Transport stopped: %v", err)
			}
		}
		s.teardown()
	}()

	frameTicker := time.NewTicker(s.frameInterval)
	defer frameTicker.Stop()
	sweepTimer := time.NewTimer(s.nextSweepDelay())
	defer sweepTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-transportDone:
			transportDone = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Transport stopped, continuing offline: %v", err)
			}
		case <-frameTicker.C:
			s.Update()
		case <-sweepTimer.C:
			s.registry.Sweep(s.inactiveTimeout)
			sweepTimer.Reset(s.nextSweepDelay())
		}
	}
}

// Update dispatches every queued inbound message in arrival order.
func (s *Session) Update() {
	for _, message := range s.inbound.ReadAllMessages() {
		s.dispatcher.Dispatch(message)
	}
}

// nextSweepDelay spreads sweeps by ±sweepJitter of the interval.
func (s *Session) nextSweepDelay() time.Duration {
	if s.sweepJitter <= 0 {
		return s.sweepInterval
	}
	factor := 1 + s.sweepJitter*(2*rand.Float64()-1)
	return time.Duration(float64(s.sweepInterval) * factor)
}

func (s *Session) teardown() {
	s.inbound.ClearQueue()
	s.registry.Clear()
	log.Info("Session stopped")
}

// Close removes the session's subscriptions. The session cannot be reused afterwards.
func (s *Session) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
}

// SendChatMessage submits a chat line and reports whether the server accepted it.
func (s *Session) SendChatMessage(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if utf8.RuneCountInString(text) > MaxChatMessageLength {
		s.systemMessage(fmt.Sprintf("Message must be at most %d characters.", MaxChatMessageLength))
		return false
	}

	var accepted bool
	if err := s.transport.Invoke(ctx, messages.MessageTypeSendChatMessage, messages.SendChatMessageRequest{Message: text}, &accepted); err != nil {
		log.Warn("Failed to send chat message: %v", err)
		s.systemMessage("Failed to send message.")
		return false
	}
	if !accepted {
		s.systemMessage("Message was not accepted.")
	}
	return accepted
}

// ChangePlayerName asks the server to rename the local player.
func (s *Session) ChangePlayerName(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > MaxPlayerNameLength {
		s.systemMessage(fmt.Sprintf("Name must be between 1 and %d characters.", MaxPlayerNameLength))
		return false
	}
	if !playerNameRegex.MatchString(name) {
		s.systemMessage("Name cannot contain special characters.")
		return false
	}

	var accepted bool
	if err := s.transport.Invoke(ctx, messages.MessageTypeChangePlayerName, messages.ChangePlayerNameRequest{NewName: name}, &accepted); err != nil {
		log.Warn("Failed to change player name: %v", err)
		s.systemMessage("Failed to change name.")
		return false
	}
	if !accepted {
		s.systemMessage("Name change was rejected.")
	}
	return accepted
}

// AddRaceResult submits a finished lap time in milliseconds.
func (s *Session) AddRaceResult(ctx context.Context, trackID, trackName string, timeMs int64) (messages.RaceResultResponse, bool) {
	if trackID == "" || timeMs <= 0 {
		log.Warn("Refusing to submit race result for track %q with time %d", trackID, timeMs)
		return messages.RaceResultResponse{}, false
	}

	request := messages.AddRaceResultRequest{TrackID: trackID, TrackName: trackName, Time: timeMs}
	var response messages.RaceResultResponse
	if err := s.transport.Invoke(ctx, messages.MessageTypeAddRaceResult, request, &response); err != nil {
		log.Warn("Failed to submit race result: %v", err)
		s.systemMessage("Failed to submit race result.")
		return messages.RaceResultResponse{}, false
	}
	if !response.Success {
		reason := response.Message
		if reason == "" {
			reason = "Race result was not recorded."
		}
		s.systemMessage(reason)
	}
	return response, response.Success
}
