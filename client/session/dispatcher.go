package session

import (
	"fmt"

	"github.com/cbodonnell/roadtrip/client/remote"
	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/pkg/events"
	"github.com/cbodonnell/roadtrip/pkg/geo"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/cbodonnell/roadtrip/pkg/telemetry"
)

const DefaultChatHistoryLimit = 50

type NewInboundUpdateDispatcherOptions struct {
	LocalPlayerID string
	Registry      *remote.Registry
	Bus           *Bus
	Metrics       *telemetry.Metrics
	// ChatHistoryLimit caps the backlog published with HistoryLoaded.
	ChatHistoryLimit int
}

// InboundUpdateDispatcher routes server pushes to the registry or the bus.
// Dispatch must be called from a single goroutine, in arrival order.
type InboundUpdateDispatcher struct {
	localPlayerID    string
	registry         *remote.Registry
	bus              *Bus
	metrics          *telemetry.Metrics
	chatHistoryLimit int

	// connection whose snapshot was applied last
	snapshotApplied    bool
	snapshotConnection uint64
}

func NewInboundUpdateDispatcher(opts NewInboundUpdateDispatcherOptions) *InboundUpdateDispatcher {
	limit := opts.ChatHistoryLimit
	if limit <= 0 {
		limit = DefaultChatHistoryLimit
	}
	return &InboundUpdateDispatcher{
		localPlayerID:    opts.LocalPlayerID,
		registry:         opts.Registry,
		bus:              opts.Bus,
		metrics:          opts.Metrics,
		chatHistoryLimit: limit,
	}
}

// Dispatch handles one message. Failures are logged and never stop processing.
func (d *InboundUpdateDispatcher) Dispatch(message *messages.Message) {
	d.metrics.InboundMessage(string(message.Type))

	var err error
	switch message.Type {
	case messages.MessageTypeInitialState:
		err = d.handleInitialState(message)
	case messages.MessageTypePlayerPositionsUpdate:
		err = d.handlePlayerPositionsUpdate(message)
	case messages.MessageTypePlayerLeft:
		err = d.handlePlayerLeft(message)
	case messages.MessageTypePlayerNameChanged:
		err = d.handlePlayerNameChanged(message)
	case messages.MessageTypeChatMessage:
		err = forward(message, &d.bus.ChatMessageReceived)
	case messages.MessageTypeRaceResult:
		err = forward(message, &d.bus.RaceResult)
	case messages.MessageTypeNameChangeAck:
		err = forward(message, &d.bus.NameChangeAck)
	default:
		err = fmt.Errorf("%w: %s", messages.ErrUnknownMessageType, message.Type)
	}

	if err != nil {
		log.Warn("Failed to handle %s message: %v", message.Type, err)
		d.metrics.InboundDropped("invalid")
	}
}

func forward[T any](message *messages.Message, topic *events.Topic[T]) error {
	var payload T
	if err := message.DecodePayload(&payload); err != nil {
		return err
	}
	topic.Publish(payload)
	return nil
}

func (d *InboundUpdateDispatcher) handleInitialState(message *messages.Message) error {
	if d.snapshotApplied && message.Connection <= d.snapshotConnection {
		log.Warn("Ignoring initial state from connection %d, already applied one from connection %d", message.Connection, d.snapshotConnection)
		return nil
	}
	initialState := &messages.InitialState{}
	if err := message.DecodePayload(initialState); err != nil {
		return err
	}
	d.snapshotApplied = true
	d.snapshotConnection = message.Connection

	updates := make([]remote.PlayerUpdate, 0, len(initialState.Players))
	for _, player := range initialState.Players {
		if player.PlayerID == d.localPlayerID {
			continue
		}
		if player.LastPosition == nil {
			log.Warn("Skipping snapshot entry for %s: missing position", player.PlayerID)
			continue
		}
		update, err := toPlayerUpdate(messages.PlayerPositionUpdate{
			PlayerID:         player.PlayerID,
			Name:             player.Name,
			Position:         player.LastPosition,
			CurrentSpeed:     player.CurrentSpeed,
			KilometersDriven: player.KilometersDriven,
			StateType:        player.StateType,
			ModelType:        player.ModelType,
			AnimationState:   player.AnimationState,
		})
		if err != nil {
			log.Warn("Skipping snapshot entry for %s: %v", player.PlayerID, err)
			d.metrics.InboundDropped("malformed_entry")
			continue
		}
		updates = append(updates, update)
	}
	d.registry.Seed(updates)

	history := initialState.RecentMessages
	if len(history) > d.chatHistoryLimit {
		history = history[len(history)-d.chatHistoryLimit:]
	}
	d.bus.HistoryLoaded.Publish(History{Messages: history, QuestProgress: initialState.QuestProgress})
	return nil
}

func (d *InboundUpdateDispatcher) handlePlayerPositionsUpdate(message *messages.Message) error {
	var batch []messages.PlayerPositionUpdate
	if err := message.DecodePayload(&batch); err != nil {
		return err
	}
	for _, entry := range batch {
		if entry.PlayerID == d.localPlayerID {
			continue
		}
		update, err := toPlayerUpdate(entry)
		if err != nil {
			log.Warn("Skipping position update for %s: %v", entry.PlayerID, err)
			d.metrics.InboundDropped("malformed_entry")
			continue
		}
		d.registry.Upsert(update)
	}
	return nil
}

func (d *InboundUpdateDispatcher) handlePlayerLeft(message *messages.Message) error {
	playerLeft := &messages.PlayerLeft{}
	if err := message.DecodePayload(playerLeft); err != nil {
		return err
	}
	if !d.registry.Remove(playerLeft.PlayerID) {
		log.Debug("Player %s left but was not tracked", playerLeft.PlayerID)
	}
	return nil
}

func (d *InboundUpdateDispatcher) handlePlayerNameChanged(message *messages.Message) error {
	nameChanged := &messages.PlayerNameChanged{}
	if err := message.DecodePayload(nameChanged); err != nil {
		return err
	}
	if d.registry.Rename(nameChanged.PlayerID, nameChanged.NewName) {
		log.Debug("Player %s renamed from %q to %q", nameChanged.PlayerID, nameChanged.OldName, nameChanged.NewName)
	}
	return nil
}

func toPlayerUpdate(entry messages.PlayerPositionUpdate) (remote.PlayerUpdate, error) {
	if entry.PlayerID == "" {
		return remote.PlayerUpdate{}, fmt.Errorf("missing player id")
	}
	if entry.Position == nil {
		return remote.PlayerUpdate{}, fmt.Errorf("missing position")
	}
	point, err := geo.PointFromCoordinates(entry.Position.Coordinates)
	if err != nil {
		return remote.PlayerUpdate{}, err
	}
	rotation := entry.Position.Rotation
	return remote.PlayerUpdate{
		ID:   entry.PlayerID,
		Name: entry.Name,
		Transform: render.Transform{
			Coordinates: point.Coordinates(),
			Rotation:    render.Rotation{X: rotation.X, Y: rotation.Y, Z: rotation.Z},
		},
		Timestamp:        entry.Position.Timestamp,
		CurrentSpeed:     entry.CurrentSpeed,
		KilometersDriven: entry.KilometersDriven,
		EntityKind:       entry.StateType,
		ModelID:          entry.ModelType,
		AnimationTag:     entry.AnimationState,
	}, nil
}
