package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType names an envelope's payload.
type MessageType string

// Server -> client
const (
	MessageTypeInitialState          MessageType = "InitialState"
	MessageTypePlayerPositionsUpdate MessageType = "PlayerPositionsUpdate"
	MessageTypePlayerLeft            MessageType = "PlayerLeft"
	MessageTypePlayerNameChanged     MessageType = "PlayerNameChanged"
	MessageTypeChatMessage           MessageType = "ChatMessage"
	MessageTypeRaceResult            MessageType = "RaceResult"
	MessageTypeNameChangeAck         MessageType = "NameChangeAck"
	MessageTypeCompletion            MessageType = "Completion"
)

// Client -> server
const (
	MessageTypeUpdatePosition   MessageType = "UpdatePosition"
	MessageTypeSendChatMessage  MessageType = "SendChatMessage"
	MessageTypeChangePlayerName MessageType = "ChangePlayerName"
	MessageTypeAddRaceResult    MessageType = "AddRaceResult"
)

// ErrUnknownMessageType is returned when no payload type is registered for a message type.
var ErrUnknownMessageType = errors.New("unknown message type")

// Message is the envelope carried by every frame on the wire.
type Message struct {
	Type MessageType `json:"type"`
	// InvocationID correlates an invocation with its Completion. Empty for pushes.
	InvocationID string          `json:"invocationId,omitempty"`
	Timestamp    int64           `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	// Connection is the transport connection the message arrived on, counted from 1.
	// It is stamped locally and never sent.
	Connection uint64 `json:"-"`
}

// NewMessage marshals payload as JSON into a new envelope.
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	msg.Payload = b
	return msg, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (m *Message) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty %s payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", m.Type, err)
	}
	return nil
}
