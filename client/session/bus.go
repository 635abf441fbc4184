package session

import (
	"encoding/json"

	"github.com/cbodonnell/roadtrip/pkg/events"
	"github.com/cbodonnell/roadtrip/pkg/messages"
)

// History is the chat backlog and progress delivered with each snapshot.
type History struct {
	Messages      []messages.ChatMessage
	QuestProgress map[string]json.RawMessage
}

// Bus carries the session's events to UI collaborators. The zero value is ready to use.
type Bus struct {
	ConnectionStateChanged events.Topic[ConnectionStateChange]
	PlayerCountChanged     events.Topic[int]
	ChatMessageReceived    events.Topic[messages.ChatMessage]
	ChatSystemMessage      events.Topic[string]
	RaceResult             events.Topic[messages.RaceResult]
	HistoryLoaded          events.Topic[History]
	NameChangeAck          events.Topic[messages.NameChangeAck]
}
