package messages

import (
	"encoding/json"
)

type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Position is a timestamped transform sample. Coordinates are (lng, lat, elevation).
type Position struct {
	Coordinates []float64 `json:"coordinates"`
	Rotation    Rotation  `json:"rotation"`
	Timestamp   int64     `json:"timestamp"`
}

// PlayerSnapshot is a player entry in InitialState.
type PlayerSnapshot struct {
	PlayerID         string    `json:"playerId"`
	Name             string    `json:"name"`
	LastPosition     *Position `json:"lastPosition,omitempty"`
	TotalTimeOnline  int64     `json:"totalTimeOnline"`
	CurrentSpeed     float64   `json:"currentSpeed"`
	KilometersDriven float64   `json:"kilometersDriven"`
	StateType        string    `json:"stateType"`
	ModelType        string    `json:"modelType"`
	AnimationState   string    `json:"animationState"`
}

// InitialState is pushed once after every (re)join.
type InitialState struct {
	Players        []PlayerSnapshot           `json:"players"`
	RecentMessages []ChatMessage              `json:"recentMessages"`
	QuestProgress  map[string]json.RawMessage `json:"questProgress"`
}

// PlayerPositionUpdate is one entry of a PlayerPositionsUpdate batch.
type PlayerPositionUpdate struct {
	PlayerID         string    `json:"playerId"`
	Name             string    `json:"name"`
	Position         *Position `json:"position"`
	CurrentSpeed     float64   `json:"currentSpeed"`
	KilometersDriven float64   `json:"kilometersDriven"`
	StateType        string    `json:"stateType"`
	ModelType        string    `json:"modelType"`
	AnimationState   string    `json:"animationState"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

type PlayerNameChanged struct {
	PlayerID  string `json:"playerId"`
	OldName   string `json:"oldName"`
	NewName   string `json:"newName"`
	Timestamp int64  `json:"timestamp"`
}

type ChatMessage struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	IsSystem  bool   `json:"isSystem"`
	Timestamp int64  `json:"timestamp"`
}

type RaceResult struct {
	PlayerID       string `json:"playerId"`
	PlayerName     string `json:"playerName"`
	TrackID        string `json:"trackId"`
	TrackName      string `json:"trackName"`
	Time           int64  `json:"time"`
	IsPersonalBest bool   `json:"isPersonalBest"`
	IsTrackRecord  bool   `json:"isTrackRecord"`
	CompletedAt    int64  `json:"completedAt"`
}

type NameChangeAck struct {
	Success bool   `json:"success"`
	NewName string `json:"newName"`
	Reason  string `json:"reason,omitempty"`
}

// OutboundFrame is the local player's state sent with UpdatePosition.
type OutboundFrame struct {
	Coordinates      [3]float64 `json:"coordinates"`
	Rotation         Rotation   `json:"rotation"`
	Timestamp        int64      `json:"timestamp"`
	CurrentSpeed     float64    `json:"currentSpeed"`
	KilometersDriven float64    `json:"kilometersDriven"`
	ModelType        string     `json:"modelType"`
	AnimationState   string     `json:"animationState"`
	StateType        string     `json:"stateType"`
}

type SendChatMessageRequest struct {
	Message string `json:"message"`
}

type ChangePlayerNameRequest struct {
	NewName string `json:"newName"`
}

type AddRaceResultRequest struct {
	TrackID   string `json:"trackId"`
	TrackName string `json:"trackName"`
	Time      int64  `json:"time"`
}

type RaceResultResponse struct {
	Success        bool   `json:"success"`
	IsPersonalBest bool   `json:"isPersonalBest"`
	IsTrackRecord  bool   `json:"isTrackRecord"`
	Rank           int    `json:"rank"`
	Message        string `json:"message,omitempty"`
}

// Completion answers the invocation with the same invocation id.
type Completion struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
