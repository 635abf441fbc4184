package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cbodonnell/roadtrip/client/remote"
	"github.com/cbodonnell/roadtrip/client/session"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/gorilla/mux"
)

// ConnectionSource is satisfied by session.ConnectionStateTracker.
type ConnectionSource interface {
	State() session.ConnectionState
}

// LatencySource is satisfied by session.Session.
type LatencySource interface {
	Latency() time.Duration
}

// PlayerSource is satisfied by remote.Registry.
type PlayerSource interface {
	Get(id string) (*remote.Entity, bool)
	GetAll() []*remote.Entity
}

type ConnectionResponse struct {
	session.ConnectionState
	LatencyMs int64 `json:"latencyMs"`
}

type PlayersResponse struct {
	Count   int                  `json:"count"`
	Players []remote.EntityState `json:"players"`
}

func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func HandleGetConnection(connection ConnectionSource, latency LatencySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ConnectionResponse{
			ConnectionState: connection.State(),
			LatencyMs:       latency.Latency().Milliseconds(),
		})
	}
}

func HandleListPlayers(players PlayerSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities := players.GetAll()
		response := PlayersResponse{
			Count:   len(entities),
			Players: make([]remote.EntityState, 0, len(entities)),
		}
		for _, e := range entities {
			response.Players = append(response.Players, e.State())
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func HandleGetPlayer(players PlayerSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := mux.Vars(r)["playerID"]
		entity, ok := players.Get(playerID)
		if !ok {
			http.Error(w, "Player not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, entity.State())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
