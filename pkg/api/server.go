package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/api/handlers"
	"github.com/cbodonnell/roadtrip/pkg/api/middleware"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
}

type NewAPIServerOptions struct {
	Address    string
	Connection handlers.ConnectionSource
	Latency    handlers.LatencySource
	Players    handlers.PlayerSource
}

// NewAPIServer creates a read-only HTTP API for inspecting a running session.
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		server: &http.Server{
			Addr:              opts.Address,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func NewRouter(opts NewAPIServerOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(), middleware.NewCORSMiddleware())

	r.HandleFunc("/healthz", handlers.HandleHealthz()).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/connection", handlers.HandleGetConnection(opts.Connection, opts.Latency)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/players", handlers.HandleListPlayers(opts.Players)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/players/{playerID}", handlers.HandleGetPlayer(opts.Players)).Methods(http.MethodGet, http.MethodOptions)
	return r
}

// Start blocks serving requests until Stop is called.
func (s *APIServer) Start() {
	log.Info("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
