package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/roadtrip/client/assets"
	"github.com/cbodonnell/roadtrip/client/localplayer"
	"github.com/cbodonnell/roadtrip/client/network"
	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/client/session"
	"github.com/cbodonnell/roadtrip/pkg/api"
	"github.com/cbodonnell/roadtrip/pkg/config"
	"github.com/cbodonnell/roadtrip/pkg/geo"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/cbodonnell/roadtrip/pkg/queue"
	"github.com/cbodonnell/roadtrip/pkg/telemetry"
	"github.com/cbodonnell/roadtrip/pkg/version"
	"github.com/cenkalti/backoff/v5"
)

func main() {
	configDir := flag.String("config-dir", ".", "Directory containing roadtrip.json")
	logLevel := flag.String("log-level", "", "Log level, overrides the config file")
	lng := flag.Float64("lng", -122.4194, "Longitude of the simulated route center")
	lat := flag.Float64("lat", 37.7749, "Latitude of the simulated route center")
	radius := flag.Float64("radius", 250, "Radius of the simulated route in meters")
	lap := flag.Duration("lap", 2*time.Minute, "Time to complete one lap of the simulated route")
	model := flag.String("model", "car-1", "Model the local player drives")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	var graylog io.Writer
	if cfg.Log.GraylogAddress != "" {
		w, err := log.NewGraylogWriter(cfg.Log.GraylogAddress)
		if err != nil {
			panic(err.Error())
		}
		defer w.Close()
		graylog = w
	}
	logger := log.New(log.MultiWriter(os.Stdout, graylog), parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting client version %s as player %s", version.Get(), cfg.Server.PlayerID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the gauge callback runs on the exporter's goroutine
	var remoteEntities telemetry.CountSource
	metrics, err := telemetry.New(remoteEntities.Value)
	if err != nil {
		panic(fmt.Sprintf("Failed to create metrics: %v", err))
	}

	catalog := assets.NewCatalog()
	go preloadAssets(ctx, cfg, catalog)

	inbound := queue.NewInMemoryQueue[*messages.Message](cfg.Transport.InboundQueueSize)
	transport, err := network.NewTransportSession(network.NewTransportSessionOptions{
		URL:                   cfg.Server.URL,
		PlayerID:              cfg.Server.PlayerID,
		PlayerName:            cfg.Server.PlayerName,
		Token:                 cfg.Server.Token,
		DialTimeout:           cfg.Transport.DialTimeout,
		InvokeTimeout:         cfg.Transport.InvokeTimeout,
		ReconnectInitialDelay: cfg.Transport.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Transport.ReconnectMaxDelay,
		MaxReconnectAttempts:  cfg.Transport.MaxReconnectAttempts,
		ReadLimit:             cfg.Transport.ReadLimit,
		Inbound:               inbound,
		Metrics:               metrics,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create transport: %v", err))
	}

	localPlayer := localplayer.NewTracker(localplayer.NewTrackerOptions{
		ModelID:    *model,
		EntityKind: "car",
	})

	sess, err := session.NewSession(session.NewSessionOptions{
		LocalPlayerID: cfg.Server.PlayerID,
		Transport:     transport,
		Inbound:       inbound,
		LocalPlayer:   localPlayer,
		Models:        catalog,
		Renderer:      render.NewTrackingRenderer(),
		Config:        cfg,
		Metrics:       metrics,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create session: %v", err))
	}
	defer sess.Close()
	remoteEntities.Set(sess.Registry().Count)

	bus := sess.Bus()
	bus.ChatSystemMessage.Subscribe(func(text string) {
		log.Info("[system] %s", text)
	})
	bus.ChatMessageReceived.Subscribe(func(m messages.ChatMessage) {
		log.Info("[chat] %s: %s", m.Name, m.Message)
	})
	bus.PlayerCountChanged.Subscribe(func(count int) {
		log.Info("%d other players online", count)
	})
	bus.RaceResult.Subscribe(func(r messages.RaceResult) {
		log.Info("%s finished %s in %dms", r.PlayerName, r.TrackName, r.Time)
	})
	bus.HistoryLoaded.Subscribe(func(h session.History) {
		log.Debug("Loaded %d chat messages", len(h.Messages))
	})

	route := localplayer.CircularRoute{
		Center:       geo.Point{Lng: *lng, Lat: *lat},
		RadiusMeters: *radius,
		Period:       *lap,
		Start:        time.Now(),
	}
	go localplayer.Drive(ctx, localPlayer, route, cfg.Session.BroadcastInterval)

	if cfg.Debug.Address != "" {
		apiServer := api.NewAPIServer(api.NewAPIServerOptions{
			Address:    cfg.Debug.Address,
			Connection: sess.Tracker(),
			Latency:    sess,
			Players:    sess.Registry(),
		})
		go apiServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := apiServer.Stop(shutdownCtx); err != nil {
				log.Error("Failed to stop API server: %v", err)
			}
		}()
	}

	if err := sess.Run(ctx); err != nil {
		log.Error("Session stopped: %v", err)
	}
	if err := transport.Close(); err != nil && !errors.Is(err, network.ErrTransportClosed) {
		log.Error("Failed to close transport: %v", err)
	}
	log.Info("Driven %.2f km", localPlayer.Kilometers())
}

// preloadAssets keeps trying to fetch the model manifest until it succeeds or ctx ends.
func preloadAssets(ctx context.Context, cfg *config.Config, catalog *assets.Catalog) {
	if cfg.Models.ManifestURL == "" {
		models := []assets.Model{}
		if cfg.Models.DefaultModel != "" {
			models = append(models, assets.Model{ID: cfg.Models.DefaultModel})
		}
		if err := catalog.Populate(models); err != nil {
			log.Error("Failed to populate model catalog: %v", err)
		}
		log.Warn("No model manifest configured, remote players fall back to %q", cfg.Models.DefaultModel)
		return
	}

	client := assets.NewHTTPClient(cfg.Transport.DialTimeout)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Models.InitialDelay
	b.MaxInterval = cfg.Models.MaxDelay
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, assets.Preload(ctx, client, cfg.Models.ManifestURL, catalog)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Failed to preload models, retrying in %s: %v", next, err)
		}),
	)
	if err != nil {
		log.Error("Gave up preloading models: %v", err)
	}
}
