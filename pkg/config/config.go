package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file looked up in the config directory.
	FileName = "roadtrip"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ROADTRIP_"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log" envPrefix:"LOG_"`
	Server    ServerConfig    `mapstructure:"server" envPrefix:"SERVER_"`
	Transport TransportConfig `mapstructure:"transport" envPrefix:"TRANSPORT_"`
	Session   SessionConfig   `mapstructure:"session" envPrefix:"SESSION_"`
	Models    ModelsConfig    `mapstructure:"models" envPrefix:"MODELS_"`
	Display   DisplayConfig   `mapstructure:"display" envPrefix:"DISPLAY_"`
	Debug     DebugConfig     `mapstructure:"debug" envPrefix:"DEBUG_"`
}

type LogConfig struct {
	Level          string `mapstructure:"level" env:"LEVEL"`
	GraylogAddress string `mapstructure:"graylogAddress" env:"GRAYLOG_ADDRESS"`
}

type ServerConfig struct {
	URL        string `mapstructure:"url" env:"URL"`
	PlayerID   string `mapstructure:"playerId" env:"PLAYER_ID"`
	PlayerName string `mapstructure:"playerName" env:"PLAYER_NAME"`
	Token      string `mapstructure:"token" env:"TOKEN"`
}

type TransportConfig struct {
	DialTimeout           time.Duration `mapstructure:"dialTimeout" env:"DIAL_TIMEOUT"`
	InvokeTimeout         time.Duration `mapstructure:"invokeTimeout" env:"INVOKE_TIMEOUT"`
	ReconnectInitialDelay time.Duration `mapstructure:"reconnectInitialDelay" env:"RECONNECT_INITIAL_DELAY"`
	ReconnectMaxDelay     time.Duration `mapstructure:"reconnectMaxDelay" env:"RECONNECT_MAX_DELAY"`
	// MaxReconnectAttempts of 0 retries until the session ends.
	MaxReconnectAttempts int   `mapstructure:"maxReconnectAttempts" env:"MAX_RECONNECT_ATTEMPTS"`
	ReadLimit            int64 `mapstructure:"readLimit" env:"READ_LIMIT"`
	InboundQueueSize     int   `mapstructure:"inboundQueueSize" env:"INBOUND_QUEUE_SIZE"`
}

type SessionConfig struct {
	FrameInterval     time.Duration `mapstructure:"frameInterval" env:"FRAME_INTERVAL"`
	BroadcastInterval time.Duration `mapstructure:"broadcastInterval" env:"BROADCAST_INTERVAL"`
	SweepInterval     time.Duration `mapstructure:"sweepInterval" env:"SWEEP_INTERVAL"`
	SweepJitter       float64       `mapstructure:"sweepJitter" env:"SWEEP_JITTER"`
	InactiveTimeout   time.Duration `mapstructure:"inactiveTimeout" env:"INACTIVE_TIMEOUT"`
	ChatHistoryLimit  int           `mapstructure:"chatHistoryLimit" env:"CHAT_HISTORY_LIMIT"`
}

type ModelsConfig struct {
	InitialDelay time.Duration `mapstructure:"initialDelay" env:"INITIAL_DELAY"`
	Multiplier   float64       `mapstructure:"multiplier" env:"MULTIPLIER"`
	MaxDelay     time.Duration `mapstructure:"maxDelay" env:"MAX_DELAY"`
	MaxAttempts  uint          `mapstructure:"maxAttempts" env:"MAX_ATTEMPTS"`
	DefaultModel string        `mapstructure:"defaultModel" env:"DEFAULT_MODEL"`
	ManifestURL  string        `mapstructure:"manifestUrl" env:"MANIFEST_URL"`
}

// DisplayConfig carries device traits that influence how remote players are composed.
type DisplayConfig struct {
	Compact bool `mapstructure:"compact" env:"COMPACT"`
}

type DebugConfig struct {
	// Address of the debug HTTP API. Empty disables it.
	Address string `mapstructure:"address" env:"ADDRESS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.graylogAddress", "")

	v.SetDefault("server.url", "ws://localhost:8080/session")
	v.SetDefault("server.playerId", "")
	v.SetDefault("server.playerName", "")
	v.SetDefault("server.token", "")

	v.SetDefault("transport.dialTimeout", "10s")
	v.SetDefault("transport.invokeTimeout", "10s")
	v.SetDefault("transport.reconnectInitialDelay", "1s")
	v.SetDefault("transport.reconnectMaxDelay", "30s")
	v.SetDefault("transport.maxReconnectAttempts", 0)
	v.SetDefault("transport.readLimit", 1<<20)
	v.SetDefault("transport.inboundQueueSize", 1024)

	v.SetDefault("session.frameInterval", "50ms")
	v.SetDefault("session.broadcastInterval", "200ms")
	v.SetDefault("session.sweepInterval", "30s")
	v.SetDefault("session.sweepJitter", 0.1)
	v.SetDefault("session.inactiveTimeout", "50s")
	v.SetDefault("session.chatHistoryLimit", 50)

	v.SetDefault("models.initialDelay", "500ms")
	v.SetDefault("models.multiplier", 2.0)
	v.SetDefault("models.maxDelay", "10s")
	v.SetDefault("models.maxAttempts", 8)
	v.SetDefault("models.defaultModel", "")
	v.SetDefault("models.manifestUrl", "")

	v.SetDefault("display.compact", false)

	v.SetDefault("debug.address", "")
}

// Load reads configuration defaults, the optional roadtrip.json file in configDir
// and ROADTRIP_* environment overrides, in that order of precedence.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("json")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("error parsing environment overrides: %w", err)
	}

	return cfg, nil
}

// Validate checks the values the session cannot run without.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Server.PlayerID == "" {
		return fmt.Errorf("server.playerId is required")
	}
	durations := map[string]time.Duration{
		"session.frameInterval":           c.Session.FrameInterval,
		"session.broadcastInterval":       c.Session.BroadcastInterval,
		"session.sweepInterval":           c.Session.SweepInterval,
		"session.inactiveTimeout":         c.Session.InactiveTimeout,
		"transport.invokeTimeout":         c.Transport.InvokeTimeout,
		"transport.reconnectInitialDelay": c.Transport.ReconnectInitialDelay,
		"transport.reconnectMaxDelay":     c.Transport.ReconnectMaxDelay,
		"models.initialDelay":             c.Models.InitialDelay,
		"models.maxDelay":                 c.Models.MaxDelay,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Session.SweepJitter < 0 || c.Session.SweepJitter >= 1 {
		return fmt.Errorf("session.sweepJitter must be in [0, 1), got %v", c.Session.SweepJitter)
	}
	if c.Models.Multiplier < 1 {
		return fmt.Errorf("models.multiplier must be at least 1, got %v", c.Models.Multiplier)
	}
	if c.Models.MaxAttempts == 0 {
		return fmt.Errorf("models.maxAttempts must be positive")
	}
	return nil
}
