package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerURL         string `mapstructure:"server_url"`
	WebsocketURL      string `mapstructure:"websocket_url"`
	Profile           string `mapstructure:"profile"`
	Debug             bool   `mapstructure:"debug"`
	PollSeconds       int    `mapstructure:"session_poll_seconds"`
	HeartbeatSeconds  int    `mapstructure:"heartbeat_seconds"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_seconds"`

	// Derived
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
}

// Load reads config.yaml from the profile config dir, with
// PEOPLEDESK_* env overrides. A missing file is fine; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "peopledesk"))
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("PEOPLEDESK")
	v.AutomaticEnv()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("websocket_url", "ws://localhost:8080/ws")
	v.SetDefault("profile", "default")
	v.SetDefault("debug", false)
	v.SetDefault("session_poll_seconds", 30)
	v.SetDefault("heartbeat_seconds", 25)
	// Zero means no request timeout, matching the transport default.
	v.SetDefault("request_timeout_seconds", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.PollInterval = time.Duration(cfg.PollSeconds) * time.Second
	cfg.HeartbeatInterval = time.Duration(cfg.HeartbeatSeconds) * time.Second
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	return &cfg, nil
}
