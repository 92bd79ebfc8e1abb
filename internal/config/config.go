// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config aggregates settings for both binaries.
type Config struct {
	Server ServerConfig
	Client ClientConfig
	Log    LogConfig
}

// ServerConfig describes the relay's HTTP listener and storage.
type ServerConfig struct {
	Addr         string
	DatabasePath string
}

// ClientConfig describes how the terminal client reaches a relay and who it
// signs in as.
type ClientConfig struct {
	RelayURL  string
	UserID    string
	UserName  string
	AvatarURL string
	Channel   string
}

// LogConfig describes logger output.
type LogConfig struct {
	Level string
}

// Load reads everything from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Client: ClientConfig{
			RelayURL:  envOr("RELAY_URL", "http://localhost:8090"),
			UserID:    strings.TrimSpace(os.Getenv("CHAT_USER_ID")),
			UserName:  strings.TrimSpace(os.Getenv("CHAT_USER_NAME")),
			AvatarURL: strings.TrimSpace(os.Getenv("CHAT_AVATAR_URL")),
			Channel:   envOr("CHAT_CHANNEL", "general"),
		},
		Log: LogConfig{Level: envOr("LOG_LEVEL", "info")},
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(envOr("PORT", "8090"))
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := port
	if !strings.Contains(port, ":") {
		// Allow both ":8090" and "127.0.0.1:8090" forms.
		addr = ":" + port
	}

	return ServerConfig{
		Addr:         addr,
		DatabasePath: envOr("RELAY_DB", "chatgenius.db"),
	}, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
