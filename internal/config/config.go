package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all sandbox runner configuration.
type Config struct {
	Sandbox SandboxConfig
	Logging LogConfig
	Proxy   ProxyConfig
}

// SandboxConfig holds the process-boundary inputs inherited from the host.
type SandboxConfig struct {
	// SocketFD is the inherited channel descriptor. The host connects one
	// end of a socketpair before spawning this process.
	SocketFD  int    `envconfig:"HEARTHD_SOCKET_FD" required:"true"`
	EntryID   string `envconfig:"HEARTHD_ENTRY_ID" default:"unknown"`
	PluginDir string `envconfig:"HEARTHD_PLUGIN_DIR" required:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// ProxyConfig holds outbound network proxy configuration.
type ProxyConfig struct {
	RequestsPerSecond int `envconfig:"PROXY_RATE_RPS" default:"10"`
	Burst             int `envconfig:"PROXY_RATE_BURST" default:"20"`
	DefaultTimeoutMS  int `envconfig:"PROXY_TIMEOUT_MS" default:"30000"`
}

// DefaultTimeout returns the proxy timeout as a duration.
func (p ProxyConfig) DefaultTimeout() time.Duration {
	return time.Duration(p.DefaultTimeoutMS) * time.Millisecond
}

// Load loads configuration from environment variables. Missing required
// values (the channel descriptor, the plugin directory) are fatal startup
// conditions.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration for everything that has a default.
// The sandbox inputs have none; callers must fill them in.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			SocketFD:  -1,
			EntryID:   "unknown",
			PluginDir: "",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Proxy: ProxyConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			DefaultTimeoutMS:  30000,
		},
	}
}
