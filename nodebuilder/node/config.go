package node

import (
	"fmt"
	"time"
)

// Config holds node wide settings.
type Config struct {
	// ClientID overrides the version string reported to remote peers. Empty means the build's
	// default.
	ClientID string
	// StartupTimeout bounds the start of all node components.
	StartupTimeout time.Duration
	// ShutdownTimeout bounds the graceful stop of all node components.
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		StartupTimeout:  time.Minute,
		ShutdownTimeout: time.Minute,
	}
}

func (cfg *Config) Validate() error {
	if cfg.StartupTimeout <= 0 {
		return fmt.Errorf("node: startup timeout must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("node: shutdown timeout must be positive")
	}
	return nil
}

// ResolvedClientID returns the configured client ID or the build's default.
func (cfg *Config) ResolvedClientID() string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return GetBuildInfo().ClientID()
}
