package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for bookmarkd.
type Config struct {
	// Service flags. At least one must be true.
	EnableSync      bool `env:"ENABLE_SYNC" envDefault:"true"`
	EnableDocServer bool `env:"ENABLE_DOC_SERVER" envDefault:"false"`

	// Remote document store settings (required when sync is enabled).
	RemoteURL string `env:"REMOTE_URL"`

	// BoardID identifies this replica set's document slot on the remote
	// store. All replicas of one user share a board id.
	BoardID string `env:"BOARD_ID"`

	// ReplicaName identifies this replica in logs and pushes.
	// Defaults to the system hostname.
	ReplicaName string `env:"REPLICA_NAME"`

	// StatePath is the local replica database. Defaults to
	// ~/.bookmarkd/state.db when empty.
	StatePath string `env:"STATE_PATH"`

	// Control API listen address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Document server settings (used when the doc server is enabled).
	DocServerListenAddr string `env:"DOC_SERVER_LISTEN_ADDR" envDefault:":8091"`
	DocServerStatePath  string `env:"DOC_SERVER_STATE_PATH"`

	// Sync timing knobs.
	DebounceDelay      time.Duration `env:"DEBOUNCE_DELAY" envDefault:"500ms"`
	CheckInterval      time.Duration `env:"CHECK_INTERVAL" envDefault:"60s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
	TombstoneRetention time.Duration `env:"TOMBSTONE_RETENTION" envDefault:"720h"`

	// ProbeInterval controls how often connectivity to the remote store
	// is re-checked while offline.
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"30s"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.ReplicaName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "bookmarkd"
		}

		cfg.ReplicaName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = path
	}

	if cfg.EnableDocServer && cfg.DocServerStatePath == "" {
		path, err := defaultDocServerPath()
		if err != nil {
			return nil, err
		}

		cfg.DocServerStatePath = path
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !c.EnableSync && !c.EnableDocServer {
		return fmt.Errorf("at least one of ENABLE_SYNC or ENABLE_DOC_SERVER must be true")
	}

	if c.EnableSync {
		if c.RemoteURL == "" {
			return fmt.Errorf("REMOTE_URL is required when sync is enabled")
		}

		if c.BoardID == "" {
			return fmt.Errorf("BOARD_ID is required when sync is enabled")
		}
	}

	if c.DebounceDelay <= 0 {
		return fmt.Errorf("DEBOUNCE_DELAY must be positive")
	}

	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}

	if c.TombstoneRetention <= 0 {
		return fmt.Errorf("TOMBSTONE_RETENTION must be positive")
	}

	return nil
}

// DefaultStatePath returns the default replica database location:
// ~/.bookmarkd/state.db
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".bookmarkd", "state.db"), nil
}

func defaultDocServerPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".bookmarkd", "boards.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
