// Package config loads the daemon configuration from an optional YAML file
// and fills in platform defaults. Scheduling tunables are deliberately
// compile-time constants; only paths and addresses are configurable.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Build-time scheduling constants. These are part of the design, not knobs:
// the worker is strictly single-flight and its lifecycle timing is fixed.
const (
	// MaxInFlight is the worker concurrency bound. The whole admission
	// design assumes 1; see orchestrator.
	MaxInFlight = 1

	// IdleTeardownDelay is how long the worker stays loaded with an empty
	// queue before being torn down.
	IdleTeardownDelay = 60 * time.Second

	// ReadyPollInterval is how often the orchestrator re-checks worker
	// state while a model load is in progress.
	ReadyPollInterval = 100 * time.Millisecond

	// ResourcePollInterval is how often the lifecycle manager re-probes
	// memory while in the insufficient-resources condition.
	ResourcePollInterval = 5 * time.Second

	// ReconnectBackoff is the fixed delay between client channel redial
	// attempts.
	ReconnectBackoff = 1 * time.Second

	// BudgetFloor is the minimum number of prompt tokens that must remain
	// available after the fixed instructions before a request is forwarded
	// to the engine.
	BudgetFloor = 50

	// SafetyMargin scales a model's estimated resident size when deciding
	// whether it fits in available memory.
	SafetyMargin = 1.2
)

// Config holds the runtime configuration
type Config struct {
	// DataDir is the root directory for models, libraries and the cache
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the daemon's WebSocket/metrics listen address
	ListenAddr string `yaml:"listen_addr"`

	// CachePath is the SQLite verdict cache location (default: DataDir/verdicts.db)
	CachePath string `yaml:"cache_path"`

	// Model pins a catalog model by name instead of resource-aware selection
	Model string `yaml:"model"`
}

// DefaultDataDir returns the platform data directory for mailsift.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailsift"
	}
	return filepath.Join(home, ".mailsift")
}

// Default returns a config with all defaults applied.
func Default() Config {
	dataDir := DefaultDataDir()
	return Config{
		DataDir:    dataDir,
		ListenAddr: "127.0.0.1:8741",
		CachePath:  filepath.Join(dataDir, "verdicts.db"),
	}
}

// Load reads a YAML config file and fills unset fields with defaults.
// A missing file is not an error; it just yields the defaults. The cache
// path default follows the configured data dir.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(cfg.DataDir, "verdicts.db")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8741"
	}
	return cfg, nil
}

// ServerURL returns the ws:// URL clients should dial for this config.
func (c Config) ServerURL() string {
	return "ws://" + c.ListenAddr + "/ws"
}
