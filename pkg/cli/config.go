// Package cli provides configuration loading and terminal output styling
// shared by the voxkit commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/voxkit/voxkit/pkg/jsontime"
)

const (
	// AppDir is the directory name under the OS config dir.
	AppDir = "voxkit"
	// DefaultConfigFile is the default configuration filename.
	DefaultConfigFile = "config.yaml"
	// DefaultStoreDir is the history store directory name, relative to
	// the app config dir.
	DefaultStoreDir = "history"
)

// Config is the voxkit CLI configuration.
type Config struct {
	// FeedURL is the websocket session feed endpoint.
	FeedURL string `yaml:"feed_url"`

	// Room names the session; it scopes the persisted history slot.
	Room string `yaml:"room"`

	// Identity is the local participant identity. Messages from it are
	// rendered as "you" and never receive options.
	Identity string `yaml:"identity"`

	// StoreDir overrides the history store location. Optional.
	StoreDir string `yaml:"store_dir,omitempty"`

	// Windows overrides the engine's timing windows. Optional.
	Windows *Windows `yaml:"windows,omitempty"`
}

// Windows holds optional engine window overrides.
type Windows struct {
	// Match bounds offer-to-message temporal correlation (default 2.5s).
	Match jsontime.Duration `yaml:"match,omitempty"`

	// OfferExpiry is how long unclaimed offers are kept (default 5s).
	OfferExpiry jsontime.Duration `yaml:"offer_expiry,omitempty"`

	// Settle is the minimum message age before persistence (default 5s).
	Settle jsontime.Duration `yaml:"settle,omitempty"`
}

// DefaultConfigPath returns the config file path under the OS config dir.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cli: resolve config dir: %w", err)
	}
	return filepath.Join(base, AppDir, DefaultConfigFile), nil
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config with no error, so commands can rely on flags alone.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cli: create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// StorePath returns the history store directory, honoring the override.
func (c *Config) StorePath() (string, error) {
	if c.StoreDir != "" {
		return c.StoreDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cli: resolve config dir: %w", err)
	}
	return filepath.Join(base, AppDir, DefaultStoreDir), nil
}
