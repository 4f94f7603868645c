// Package config provides configuration management for dotkeep.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotkeep/dotkeep/internal/manifest"
	"gopkg.in/yaml.v3"
)

// EnvRepository is the environment variable overriding the persisted
// remote repository.
const EnvRepository = "DOTKEEP_REPO"

// FallbackRepository is used when no repository is configured anywhere.
const FallbackRepository = "dotfiles/backups"

// DefaultConfigDir returns the default config directory (~/.dotkeep).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".dotkeep"), nil
}

// DefaultConfigPath returns the default config file path (~/.dotkeep/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Config holds the tool's persisted configuration.
type Config struct {
	Repository     string              `yaml:"repository,omitempty"`
	Compression    string              `yaml:"compression,omitempty"`
	Level          int                 `yaml:"level,omitempty"`
	RetentionCap   int                 `yaml:"retention_cap,omitempty"`
	PublishTimeout string              `yaml:"publish_timeout,omitempty"`
	Items          []manifest.ItemSpec `yaml:"items,omitempty"`
}

// Load reads the configuration from the given path.
// If the file does not exist, an empty config is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the configuration to the given path, creating directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// SaveDefault saves the configuration to the default path.
func (c *Config) SaveDefault() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.Save(path)
}

// ResolveRepository applies the repository resolution precedence:
// explicit flag, then environment, then persisted config, then the
// hardcoded fallback. It also reports which source won.
func ResolveRepository(flagValue string, cfg *Config) (repo, source string) {
	if flagValue != "" {
		return flagValue, "flag"
	}
	if env := os.Getenv(EnvRepository); env != "" {
		return env, "environment"
	}
	if cfg != nil && cfg.Repository != "" {
		return cfg.Repository, "config"
	}
	return FallbackRepository, "fallback"
}

// RemoteURL expands an owner/name repository shorthand into a clone URL.
// Values that already look like URLs pass through unchanged.
func RemoteURL(repo string) string {
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		return repo
	}
	return "https://github.com/" + repo + ".git"
}

// PublishTimeoutDuration parses the optional publish timeout. Zero means
// no timeout is enforced.
func (c *Config) PublishTimeoutDuration() (time.Duration, error) {
	if c.PublishTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.PublishTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse publish_timeout: %w", err)
	}
	return d, nil
}

// ItemSpecs returns the configured item list, or the given defaults when
// the config does not override it.
func (c *Config) ItemSpecs(defaults []manifest.ItemSpec) []manifest.ItemSpec {
	if len(c.Items) > 0 {
		return c.Items
	}
	return defaults
}
