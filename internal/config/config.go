// Package config loads the global ~/.candid/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds the tunables of the chat core.
type Config struct {
	DefaultWorkspace string `toml:"default_workspace" validate:"omitempty,lowercase"`

	// CacheTTLSeconds bounds how long a cached page is served before
	// reads fall through to the store again.
	CacheTTLSeconds int `toml:"cache_ttl_seconds" validate:"gte=1,lte=3600"`

	// PageSize caps a single message fetch.
	PageSize int `toml:"page_size" validate:"gte=1,lte=200"`

	// PresenceScope names the default presence channel scope.
	PresenceScope string `toml:"presence_scope" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultWorkspace: "default",
		CacheTTLSeconds:  300, // 5 minutes
		PageSize:         50,
		PresenceScope:    "global",
	}
}

// CacheTTL returns the cache timeout as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load reads config from the given path, filling unset fields from
// defaults, and validates the result. A missing file is not an error:
// a fresh machine runs on defaults until something calls Save.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
