package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/checkline-lab/checkline/internal/source"
)

// Config represents the top-level application config plus the resolved
// source manifest.
type Config struct {
	API     APIConfig     `koanf:"api"`
	Check   CheckConfig   `koanf:"check"`
	Sources SourcesConfig `koanf:"sources"`
	Run     RunConfig     `koanf:"run"`
	Server  ServerConfig  `koanf:"server"`

	// SourceLoading is populated by Load after parsing the manifest dir.
	SourceLoading SourceLoadingConfig `koanf:"-"`
}

// APIConfig holds the live checks-API connection settings. An empty base URL
// or token leaves the API source unavailable rather than failing startup.
type APIConfig struct {
	BaseURL        string `koanf:"base_url"`
	Token          string `koanf:"token"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// CheckConfig holds per-run check settings.
type CheckConfig struct {
	Currency string `koanf:"currency"`
}

// SourcesConfig holds settings for the file-backed source manifest.
type SourcesConfig struct {
	ConfigDir string `koanf:"config_dir"`
}

// RunConfig controls aggregation execution.
type RunConfig struct {
	Parallel bool `koanf:"parallel"`
}

// ServerConfig holds the viewer server configuration.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Mode    string `koanf:"mode"` // debug | release
}

type SourceLoadingConfig struct {
	ConfigDir string
	Specs     []source.Spec
}

// Timeout returns the API timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}

	if code := strings.TrimSpace(c.Check.Currency); len(code) != 3 {
		return fmt.Errorf("invalid check.currency %q (must be a 3-letter ISO 4217 code)", c.Check.Currency)
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
		}
		if strings.TrimSpace(c.Server.Host) == "" {
			return fmt.Errorf("server.host is required")
		}
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates
// the source manifest.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"api.base_url":        "",
		"api.token":           "",
		"api.timeout_seconds": 15,
		"check.currency":      "GBP",
		"sources.config_dir":  "./config/sources",
		"run.parallel":        false,
		"server.enabled":      false,
		"server.host":         "127.0.0.1",
		"server.port":         8099,
		"server.mode":         "release",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("CHECKLINE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CHECKLINE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manifest, err := source.NewFileSystemManifest(cfg.Sources.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load source manifest: %w", err)
	}

	cfg.SourceLoading = SourceLoadingConfig{
		ConfigDir: cfg.Sources.ConfigDir,
		Specs:     manifest.Specs(),
	}

	return &cfg, nil
}
