package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "GBP", cfg.Check.Currency)
	require.Equal(t, 15, cfg.API.TimeoutSeconds)
	require.False(t, cfg.Run.Parallel)
	require.False(t, cfg.Server.Enabled)
	require.Equal(t, "release", cfg.Server.Mode)
	require.Equal(t, 8099, cfg.Server.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
api:
  base_url: https://api.example.com
  token: secret
  timeout_seconds: 30
check:
  currency: EUR
run:
  parallel: true
sources:
  config_dir: `+filepath.Join(dir, "sources")+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	require.Equal(t, 30, cfg.API.TimeoutSeconds)
	require.Equal(t, "EUR", cfg.Check.Currency)
	require.True(t, cfg.Run.Parallel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
check:
  currency: EUR
sources:
  config_dir: `+filepath.Join(dir, "sources")+`
`)
	t.Setenv("CHECKLINE_CHECK__CURRENCY", "USD")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.Check.Currency)
}

func TestLoad_LoadsSourceManifest(t *testing.T) {
	dir := t.TempDir()
	sourcesDir := filepath.Join(dir, "sources")
	require.NoError(t, os.Mkdir(sourcesDir, 0o755))
	writeFile(t, sourcesDir, "archive.yaml", "name: archive\nkind: snapshot\nglob: ./archive/*.json\n")

	path := writeFile(t, dir, "config.yaml", "sources:\n  config_dir: "+sourcesDir+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.SourceLoading.Specs, 1)
	require.Equal(t, "archive", cfg.SourceLoading.Specs[0].Name)
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API:    APIConfig{TimeoutSeconds: 15},
			Check:  CheckConfig{Currency: "GBP"},
			Server: ServerConfig{Host: "127.0.0.1", Port: 8099, Mode: "release"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }, true},
		{"bad currency", func(c *Config) { c.Check.Currency = "POUNDS" }, true},
		{"bad mode", func(c *Config) { c.Server.Mode = "verbose" }, true},
		{"server enabled without port", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }, true},
		{"server enabled without host", func(c *Config) { c.Server.Enabled = true; c.Server.Host = "" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
