package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.Server.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Server.DiscoveryTimeout)
	assert.Equal(t, "medlab-client.db", cfg.Storage.Path)
	assert.Empty(t, cfg.Storage.Passphrase)
	assert.False(t, cfg.Session.ForceLogoutOnLaunch)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad_YAML(t *testing.T) {
	path := writeYAML(t, `
server:
  base_url: "http://10.0.0.5:5000/api/"
  candidates:
    - "http://192.168.1.10:5000/api"
    - " "
  timeout: "30s"
storage:
  path: "/tmp/medlab.db"
  passphrase: "secret"
session:
  force_logout_on_launch: true
log:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:5000/api", cfg.Server.BaseURL)
	assert.Equal(t, []string{"http://192.168.1.10:5000/api"}, cfg.Server.Candidates)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "/tmp/medlab.db", cfg.Storage.Path)
	assert.Equal(t, "secret", cfg.Storage.Passphrase)
	assert.True(t, cfg.Session.ForceLogoutOnLaunch)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  base_url: "http://10.0.0.5:5000/api"
`)
	t.Setenv("MEDLAB_SERVER_URL", "https://labs.example.com/api")
	t.Setenv("MEDLAB_SERVER_CANDIDATES", "http://a:5000/api,http://b:5000/api")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://labs.example.com/api", cfg.Server.BaseURL)
	assert.Equal(t, []string{"http://a:5000/api", "http://b:5000/api"}, cfg.Server.Candidates)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:  ServerConfig{BaseURL: "http://localhost:5000/api", Timeout: time.Second, DiscoveryTimeout: time.Second},
			Storage: StorageConfig{Path: "x.db"},
			Log:     LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		mutate  func(c *Config)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad scheme", mutate: func(c *Config) { c.Server.BaseURL = "ftp://host/api" }, wantErr: true},
		{name: "no host", mutate: func(c *Config) { c.Server.BaseURL = "http:///api" }, wantErr: true},
		{name: "bad candidate", mutate: func(c *Config) { c.Server.Candidates = []string{"localhost:5000"} }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Server.Timeout = 0 }, wantErr: true},
		{name: "zero discovery timeout", mutate: func(c *Config) { c.Server.DiscoveryTimeout = 0 }, wantErr: true},
		{name: "empty storage path", mutate: func(c *Config) { c.Storage.Path = " " }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
