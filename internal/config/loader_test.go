package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsEnvOverridesDefaults(t *testing.T) {
	s, err := LoadSettings(envFrom(map[string]string{
		"PROXY_PORT":          "9090",
		"PROXY_HTTP_BACKEND":  "http://example.com:80",
		"PROXY_GRPC_BACKENDS": "http://a:1;http://b:2",
		"PROXY_ENABLE_TLS":    "false",
	}))
	require.NoError(t, err)
	assert.Equal(t, 9090, s.Port)
	assert.Equal(t, "http://example.com:80", s.HTTPBackend)
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, s.GRPCBackends)
	assert.False(t, s.EnableTLS)
}

func TestLoadSettingsInvalidPort(t *testing.T) {
	_, err := LoadSettings(envFrom(map[string]string{"PROXY_PORT": "not-a-number"}))
	assert.Error(t, err)
}

func TestLoadSettingsFileOverlayThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 6000
http_backend: http://file-backend:7000
enable_tls: false
`), 0o600))

	env := map[string]string{
		"PROXY_CONFIG_PATH": path,
		"PROXY_PORT":        "7000", // env overrides file
	}
	s, err := LoadSettings(envFrom(env))
	require.NoError(t, err)
	assert.Equal(t, 7000, s.Port)                               // env won
	assert.Equal(t, "http://file-backend:7000", s.HTTPBackend) // from file
	assert.False(t, s.EnableTLS)                                // from file
}

func TestLoadSettingsMissingConfigFile(t *testing.T) {
	_, err := LoadSettings(envFrom(map[string]string{
		"PROXY_CONFIG_PATH": "/does/not/exist.yaml",
	}))
	assert.Error(t, err)
}

func TestBuildProxyConfigFromDefaults(t *testing.T) {
	cfg, err := BuildProxyConfig(DefaultSettings())
	require.NoError(t, err)
	assert.Len(t, cfg.Routes, 2)

	api, ok := cfg.Cluster("api")
	require.True(t, ok)
	assert.Len(t, api.Destinations, 1)

	grpc, ok := cfg.Cluster("grpc")
	require.True(t, ok)
	assert.Len(t, grpc.Destinations, 2)
}

func TestBuildProxyConfigRejectsInvalidBackendURL(t *testing.T) {
	s := DefaultSettings()
	s.HTTPBackend = "not a url \x00"
	_, err := BuildProxyConfig(s)
	assert.Error(t, err)
}
