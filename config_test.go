package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartcrest.cfg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
endpoint: "https://example.org/badge/{}"
client_id: door-1
log_level: debug
api:
  username: door
  password: secret
reader:
  command: "FF CA 00 00 00"
mqtt:
  host: broker.local
indicator:
  green_line: 17
  flash_ms: 500
metrics:
  listen: ":9090"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/badge/{}", cfg.Endpoint)
	assert.Equal(t, "door-1", cfg.ClientID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "door", cfg.API.Username)
	assert.Equal(t, "pcsc", cfg.Reader.Type)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	require.NotNil(t, cfg.Indicator.GreenLine)
	assert.Equal(t, 17, *cfg.Indicator.GreenLine)
	assert.Nil(t, cfg.Indicator.RedLine)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `endpoint: "http://localhost/{}"`))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "pcsc", cfg.Reader.Type)
	assert.NotEmpty(t, cfg.ClientID)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing endpoint", `client_id: door-1`},
		{"endpoint without placeholder", `endpoint: "https://example.org/badge"`},
		{"bad command", "endpoint: \"https://example.org/{}\"\nreader:\n  command: xyz"},
		{"bad log level", "endpoint: \"https://example.org/{}\"\nlog_level: loud"},
		{"not yaml", `endpoint: [unterminated`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.cfg"))
	assert.Error(t, err)
}
