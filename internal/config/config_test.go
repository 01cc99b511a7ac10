package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cxr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  mode: relay
  relay_url: https://relay.example.com
  device: g2
view:
  ack_timeout: 3s
  send_rate: 2.5
mqtt:
  enabled: true
  broker: tcp://broker:1883
`), 0o600))

	t.Setenv("CXR_DEVICE", "g3")
	t.Setenv("CXR_STRICT_WIRE", "false")
	t.Setenv("CXR_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeRelay, cfg.Bridge.Mode)
	assert.Equal(t, "g3", cfg.Bridge.Device)
	assert.Equal(t, 3*time.Second, cfg.View.AckTimeout)
	assert.InDelta(t, 2.5, cfg.View.SendRate, 1e-9)
	assert.False(t, cfg.View.StrictWire)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "cxr", cfg.MQTT.TopicPrefix)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("CXR_ACK_TIMEOUT", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "CXR_ACK_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Bridge.Mode = "carrier pigeon" }, "bridge.mode"},
		{"relay without url", func(c *Config) { c.Bridge.Mode = ModeRelay }, "relay_url"},
		{"fallback without url", func(c *Config) { c.Bridge.Mode = ModeFallback }, "fallback mode"},
		{"no device", func(c *Config) { c.Bridge.Device = "" }, "bridge.device"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
		{"negative rate", func(c *Config) { c.View.SendRate = -1 }, "send_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Defaults().Validate())
}
