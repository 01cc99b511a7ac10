package main

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trymwestin/cxr/internal/config"
	"github.com/trymwestin/cxr/internal/core/transport"
)

func TestNewDialer(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	d, err := newDialer(config.BridgeConfig{Mode: config.ModeBridge, Addr: "127.0.0.1:7300"}, log)
	require.NoError(t, err)
	assert.IsType(t, &transport.BridgeDialer{}, d)

	d, err = newDialer(config.BridgeConfig{Mode: config.ModeRelay, RelayURL: "https://relay.example"}, log)
	require.NoError(t, err)
	assert.IsType(t, &transport.RelayDialer{}, d)

	d, err = newDialer(config.BridgeConfig{Mode: config.ModeFallback, Addr: "127.0.0.1:7300", RelayURL: "https://relay.example"}, log)
	require.NoError(t, err)
	assert.IsType(t, &transport.FallbackDialer{}, d)

	_, err = newDialer(config.BridgeConfig{Mode: "carrier-pigeon"}, log)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log := newLogger(config.LogConfig{Level: "debug", Format: "json"}, os.Stderr)
	assert.IsType(t, &slog.JSONHandler{}, log.Handler())

	log = newLogger(config.LogConfig{Level: "nonsense", Format: "text"}, os.Stderr)
	assert.IsType(t, &slog.TextHandler{}, log.Handler())
}
