// Command cxrd drives a custom view on AR glasses and bridges it to HTTP
// and Home Assistant over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trymwestin/cxr/internal/config"
	"github.com/trymwestin/cxr/internal/core/session"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/transport"
	"github.com/trymwestin/cxr/internal/httpapi"
	"github.com/trymwestin/cxr/internal/mqtt"
	"github.com/trymwestin/cxr/internal/scenes"
)

func main() {
	configPath := flag.String("config", "/data/cxr.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := newDialer(cfg.Bridge, log)
	if err != nil {
		return err
	}

	bus := state.NewEventBus(log.With("component", "bus"))
	store := state.NewStateStore(bus, cfg.View.MessageLimit, log.With("component", "state"))
	sess := session.New(session.Options{
		Device:     cfg.Bridge.Device,
		Secret:     cfg.Bridge.ClientSecret,
		SendRate:   cfg.View.SendRate,
		SendBurst:  cfg.View.SendBurst,
		StrictWire: cfg.View.StrictWire,
		AckTimeout: cfg.View.AckTimeout,
	}, dialer, store, bus, log.With("component", "session"))

	greeting, err := scenes.NewGreeting(sess, cfg.View.IconsDir, log.With("component", "greeting"))
	if err != nil {
		return fmt.Errorf("greeting scene: %w", err)
	}
	protocol := scenes.NewProtocol(sess, log.With("component", "protocol"))
	protocol.Listen(true)

	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewHAPublisher(mqtt.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			DeviceID:    cfg.MQTT.DeviceID,
			DeviceName:  cfg.MQTT.DeviceName,
			Model:       cfg.MQTT.Model,
		}, mqtt.NewSceneCommander(sess, greeting, protocol), store, bus, log.With("component", "mqtt"))
	} else {
		publisher = mqtt.NewStubPublisher(log.With("component", "mqtt"))
	}

	api := httpapi.NewServer(sess, greeting, protocol, cfg.Bridge.Device, cfg.HTTP.UIDir, cfg.HTTP.CORSAll, log.With("component", "http"))
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := sess.Start(ctx); err != nil {
		return err
	}
	if err := publisher.Start(ctx); err != nil {
		_ = sess.Stop(context.Background())
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr, "mode", cfg.Bridge.Mode, "device", cfg.Bridge.Device)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	if err := publisher.Stop(shutdownCtx); err != nil {
		log.Warn("MQTT shutdown failed", "error", err)
	}
	if err := sess.Stop(shutdownCtx); err != nil {
		log.Warn("session shutdown failed", "error", err)
	}
	log.Info("stopped")
	return runErr
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w *os.File) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newDialer picks how the glasses are reached.
func newDialer(cfg config.BridgeConfig, log *slog.Logger) (transport.Dialer, error) {
	log = log.With("component", "transport")
	switch cfg.Mode {
	case config.ModeBridge:
		return transport.NewBridgeDialer(cfg.Addr, log), nil
	case config.ModeRelay:
		return transport.NewRelayDialer(cfg.RelayURL, log), nil
	case config.ModeFallback:
		return transport.NewFallbackDialer(
			transport.NewBridgeDialer(cfg.Addr, log),
			transport.NewRelayDialer(cfg.RelayURL, log),
			log,
		), nil
	default:
		return nil, fmt.Errorf("unknown bridge mode %q", cfg.Mode)
	}
}
