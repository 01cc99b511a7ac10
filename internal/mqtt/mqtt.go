// Package mqtt provides MQTT publishing for Home Assistant integration.
// It defines the Publisher interface and includes both a StubPublisher (no-op)
// and a full HAPublisher that connects to an MQTT broker, publishes HA
// auto-discovery configs, relays commands to the glasses, and forwards state
// updates from the EventBus.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/state"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends events and state to an MQTT broker.
type Publisher interface {
	// Start begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	DeviceID    string
	DeviceName  string
	Model       string
}

// ---------------------------------------------------------------------------
// Commander – abstraction over the glasses operations
// ---------------------------------------------------------------------------

// Commander carries out commands received over MQTT.
type Commander interface {
	SetViewOpen(ctx context.Context, open bool) error
	SetText(ctx context.Context, text string) error
	SendCustom(ctx context.Context, name string, values *caps.Container) error
	SendDemo(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// HAPublisher – full Home Assistant MQTT implementation
// ---------------------------------------------------------------------------

var _ Publisher = (*HAPublisher)(nil)

// HAPublisher publishes Home Assistant auto-discovery configs, subscribes to
// command topics and relays commands to the glasses, and forwards state
// updates from the EventBus.
type HAPublisher struct {
	cfg   MQTTConfig
	cmd   Commander
	store state.StateReader
	bus   *state.EventBus
	log   *slog.Logger

	client pahomqtt.Client

	unsub func() // EventBus unsubscribe
	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher.
func NewHAPublisher(cfg MQTTConfig, cmd Commander, store state.StateReader, bus *state.EventBus, log *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:   cfg,
		cmd:   cmd,
		store: store,
		bus:   bus,
		log:   log,
		stopC: make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

// Start connects to the MQTT broker and starts listening on the EventBus.
// Discovery, command subscriptions and the state snapshot are (re)published
// on every connect.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("cxr-%s", p.cfg.DeviceID)).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event loop.
func (p *HAPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	close(p.stopC)

	if p.unsub != nil {
		p.unsub()
	}

	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// onConnect – called on every (re)connect
// ---------------------------------------------------------------------------

func (p *HAPublisher) onConnect() {
	p.publish(p.topic("status"), "online", true)
	p.publishDiscovery()
	p.subscribeCommands()

	// HA birth message triggers re-discovery
	p.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.log.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	p.publishFullState()
}

// ---------------------------------------------------------------------------
// Discovery configs
// ---------------------------------------------------------------------------

func (p *HAPublisher) deviceInfo() map[string]any {
	return map[string]any{
		"identifiers":  []string{p.cfg.DeviceID},
		"name":         p.cfg.DeviceName,
		"manufacturer": "Rokid",
		"model":        p.cfg.Model,
	}
}

// discoveryTopic builds the HA auto-discovery topic.
func discoveryTopic(component, deviceID, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s_%s/config", component, deviceID, objectID)
}

func (p *HAPublisher) publishDiscovery() {
	dev := p.deviceInfo()
	avail := map[string]any{
		"topic": p.topic("status"),
	}
	id := p.cfg.DeviceID

	p.publishDiscoveryConfig("switch", "custom_view", map[string]any{
		"name":          fmt.Sprintf("%s Custom View", p.cfg.DeviceName),
		"unique_id":     fmt.Sprintf("%s_custom_view", id),
		"state_topic":   p.topic("view/state"),
		"command_topic": p.topic("view/set"),
		"payload_on":    "ON",
		"payload_off":   "OFF",
		"device":        dev,
		"availability":  avail,
	})

	p.publishDiscoveryConfig("binary_sensor", "connection", map[string]any{
		"name":         fmt.Sprintf("%s Connection", p.cfg.DeviceName),
		"unique_id":    fmt.Sprintf("%s_connection", id),
		"state_topic":  p.topic("connection/state"),
		"device_class": "connectivity",
		"payload_on":   "ON",
		"payload_off":  "OFF",
		"device":       dev,
		"availability": avail,
	})

	p.publishDiscoveryConfig("sensor", "last_message", map[string]any{
		"name":                  fmt.Sprintf("%s Last Message", p.cfg.DeviceName),
		"unique_id":             fmt.Sprintf("%s_last_message", id),
		"state_topic":           p.topic("message/state"),
		"value_template":        "{{ value_json.rendered[:255] }}",
		"json_attributes_topic": p.topic("message/state"),
		"device":                dev,
		"availability":          avail,
	})

	p.publishDiscoveryConfig("text", "greeting_text", map[string]any{
		"name":          fmt.Sprintf("%s Greeting Text", p.cfg.DeviceName),
		"unique_id":     fmt.Sprintf("%s_greeting_text", id),
		"command_topic": p.topic("text/set"),
		"max":           255,
		"device":        dev,
		"availability":  avail,
	})

	p.publishDiscoveryConfig("button", "send_demo", map[string]any{
		"name":          fmt.Sprintf("%s Send Demo Message", p.cfg.DeviceName),
		"unique_id":     fmt.Sprintf("%s_send_demo", id),
		"command_topic": p.topic("demo/press"),
		"payload_press": "PRESS",
		"device":        dev,
		"availability":  avail,
	})
}

func (p *HAPublisher) publishDiscoveryConfig(component, objectID string, payload map[string]any) {
	topic := discoveryTopic(component, p.cfg.DeviceID, objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal discovery config", "component", component, "object_id", objectID, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// ---------------------------------------------------------------------------
// Command subscriptions
// ---------------------------------------------------------------------------

func (p *HAPublisher) subscribeCommands() {
	cmds := map[string]pahomqtt.MessageHandler{
		p.topic("view/set"):    p.handleViewCmd,
		p.topic("text/set"):    p.handleTextCmd,
		p.topic("custom/send"): p.handleCustomCmd,
		p.topic("demo/press"):  p.handleDemoCmd,
	}

	for t, h := range cmds {
		token := p.client.Subscribe(t, 1, h)
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Error("failed to subscribe to command topic", "topic", t, "error", err)
		}
	}
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func (p *HAPublisher) handleViewCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
	p.log.Info("MQTT command: custom_view", "open", on)
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.cmd.SetViewOpen(ctx, on); err != nil {
		p.log.Error("failed to set custom view", "error", err)
	}
}

func (p *HAPublisher) handleTextCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	text := string(msg.Payload())
	p.log.Info("MQTT command: greeting_text", "text", text)
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.cmd.SetText(ctx, text); err != nil {
		p.log.Error("failed to set greeting text", "error", err)
	}
}

type customPayload struct {
	Name   string          `json:"name"`
	Values *caps.Container `json:"values"`
}

func (p *HAPublisher) handleCustomCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	var body customPayload
	if err := json.Unmarshal(msg.Payload(), &body); err != nil {
		p.log.Error("invalid custom command payload", "error", err)
		return
	}
	if body.Values == nil {
		body.Values = caps.New()
	}
	p.log.Info("MQTT command: custom", "name", body.Name, "entries", body.Values.Len())
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.cmd.SendCustom(ctx, body.Name, body.Values); err != nil {
		p.log.Error("failed to send custom command", "name", body.Name, "error", err)
	}
}

func (p *HAPublisher) handleDemoCmd(_ pahomqtt.Client, _ pahomqtt.Message) {
	p.log.Info("MQTT command: send_demo")
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.cmd.SendDemo(ctx); err != nil {
		p.log.Error("failed to send demo message", "error", err)
	}
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

// publishFullState publishes the complete state snapshot.
func (p *HAPublisher) publishFullState() {
	snap := p.store.Snapshot()

	p.publish(p.topic("connection/state"), boolToOnOff(snap.Link.Connected), true)
	p.publish(p.topic("view/state"), boolToOnOff(snap.View.Open), true)
	if n := len(snap.Messages); n > 0 {
		p.publishMessage(snap.Messages[n-1])
	}
}

type messageState struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Direction state.Direction `json:"direction"`
	Rendered  string          `json:"rendered"`
	At        time.Time       `json:"at"`
}

func (p *HAPublisher) publishMessage(m state.Message) {
	data, err := json.Marshal(messageState{
		ID:        m.ID,
		Channel:   m.Channel,
		Direction: m.Direction,
		Rendered:  m.Rendered,
		At:        m.At,
	})
	if err != nil {
		p.log.Error("failed to marshal message state", "error", err)
		return
	}
	p.publish(p.topic("message/state"), string(data), true)
}

// ---------------------------------------------------------------------------
// EventBus loop
// ---------------------------------------------------------------------------

func (p *HAPublisher) eventLoop(ch <-chan state.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *HAPublisher) handleEvent(evt state.Event) {
	switch evt.Type {
	case state.EventConnected:
		p.publish(p.topic("connection/state"), "ON", true)

	case state.EventDisconnected:
		p.publish(p.topic("connection/state"), "OFF", true)
		p.publish(p.topic("view/state"), "OFF", true)

	case state.EventViewOpened:
		p.publish(p.topic("view/state"), "ON", true)

	case state.EventViewClosed, state.EventViewOpenFailed:
		p.publish(p.topic("view/state"), "OFF", true)

	case state.EventMessageReceived, state.EventMessageSent:
		m, ok := evt.Data.(state.Message)
		if !ok {
			p.log.Warn("unexpected data type for message event", "event_type", evt.Type)
			return
		}
		p.publishMessage(m)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{device_id}/{suffix}.
func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceID, suffix)
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *HAPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}

func boolToOnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
