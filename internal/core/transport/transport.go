// Package transport carries frames between the daemon and the bridge process
// that owns the link to the glasses.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"
)

// Conn represents a WebSocket connection that sends/receives frames.
type Conn interface {
	// Send writes one frame as a binary message.
	Send(ctx context.Context, f *Frame) error
	// Recv blocks until a frame is received or the connection fails.
	Recv(ctx context.Context) (*Frame, error)
	// Close closes the underlying connection.
	Close() error
	// Ping sends a WebSocket-level ping frame.
	Ping() error
	// SetReadDeadline sets the read deadline on the underlying connection.
	SetReadDeadline(t time.Time) error
}

// Dialer creates connections for a paired device.
type Dialer interface {
	Dial(ctx context.Context, device string, secret string) (Conn, error)
}

// ReadTimeout is how long a connection may stay silent before reads fail.
// Pongs extend it.
const ReadTimeout = 60 * time.Second

// --- WebSocket Conn implementation ---

type wsConn struct {
	ws  *websocket.Conn
	mu  sync.Mutex // protects writes
	log *slog.Logger
}

// NewConn wraps an established websocket. Used by dialers and by servers
// that accept bridge connections.
func NewConn(ws *websocket.Conn, log *slog.Logger) Conn {
	c := &wsConn{ws: ws, log: log}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ReadTimeout))
	})
	return c
}

func (c *wsConn) Send(_ context.Context, f *Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *wsConn) Recv(_ context.Context) (*Frame, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}

	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("transport: unexpected message type %d", msgType)
	}

	var f Frame
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *wsConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(5*time.Second))
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func dial(ctx context.Context, d *websocket.Dialer, target string, header http.Header) (*websocket.Conn, error) {
	ws, resp, err := d.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return ws, nil
}

// --- Bridge Dialer ---

// BridgeDialer connects to the companion bridge on the local network.
type BridgeDialer struct {
	addr string
	log  *slog.Logger
}

// NewBridgeDialer creates a LAN dialer for the bridge listening on addr (host:port).
func NewBridgeDialer(addr string, log *slog.Logger) *BridgeDialer {
	return &BridgeDialer{addr: addr, log: log}
}

// URL returns the websocket endpoint for device.
func (d *BridgeDialer) URL(device string) string {
	return fmt.Sprintf("ws://%s/v1/glasses/%s", d.addr, url.PathEscape(device))
}

// Dial connects to the bridge directly.
func (d *BridgeDialer) Dial(ctx context.Context, device string, secret string) (Conn, error) {
	target := d.URL(device)

	header := http.Header{}
	header.Set("Authorization", "token "+secret)

	d.log.Info("dialing bridge", "url", target, "device", device)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, err := dial(ctx, &dialer, target, header)
	if err != nil {
		return nil, fmt.Errorf("transport: bridge dial %s: %w", target, err)
	}

	d.log.Info("connected to bridge", "device", device)
	return NewConn(ws, d.log), nil
}

// --- Relay Dialer ---

// RelayDialer connects through a hosted relay.
type RelayDialer struct {
	base string
	log  *slog.Logger
}

// NewRelayDialer creates a relay dialer. base may use http(s) or ws(s).
func NewRelayDialer(base string, log *slog.Logger) *RelayDialer {
	return &RelayDialer{base: strings.TrimSuffix(base, "/"), log: log}
}

// URL returns the websocket endpoint for device.
func (d *RelayDialer) URL(device string) string {
	wsBase := d.base
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	return fmt.Sprintf("%s/v1/relay/glasses/%s", wsBase, url.PathEscape(device))
}

// Dial connects to the device via the relay.
func (d *RelayDialer) Dial(ctx context.Context, device string, secret string) (Conn, error) {
	target := d.URL(device)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+secret)

	d.log.Info("dialing relay", "url", target, "device", device)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, err := dial(ctx, &dialer, target, header)
	if err != nil {
		return nil, fmt.Errorf("transport: relay dial %s: %w", target, err)
	}

	d.log.Info("connected via relay", "device", device)
	return NewConn(ws, d.log), nil
}

// --- Fallback Dialer ---

// Bridge breaker defaults: after BridgeMaxFailures consecutive bridge dial
// failures the bridge is skipped for BridgeRetryAfter.
const (
	BridgeMaxFailures uint32 = 3
	BridgeRetryAfter         = 2 * time.Minute
)

// FallbackDialer tries the bridge first, falling back to the relay on failure.
// A circuit breaker stops probing an unreachable bridge on every reconnect.
type FallbackDialer struct {
	bridge  Dialer
	relay   Dialer
	breaker *gobreaker.CircuitBreaker[Conn]
	log     *slog.Logger
}

// NewFallbackDialer creates a dialer that tries bridge first, then relay.
func NewFallbackDialer(bridge, relay Dialer, log *slog.Logger) *FallbackDialer {
	return newFallbackDialer(bridge, relay, BridgeMaxFailures, BridgeRetryAfter, log)
}

func newFallbackDialer(bridge, relay Dialer, maxFailures uint32, retryAfter time.Duration, log *slog.Logger) *FallbackDialer {
	cb := gobreaker.NewCircuitBreaker[Conn](gobreaker.Settings{
		Name:        "bridge",
		MaxRequests: 1,
		Timeout:     retryAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("bridge breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &FallbackDialer{bridge: bridge, relay: relay, breaker: cb, log: log}
}

// BridgeState reports whether the bridge is currently being skipped.
func (d *FallbackDialer) BridgeState() gobreaker.State {
	return d.breaker.State()
}

// Dial attempts the bridge first; if it fails, falls back to the relay.
func (d *FallbackDialer) Dial(ctx context.Context, device string, secret string) (Conn, error) {
	conn, err := d.breaker.Execute(func() (Conn, error) {
		return d.bridge.Dial(ctx, device, secret)
	})
	if err == nil {
		return conn, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		d.log.Debug("bridge skipped, dialing relay", "device", device)
	} else {
		d.log.Warn("bridge dial failed, falling back to relay", "device", device, "error", err)
	}

	return d.relay.Dial(ctx, device, secret)
}
