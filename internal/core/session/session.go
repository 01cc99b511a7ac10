// Package session keeps the link to the glasses alive and exposes the custom
// view and custom command operations on top of it.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/transport"
	"github.com/trymwestin/cxr/internal/core/viewproto"
	"golang.org/x/time/rate"
)

var (
	ErrNotConnected = errors.New("session: not connected")
	ErrViewNotOpen  = errors.New("session: custom view is not open")
	ErrNoIcons      = errors.New("session: no icons to send")
	ErrEmptyChannel = errors.New("session: empty command name")
	ErrTimeout      = errors.New("session: response timeout")
)

// OpenFailedError carries the code the glasses reported for a rejected open.
type OpenFailedError struct {
	Code int32
}

func (e *OpenFailedError) Error() string {
	return fmt.Sprintf("session: custom view open failed (code %d)", e.Code)
}

// StatusError is returned when the bridge acknowledges a frame with a
// non-zero status.
type StatusError struct {
	Op     string
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("session: %s failed (status %d)", e.Op, e.Status)
}

// Icon is a named PNG image referenced by ImageView nodes.
type Icon struct {
	Name string
	Data []byte
}

type iconWire struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// Handler receives an inbound custom command. Handlers run on the read loop
// and must not block.
type Handler func(ctx context.Context, name string, values *caps.Container)

// Options configures a Session.
type Options struct {
	Device     string
	Secret     string
	SendRate   float64 // frames per second, 0 disables pacing
	SendBurst  int
	StrictWire bool // schema-check view documents before sending
	AckTimeout time.Duration
	KeepAlive  time.Duration
}

func (o *Options) defaults() {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 25 * time.Second
	}
	if o.SendBurst <= 0 {
		o.SendBurst = 1
	}
}

// Session manages the connection to one pair of glasses.
type Session struct {
	opts    Options
	dialer  transport.Dialer
	store   *state.StateStore
	bus     *state.EventBus
	limiter *rate.Limiter
	log     *slog.Logger

	conn    transport.Conn
	connMu  sync.Mutex
	seq     atomic.Uint64
	cancel  context.CancelFunc
	stopped chan struct{}
	running atomic.Bool

	// pending tracks sequence numbers waiting for a reply
	pending   map[uint64]chan *transport.Frame
	pendingMu sync.Mutex
	wakeCh    chan struct{}

	handlers   map[string]Handler
	handlersMu sync.RWMutex
}

// New creates a session. Call Start to connect.
func New(
	opts Options,
	dialer transport.Dialer,
	store *state.StateStore,
	bus *state.EventBus,
	log *slog.Logger,
) *Session {
	opts.defaults()
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	return &Session{
		opts:     opts,
		dialer:   dialer,
		store:    store,
		bus:      bus,
		limiter:  rate.NewLimiter(limit, opts.SendBurst),
		log:      log,
		pending:  make(map[uint64]chan *transport.Frame),
		wakeCh:   make(chan struct{}, 1),
		handlers: make(map[string]Handler),
	}
}

// Start connects to the glasses and begins the read/keepalive loops.
// It will reconnect with exponential backoff on failures.
func (s *Session) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("session: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.running.Store(true)

	go s.runLoop(ctx)
	return nil
}

// Stop disconnects and stops all goroutines.
func (s *Session) Stop(_ context.Context) error {
	if !s.running.Load() {
		return nil
	}
	s.cancel()
	<-s.stopped
	s.running.Store(false)
	return nil
}

// State returns the state store for reading current state.
func (s *Session) State() *state.StateStore {
	return s.store
}

// Bus returns the event bus for subscribing to events.
func (s *Session) Bus() *state.EventBus {
	return s.bus
}

// Connected returns whether the link is currently up.
func (s *Session) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// --- Custom view ---

// OpenView shows the tree rooted at root as the custom view.
func (s *Session) OpenView(ctx context.Context, root *viewproto.Node) error {
	doc, err := root.ToWire()
	if err != nil {
		return fmt.Errorf("session: open view: %w", err)
	}
	if s.opts.StrictWire {
		if err := viewproto.CheckDocument([]byte(doc)); err != nil {
			return fmt.Errorf("session: open view: %w", err)
		}
	}

	resp, err := s.request(ctx, &transport.Frame{Kind: transport.KindOpenView, Payload: []byte(doc)}, "open view")
	if err != nil {
		return err
	}
	if resp.Kind == transport.KindViewOpenFailed {
		return &OpenFailedError{Code: resp.Status}
	}
	return nil
}

// UpdateView applies a batch of edits to the open view.
func (s *Session) UpdateView(ctx context.Context, batch *viewproto.UpdateBatch) error {
	doc, err := batch.ToWire()
	if err != nil {
		return fmt.Errorf("session: update view: %w", err)
	}
	if s.opts.StrictWire {
		if err := viewproto.CheckUpdate([]byte(doc)); err != nil {
			return fmt.Errorf("session: update view: %w", err)
		}
	}
	if !s.store.ViewOpen() {
		return ErrViewNotOpen
	}

	_, err = s.request(ctx, &transport.Frame{Kind: transport.KindUpdateView, Payload: []byte(doc)}, "update view")
	return err
}

// CloseView dismisses the custom view. Closing a view that is not open is
// not an error.
func (s *Session) CloseView(ctx context.Context) error {
	_, err := s.request(ctx, &transport.Frame{Kind: transport.KindCloseView}, "close view")
	return err
}

// SendIcons uploads named images for ImageView nodes to reference.
func (s *Session) SendIcons(ctx context.Context, icons []Icon) error {
	if len(icons) == 0 {
		return ErrNoIcons
	}
	wire := make([]iconWire, 0, len(icons))
	for _, ic := range icons {
		if _, err := viewproto.ValidateReference(ic.Name); err != nil {
			return fmt.Errorf("session: icon name: %w", err)
		}
		if len(ic.Data) == 0 {
			return fmt.Errorf("session: icon %q is empty", ic.Name)
		}
		wire = append(wire, iconWire{Name: ic.Name, Data: base64.StdEncoding.EncodeToString(ic.Data)})
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("session: encode icons: %w", err)
	}

	_, err = s.request(ctx, &transport.Frame{Kind: transport.KindViewIcons, Payload: payload}, "send icons")
	return err
}

// --- Custom commands ---

// SendCustom sends values under the command name without waiting for a
// reply.
func (s *Session) SendCustom(ctx context.Context, name string, values *caps.Container) error {
	if name == "" {
		return ErrEmptyChannel
	}
	payload, err := caps.Encode(values)
	if err != nil {
		return fmt.Errorf("session: send %q: %w", name, err)
	}

	conn, err := s.currentConn()
	if err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	f := &transport.Frame{Kind: transport.KindCustomCmd, Channel: name, Seq: s.seq.Add(1), Payload: payload}
	s.log.Debug("sending custom command", "name", name, "seq", f.Seq, "entries", values.Len())
	if err := conn.Send(ctx, f); err != nil {
		return fmt.Errorf("session: send %q: %w", name, err)
	}

	s.store.AddMessage(state.Message{Channel: name, Direction: state.DirectionOut, Values: values})
	return nil
}

// OnCustom registers the handler for inbound commands with the given name.
// A nil handler removes the registration.
func (s *Session) OnCustom(name string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if h == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = h
}

func (s *Session) handler(name string) Handler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[name]
}

// --- Request/response plumbing ---

func (s *Session) currentConn() (transport.Conn, error) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// exchange sends f and waits for the frame that answers its sequence number.
func (s *Session) exchange(ctx context.Context, f *transport.Frame) (*transport.Frame, error) {
	conn, err := s.currentConn()
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	seq := s.seq.Add(1)
	f.Seq = seq

	respCh := make(chan *transport.Frame, 1)
	s.pendingMu.Lock()
	s.pending[seq] = respCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, seq)
		s.pendingMu.Unlock()
	}()

	s.log.Debug("sending frame", "kind", f.Kind, "seq", seq)
	if err := conn.Send(ctx, f); err != nil {
		s.log.Error("failed to send frame", "kind", f.Kind, "seq", seq, "error", err)
		return nil, fmt.Errorf("session: send: %w", err)
	}

	timer := time.NewTimer(s.opts.AckTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrNotConnected
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w for %s %d", ErrTimeout, f.Kind, seq)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) request(ctx context.Context, f *transport.Frame, op string) (*transport.Frame, error) {
	if err := s.ensureConnected(ctx, 20*time.Second); err != nil {
		return nil, fmt.Errorf("session: %s: %w", op, err)
	}

	resp, err := s.exchange(ctx, f)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrTimeout) {
			return nil, err
		}
		s.disconnect()
		s.signalWake()
		if waitErr := s.ensureConnected(ctx, 15*time.Second); waitErr != nil {
			return nil, fmt.Errorf("session: %s: reconnect failed: %w", op, err)
		}
		resp, err = s.exchange(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("session: %s: %w", op, err)
		}
	}

	if resp.Status != 0 && resp.Kind != transport.KindViewOpenFailed {
		return nil, &StatusError{Op: op, Status: resp.Status}
	}
	return resp, nil
}

func (s *Session) signalWake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Session) ensureConnected(ctx context.Context, timeout time.Duration) error {
	if s.Connected() {
		return nil
	}

	s.signalWake()

	deadline := time.After(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: connection timeout after %s", ErrNotConnected, timeout)
		case <-ticker.C:
			if s.Connected() {
				return nil
			}
		}
	}
}

// --- Connection lifecycle ---

func (s *Session) runLoop(ctx context.Context) {
	defer close(s.stopped)

	backoff := time.Second
	maxBackoff := 2 * time.Minute

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return
		default:
		}

		connected, err := s.connectAndRun(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("session: shutting down")
				s.disconnect()
				return
			}
			s.log.Error("session: connection error", "error", err, "retry_in", backoff, "device", s.opts.Device)
		}

		s.disconnect()

		if connected {
			backoff = time.Second
		}

		// a wake signal skips the wait
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wakeCh:
			timer.Stop()
			backoff = time.Second
			s.log.Info("wake signal received, reconnecting immediately")
			continue
		case <-timer.C:
		}

		backoff = time.Duration(math.Min(float64(backoff)*2, float64(maxBackoff)))
	}
}

func (s *Session) connectAndRun(ctx context.Context) (connected bool, err error) {
	s.log.Info("attempting connection", "device", s.opts.Device)

	conn, err := s.dialer.Dial(ctx, s.opts.Device, s.opts.Secret)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.store.SetConnected(true)
	connected = true

	// extended by the pong handler and by incoming frames
	_ = conn.SetReadDeadline(time.Now().Add(transport.ReadTimeout))

	// unblocks Recv on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	keepaliveCtx, keepaliveCancel := context.WithCancel(ctx)
	defer keepaliveCancel()
	go s.keepaliveLoop(keepaliveCtx, conn)

	return connected, s.readLoop(ctx, conn)
}

func (s *Session) disconnect() {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn == nil {
		return
	}
	s.log.Info("disconnecting", "device", s.opts.Device)
	conn.Close()

	s.pendingMu.Lock()
	for seq, ch := range s.pending {
		close(ch)
		delete(s.pending, seq)
	}
	s.pendingMu.Unlock()

	s.store.SetConnected(false)
}

func (s *Session) keepaliveLoop(ctx context.Context, conn transport.Conn) {
	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				s.log.Warn("keepalive ping failed, triggering reconnect", "error", err)
				s.disconnect()
				return
			}
			s.log.Debug("keepalive ping sent")
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn transport.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		f, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrMalformedFrame) {
				s.log.Warn("dropping malformed frame", "error", err)
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(transport.ReadTimeout))

		s.handleFrame(ctx, f)
	}
}

func (s *Session) handleFrame(ctx context.Context, f *transport.Frame) {
	s.log.Debug("received frame", "kind", f.Kind, "seq", f.Seq, "status", f.Status)

	switch f.Kind {
	case transport.KindCustomCmd:
		s.handleCustom(ctx, f)
		return
	case transport.KindViewOpened:
		s.store.SetViewOpen(true)
	case transport.KindViewOpenFailed:
		s.store.SetViewOpenFailed(f.Status)
	case transport.KindViewUpdated:
		s.store.MarkViewUpdated()
	case transport.KindViewClosed:
		s.store.SetViewOpen(false)
	case transport.KindIconsSent:
		s.store.MarkIconsSent()
	case transport.KindAck:
	default:
		s.log.Debug("unhandled frame", "kind", f.Kind)
	}

	s.deliver(f)
}

// deliver hands a reply to the caller waiting on its sequence number.
func (s *Session) deliver(f *transport.Frame) {
	if f.Seq == 0 {
		return
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if ch, ok := s.pending[f.Seq]; ok {
		select {
		case ch <- f:
		default:
		}
	}
}

func (s *Session) handleCustom(ctx context.Context, f *transport.Frame) {
	values, err := caps.Decode(f.Payload)
	if err != nil {
		s.log.Warn("dropping undecodable custom command", "name", f.Channel, "error", err)
		return
	}
	for _, p := range values.Problems() {
		s.log.Warn("custom command entry not understood", "name", f.Channel, "error", p)
	}

	h := s.handler(f.Channel)
	if h == nil {
		s.log.Debug("no listener for custom command", "name", f.Channel)
		return
	}
	h(ctx, f.Channel, values)
}
