// Package state tracks what the daemon knows about the glasses session and
// fans changes out to subscribers.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trymwestin/cxr/internal/core/caps"
)

// DefaultMessageLimit bounds the custom-message history kept in memory.
const DefaultMessageLimit = 50

// Direction tells whether a custom message was sent or received.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// LinkStatus holds the latest connection info.
type LinkStatus struct {
	Connected   bool      `json:"connected"`
	SessionID   string    `json:"session_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
}

// ViewStatus holds the latest known custom view state.
type ViewStatus struct {
	Open        bool      `json:"open"`
	OpenFailure *int32    `json:"open_failure,omitempty"`
	Updates     int       `json:"updates"`
	IconsSent   bool      `json:"icons_sent"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Message is one custom command payload seen on the link.
type Message struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Direction Direction       `json:"direction"`
	Rendered  string          `json:"rendered"`
	Values    *caps.Container `json:"values,omitempty"`
	Problems  int             `json:"problems,omitempty"`
	At        time.Time       `json:"at"`
}

// State is a snapshot of the session.
type State struct {
	Link     LinkStatus `json:"link"`
	View     ViewStatus `json:"view"`
	Messages []Message  `json:"messages"`
}

// EventType identifies event categories.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventDisconnected    EventType = "disconnected"
	EventViewOpened      EventType = "view_opened"
	EventViewOpenFailed  EventType = "view_open_failed"
	EventViewUpdated     EventType = "view_updated"
	EventViewClosed      EventType = "view_closed"
	EventIconsSent       EventType = "icons_sent"
	EventMessageSent     EventType = "message_sent"
	EventMessageReceived EventType = "message_received"
)

// Event represents a state change.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// StateReader provides read-only access to state.
type StateReader interface {
	Snapshot() State
	Messages() []Message
}

// --- EventBus ---

// EventBus is a simple publish/subscribe event bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers without blocking. Subscribers
// with a full buffer miss the event.
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function. The
// channel is closed on unsubscribe.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// --- StateStore ---

// StateStore holds the current session state with thread-safe access.
type StateStore struct {
	mu       sync.RWMutex
	link     LinkStatus
	view     ViewStatus
	messages []Message
	limit    int
	bus      *EventBus
	log      *slog.Logger
}

// NewStateStore creates a new store wired to the event bus. limit caps the
// message history; zero means DefaultMessageLimit.
func NewStateStore(bus *EventBus, limit int, log *slog.Logger) *StateStore {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &StateStore{
		limit: limit,
		bus:   bus,
		log:   log,
	}
}

// Snapshot returns a copy of all state.
func (s *StateStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Link:     s.link,
		View:     s.view,
		Messages: append([]Message(nil), s.messages...),
	}
}

// Messages returns the message history, oldest first.
func (s *StateStore) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// ViewOpen reports whether the custom view is believed to be shown.
func (s *StateStore) ViewOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Open
}

// SetConnected updates the link status. A fresh session id is issued on
// every connect. Disconnecting also forgets the view, which the glasses
// drop with the link.
func (s *StateStore) SetConnected(connected bool) {
	s.mu.Lock()
	if connected {
		s.link = LinkStatus{Connected: true, SessionID: uuid.NewString(), ConnectedAt: time.Now()}
	} else {
		s.link = LinkStatus{}
		s.view.Open = false
	}
	link := s.link
	s.mu.Unlock()

	if connected {
		s.log.Info("session connected", "session_id", link.SessionID)
		s.bus.Publish(Event{Type: EventConnected, Data: link})
	} else {
		s.bus.Publish(Event{Type: EventDisconnected})
	}
}

// SetViewOpen records that the view was opened or closed.
func (s *StateStore) SetViewOpen(open bool) {
	s.mu.Lock()
	s.view.Open = open
	if open {
		s.view.OpenFailure = nil
		s.view.Updates = 0
	}
	s.view.UpdatedAt = time.Now()
	view := s.view
	s.mu.Unlock()

	if open {
		s.bus.Publish(Event{Type: EventViewOpened, Data: view})
	} else {
		s.bus.Publish(Event{Type: EventViewClosed, Data: view})
	}
}

// SetViewOpenFailed records the error code reported for a failed open.
func (s *StateStore) SetViewOpenFailed(code int32) {
	s.mu.Lock()
	s.view.Open = false
	s.view.OpenFailure = &code
	s.view.UpdatedAt = time.Now()
	view := s.view
	s.mu.Unlock()

	s.log.Warn("custom view open failed", "code", code)
	s.bus.Publish(Event{Type: EventViewOpenFailed, Data: view})
}

// MarkViewUpdated counts an acknowledged update batch.
func (s *StateStore) MarkViewUpdated() {
	s.mu.Lock()
	s.view.Updates++
	s.view.UpdatedAt = time.Now()
	view := s.view
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventViewUpdated, Data: view})
}

// MarkIconsSent records an acknowledged icon upload.
func (s *StateStore) MarkIconsSent() {
	s.mu.Lock()
	s.view.IconsSent = true
	s.view.UpdatedAt = time.Now()
	view := s.view
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventIconsSent, Data: view})
}

// AddMessage appends a custom message to the history, assigning its id and
// timestamp when unset, and returns the stored copy.
func (s *StateStore) AddMessage(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	if m.Rendered == "" && m.Values != nil {
		m.Rendered = caps.Render(m.Values)
	}
	if m.Values != nil {
		m.Problems = len(m.Values.Problems())
	}

	s.mu.Lock()
	s.messages = append(s.messages, m)
	if over := len(s.messages) - s.limit; over > 0 {
		s.messages = append([]Message(nil), s.messages[over:]...)
	}
	s.mu.Unlock()

	evt := EventMessageReceived
	if m.Direction == DirectionOut {
		evt = EventMessageSent
	}
	s.bus.Publish(Event{Type: evt, Data: m})
	return m
}
