// Package cxr provides a public facade re-exporting core types
// for external consumers of this module.
package cxr

import (
	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/session"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/transport"
	"github.com/trymwestin/cxr/internal/core/viewproto"
)

// Re-export core types for external use.
type (
	// Container is an ordered list of typed values sent on custom channels.
	Container = caps.Container
	// Value is one entry of a Container.
	Value = caps.Value
	// ValueType is the wire discriminator of a Value.
	ValueType = caps.Type
	// Node is one element of a custom view tree.
	Node = viewproto.Node
	// Props is the validated property set of one view.
	Props = viewproto.Props
	// NodeSpec is the declarative form of a view tree.
	NodeSpec = viewproto.NodeSpec
	// UpdateBatch is a set of property edits for an open view.
	UpdateBatch = viewproto.UpdateBatch
	// Icon is a named PNG uploaded for ImageView nodes.
	Icon = session.Icon
	// Session manages the connection to the glasses.
	Session = session.Session
	// Options configures a Session.
	Options = session.Options
	// State is a snapshot of the session.
	State = state.State
	// Message is one custom command payload seen on the link.
	Message = state.Message
	// Event represents a state change event.
	Event = state.Event
	// EventType identifies event categories.
	EventType = state.EventType
	// Dialer creates connections to the glasses.
	Dialer = transport.Dialer
	// Conn represents a framed connection.
	Conn = transport.Conn
)

// Value type constants.
const (
	TypeString = caps.TypeString
	TypeInt32  = caps.TypeInt32
	TypeUInt32 = caps.TypeUInt32
	TypeFloat  = caps.TypeFloat
	TypeDouble = caps.TypeDouble
	TypeBool   = caps.TypeBool
	TypeBinary = caps.TypeBinary
	TypeObject = caps.TypeObject
)

// Event type constants.
const (
	EventConnected       = state.EventConnected
	EventDisconnected    = state.EventDisconnected
	EventViewOpened      = state.EventViewOpened
	EventViewOpenFailed  = state.EventViewOpenFailed
	EventViewUpdated     = state.EventViewUpdated
	EventViewClosed      = state.EventViewClosed
	EventIconsSent       = state.EventIconsSent
	EventMessageSent     = state.EventMessageSent
	EventMessageReceived = state.EventMessageReceived
)

// Constructors.
var (
	NewContainer      = caps.New
	NewSession        = session.New
	NewEventBus       = state.NewEventBus
	NewStateStore     = state.NewStateStore
	NewBridgeDialer   = transport.NewBridgeDialer
	NewRelayDialer    = transport.NewRelayDialer
	NewFallbackDialer = transport.NewFallbackDialer
)
