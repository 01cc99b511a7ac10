// Package scenes holds the ready-made interactions driven from the HTTP API
// and MQTT: the greeting custom view and the custom protocol demo.
package scenes

import (
	"context"

	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/session"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/viewproto"
)

// Session is the subset of session.Session the scenes drive.
type Session interface {
	OpenView(ctx context.Context, root *viewproto.Node) error
	UpdateView(ctx context.Context, batch *viewproto.UpdateBatch) error
	CloseView(ctx context.Context) error
	SendIcons(ctx context.Context, icons []session.Icon) error
	SendCustom(ctx context.Context, name string, values *caps.Container) error
	OnCustom(name string, h session.Handler)
	State() *state.StateStore
}
