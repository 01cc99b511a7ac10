package scenes

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/state"
)

// Command names used by the protocol demo.
const (
	OutboundCommand = "Custom Message"
	InboundCommand  = "Custom CMD"
)

// Protocol sends the demo payload and records what the glasses send back.
type Protocol struct {
	sess Session
	log  *slog.Logger

	mu      sync.Mutex
	counter int32
}

// NewProtocol creates the demo.
func NewProtocol(sess Session, log *slog.Logger) *Protocol {
	return &Protocol{sess: sess, log: log}
}

// Listen starts or stops recording inbound commands.
func (p *Protocol) Listen(on bool) {
	if !on {
		p.sess.OnCustom(InboundCommand, nil)
		return
	}
	p.sess.OnCustom(InboundCommand, func(_ context.Context, name string, values *caps.Container) {
		m := p.sess.State().AddMessage(state.Message{Channel: name, Direction: state.DirectionIn, Values: values})
		p.log.Info("custom command received", "name", name, "id", m.ID, "rendered", m.Rendered)
	})
}

// DemoPayload builds the demo container for the given counter.
func DemoPayload(counter int32) *caps.Container {
	return caps.New().
		AppendString("Custom String Message:").
		AppendInt32(counter).
		AppendBool(true).
		AppendObject(caps.New().AppendString("Nested String Message"))
}

// SendDemo bumps the counter and sends the demo payload.
func (p *Protocol) SendDemo(ctx context.Context) (*caps.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.counter + 1
	if p.counter == math.MaxInt32 {
		next = 1
	}
	values := DemoPayload(next)
	if err := p.sess.SendCustom(ctx, OutboundCommand, values); err != nil {
		return nil, err
	}
	p.counter = next
	return values, nil
}
