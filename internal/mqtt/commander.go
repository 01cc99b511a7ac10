package mqtt

import (
	"context"

	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/scenes"
)

// SceneCommander routes MQTT commands to the greeting view and the protocol
// demo.
type SceneCommander struct {
	sess     scenes.Session
	greeting *scenes.Greeting
	protocol *scenes.Protocol
}

// NewSceneCommander creates a Commander backed by the scenes.
func NewSceneCommander(sess scenes.Session, greeting *scenes.Greeting, protocol *scenes.Protocol) *SceneCommander {
	return &SceneCommander{sess: sess, greeting: greeting, protocol: protocol}
}

var _ Commander = (*SceneCommander)(nil)

// SetViewOpen opens the greeting view or closes whatever view is shown.
func (c *SceneCommander) SetViewOpen(ctx context.Context, open bool) error {
	if open {
		return c.greeting.Open(ctx)
	}
	return c.greeting.Close(ctx)
}

// SetText replaces the greeting text.
func (c *SceneCommander) SetText(ctx context.Context, text string) error {
	return c.greeting.SetText(ctx, text)
}

// SendCustom forwards a custom command.
func (c *SceneCommander) SendCustom(ctx context.Context, name string, values *caps.Container) error {
	return c.sess.SendCustom(ctx, name, values)
}

// SendDemo sends the protocol demo payload.
func (c *SceneCommander) SendDemo(ctx context.Context) error {
	_, err := c.protocol.SendDemo(ctx)
	return err
}
