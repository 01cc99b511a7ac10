package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/transport"
	"github.com/trymwestin/cxr/internal/core/viewproto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records sent frames and answers them through reply.
type fakeConn struct {
	mu     sync.Mutex
	sent   []*transport.Frame
	recv   chan *transport.Frame
	closed chan struct{}
	once   sync.Once
	reply  func(f *transport.Frame) *transport.Frame
}

func newFakeConn(reply func(f *transport.Frame) *transport.Frame) *fakeConn {
	return &fakeConn{recv: make(chan *transport.Frame, 16), closed: make(chan struct{}), reply: reply}
}

func (c *fakeConn) Send(_ context.Context, f *transport.Frame) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	cp := *f
	c.mu.Lock()
	c.sent = append(c.sent, &cp)
	c.mu.Unlock()
	if c.reply != nil {
		if r := c.reply(&cp); r != nil {
			c.recv <- r
		}
	}
	return nil
}

func (c *fakeConn) Recv(context.Context) (*transport.Frame, error) {
	select {
	case f := <-c.recv:
		return f, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Ping() error                     { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) frames() []*transport.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*transport.Frame(nil), c.sent...)
}

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(context.Context, string, string) (transport.Conn, error) {
	return d.conn, nil
}

// answer replies to each request kind with the matching notification.
func answer(f *transport.Frame) *transport.Frame {
	switch f.Kind {
	case transport.KindOpenView:
		return &transport.Frame{Kind: transport.KindViewOpened, Seq: f.Seq}
	case transport.KindUpdateView:
		return &transport.Frame{Kind: transport.KindViewUpdated, Seq: f.Seq}
	case transport.KindCloseView:
		return &transport.Frame{Kind: transport.KindViewClosed, Seq: f.Seq}
	case transport.KindViewIcons:
		return &transport.Frame{Kind: transport.KindIconsSent, Seq: f.Seq}
	}
	return nil
}

func startSession(t *testing.T, opts Options, reply func(*transport.Frame) *transport.Frame) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(reply)
	bus := state.NewEventBus(testLogger())
	store := state.NewStateStore(bus, 0, testLogger())
	s := New(opts, &fakeDialer{conn: conn}, store, bus, testLogger())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	require.Eventually(t, s.Connected, time.Second, 5*time.Millisecond)
	return s, conn
}

func greeting(t *testing.T) *viewproto.Node {
	t.Helper()
	text := viewproto.TextView()
	require.NoError(t, text.Set(viewproto.FieldID, "textView"))
	require.NoError(t, text.Set(viewproto.FieldText, "Hi"))
	child, err := viewproto.NewNode(text)
	require.NoError(t, err)

	root := viewproto.LinearLayout()
	require.NoError(t, root.Set(viewproto.FieldID, "root"))
	n, err := viewproto.NewNode(root, child)
	require.NoError(t, err)
	return n
}

func TestOpenUpdateClose(t *testing.T) {
	s, conn := startSession(t, Options{StrictWire: true}, answer)
	ctx := context.Background()

	batch := viewproto.NewUpdateBatch()
	batch.Add("textView").Set("text", "Hello Rokid 0")
	assert.ErrorIs(t, s.UpdateView(ctx, batch), ErrViewNotOpen)

	root := greeting(t)
	require.NoError(t, s.OpenView(ctx, root))
	assert.True(t, s.State().ViewOpen())

	require.NoError(t, s.UpdateView(ctx, batch))
	assert.Equal(t, 1, s.State().Snapshot().View.Updates)

	require.NoError(t, s.CloseView(ctx))
	assert.False(t, s.State().ViewOpen())

	frames := conn.frames()
	require.Len(t, frames, 3)
	want, err := root.ToWire()
	require.NoError(t, err)
	assert.Equal(t, transport.KindOpenView, frames[0].Kind)
	assert.Equal(t, want, string(frames[0].Payload))
	assert.Equal(t, `[{"action":"update","id":"textView","props":{"text":"Hello Rokid 0"}}]`, string(frames[1].Payload))
	assert.Equal(t, transport.KindCloseView, frames[2].Kind)
	assert.Less(t, frames[0].Seq, frames[1].Seq)
}

func TestOpenViewFailure(t *testing.T) {
	s, _ := startSession(t, Options{}, func(f *transport.Frame) *transport.Frame {
		return &transport.Frame{Kind: transport.KindViewOpenFailed, Seq: f.Seq, Status: 5}
	})

	err := s.OpenView(context.Background(), greeting(t))
	var ofe *OpenFailedError
	require.ErrorAs(t, err, &ofe)
	assert.Equal(t, int32(5), ofe.Code)
	assert.False(t, s.State().ViewOpen())
}

func TestOpenViewRejectsInvalidTree(t *testing.T) {
	s, conn := startSession(t, Options{}, answer)

	assert.ErrorIs(t, s.OpenView(context.Background(), &viewproto.Node{}), viewproto.ErrEmptyKind)
	assert.Empty(t, conn.frames())
}

func TestStatusError(t *testing.T) {
	s, _ := startSession(t, Options{}, func(f *transport.Frame) *transport.Frame {
		return &transport.Frame{Kind: transport.KindAck, Seq: f.Seq, Status: 2}
	})

	err := s.CloseView(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(2), se.Status)
}

func TestResponseTimeout(t *testing.T) {
	s, _ := startSession(t, Options{AckTimeout: 50 * time.Millisecond}, nil)

	err := s.CloseView(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, s.Connected())
}

func TestSendIcons(t *testing.T) {
	s, conn := startSession(t, Options{}, answer)
	ctx := context.Background()

	assert.ErrorIs(t, s.SendIcons(ctx, nil), ErrNoIcons)
	assert.ErrorIs(t, s.SendIcons(ctx, []Icon{{Name: "bad name", Data: []byte{1}}}), viewproto.ErrInvalidIdentifier)

	require.NoError(t, s.SendIcons(ctx, []Icon{{Name: "icon1", Data: []byte("png")}}))
	assert.True(t, s.State().Snapshot().View.IconsSent)

	frames := conn.frames()
	require.Len(t, frames, 1)
	var got []map[string]string
	require.NoError(t, json.Unmarshal(frames[0].Payload, &got))
	assert.Equal(t, []map[string]string{{"name": "icon1", "data": "cG5n"}}, got)
}

func TestSendCustom(t *testing.T) {
	s, conn := startSession(t, Options{SendRate: 100, SendBurst: 4}, nil)
	ctx := context.Background()

	values := caps.New(caps.String("Custom String Message:"), caps.Int32(1))
	require.NoError(t, s.SendCustom(ctx, "Custom Message", values))
	assert.ErrorIs(t, s.SendCustom(ctx, "", values), ErrEmptyChannel)

	frames := conn.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, transport.KindCustomCmd, frames[0].Kind)
	assert.Equal(t, "Custom Message", frames[0].Channel)

	decoded, err := caps.Decode(frames[0].Payload)
	require.NoError(t, err)
	assert.True(t, values.Equal(decoded))

	msgs := s.State().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, state.DirectionOut, msgs[0].Direction)
}

func TestCustomDispatch(t *testing.T) {
	s, conn := startSession(t, Options{}, nil)

	got := make(chan *caps.Container, 1)
	s.OnCustom("Custom CMD", func(_ context.Context, name string, values *caps.Container) {
		assert.Equal(t, "Custom CMD", name)
		got <- values
	})

	want := caps.New(caps.Bool(true), caps.Object(caps.New(caps.Double(1.5))))
	payload, err := caps.Encode(want)
	require.NoError(t, err)

	conn.recv <- &transport.Frame{Kind: transport.KindCustomCmd, Channel: "Other", Payload: payload}
	conn.recv <- &transport.Frame{Kind: transport.KindCustomCmd, Channel: "Custom CMD", Payload: payload}

	select {
	case values := <-got:
		assert.True(t, want.Equal(values))
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	s.OnCustom("Custom CMD", nil)
	assert.Nil(t, s.handler("Custom CMD"))
}

func TestNotConnected(t *testing.T) {
	bus := state.NewEventBus(testLogger())
	s := New(Options{}, &fakeDialer{}, state.NewStateStore(bus, 0, testLogger()), bus, testLogger())

	assert.ErrorIs(t, s.SendCustom(context.Background(), "x", caps.New()), ErrNotConnected)
	assert.False(t, s.Connected())
}

func TestStopDisconnects(t *testing.T) {
	s, _ := startSession(t, Options{}, nil)
	events, unsub := s.Bus().Subscribe(8)
	defer unsub()

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Connected())
	assert.False(t, s.State().Snapshot().Link.Connected)

	select {
	case evt := <-events:
		assert.Equal(t, state.EventDisconnected, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("no disconnect event")
	}
}
