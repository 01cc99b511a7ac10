package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameRoundTrip(t *testing.T) {
	in := &Frame{Kind: KindCustomCmd, Channel: "Custom Message", Seq: 7, Payload: []byte{1, 2, 3}, Status: -2}
	b, err := in.MarshalBinary()
	require.NoError(t, err)

	var out Frame
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, *in, out)
}

func TestFrameSkipsUnknownFields(t *testing.T) {
	b, err := (&Frame{Kind: KindViewOpened, Seq: 3}).MarshalBinary()
	require.NoError(t, err)
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	var f Frame
	require.NoError(t, f.UnmarshalBinary(b))
	assert.Equal(t, KindViewOpened, f.Kind)
	assert.Equal(t, uint64(3), f.Seq)
}

func TestFrameErrors(t *testing.T) {
	var f Frame
	assert.ErrorIs(t, f.UnmarshalBinary(nil), ErrMalformedFrame)

	b, err := (&Frame{Kind: KindOpenView, Payload: []byte("{}")}).MarshalBinary()
	require.NoError(t, err)
	assert.ErrorIs(t, f.UnmarshalBinary(b[:len(b)-1]), ErrMalformedFrame)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "view_open_failed", KindViewOpenFailed.String())
	assert.Equal(t, "kind(200)", Kind(200).String())
}

func TestRelayURL(t *testing.T) {
	d := NewRelayDialer("https://relay.example.com/", testLogger())
	assert.Equal(t, "wss://relay.example.com/v1/relay/glasses/my%20glasses", d.URL("my glasses"))

	d = NewRelayDialer("http://localhost:9000", testLogger())
	assert.Equal(t, "ws://localhost:9000/v1/relay/glasses/g1", d.URL("g1"))
}

// echoServer answers every frame with an ack carrying the same seq.
func echoServer(t *testing.T, wantAuth string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != wantAuth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws, testLogger())
		defer conn.Close()
		for {
			f, err := conn.Recv(context.Background())
			if err != nil {
				return
			}
			if err := conn.Send(context.Background(), &Frame{Kind: KindAck, Seq: f.Seq, Channel: r.URL.Path}); err != nil {
				return
			}
		}
	}))
}

func TestBridgeDialerExchange(t *testing.T) {
	srv := echoServer(t, "token s3cret")
	defer srv.Close()

	d := NewBridgeDialer(strings.TrimPrefix(srv.URL, "http://"), testLogger())
	conn, err := d.Dial(context.Background(), "g1", "s3cret")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), &Frame{Kind: KindOpenView, Seq: 9, Payload: []byte(`{}`)}))
	f, err := conn.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindAck, f.Kind)
	assert.Equal(t, uint64(9), f.Seq)
	assert.Equal(t, "/v1/glasses/g1", f.Channel)
	require.NoError(t, conn.Ping())
}

func TestBridgeDialerRejected(t *testing.T) {
	srv := echoServer(t, "token s3cret")
	defer srv.Close()

	d := NewBridgeDialer(strings.TrimPrefix(srv.URL, "http://"), testLogger())
	_, err := d.Dial(context.Background(), "g1", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

type stubDialer struct {
	conn  Conn
	err   error
	calls int
}

func (s *stubDialer) Dial(context.Context, string, string) (Conn, error) {
	s.calls++
	return s.conn, s.err
}

func TestFallbackDialer(t *testing.T) {
	bridge := &stubDialer{err: errors.New("refused")}
	relay := &stubDialer{}
	d := NewFallbackDialer(bridge, relay, testLogger())

	_, err := d.Dial(context.Background(), "g1", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, bridge.calls)
	assert.Equal(t, 1, relay.calls)

	bridge.err = nil
	_, err = d.Dial(context.Background(), "g1", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, bridge.calls)
	assert.Equal(t, 1, relay.calls)
}

func TestFallbackDialerSkipsFailingBridge(t *testing.T) {
	bridge := &stubDialer{err: errors.New("refused")}
	relay := &stubDialer{}
	d := newFallbackDialer(bridge, relay, 2, 50*time.Millisecond, testLogger())

	for range 4 {
		_, err := d.Dial(context.Background(), "g1", "x")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, bridge.calls)
	assert.Equal(t, 4, relay.calls)
	assert.Equal(t, gobreaker.StateOpen, d.BridgeState())

	time.Sleep(100 * time.Millisecond)
	bridge.err = nil
	_, err := d.Dial(context.Background(), "g1", "x")
	require.NoError(t, err)
	assert.Equal(t, 3, bridge.calls)
	assert.Equal(t, 4, relay.calls)
	assert.Equal(t, gobreaker.StateClosed, d.BridgeState())
}
