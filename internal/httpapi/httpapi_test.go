package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/session"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/viewproto"
	"github.com/trymwestin/cxr/internal/scenes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSession struct {
	store     *state.StateStore
	connected bool
	opened    []string
	updates   []string
	sent      []string
	err       error
}

func (f *fakeSession) OpenView(_ context.Context, root *viewproto.Node) error {
	if f.err != nil {
		return f.err
	}
	doc, err := root.ToWire()
	if err != nil {
		return err
	}
	f.opened = append(f.opened, doc)
	f.store.SetViewOpen(true)
	return nil
}

func (f *fakeSession) UpdateView(_ context.Context, b *viewproto.UpdateBatch) error {
	if !f.store.ViewOpen() {
		return session.ErrViewNotOpen
	}
	doc, err := b.ToWire()
	if err != nil {
		return err
	}
	f.updates = append(f.updates, doc)
	return nil
}

func (f *fakeSession) CloseView(context.Context) error {
	f.store.SetViewOpen(false)
	return nil
}

func (f *fakeSession) SendIcons(context.Context, []session.Icon) error { return nil }

func (f *fakeSession) SendCustom(_ context.Context, name string, values *caps.Container) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, name)
	f.store.AddMessage(state.Message{Channel: name, Direction: state.DirectionOut, Values: values})
	return nil
}

func (f *fakeSession) OnCustom(string, session.Handler) {}

func (f *fakeSession) State() *state.StateStore { return f.store }

func (f *fakeSession) Connected() bool { return f.connected }

func newTestServer(t *testing.T) (*Server, *fakeSession) {
	t.Helper()
	fs := &fakeSession{
		store:     state.NewStateStore(state.NewEventBus(testLogger()), 0, testLogger()),
		connected: true,
	}
	g, err := scenes.NewGreeting(fs, t.TempDir(), testLogger())
	require.NoError(t, err)
	p := scenes.NewProtocol(fs, testLogger())
	return NewServer(fs, g, p, "g1", "", false, testLogger()), fs
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, true, out["connected"])
	assert.Equal(t, "g1", out["device"])
}

func TestOpenGreetingAndUpdate(t *testing.T) {
	s, fs := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/view/update", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/view/open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fs.opened, 1)
	assert.Contains(t, fs.opened[0], `"text":"Hello World"`)

	rec = do(t, s, http.MethodPost, "/api/view/update", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`[{"action":"update","id":"imageView","props":{"name":"icon1"}},{"action":"update","id":"textView","props":{"text":"Hello Rokid 0"}}]`,
		fs.updates[0])
}

func TestOpenCustomTree(t *testing.T) {
	s, fs := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/view/open",
		`{"type":"TextView","props":{"id":"t1","text":"Hi","textSize":"16"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t,
		`{"type":"TextView","props":{"id":"t1","layout_width":"match_parent","layout_height":"wrap_content","text":"Hi","textSize":"16sp"}}`,
		fs.opened[0])

	rec = do(t, s, http.MethodPost, "/api/view/open", `{"type":"TextView","props":{"id":"t1","textStyle":"heavy"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/view/open", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWithEdits(t *testing.T) {
	s, fs := newTestServer(t)
	fs.store.SetViewOpen(true)

	rec := do(t, s, http.MethodPost, "/api/view/update",
		`{"edits":[{"id":"textView","props":{"text":"Hello Rokid 3"}}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `[{"action":"update","id":"textView","props":{"text":"Hello Rokid 3"}}]`, fs.updates[0])

	rec = do(t, s, http.MethodPost, "/api/view/update", `{"edits":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/view/update", `{"edits":[{"id":"","props":{}}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/view/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["open"])

	rec = do(t, s, http.MethodPost, "/api/view/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["open"])
}

func TestIconsMissing(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/view/icons", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCustomSendAndMessages(t *testing.T) {
	s, fs := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/custom/send",
		`{"name":"Custom Message","values":[{"type":"string","value":"hi"},{"type":"int32","value":7}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Custom Message"}, fs.sent)

	rec = do(t, s, http.MethodPost, "/api/custom/send", `{"values":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/custom/send", `{"name":"x","values":[{"type":"int32","value":"seven"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/custom/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode(t, rec)["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "value: {hi},value: {7},", msgs[0].(map[string]any)["rendered"])
}

func TestCustomDemo(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/custom/demo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"value: {Custom String Message:},value: {1},value: {true},value: {value: {Nested String Message},},",
		decode(t, rec)["rendered"])
}

func TestErrorStatus(t *testing.T) {
	s, fs := newTestServer(t)
	fs.err = session.ErrNotConnected
	rec := do(t, s, http.MethodPost, "/api/custom/demo", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fs.err = &session.OpenFailedError{Code: 1}
	rec = do(t, s, http.MethodPost, "/api/view/open", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	fs.err = session.ErrTimeout
	rec = do(t, s, http.MethodPost, "/api/view/open", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCORS(t *testing.T) {
	fs := &fakeSession{store: state.NewStateStore(state.NewEventBus(testLogger()), 0, testLogger())}
	g, err := scenes.NewGreeting(fs, "", testLogger())
	require.NoError(t, err)
	s := NewServer(fs, g, scenes.NewProtocol(fs, testLogger()), "g1", "", true, testLogger())

	rec := do(t, s, http.MethodOptions, "/api/status", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
