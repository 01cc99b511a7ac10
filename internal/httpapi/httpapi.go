package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/trymwestin/cxr/internal/core/caps"
	"github.com/trymwestin/cxr/internal/core/session"
	"github.com/trymwestin/cxr/internal/core/state"
	"github.com/trymwestin/cxr/internal/core/viewproto"
	"github.com/trymwestin/cxr/internal/scenes"
)

// Session is what the API needs from the glasses session.
type Session interface {
	scenes.Session
	Connected() bool
}

// Server is the HTTP API server.
type Server struct {
	sess     Session
	greeting *scenes.Greeting
	protocol *scenes.Protocol
	device   string
	uiDir    string
	corsAll  bool
	log      *slog.Logger
	mux      *http.ServeMux
}

// NewServer creates a new HTTP API server.
func NewServer(
	sess Session,
	greeting *scenes.Greeting,
	protocol *scenes.Protocol,
	device string,
	uiDir string,
	corsAll bool,
	log *slog.Logger,
) *Server {
	s := &Server{
		sess:     sess,
		greeting: greeting,
		protocol: protocol,
		device:   device,
		uiDir:    uiDir,
		corsAll:  corsAll,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if !s.corsAll {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleGetStatus)

	s.mux.HandleFunc("POST /api/view/open", s.handleViewOpen)
	s.mux.HandleFunc("POST /api/view/update", s.handleViewUpdate)
	s.mux.HandleFunc("POST /api/view/close", s.handleViewClose)
	s.mux.HandleFunc("POST /api/view/toggle", s.handleViewToggle)
	s.mux.HandleFunc("POST /api/view/icons", s.handleViewIcons)

	s.mux.HandleFunc("POST /api/custom/send", s.handleCustomSend)
	s.mux.HandleFunc("POST /api/custom/demo", s.handleCustomDemo)
	s.mux.HandleFunc("GET /api/custom/messages", s.handleCustomMessages)

	// Serve static UI
	if s.uiDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.uiDir)))
	} else {
		s.mux.HandleFunc("/", s.handleStaticFallback)
	}
}

func (s *Server) handleStaticFallback(w http.ResponseWriter, r *http.Request) {
	candidates := []string{
		"internal/ui/dist",
		"/app/ui",
	}
	for _, dir := range candidates {
		indexPath := filepath.Join(dir, "index.html")
		if _, err := os.Stat(indexPath); err == nil {
			http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
			return
		}
	}
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>CXR Glasses</h1><p>UI not found. Set <code>ui_dir</code> in config or <code>CXR_UI_DIR</code> env var.</p><p><a href="/api/status">API Status</a></p></body></html>`)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) corsHeaders(w http.ResponseWriter) {
	if s.corsAll {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	s.corsHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.corsHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeFailure maps an operation error to a status code.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "op", op, "error", err)
	}
	s.writeError(w, code, err.Error())
}

func errorStatus(err error) int {
	var (
		ve  *viewproto.ValidationError
		ofe *session.OpenFailedError
		se  *session.StatusError
	)
	switch {
	case errors.As(err, &ve),
		errors.Is(err, viewproto.ErrEmptyID),
		errors.Is(err, viewproto.ErrEmptyKind),
		errors.Is(err, viewproto.ErrEmptyBatch),
		errors.Is(err, viewproto.ErrTooDeep),
		errors.Is(err, viewproto.ErrCycle),
		errors.Is(err, caps.ErrUnsupportedJSON),
		errors.Is(err, caps.ErrTooDeep),
		errors.Is(err, session.ErrEmptyChannel),
		errors.Is(err, session.ErrNoIcons),
		errors.Is(err, scenes.ErrNotPNG):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrViewNotOpen):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ofe), errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes the body into v. It reports false, with no error, when
// the body is empty.
func (s *Server) readJSON(r *http.Request, v any) (bool, error) {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Server) ok(w http.ResponseWriter) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// --- Handlers ---

type statusResponse struct {
	Connected bool             `json:"connected"`
	Device    string           `json:"device"`
	Link      state.LinkStatus `json:"link"`
	View      state.ViewStatus `json:"view"`
	Updates   int32            `json:"greeting_updates"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.sess.State().Snapshot()
	s.writeJSON(w, statusResponse{
		Connected: s.sess.Connected(),
		Device:    s.device,
		Link:      snap.Link,
		View:      snap.View,
		Updates:   s.greeting.Count(),
	})
}

func (s *Server) handleViewOpen(w http.ResponseWriter, r *http.Request) {
	var spec viewproto.NodeSpec
	present, err := s.readJSON(r, &spec)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !present {
		if err := s.greeting.Open(r.Context()); err != nil {
			s.writeFailure(w, "open view", err)
			return
		}
		s.ok(w)
		return
	}

	root, err := spec.Build()
	if err != nil {
		s.writeFailure(w, "open view", err)
		return
	}
	if err := s.sess.OpenView(r.Context(), root); err != nil {
		s.writeFailure(w, "open view", err)
		return
	}
	s.ok(w)
}

type updateBody struct {
	Edits []viewproto.EditSpec `json:"edits"`
}

func (s *Server) handleViewUpdate(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	present, err := s.readJSON(r, &body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	var batch *viewproto.UpdateBatch
	if !present {
		batch, err = s.greeting.Update(r.Context())
		if err != nil {
			s.writeFailure(w, "update view", err)
			return
		}
	} else {
		batch, err = viewproto.BuildBatch(body.Edits)
		if err == nil {
			err = s.sess.UpdateView(r.Context(), batch)
		}
		if err != nil {
			s.writeFailure(w, "update view", err)
			return
		}
	}
	s.writeJSON(w, map[string]any{"status": "ok", "edits": batch})
}

func (s *Server) handleViewClose(w http.ResponseWriter, r *http.Request) {
	if err := s.greeting.Close(r.Context()); err != nil {
		s.writeFailure(w, "close view", err)
		return
	}
	s.ok(w)
}

func (s *Server) handleViewToggle(w http.ResponseWriter, r *http.Request) {
	opened, err := s.greeting.Toggle(r.Context())
	if err != nil {
		s.writeFailure(w, "toggle view", err)
		return
	}
	s.writeJSON(w, map[string]any{"status": "ok", "open": opened})
}

func (s *Server) handleViewIcons(w http.ResponseWriter, r *http.Request) {
	if err := s.greeting.UploadIcons(r.Context()); err != nil {
		s.writeFailure(w, "upload icons", err)
		return
	}
	s.ok(w)
}

type customBody struct {
	Name   string          `json:"name"`
	Values *caps.Container `json:"values"`
}

func (s *Server) handleCustomSend(w http.ResponseWriter, r *http.Request) {
	var body customBody
	if _, err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if body.Values == nil {
		body.Values = caps.New()
	}
	if err := s.sess.SendCustom(r.Context(), body.Name, body.Values); err != nil {
		s.writeFailure(w, "send custom", err)
		return
	}
	s.ok(w)
}

func (s *Server) handleCustomDemo(w http.ResponseWriter, r *http.Request) {
	values, err := s.protocol.SendDemo(r.Context())
	if err != nil {
		s.writeFailure(w, "send demo", err)
		return
	}
	s.writeJSON(w, map[string]any{
		"status":   "ok",
		"values":   values,
		"rendered": caps.Render(values),
	})
}

func (s *Server) handleCustomMessages(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{"messages": s.sess.State().Messages()})
}
