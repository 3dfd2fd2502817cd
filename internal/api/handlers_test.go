package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovidalb/webdesk/internal/audit"
	"github.com/ovidalb/webdesk/internal/live"
	"github.com/ovidalb/webdesk/internal/platform"
	"github.com/ovidalb/webdesk/internal/ratelimit"
	"github.com/ovidalb/webdesk/internal/session"
	"github.com/ovidalb/webdesk/pkg/models"
)

// stubBackend satisfies platform.Backend with canned responses so the
// HTTP layer can be exercised without a display server.
type stubBackend struct {
	bounds models.Rect
	alive  bool
	pid    int
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		bounds: models.Rect{X: 0, Y: 0, Width: 1920, Height: 1080},
		alive:  true,
		pid:    4242,
	}
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) ProvisionDisplay(ctx context.Context) (platform.Display, error) {
	return platform.Display{ID: ":1"}, nil
}

func (s *stubBackend) LaunchBrowser(ctx context.Context, d platform.Display) (int, error) {
	return s.pid, nil
}

func (s *stubBackend) LocateWindow(d platform.Display, pid int) (platform.Window, error) {
	return platform.Window{Handle: "0xbeef", Bounds: s.bounds}, nil
}

func (s *stubBackend) CaptureRect(d platform.Display, r models.Rect) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *stubBackend) Click(d platform.Display, w platform.Window, xRel, yRel int) error {
	return nil
}

func (s *stubBackend) TypeText(d platform.Display, w platform.Window, text string) error {
	return nil
}

func (s *stubBackend) ProcessAlive(pid int) bool      { return s.alive }
func (s *stubBackend) Kill(pid int)                   {}
func (s *stubBackend) KillDisplay(d platform.Display) {}

type testServer struct {
	backend *stubBackend
	audit   *audit.Log
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	backend := newStubBackend()
	registry := session.NewRegistry(backend, 10)
	auditLog := audit.NewLog()
	handler := NewHandler(registry, auditLog, t.TempDir())
	router := handler.SetupRoutes(live.NewServer(registry), ratelimit.NewLimiter(100000, 1000), 100000)

	return &testServer{backend: backend, audit: auditLog, router: router}
}

func (ts *testServer) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5555"
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) startSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, "POST", "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)
	return sess.ID
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, models.StatusActive, sess.Status)
	assert.Equal(t, ts.backend.bounds, sess.Geometry)
}

func TestGetSession_Unknown(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/v1/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.startSession(t)
	ts.startSession(t)

	w := ts.do(t, "GET", "/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sessions []models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
}

func TestClickSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	w := ts.do(t, "POST", "/v1/sessions/"+id+"/click", `{"x":500,"y":500}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ActionID string `json:"actionId"`
		XAbs     int    `json:"xAbs"`
		YAbs     int    `json:"yAbs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 500, resp.XAbs)
	assert.Equal(t, 500, resp.YAbs)
	assert.NotEmpty(t, resp.ActionID)

	recs := ts.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActionClick, recs[0].Type)
	assert.Equal(t, id, recs[0].SessionID)
}

func TestClickSession_OutOfBounds(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	w := ts.do(t, "POST", "/v1/sessions/"+id+"/click", `{"x":2000,"y":500}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Zero(t, ts.audit.Len(), "rejected clicks are not audited")
}

func TestClickSession_BadBody(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	w := ts.do(t, "POST", "/v1/sessions/"+id+"/click", `{"x": "left"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClickSession_MissingCoordinates(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	// An absent coordinate must be rejected, not treated as zero.
	for _, body := range []string{`{}`, `{"x":5}`, `{"y":5}`} {
		w := ts.do(t, "POST", "/v1/sessions/"+id+"/click", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
	assert.Zero(t, ts.audit.Len(), "rejected clicks are not audited")
}

func TestClickSession_ZeroCoordinatesAreValid(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	w := ts.do(t, "POST", "/v1/sessions/"+id+"/click", `{"x":0,"y":0}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTypeSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	w := ts.do(t, "POST", "/v1/sessions/"+id+"/type", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Typed bool `json:"typed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Typed)

	recs := ts.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActionTypeText, recs[0].Type)
}

func TestCaptureSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	w := ts.do(t, "GET", "/v1/sessions/"+id+"/capture", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "0,0,1920,1080", w.Header().Get("X-Capture-Bbox"))
	assert.NotEmpty(t, w.Header().Get("X-Action-Id"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 1080, cfg.Height)

	recs := ts.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActionCapture, recs[0].Type)
	assert.Contains(t, recs[0].Details, "bbox", "pending record must be completed")
}

func TestCaptureSession_DeadProcessDiscardsAuditRecord(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	ts.backend.alive = false

	w := ts.do(t, "GET", "/v1/sessions/"+id+"/capture", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, ts.audit.Len(), "failed capture must leave no log entry")
}

func TestDeleteSession_Idempotent(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)

	for i := 0; i < 2; i++ {
		w := ts.do(t, "DELETE", "/v1/sessions/"+id, "")
		require.Equal(t, http.StatusOK, w.Code, "delete attempt %d", i+1)

		var resp map[string]bool
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp["stopped"])
	}

	w := ts.do(t, "GET", "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListActions(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)
	ts.do(t, "POST", "/v1/sessions/"+id+"/click", `{"x":1,"y":1}`)

	w := ts.do(t, "GET", "/v1/actions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var recs []models.ActionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)
}

func TestActionsPage_RendersHTML(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startSession(t)
	ts.do(t, "POST", "/v1/sessions/"+id+"/click", `{"x":1,"y":1}`)

	w := ts.do(t, "GET", "/actions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "click")
}

func TestRateLimit(t *testing.T) {
	backend := newStubBackend()
	registry := session.NewRegistry(backend, 100)
	handler := NewHandler(registry, audit.NewLog(), t.TempDir())
	router := handler.SetupRoutes(live.NewServer(registry), ratelimit.NewLimiter(1, 1), 1)

	req := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", "/v1/sessions", nil)
		r.RemoteAddr = "10.0.0.9:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, req().Code)
	w := req()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}
