package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/ovidalb/webdesk/internal/audit"
	"github.com/ovidalb/webdesk/internal/platform"
	"github.com/ovidalb/webdesk/internal/session"
	"github.com/ovidalb/webdesk/pkg/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	registry    *session.Registry
	audit       *audit.Log
	capturesDir string
}

// NewHandler creates a new HTTP handler. Captured frames are additionally
// persisted under capturesDir so they can be served back via /captures/.
func NewHandler(registry *session.Registry, auditLog *audit.Log, capturesDir string) *Handler {
	return &Handler{
		registry:    registry,
		audit:       auditLog,
		capturesDir: capturesDir,
	}
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// CaptureSession handles GET /v1/sessions/{id}/capture.
//
// The audit record is created pending before the grab, completed with the
// bounding box on success and discarded on failure — the one sanctioned
// deviation from append-only logging.
func (h *Handler) CaptureSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	actionID := h.audit.Begin(models.ActionCapture, id)

	img, bbox, err := h.registry.Capture(id)
	if err != nil {
		h.audit.Discard(actionID)
		writeError(w, err)
		return
	}

	h.audit.Complete(actionID, map[string]interface{}{"bbox": bbox})
	h.persistCapture(actionID, img)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Action-Id", actionID)
	w.Header().Set("X-Capture-Bbox", fmt.Sprintf("%d,%d,%d,%d", bbox.X, bbox.Y, bbox.Width, bbox.Height))
	w.Write(img)
}

// persistCapture writes the frame to the captures directory so it stays
// retrievable after the response is gone. Persistence is the router's
// concern, not the backend's, and failing to write is not a capture error.
func (h *Handler) persistCapture(actionID string, img []byte) {
	if h.capturesDir == "" {
		return
	}
	path := filepath.Join(h.capturesDir, actionID+".jpg")
	if err := os.WriteFile(path, img, 0644); err != nil {
		log.Printf("⚠️ Failed to persist capture %s: %v", actionID, err)
	}
}

// ClickSession handles POST /v1/sessions/{id}/click
func (h *Handler) ClickSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.X == nil || req.Y == nil {
		http.Error(w, "Invalid request body: x and y are required", http.StatusBadRequest)
		return
	}

	xAbs, yAbs, err := h.registry.Click(id, *req.X, *req.Y)
	if err != nil {
		writeError(w, err)
		return
	}

	actionID := h.audit.Append(models.ActionClick, id, map[string]interface{}{
		"x_rel": *req.X,
		"y_rel": *req.Y,
		"x_abs": xAbs,
		"y_abs": yAbs,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actionId": actionID,
		"status":   "ok",
		"xAbs":     xAbs,
		"yAbs":     yAbs,
	})
}

// TypeSession handles POST /v1/sessions/{id}/type
func (h *Handler) TypeSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.TypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: text is required", http.StatusBadRequest)
		return
	}

	if err := h.registry.Type(id, req.Text); err != nil {
		writeError(w, err)
		return
	}

	actionID := h.audit.Append(models.ActionTypeText, id, map[string]interface{}{
		"chars": len(req.Text),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actionId": actionID,
		"typed":    true,
	})
}

// DeleteSession handles DELETE /v1/sessions/{id}. Stop is idempotent:
// deleting an unknown or already-stopped session still reports stopped.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Stop(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// ListActions handles GET /v1/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.Records())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the backend failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, platform.ErrOutOfBounds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, platform.ErrResourceExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, platform.ErrProcessGone), errors.Is(err, platform.ErrWindowNotFound):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
