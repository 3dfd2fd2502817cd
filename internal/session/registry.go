// Package session owns the lifecycle of browser automation sessions.
//
// A single process-wide lock serializes every backend operation across all
// sessions. The display, window and input subsystems underneath are shared
// OS state that is not safe to drive concurrently, so correctness is bought
// with strict global serialization: a slow capture on one session delays a
// click on another. Finer-grained locking would have to be scoped per
// display, which profiling has not yet justified.
//
// There is deliberately no session TTL or reaper: an abandoned session
// keeps its browser (and owned display) alive until StopSession is called
// or the server exits.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ovidalb/webdesk/internal/platform"
	"github.com/ovidalb/webdesk/pkg/models"
)

// ErrNotFound reports an unknown session id.
var ErrNotFound = errors.New("session not found")

const (
	// How long Start waits for the browser window to appear. The locate
	// poll replaces a fixed post-launch sleep: a slow-starting browser
	// should not produce a spurious window-not-found.
	locateTimeout   = 10 * time.Second
	locatePollEvery = 250 * time.Millisecond
)

// Registry is the concurrency-safe store of live sessions and the only
// entry point to backend operations.
type Registry struct {
	mu       sync.Mutex // serializes all backend operations, see package doc
	sessions map[string]*models.Session
	backend  platform.Backend
	slots    *semaphore.Weighted

	locateTimeout time.Duration
	locatePoll    time.Duration
}

// NewRegistry creates a registry capping live sessions at maxSessions.
func NewRegistry(backend platform.Backend, maxSessions int64) *Registry {
	return &Registry{
		sessions:      make(map[string]*models.Session),
		backend:       backend,
		slots:         semaphore.NewWeighted(maxSessions),
		locateTimeout: locateTimeout,
		locatePoll:    locatePollEvery,
	}
}

// Start provisions a display, launches an isolated browser, waits for its
// window and registers the session. Any resource acquired before a failure
// is torn down again before the error returns, so a failed start leaks
// nothing.
func (r *Registry) Start(ctx context.Context) (*models.Session, error) {
	if !r.slots.TryAcquire(1) {
		return nil, fmt.Errorf("live session cap reached: %w", platform.ErrResourceExhausted)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.backend.ProvisionDisplay(ctx)
	if err != nil {
		r.slots.Release(1)
		return nil, err
	}

	sess := &models.Session{
		ID:           uuid.New().String(),
		Status:       models.StatusStarting,
		Display:      d.ID,
		DisplayOwned: d.Owned,
		DisplayPID:   d.PID,
		StartedAt:    time.Now().UTC(),
	}

	pid, err := r.backend.LaunchBrowser(ctx, d)
	if err != nil {
		r.backend.KillDisplay(d)
		r.slots.Release(1)
		return nil, err
	}
	sess.BrowserPID = pid

	win, err := r.awaitWindow(ctx, d, pid)
	if err != nil {
		r.backend.Kill(pid)
		r.backend.KillDisplay(d)
		r.slots.Release(1)
		return nil, err
	}

	sess.WindowHandle = win.Handle
	sess.Geometry = win.Bounds
	sess.Status = models.StatusActive
	r.sessions[sess.ID] = sess

	log.Printf("session %s started: display=%q owned=%v pid=%d geometry=%+v",
		sess.ID[:8], d.ID, d.Owned, pid, win.Bounds)

	return snapshot(sess), nil
}

// awaitWindow polls the locator until the browser window shows up or the
// deadline passes.
func (r *Registry) awaitWindow(ctx context.Context, d platform.Display, pid int) (platform.Window, error) {
	deadline := time.Now().Add(r.locateTimeout)
	for {
		win, err := r.backend.LocateWindow(d, pid)
		if err == nil {
			return win, nil
		}
		if !errors.Is(err, platform.ErrWindowNotFound) {
			return platform.Window{}, err
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return platform.Window{}, fmt.Errorf("window did not appear within %s: %w",
				r.locateTimeout, platform.ErrWindowNotFound)
		}
		time.Sleep(r.locatePoll)
	}
}

// Capture re-resolves the session's window and grabs its full outer frame
// as a JPEG. Returns the image and the bounding box that was used.
func (r *Registry) Capture(id string) ([]byte, models.Rect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, d, win, err := r.resolve(id)
	if err != nil {
		return nil, models.Rect{}, err
	}

	img, err := r.backend.CaptureRect(d, win.Bounds)
	if err != nil {
		return nil, models.Rect{}, err
	}

	return img, sess.Geometry, nil
}

// Click validates the window-relative coordinates against freshly queried
// geometry and dispatches a left click. Returns the absolute screen
// position that was clicked. Out-of-range coordinates are rejected, never
// clamped, and nothing is dispatched for them.
func (r *Registry) Click(id string, xRel, yRel int) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, d, win, err := r.resolve(id)
	if err != nil {
		return 0, 0, err
	}

	if !win.Bounds.Contains(xRel, yRel) {
		return 0, 0, fmt.Errorf("(%d,%d) outside %dx%d window: %w",
			xRel, yRel, win.Bounds.Width, win.Bounds.Height, platform.ErrOutOfBounds)
	}

	if err := r.backend.Click(d, win, xRel, yRel); err != nil {
		return 0, 0, err
	}

	return sess.Geometry.X + xRel, sess.Geometry.Y + yRel, nil
}

// Type focuses the session's window and replays text as key events.
func (r *Registry) Type(id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, d, win, err := r.resolve(id)
	if err != nil {
		return err
	}

	return r.backend.TypeText(d, win, text)
}

// Stop tears the session down, best-effort, and removes it from the
// registry. Stopping an unknown or already-stopped id is a no-op success;
// stop must never leave a caller unable to release a session.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	r.stopLocked(sess)
	return nil
}

// stopLocked kills the session's processes and drops the registry entry.
// Each kill is independently guarded inside the backend so a failed
// browser kill still lets the display go down.
func (r *Registry) stopLocked(sess *models.Session) {
	r.backend.Kill(sess.BrowserPID)
	r.backend.KillDisplay(platform.Display{
		ID:    sess.Display,
		Owned: sess.DisplayOwned,
		PID:   sess.DisplayPID,
	})

	delete(r.sessions, sess.ID)
	r.slots.Release(1)
	log.Printf("session %s stopped", sess.ID[:8])
}

// StopAll tears down every live session; used on server shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		r.stopLocked(sess)
	}
}

// Get returns a copy of the session record.
func (r *Registry) Get(id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(sess), nil
}

// List returns copies of all live sessions.
func (r *Registry) List() []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, snapshot(sess))
	}
	return out
}

// resolve is the per-operation gate: look the session up, probe that its
// browser process still exists, then re-resolve the window handle and
// geometry. Handles and geometry from session start are never trusted;
// the stored values are refreshed with every successful resolve. A locate
// failure leaves the session registered so the caller can retry.
func (r *Registry) resolve(id string) (*models.Session, platform.Display, platform.Window, error) {
	sess, ok := r.sessions[id]
	if !ok {
		return nil, platform.Display{}, platform.Window{}, ErrNotFound
	}

	if !r.backend.ProcessAlive(sess.BrowserPID) {
		return nil, platform.Display{}, platform.Window{},
			fmt.Errorf("pid %d: %w", sess.BrowserPID, platform.ErrProcessGone)
	}

	d := platform.Display{ID: sess.Display, Owned: sess.DisplayOwned, PID: sess.DisplayPID}

	win, err := r.backend.LocateWindow(d, sess.BrowserPID)
	if err != nil {
		return nil, platform.Display{}, platform.Window{}, err
	}

	sess.WindowHandle = win.Handle
	sess.Geometry = win.Bounds

	return sess, d, win, nil
}

func snapshot(sess *models.Session) *models.Session {
	cp := *sess
	return &cp
}
