package platform

import (
	"context"

	"github.com/ovidalb/webdesk/pkg/models"
)

// Display identifies the rendering surface a session's windows are drawn to.
// On X11 the ID is a display name such as ":1"; an owned display was
// provisioned for the session and must be torn down with it. On Windows the
// ambient desktop is always reused and ID stays empty.
type Display struct {
	ID    string
	Owned bool
	PID   int
}

// Window is a located top-level browser window. The handle is opaque and
// only valid until the next operation; Bounds is the outer frame in
// absolute screen coordinates, freshly queried at locate time.
type Window struct {
	Handle string
	Bounds models.Rect
}

// Backend is the per-OS capability set for driving a real browser window:
// display provisioning, process launch, window location, pixel capture,
// and input injection. Exactly one implementation is compiled per platform
// and selected once at process start; callers never see OS-specific types.
//
// Backends are not safe for concurrent use. The session registry serializes
// every call behind a single process-wide lock because the underlying
// display, window and input subsystems race when driven concurrently.
type Backend interface {
	// Name returns the backend name, e.g. "linux" or "windows".
	Name() string

	// ProvisionDisplay finds or starts a display for a new session.
	// Returns ErrResourceExhausted when no free display slot exists.
	ProvisionDisplay(ctx context.Context) (Display, error)

	// LaunchBrowser spawns an isolated, maximized browser bound to the
	// display and returns its pid without waiting for a window to appear.
	LaunchBrowser(ctx context.Context, d Display) (int, error)

	// LocateWindow re-resolves the browser's top-level window and its
	// current outer-frame geometry. Returns ErrWindowNotFound when no
	// matching window is visible yet (or anymore).
	LocateWindow(d Display, pid int) (Window, error)

	// CaptureRect grabs the pixels inside r and returns them JPEG-encoded.
	CaptureRect(d Display, r models.Rect) ([]byte, error)

	// Click dispatches a single left-button press-and-release at the
	// window-relative position. Bounds are validated by the caller against
	// the geometry carried in w.
	Click(d Display, w Window, xRel, yRel int) error

	// TypeText focuses the window and sends text as individual key
	// down/up events at a fixed inter-key delay. The text is not escaped.
	TypeText(d Display, w Window, text string) error

	// ProcessAlive probes whether the owned browser process still exists.
	ProcessAlive(pid int) bool

	// Kill terminates an owned process, best-effort.
	Kill(pid int)

	// KillDisplay tears down an owned display server, best-effort.
	// No-op for displays the session does not own.
	KillDisplay(d Display)
}
