package models

import "time"

// SessionStatus represents the current state of a browser session
type SessionStatus string

const (
	StatusStarting SessionStatus = "STARTING"
	StatusActive   SessionStatus = "ACTIVE"

	// StatusStopped never appears in API responses: stopped sessions are
	// removed from the registry rather than retained.
	StatusStopped SessionStatus = "STOPPED"
)

// Rect is an absolute screen rectangle. For window geometry it always
// describes the outer frame, title bar and borders included, so capture
// and input share one coordinate system.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether the window-relative point (xRel, yRel) falls
// inside the rectangle. Out-of-range points are an error for input
// dispatch, never clamped.
func (r Rect) Contains(xRel, yRel int) bool {
	return xRel >= 0 && xRel < r.Width && yRel >= 0 && yRel < r.Height
}

// Session represents one live browser instance and the OS resources it owns.
// WindowHandle and Geometry are re-resolved on every operation; the stored
// values are only the most recent successful query, never trusted as current.
type Session struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	Display      string        `json:"display,omitempty"`
	DisplayOwned bool          `json:"displayOwned"`
	DisplayPID   int           `json:"-"`
	BrowserPID   int           `json:"-"`
	WindowHandle string        `json:"windowHandle,omitempty"`
	Geometry     Rect          `json:"geometry"`
	StartedAt    time.Time     `json:"startedAt"`
}

// ClickRequest is the payload for clicking inside a session's window.
// Coordinates are relative to the window frame's top-left corner. Pointers
// distinguish an absent coordinate from a legitimate zero.
type ClickRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// TypeRequest is the payload for typing text into a session's window.
type TypeRequest struct {
	Text string `json:"text"`
}
