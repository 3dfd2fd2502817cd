package platform

import "errors"

// Failure taxonomy for backend operations. Callers match with errors.Is;
// backends wrap these with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrResourceExhausted: no free display slot in the scanned range,
	// or the live-session cap is reached.
	ErrResourceExhausted = errors.New("no free display slot available")

	// ErrLaunchFailure: a child process (browser or display server)
	// could not be started.
	ErrLaunchFailure = errors.New("process launch failed")

	// ErrWindowNotFound: window location failed, either during start or
	// on per-operation re-resolve.
	ErrWindowNotFound = errors.New("browser window not found")

	// ErrProcessGone: the liveness probe on an owned process failed.
	ErrProcessGone = errors.New("browser process no longer exists")

	// ErrOutOfBounds: window-relative coordinates fall outside the
	// freshly queried window rectangle.
	ErrOutOfBounds = errors.New("coordinates outside window bounds")

	// ErrToolExecution: an external introspection or input command
	// exited non-zero or produced unparseable output.
	ErrToolExecution = errors.New("window tool execution failed")
)
