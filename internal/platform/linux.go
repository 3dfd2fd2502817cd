//go:build linux

package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ovidalb/webdesk/pkg/models"
)

const (
	displayScanMax   = 99
	screenSpec       = "1920x1080x24"
	xvfbReadyTimeout = 5 * time.Second
	xvfbPollEvery    = 100 * time.Millisecond
	windowTitleMatch = "chrome"
	interKeyDelayMS  = 20
	focusSettle      = 100 * time.Millisecond
)

// linuxBackend drives Chrome on X11. Virtual displays come from Xvfb,
// window discovery from wmctrl, input from xdotool.
type linuxBackend struct {
	browserBin string
	socketDir  string // X11 socket directory, /tmp/.X11-unix in production
	ambient    string // DISPLAY at construction, the only display ever reused
}

// New returns the Linux backend. browserBin defaults to google-chrome.
// The ambient DISPLAY is recorded here, once: the environment variable is
// touched during captures, so reading it later could mistake a
// session-owned Xvfb for the host's display.
func New(browserBin string) (Backend, error) {
	if browserBin == "" {
		browserBin = "google-chrome"
	}
	return &linuxBackend{
		browserBin: browserBin,
		socketDir:  "/tmp/.X11-unix",
		ambient:    os.Getenv("DISPLAY"),
	}, nil
}

func (b *linuxBackend) Name() string { return "linux" }

// ProvisionDisplay reuses the display that was ambient at construction when
// it is still alive, otherwise starts Xvfb on the first free display number
// in :1..:99 and polls it until it accepts connections. Session-owned
// displays are never handed out a second time.
func (b *linuxBackend) ProvisionDisplay(ctx context.Context) (Display, error) {
	if b.ambient != "" && b.displayAlive(b.ambient) {
		return Display{ID: b.ambient}, nil
	}

	id, err := b.findFreeDisplay()
	if err != nil {
		return Display{}, err
	}

	cmd := exec.Command("Xvfb", id, "-screen", "0", screenSpec)
	if err := cmd.Start(); err != nil {
		return Display{}, fmt.Errorf("starting Xvfb on %s: %v: %w", id, err, ErrLaunchFailure)
	}
	go cmd.Wait()

	deadline := time.Now().Add(xvfbReadyTimeout)
	for {
		if b.displayAlive(id) {
			return Display{ID: id, Owned: true, PID: cmd.Process.Pid}, nil
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			b.Kill(cmd.Process.Pid)
			return Display{}, fmt.Errorf("Xvfb on %s never became ready: %w", id, ErrLaunchFailure)
		}
		time.Sleep(xvfbPollEvery)
	}
}

// findFreeDisplay scans :1..:99 and returns the first display number with
// no X socket and no Xvfb already bound to it.
func (b *linuxBackend) findFreeDisplay() (string, error) {
	for n := 1; n <= displayScanMax; n++ {
		id := fmt.Sprintf(":%d", n)

		if _, err := os.Stat(filepath.Join(b.socketDir, fmt.Sprintf("X%d", n))); err == nil {
			continue
		}
		// Socket may be gone while the server lingers; check for a process too.
		if exec.Command("pgrep", "-f", fmt.Sprintf("Xvfb %s", id)).Run() == nil {
			continue
		}

		return id, nil
	}
	return "", fmt.Errorf("scanned :1..:%d: %w", displayScanMax, ErrResourceExhausted)
}

// displayAlive probes an X display with xdpyinfo.
func (b *linuxBackend) displayAlive(id string) bool {
	return exec.Command("xdpyinfo", "-display", id).Run() == nil
}

// LaunchBrowser spawns Chrome maximized on the display with a fresh
// uniquely-named profile directory, so sessions never share state or
// contend on a profile lock. Returns as soon as the process is started.
func (b *linuxBackend) LaunchBrowser(ctx context.Context, d Display) (int, error) {
	profileDir := filepath.Join(os.TempDir(), "webdesk-profile-"+uuid.New().String())

	cmd := exec.Command(b.browserBin,
		"--no-sandbox",
		"--disable-gpu",
		"--start-maximized",
		"--user-data-dir="+profileDir,
		"about:blank",
	)
	cmd.Env = append(os.Environ(), "DISPLAY="+d.ID)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %v: %w", b.browserBin, err, ErrLaunchFailure)
	}
	go cmd.Wait()

	return cmd.Process.Pid, nil
}

// LocateWindow lists the display's top-level windows with wmctrl and picks
// the first one whose title matches. The wmctrl row already carries the
// outer-frame geometry, so locate and geometry are one query.
func (b *linuxBackend) LocateWindow(d Display, pid int) (Window, error) {
	out, err := b.runTool(d, "wmctrl", "-lG")
	if err != nil {
		// wmctrl exits non-zero while the window manager is still coming
		// up; treat it the same as no window yet so callers can retry.
		return Window{}, fmt.Errorf("wmctrl on %s: %v: %w", d.ID, err, ErrWindowNotFound)
	}

	win, ok := parseWindowList(string(out), windowTitleMatch)
	if !ok {
		return Window{}, fmt.Errorf("no %q window on display %s: %w", windowTitleMatch, d.ID, ErrWindowNotFound)
	}
	return win, nil
}

// parseWindowList scans `wmctrl -lG` output for the first window whose
// title contains titleSub (case-insensitive). Row format:
//
//	0x04000007  0 12   34   1920 1080 host title words...
//
// i.e. id, desktop, x, y, width, height, host, title.
func parseWindowList(out, titleSub string) (Window, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		title := strings.Join(fields[7:], " ")
		if !strings.Contains(strings.ToLower(title), strings.ToLower(titleSub)) {
			continue
		}

		x, errX := strconv.Atoi(fields[2])
		y, errY := strconv.Atoi(fields[3])
		w, errW := strconv.Atoi(fields[4])
		h, errH := strconv.Atoi(fields[5])
		if errX != nil || errY != nil || errW != nil || errH != nil {
			continue
		}

		return Window{
			Handle: fields[0],
			Bounds: models.Rect{X: x, Y: y, Width: w, Height: h},
		}, true
	}
	return Window{}, false
}

// CaptureRect grabs the rectangle from the session's display and encodes
// it as JPEG. The screenshot library dials the X server named by DISPLAY,
// so it is pointed at the session's display for the duration of the grab
// and the previous value is restored before returning; the registry's
// global lock keeps the swap-grab-restore sequence atomic.
func (b *linuxBackend) CaptureRect(d Display, r models.Rect) ([]byte, error) {
	if d.ID != "" {
		prev, had := os.LookupEnv("DISPLAY")
		os.Setenv("DISPLAY", d.ID)
		defer func() {
			if had {
				os.Setenv("DISPLAY", prev)
			} else {
				os.Unsetenv("DISPLAY")
			}
		}()
	}
	return captureJPEG(r)
}

// Click moves the pointer to the window-relative position and issues a
// single left-button press-and-release via xdotool.
func (b *linuxBackend) Click(d Display, w Window, xRel, yRel int) error {
	_, err := b.runTool(d, "xdotool",
		"mousemove", "--window", w.Handle,
		strconv.Itoa(xRel), strconv.Itoa(yRel),
		"click", "1",
	)
	if err != nil {
		return fmt.Errorf("xdotool click: %v: %w", err, ErrToolExecution)
	}
	return nil
}

// TypeText activates the window, then sends the text as key events with a
// fixed inter-key delay. The text is passed through verbatim.
func (b *linuxBackend) TypeText(d Display, w Window, text string) error {
	if _, err := b.runTool(d, "xdotool", "windowactivate", w.Handle); err != nil {
		return fmt.Errorf("xdotool windowactivate: %v: %w", err, ErrToolExecution)
	}
	time.Sleep(focusSettle)

	_, err := b.runTool(d, "xdotool",
		"type", "--delay", strconv.Itoa(interKeyDelayMS), "--", text)
	if err != nil {
		return fmt.Errorf("xdotool type: %v: %w", err, ErrToolExecution)
	}
	return nil
}

// ProcessAlive probes the pid with signal 0.
func (b *linuxBackend) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// Kill sends SIGTERM, best-effort.
func (b *linuxBackend) Kill(pid int) {
	if pid <= 0 {
		return
	}
	syscall.Kill(pid, syscall.SIGTERM)
}

// KillDisplay terminates an owned Xvfb, best-effort.
func (b *linuxBackend) KillDisplay(d Display) {
	if !d.Owned {
		return
	}
	b.Kill(d.PID)
}

// runTool executes an X11 command-line tool against the session's display
// and returns its combined output.
func (b *linuxBackend) runTool(d Display, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+d.ID)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %v (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}
