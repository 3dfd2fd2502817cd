//go:build windows

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
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/ovidalb/webdesk/pkg/models"
)

const (
	winTitleMatch  = "chrome"
	winInterKey    = 20 * time.Millisecond
	winClickHold   = 20 * time.Millisecond
	winFocusSettle = 100 * time.Millisecond
	stillActive    = 259 // STILL_ACTIVE exit code
	mouseLeftDown  = 0x0002
	mouseLeftUp    = 0x0004
	keyEventKeyUp  = 0x0002
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procSetCursorPos             = user32.NewProc("SetCursorPos")
	procMouseEvent               = user32.NewProc("mouse_event")
	procKeybdEvent               = user32.NewProc("keybd_event")
	procVkKeyScanW               = user32.NewProc("VkKeyScanW")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
)

// windowsBackend drives Chrome on the ambient desktop via user32. Windows
// has no per-session display: ProvisionDisplay always reuses the desktop.
type windowsBackend struct {
	browserBin string
}

// New returns the Windows backend. browserBin defaults to the standard
// Chrome install path, falling back to chrome on PATH.
func New(browserBin string) (Backend, error) {
	if browserBin == "" {
		p := filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe")
		if _, err := os.Stat(p); err == nil {
			browserBin = p
		} else {
			browserBin = "chrome"
		}
	}
	return &windowsBackend{browserBin: browserBin}, nil
}

func (b *windowsBackend) Name() string { return "windows" }

func (b *windowsBackend) ProvisionDisplay(ctx context.Context) (Display, error) {
	return Display{}, nil
}

func (b *windowsBackend) LaunchBrowser(ctx context.Context, d Display) (int, error) {
	profileDir := filepath.Join(os.TempDir(), "webdesk-profile-"+uuid.New().String())

	cmd := exec.Command(b.browserBin,
		"--new-window",
		"--no-sandbox",
		"--disable-gpu",
		"--start-maximized",
		"--user-data-dir="+profileDir,
		"about:blank",
	)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %v: %w", b.browserBin, err, ErrLaunchFailure)
	}
	go cmd.Wait()

	return cmd.Process.Pid, nil
}

// enumQuery carries the match criteria through the EnumWindows callback.
type enumQuery struct {
	pid   uint32
	title string
	hwnd  uintptr
}

// enumCB is created once; NewCallback slots are a finite process-wide
// resource and must not be allocated per call.
var enumCB = syscall.NewCallback(func(hwnd, lparam uintptr) uintptr {
	q := (*enumQuery)(unsafe.Pointer(lparam))

	visible, _, _ := procIsWindowVisible.Call(hwnd)
	if visible == 0 {
		return 1
	}

	var wpid uint32
	procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&wpid)))
	if wpid != q.pid {
		return 1
	}

	if !strings.Contains(strings.ToLower(windowText(hwnd)), q.title) {
		return 1
	}

	q.hwnd = hwnd
	return 0 // first match wins, stop enumerating
})

func windowText(hwnd uintptr) string {
	var buf [512]uint16
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:n])
}

// LocateWindow walks the visible top-level windows and returns the first
// one owned by the browser pid with a matching title, along with its
// outer frame from GetWindowRect.
func (b *windowsBackend) LocateWindow(d Display, pid int) (Window, error) {
	q := enumQuery{pid: uint32(pid), title: winTitleMatch}
	procEnumWindows.Call(enumCB, uintptr(unsafe.Pointer(&q)))
	if q.hwnd == 0 {
		return Window{}, fmt.Errorf("no visible window for pid %d: %w", pid, ErrWindowNotFound)
	}

	bounds, err := windowRect(q.hwnd)
	if err != nil {
		// Window vanished between enumerate and query.
		return Window{}, err
	}

	return Window{
		Handle: strconv.FormatUint(uint64(q.hwnd), 10),
		Bounds: bounds,
	}, nil
}

// windowRect returns the window's outer frame, decoration included, in
// absolute screen coordinates.
func windowRect(hwnd uintptr) (models.Rect, error) {
	var r struct{ Left, Top, Right, Bottom int32 }
	ret, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
	if ret == 0 {
		return models.Rect{}, fmt.Errorf("GetWindowRect on %#x: %w", hwnd, ErrToolExecution)
	}
	return models.Rect{
		X:      int(r.Left),
		Y:      int(r.Top),
		Width:  int(r.Right - r.Left),
		Height: int(r.Bottom - r.Top),
	}, nil
}

func (b *windowsBackend) CaptureRect(d Display, r models.Rect) ([]byte, error) {
	return captureJPEG(r)
}

// Click moves the cursor to the absolute position and sends a left-button
// press-and-release with a short hold between the two events.
func (b *windowsBackend) Click(d Display, w Window, xRel, yRel int) error {
	xAbs := w.Bounds.X + xRel
	yAbs := w.Bounds.Y + yRel

	ret, _, _ := procSetCursorPos.Call(uintptr(xAbs), uintptr(yAbs))
	if ret == 0 {
		return fmt.Errorf("SetCursorPos(%d,%d): %w", xAbs, yAbs, ErrToolExecution)
	}

	procMouseEvent.Call(mouseLeftDown, uintptr(xAbs), uintptr(yAbs), 0, 0)
	time.Sleep(winClickHold)
	procMouseEvent.Call(mouseLeftUp, uintptr(xAbs), uintptr(yAbs), 0, 0)
	return nil
}

// TypeText brings the window to the foreground, then replays the text as
// key down/up pairs at a fixed inter-key delay. Characters with no direct
// virtual-key mapping are skipped.
func (b *windowsBackend) TypeText(d Display, w Window, text string) error {
	hwnd, err := strconv.ParseUint(w.Handle, 10, 64)
	if err != nil {
		return fmt.Errorf("bad window handle %q: %w", w.Handle, ErrToolExecution)
	}

	ret, _, _ := procSetForegroundWindow.Call(uintptr(hwnd))
	if ret == 0 {
		return fmt.Errorf("SetForegroundWindow(%#x): %w", hwnd, ErrToolExecution)
	}
	time.Sleep(winFocusSettle)

	for _, c := range text {
		vk, _, _ := procVkKeyScanW.Call(uintptr(uint16(c)))
		if int16(vk) == -1 {
			continue
		}
		key := uintptr(byte(vk))
		procKeybdEvent.Call(key, 0, 0, 0)
		procKeybdEvent.Call(key, 0, keyEventKeyUp, 0)
		time.Sleep(winInterKey)
	}
	return nil
}

func (b *windowsBackend) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

func (b *windowsBackend) Kill(pid int) {
	if pid <= 0 {
		return
	}
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return
	}
	defer windows.CloseHandle(h)
	windows.TerminateProcess(h, 1)
}

// KillDisplay is a no-op: the ambient desktop is never owned.
func (b *windowsBackend) KillDisplay(d Display) {}
