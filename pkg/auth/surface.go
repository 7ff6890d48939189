package auth

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Surface is the interactive, user-visible login window. Production opens
// the system browser; tests substitute a fake.
type Surface interface {
	// Open makes the sign-in page visible to the user. Failure is fatal
	// to a login attempt.
	Open(url string) error
	// Close dismisses the surface. Best-effort: the user may already
	// have closed it.
	Close() error
}

// popupWidth/popupHeight are passed to providers that honor window size
// hints on their sign-in page.
const (
	popupWidth  = 480
	popupHeight = 640
)

// BrowserSurface opens the sign-in page in the user's default browser.
// It cannot close the window it opened; Close is a no-op, which is why
// the handshake treats closing as best-effort.
type BrowserSurface struct{}

// Open launches the platform's URL opener.
func (BrowserSurface) Open(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("empty url")
	}
	target = fmt.Sprintf("%s#w=%d,h=%d", target, popupWidth, popupHeight)

	var cmds [][]string
	switch runtime.GOOS {
	case "darwin":
		cmds = [][]string{{"open", target}}
	case "windows":
		cmds = [][]string{{"cmd", "/c", "start", "", target}}
	default:
		cmds = [][]string{{"xdg-open", target}, {"gio", "open", target}}
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		if err := cmd.Start(); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no open command available")
}

// Close is a no-op: a browser tab opened via the OS opener cannot be
// dismissed programmatically.
func (BrowserSurface) Close() error { return nil }
