package auth

import (
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
)

// detectHeadless classifies the current environment. An explicit override
// always wins. Otherwise a session is headless when it runs under a remote
// shell, on a Unix desktop with no display server, or with non-interactive
// input. Windows desktop sessions are never auto-classified headless:
// terminal wrappers there misreport interactivity, so only the explicit
// override applies.
func detectHeadless(override *bool) bool {
	if override != nil {
		return *override
	}
	return classifyHeadless(runtime.GOOS, os.Getenv, stdinIsTerminal())
}

func classifyHeadless(goos string, getenv func(string) string, stdinTTY bool) bool {
	if goos == "windows" {
		return false
	}
	if getenv("SSH_CONNECTION") != "" || getenv("SSH_TTY") != "" {
		return true
	}
	if goos != "darwin" && getenv("DISPLAY") == "" && getenv("WAYLAND_DISPLAY") == "" {
		return true
	}
	return !stdinTTY
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
