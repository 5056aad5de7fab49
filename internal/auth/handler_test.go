package auth

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zesbe/ccswitch/internal/account"
	"github.com/zesbe/ccswitch/internal/provider"
)

// scriptBinary stands in for the managed proxy executable.
type scriptBinary struct {
	path string
}

func (s scriptBinary) EnsureBinary(ctx context.Context) (string, error) {
	return s.path, nil
}

// writeScript creates an executable shell script posing as the proxy
// binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a Unix shell")
	}
	path := filepath.Join(t.TempDir(), "fake-proxy")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestHandler(t *testing.T, script string) (*Handler, *account.Manager, string, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	accounts, err := account.NewManager(root)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := os.MkdirAll(accounts.AuthDir(), 0o755); err != nil {
		t.Fatalf("mkdir auth: %v", err)
	}

	var out bytes.Buffer
	h, err := NewHandler(Config{
		RootDir:  root,
		Binaries: scriptBinary{path: script},
		Accounts: accounts,
		Output:   &out,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, accounts, root, &out
}

// The qwen provider uses a device-code flow, so these tests exercise the
// full state machine without touching any callback port.

func TestAuthenticateRegistersAccount(t *testing.T) {
	script := writeScript(t, `
authdir="$(dirname "$2")/auth"
echo "Visit https://example.com/device to continue"
printf '{"type":"qwen","email":"dev@x.com"}' > "$authdir/qwen-dev.json"
exit 0
`)
	h, accounts, _, _ := newTestHandler(t, script)

	interactive := false
	acc, err := h.Authenticate(context.Background(), provider.Qwen, Options{Headless: &interactive})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acc == nil {
		t.Fatal("Authenticate returned nil account")
	}
	if acc.Email != "dev@x.com" {
		t.Errorf("Email = %q, want dev@x.com", acc.Email)
	}
	if acc.Nickname != "dev" {
		t.Errorf("Nickname = %q, want dev", acc.Nickname)
	}

	def, ok := accounts.Default(provider.Qwen)
	if !ok || def.ID != "dev@x.com" {
		t.Errorf("default after login = %+v, %v", def, ok)
	}
	if !h.IsAuthenticated(provider.Qwen) {
		t.Error("IsAuthenticated is false after a successful login")
	}
}

func TestAuthenticatePassesLoginFlag(t *testing.T) {
	script := writeScript(t, `
authdir="$(dirname "$2")/auth"
echo "$@" > "$authdir/../args.txt"
printf '{"type":"qwen"}' > "$authdir/qwen-default.json"
exit 0
`)
	h, _, root, _ := newTestHandler(t, script)

	interactive := false
	if _, err := h.Authenticate(context.Background(), provider.Qwen, Options{Headless: &interactive}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	args, err := os.ReadFile(filepath.Join(root, "args.txt"))
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	got := string(args)
	if !strings.Contains(got, "--qwen-login") {
		t.Errorf("args %q missing --qwen-login", got)
	}
	if !strings.Contains(got, "--config") || !strings.Contains(got, "proxy.yaml") {
		t.Errorf("args %q missing --config proxy.yaml", got)
	}
	if strings.Contains(got, "--no-browser") {
		t.Errorf("args %q carry --no-browser in interactive mode", got)
	}
}

func TestAuthenticateHeadlessPrintsURL(t *testing.T) {
	script := writeScript(t, `
authdir="$(dirname "$2")/auth"
echo "Open https://example.com/device?code=XYZ to authorize" >&2
printf '{"type":"qwen","email":"a@x.com"}' > "$authdir/qwen-a.json"
exit 0
`)
	h, _, _, out := newTestHandler(t, script)

	headless := true
	if _, err := h.Authenticate(context.Background(), provider.Qwen, Options{Headless: &headless}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !strings.Contains(out.String(), "https://example.com/device?code=XYZ") {
		t.Errorf("headless output does not surface the URL:\n%s", out.String())
	}
}

func TestAuthenticateCleanExitWithoutCredential(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	h, _, _, _ := newTestHandler(t, script)

	interactive := false
	_, err := h.Authenticate(context.Background(), provider.Qwen, Options{Headless: &interactive})
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Authenticate error = %v, want ErrCredentialNotFound", err)
	}
}

func TestAuthenticateBinaryFailure(t *testing.T) {
	script := writeScript(t, "echo 'login failed' >&2\nexit 3\n")
	h, _, _, _ := newTestHandler(t, script)

	interactive := false
	_, err := h.Authenticate(context.Background(), provider.Qwen, Options{Headless: &interactive})
	if err == nil {
		t.Fatal("Authenticate succeeded despite a nonzero exit")
	}
	if errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("exit failure misreported as missing credential: %v", err)
	}
}

// A login that overruns its deadline must be killed and reported promptly,
// even when it spawned a descendant that inherited the output pipes and
// keeps them open past the kill.
func TestRunLoginTimeoutWithLingeringDescendant(t *testing.T) {
	script := writeScript(t, `
sleep 30 &
sleep 30
`)
	h, _, _, _ := newTestHandler(t, script)
	prov, ok := provider.Lookup("qwen")
	if !ok {
		t.Fatal("qwen provider missing")
	}

	start := time.Now()
	err := h.runLogin(context.Background(), prov, script, false, 500*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrOAuthTimeout) {
		t.Fatalf("runLogin error = %v, want ErrOAuthTimeout", err)
	}
	// The deadline plus the pipe-drain grace, with generous slack; far
	// below the 30s the background child sleeps.
	if elapsed > 10*time.Second {
		t.Fatalf("timeout delivered after %s, blocked on descendant pipes", elapsed)
	}
}

func TestAuthenticateDeclinedMultiAccountPrompt(t *testing.T) {
	script := writeScript(t, `
authdir="$(dirname "$2")/auth"
printf '{"type":"qwen","email":"a@x.com"}' > "$authdir/qwen-a.json"
exit 0
`)
	h, accounts, _, _ := newTestHandler(t, script)

	if _, err := accounts.Register(provider.Qwen, "existing@x.com", "/tmp/q.json", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// No Confirm func: the prompt is declined and nothing is spawned.
	interactive := false
	acc, err := h.Authenticate(context.Background(), provider.Qwen, Options{Headless: &interactive})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acc != nil {
		t.Errorf("declined prompt still produced account %+v", acc)
	}
	if got := len(accounts.List(provider.Qwen)); got != 1 {
		t.Errorf("account count = %d, want 1", got)
	}
}

func TestAuthenticateConfirmedMultiAccount(t *testing.T) {
	script := writeScript(t, `
authdir="$(dirname "$2")/auth"
printf '{"type":"qwen","email":"b@x.com"}' > "$authdir/qwen-b.json"
exit 0
`)
	h, accounts, _, _ := newTestHandler(t, script)

	if _, err := accounts.Register(provider.Qwen, "a@x.com", "/tmp/q.json", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var prompted bool
	interactive := false
	acc, err := h.Authenticate(context.Background(), provider.Qwen, Options{
		Headless: &interactive,
		Confirm: func(prompt string) bool {
			prompted = true
			return true
		},
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !prompted {
		t.Error("Confirm was never called")
	}
	if acc == nil || acc.Email != "b@x.com" {
		t.Fatalf("Authenticate = %+v", acc)
	}
	if got := len(accounts.List(provider.Qwen)); got != 2 {
		t.Errorf("account count = %d, want 2", got)
	}
}

func TestClearAuthRemovesCredentialsAndRegistry(t *testing.T) {
	h, accounts, _, _ := newTestHandler(t, writeScript(t, "exit 0\n"))

	credPath := filepath.Join(accounts.AuthDir(), "qwen-a.json")
	if err := os.WriteFile(credPath, []byte(`{"type":"qwen","email":"a@x.com"}`), 0o600); err != nil {
		t.Fatalf("write credential: %v", err)
	}
	if _, err := accounts.Register(provider.Qwen, "a@x.com", credPath, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := h.ClearAuth(provider.Qwen); err != nil {
		t.Fatalf("ClearAuth: %v", err)
	}
	if _, err := os.Stat(credPath); !os.IsNotExist(err) {
		t.Errorf("credential file survived logout: %v", err)
	}
	if h.IsAuthenticated(provider.Qwen) {
		t.Error("IsAuthenticated is true after logout")
	}
	if got := len(accounts.List(provider.Qwen)); got != 0 {
		t.Errorf("account count after logout = %d", got)
	}
}

func TestGetAuthStatus(t *testing.T) {
	h, accounts, _, _ := newTestHandler(t, writeScript(t, "exit 0\n"))

	credPath := filepath.Join(accounts.AuthDir(), "qwen-a.json")
	if err := os.WriteFile(credPath, []byte(`{"type":"qwen","email":"a@x.com"}`), 0o600); err != nil {
		t.Fatalf("write credential: %v", err)
	}
	if _, err := accounts.Register(provider.Qwen, "a@x.com", credPath, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	status, err := h.GetAuthStatus(provider.Qwen)
	if err != nil {
		t.Fatalf("GetAuthStatus: %v", err)
	}
	if !status.Authenticated {
		t.Error("Authenticated = false with a credential on disk")
	}
	if len(status.Accounts) != 1 || status.DefaultID != "a@x.com" {
		t.Errorf("status = %+v", status)
	}

	// A provider with no state reports unauthenticated, not an error.
	status, err = h.GetAuthStatus(provider.IFlow)
	if err != nil {
		t.Fatalf("GetAuthStatus(iflow): %v", err)
	}
	if status.Authenticated || len(status.Accounts) != 0 {
		t.Errorf("empty provider status = %+v", status)
	}

	if _, err := h.GetAuthStatus(provider.ID("nope")); err == nil {
		t.Error("unknown provider did not error")
	}
}

func TestPortFree(t *testing.T) {
	// Bind an ephemeral port, confirm it reads busy, then free it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if portFree(port) {
		t.Errorf("port %d reported free while bound", port)
	}
	ln.Close()
	if !portFree(port) {
		t.Errorf("port %d reported busy after close", port)
	}
}

func TestClearCallbackPortOnFreePort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if err := clearCallbackPort(context.Background(), port); err != nil {
		t.Errorf("clearCallbackPort on free port: %v", err)
	}
}
