// Package auth orchestrates one OAuth attempt end to end: callback-port
// preflight, headless detection, launching the proxy binary in login mode,
// scraping the verification URL from its output, and verifying that a
// credential file actually appeared before registering the account.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/zesbe/ccswitch/internal/account"
	"github.com/zesbe/ccswitch/internal/provider"
)

const (
	// interactiveTimeout bounds a login flow with a local browser.
	interactiveTimeout = 2 * time.Minute
	// headlessTimeout is longer: the user has to relay the URL to
	// another device.
	headlessTimeout = 5 * time.Minute
	// pipeDrainGrace is how long the login binary's pipes stay open after
	// it exits or is killed. Descendants it leaves behind (a spawned
	// browser, a helper) inherit the pipe write-ends; without this bound
	// they could hold the output scan open indefinitely.
	pipeDrainGrace = 2 * time.Second
)

var (
	// ErrOAuthTimeout means the login flow did not finish in time. The
	// attempt is dead but the process is fine.
	ErrOAuthTimeout = errors.New("authentication timed out")
	// ErrCredentialNotFound means the binary exited cleanly but wrote no
	// credential file, so the flow cannot be trusted to have completed.
	ErrCredentialNotFound = errors.New("no credential file found")
)

// BinarySource yields a ready proxy executable. Satisfied by
// binary.Manager.
type BinarySource interface {
	EnsureBinary(ctx context.Context) (string, error)
}

// Handler drives OAuth attempts for all providers.
type Handler struct {
	binaries   BinarySource
	accounts   *account.Manager
	configPath string
	out        io.Writer
}

// Config holds the handler's collaborators. Accounts and Binaries are
// composed only here: they never call each other.
type Config struct {
	// RootDir is the ccswitch state directory.
	RootDir  string
	Binaries BinarySource
	Accounts *account.Manager
	// Output receives user-facing messages (default os.Stdout).
	Output io.Writer
}

// NewHandler creates an auth handler.
func NewHandler(config Config) (*Handler, error) {
	if config.RootDir == "" {
		return nil, fmt.Errorf("RootDir is required")
	}
	if config.Binaries == nil || config.Accounts == nil {
		return nil, fmt.Errorf("Binaries and Accounts are required")
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	return &Handler{
		binaries:   config.Binaries,
		accounts:   config.Accounts,
		configPath: filepath.Join(config.RootDir, "proxy.yaml"),
		out:        out,
	}, nil
}

// Options configures one authentication attempt.
type Options struct {
	// Headless overrides environment detection when non-nil.
	Headless *bool
	// AccountAdd authorizes adding another account to a provider that
	// already has one, skipping the confirmation prompt.
	AccountAdd bool
	// Nickname, when set, is used verbatim for the new account.
	Nickname string
	// Confirm asks the user a yes/no question. Nil means decline, which
	// keeps accidental multi-account logins impossible in scripts.
	Confirm func(prompt string) bool
}

// Authenticate runs one OAuth attempt for a provider. It returns the
// registered account on success, or nil with no error when the user
// declined the multi-account prompt.
func (h *Handler) Authenticate(ctx context.Context, id provider.ID, opts Options) (*account.Account, error) {
	prov, ok := provider.Lookup(string(id))
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}

	if existing := h.accounts.List(prov.ID); len(existing) > 0 && !opts.AccountAdd {
		prompt := fmt.Sprintf("%s already has %d account(s); add another?", prov.Name, len(existing))
		if opts.Confirm == nil || !opts.Confirm(prompt) {
			fmt.Fprintf(h.out, "Keeping existing %s account(s).\n", prov.Name)
			return nil, nil
		}
	}

	if prov.UsesCallback() {
		if err := clearCallbackPort(ctx, prov.CallbackPort); err != nil {
			return nil, err
		}
	}

	binPath, err := h.binaries.EnsureBinary(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare proxy binary: %w", err)
	}

	headless := detectHeadless(opts.Headless)
	timeout := interactiveTimeout
	if headless {
		timeout = headlessTimeout
	}

	started := time.Now()
	if err := h.runLogin(ctx, prov, binPath, headless, timeout); err != nil {
		return nil, err
	}

	credPath, credData, err := h.newestCredential(prov, started)
	if err != nil {
		return nil, err
	}

	email := gjson.GetBytes(credData, "email").String()
	acc, err := h.accounts.Register(prov.ID, email, credPath, opts.Nickname)
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}
	fmt.Fprintf(h.out, "Authenticated %s as %s.\n", prov.Name, acc.Nickname)
	return acc, nil
}

// runLogin spawns the binary in login mode and waits for it, scanning its
// output for the verification URL as lines arrive.
func (h *Handler) runLogin(ctx context.Context, prov provider.Provider, binPath string, headless bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--config", h.configPath, prov.LoginFlag}
	if headless {
		args = append(args, "--no-browser")
	}

	cmd := exec.CommandContext(ctx, binPath, args...)
	// Force the pipes closed shortly after the child exits or the deadline
	// kills it, even when a grandchild still holds the write-ends.
	cmd.WaitDelay = pipeDrainGrace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s login: %w", prov.Name, err)
	}
	log.Debugf("spawned %s %v (pid %d)", binPath, args, cmd.Process.Pid)

	var urlOnce sync.Once
	var wg sync.WaitGroup
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			log.Debugf("proxy: %s", line)
			if url := firstURL(line); url != "" {
				urlOnce.Do(func() { h.announceURL(url, headless) })
			}
		}
		if err := scanner.Err(); err != nil {
			log.Debugf("scan proxy output: %v", err)
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	// Wait closes the pipes after WaitDelay, which unblocks the scan
	// goroutines when a descendant kept the write-ends open.
	err = cmd.Wait()
	wg.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s; if the browser flow stalled, re-run the login, or pass --headless and open the printed URL elsewhere", ErrOAuthTimeout, timeout)
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		// The binary itself exited cleanly; only a descendant kept the
		// pipes open past the grace period. The credential rescan decides
		// whether the login worked.
		log.Debugf("login output pipes force-closed after %s", pipeDrainGrace)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%s login exited: %w", prov.Name, err)
	}
	return nil
}

// announceURL surfaces the verification URL. In headless mode this is the
// only path to completing the flow, so it is printed prominently.
func (h *Handler) announceURL(url string, headless bool) {
	if headless {
		fmt.Fprintf(h.out, "\nOpen this URL in a browser on another device to continue:\n\n  %s\n\nPress Ctrl+C to cancel.\n\n", url)
		return
	}
	log.Debugf("verification URL: %s", url)
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// firstURL returns the first absolute URL in a line, if any.
func firstURL(line string) string {
	return urlPattern.FindString(line)
}

// newestCredential re-scans the provider's credential files after the
// binary exits. A zero exit code alone is not trusted: the file has to be
// there. The diagnostic distinguishes device-code providers (polling never
// completed) from callback providers (stale port or cancelled browser
// flow).
func (h *Handler) newestCredential(prov provider.Provider, since time.Time) (string, []byte, error) {
	// Allow for coarse filesystem timestamps.
	since = since.Add(-2 * time.Second)

	var newestPath string
	var newestData []byte
	var newestMod time.Time

	for _, path := range h.credentialFiles(prov) {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().Before(since) {
			continue
		}
		if newestPath == "" || info.ModTime().After(newestMod) {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			newestPath, newestData, newestMod = path, data, info.ModTime()
		}
	}

	if newestPath == "" {
		if prov.UsesCallback() {
			return "", nil, fmt.Errorf("%w for %s: the browser flow may have been cancelled, or a stale process still holds port %d", ErrCredentialNotFound, prov.Name, prov.CallbackPort)
		}
		return "", nil, fmt.Errorf("%w for %s: the device-code flow never completed; re-run the login and enter the code before it expires", ErrCredentialNotFound, prov.Name)
	}
	return newestPath, newestData, nil
}

// credentialFiles lists the provider's credential files, in no particular
// order.
func (h *Handler) credentialFiles(prov provider.Provider) []string {
	entries, err := os.ReadDir(h.accounts.AuthDir())
	if err != nil {
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(h.accounts.AuthDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if prov.MatchesFile(entry.Name(), data) {
			files = append(files, path)
		}
	}
	return files
}

// IsAuthenticated reports whether any credential file exists for the
// provider.
func (h *Handler) IsAuthenticated(id provider.ID) bool {
	prov, ok := provider.Lookup(string(id))
	if !ok {
		return false
	}
	return len(h.credentialFiles(prov)) > 0
}

// Status describes a provider's authentication state.
type Status struct {
	Provider      provider.ID
	Authenticated bool
	Accounts      []*account.Account
	DefaultID     string
}

// GetAuthStatus returns the provider's registered accounts and whether
// credentials exist on disk.
func (h *Handler) GetAuthStatus(id provider.ID) (*Status, error) {
	prov, ok := provider.Lookup(string(id))
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}

	status := &Status{
		Provider:      prov.ID,
		Authenticated: len(h.credentialFiles(prov)) > 0,
		Accounts:      h.accounts.List(prov.ID),
	}
	if def, ok := h.accounts.Default(prov.ID); ok {
		status.DefaultID = def.ID
	}
	return status, nil
}

// ClearAuth logs a provider out: its credential files are deleted and its
// registry entry dropped.
func (h *Handler) ClearAuth(id provider.ID) error {
	prov, ok := provider.Lookup(string(id))
	if !ok {
		return fmt.Errorf("unknown provider %q", id)
	}

	for _, path := range h.credentialFiles(prov) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove credential file: %w", err)
		}
		log.Debugf("removed credential file %s", path)
	}
	return h.accounts.RemoveAll(prov.ID)
}
