// Package binary owns the on-disk copy of the CLI Proxy API executable:
// presence and version checks, pinning, retrying verified downloads, and
// single-entry archive extraction.
package binary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zesbe/ccswitch/internal/platform"
)

// FallbackVersion is the hard-coded safety version installed when a fresh
// machine cannot reach the release API at all.
const FallbackVersion = "6.5.5"

// Manager orchestrates download, verification, extraction, and version
// bookkeeping for the proxy binary.
type Manager struct {
	binDir     string
	cacheDir   string
	keyringDir string
	pinPath    string

	releaseBase string
	latestURL   string

	downloader *Downloader
	now        func() time.Time
}

// Config holds configuration for the binary manager.
type Config struct {
	// RootDir is the ccswitch state directory (default ~/.ccswitch).
	RootDir string

	// ReleaseBaseURL and LatestReleaseURL override the release channel
	// endpoints. Empty means the real hosting location; tests point these
	// at an httptest server.
	ReleaseBaseURL   string
	LatestReleaseURL string
}

// NewManager creates a binary manager rooted at config.RootDir.
func NewManager(config Config) (*Manager, error) {
	if config.RootDir == "" {
		return nil, fmt.Errorf("RootDir is required")
	}

	releaseBase := config.ReleaseBaseURL
	if releaseBase == "" {
		releaseBase = platform.ReleaseBaseURL
	}
	latestURL := config.LatestReleaseURL
	if latestURL == "" {
		latestURL = platform.LatestReleaseURL
	}

	return &Manager{
		binDir:      filepath.Join(config.RootDir, "bin"),
		cacheDir:    filepath.Join(config.RootDir, "cache"),
		keyringDir:  filepath.Join(config.RootDir, "keyrings"),
		pinPath:     filepath.Join(config.RootDir, "version-pin"),
		releaseBase: releaseBase,
		latestURL:   latestURL,
		downloader:  NewDownloader(),
		now:         time.Now,
	}, nil
}

// BinaryPath returns the path the executable lives at once installed.
func (m *Manager) BinaryPath() string {
	return filepath.Join(m.binDir, platform.ExecutableName())
}

func (m *Manager) versionMarkerPath() string {
	return filepath.Join(m.binDir, "version")
}

func (m *Manager) versionCachePath() string {
	return filepath.Join(m.cacheDir, "version-check.json")
}

// IsInstalled reports whether the executable exists and is runnable.
func (m *Manager) IsInstalled() bool {
	info, err := os.Stat(m.BinaryPath())
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return false
	}
	return true
}

// InstalledVersion returns the persisted installed-version marker, or the
// fallback version when the marker is missing or unreadable.
func (m *Manager) InstalledVersion() string {
	data, err := os.ReadFile(m.versionMarkerPath())
	if err != nil {
		return FallbackVersion
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return FallbackVersion
	}
	return v
}

// PinnedVersion returns the user's pinned version, if any.
func (m *Manager) PinnedVersion() (string, bool) {
	data, err := os.ReadFile(m.pinPath)
	if err != nil {
		return "", false
	}
	v := NormalizeVersion(string(data))
	return v, v != ""
}

// Pin records an explicit version choice. A pinned version suppresses all
// automatic update checks and upgrades until unpinned.
func (m *Manager) Pin(version string) error {
	version = NormalizeVersion(version)
	if version == "" {
		return fmt.Errorf("pin version is empty")
	}
	if err := os.MkdirAll(filepath.Dir(m.pinPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(m.pinPath, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pin: %w", err)
	}
	return nil
}

// Unpin removes the version pin.
func (m *Manager) Unpin() error {
	if err := os.Remove(m.pinPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pin: %w", err)
	}
	return nil
}

// UpdateCheck is the result of a newer-version lookup.
type UpdateCheck struct {
	HasUpdate      bool
	CurrentVersion string
	LatestVersion  string
	FromCache      bool
}

// CheckForUpdates compares the installed version against the latest
// published one, consulting the one-hour version cache before the release
// API. A successful remote lookup refreshes the cache; a failed cache write
// is logged and ignored.
func (m *Manager) CheckForUpdates(ctx context.Context) (*UpdateCheck, error) {
	current := m.InstalledVersion()

	if cache := loadVersionCache(m.versionCachePath()); cache.fresh(m.now()) {
		return &UpdateCheck{
			HasUpdate:      CompareVersions(cache.LatestVersion, current) > 0,
			CurrentVersion: current,
			LatestVersion:  cache.LatestVersion,
			FromCache:      true,
		}, nil
	}

	latest, err := m.fetchLatestVersion(ctx)
	if err != nil {
		return nil, err
	}

	if err := saveVersionCache(m.versionCachePath(), &versionCache{
		LatestVersion: latest,
		CheckedAt:     m.now(),
	}); err != nil {
		log.Debugf("write version cache: %v", err)
	}

	return &UpdateCheck{
		HasUpdate:      CompareVersions(latest, current) > 0,
		CurrentVersion: current,
		LatestVersion:  latest,
		FromCache:      false,
	}, nil
}

// EnsureBinary guarantees a verified executable on disk and returns its
// path.
//
// Not installed: the pinned version is used verbatim when set; otherwise the
// latest published version, falling back to FallbackVersion when the lookup
// fails. Install errors here are fatal and carry the manual download URL.
//
// Installed and pinned: the existing path is returned without touching the
// network.
//
// Installed and unpinned: a best-effort update check runs; when a newer
// version exists the binary is reinstalled in place. Failures on this path
// are logged and swallowed, because the existing binary stays usable.
func (m *Manager) EnsureBinary(ctx context.Context) (string, error) {
	pinned, hasPin := m.PinnedVersion()

	if m.IsInstalled() {
		if hasPin {
			return m.BinaryPath(), nil
		}

		check, err := m.CheckForUpdates(ctx)
		if err != nil {
			log.Debugf("update check failed: %v", err)
			return m.BinaryPath(), nil
		}
		if !check.HasUpdate {
			return m.BinaryPath(), nil
		}

		log.Infof("updating proxy binary %s -> %s", check.CurrentVersion, check.LatestVersion)
		if err := m.removeInstalled(); err != nil {
			log.Debugf("remove outdated binary: %v", err)
			return m.BinaryPath(), nil
		}
		if err := m.install(ctx, check.LatestVersion); err != nil {
			// The old binary is already gone, so this is a mandatory
			// install again; the next invocation re-downloads.
			return "", fmt.Errorf("reinstall after update: %w\nretry with: ccswitch ensure-binary", err)
		}
		return m.BinaryPath(), nil
	}

	version := pinned
	if !hasPin {
		check, err := m.CheckForUpdates(ctx)
		if err != nil {
			log.Debugf("latest version lookup failed, using fallback %s: %v", FallbackVersion, err)
			version = FallbackVersion
		} else {
			version = check.LatestVersion
		}
	}

	if err := m.install(ctx, version); err != nil {
		info, derr := platform.Detect(version)
		if derr == nil {
			return "", fmt.Errorf("install proxy binary v%s: %w\ndownload it manually from %s", version, err, info.DownloadURL(version))
		}
		return "", fmt.Errorf("install proxy binary v%s: %w", version, err)
	}
	return m.BinaryPath(), nil
}

// install downloads, verifies, and extracts one version of the binary, then
// persists the installed-version marker. Ordering is strict: a checksum
// failure prevents extraction, an extraction failure prevents marking the
// version installed.
func (m *Manager) install(ctx context.Context, version string) error {
	info, err := platform.Detect(version)
	if err != nil {
		return err
	}

	archiveURL := fmt.Sprintf("%s/v%s/%s", m.releaseBase, version, info.ArchiveName)
	checksumsURL := fmt.Sprintf("%s/v%s/%s", m.releaseBase, version, platform.ChecksumsName(version))
	archivePath := filepath.Join(m.cacheDir, "downloads", info.ArchiveName)

	if err := m.downloader.DownloadToFile(ctx, archiveURL, archivePath); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}

	manifest, err := m.downloader.FetchBytes(ctx, checksumsURL, fetchTimeout)
	if err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("download checksums: %w", err)
	}

	if err := verifyChecksum(archivePath, manifest, info.ArchiveName); err != nil {
		os.Remove(archivePath)
		return err
	}

	if err := m.maybeVerifySignature(ctx, archiveURL, archivePath); err != nil {
		os.Remove(archivePath)
		return err
	}

	if err := extractExecutable(archivePath, m.BinaryPath(), platform.ExecutableName(), info.ArchiveKind); err != nil {
		return fmt.Errorf("extract %s: %w", info.ArchiveName, err)
	}

	if err := os.WriteFile(m.versionMarkerPath(), []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}

	os.Remove(archivePath)
	log.Infof("installed proxy binary v%s", version)
	return nil
}

// maybeVerifySignature adds OpenPGP verification when the user has dropped a
// keyring into the keyring directory and the release publishes a detached
// signature. Checksums already passed; a missing signature or keyring is not
// an error, a failing signature is.
func (m *Manager) maybeVerifySignature(ctx context.Context, archiveURL, archivePath string) error {
	keyringPath := filepath.Join(m.keyringDir, "cliproxyapi.gpg")
	if _, err := os.Stat(keyringPath); err != nil {
		return nil
	}

	sig, err := m.downloader.FetchBytes(ctx, archiveURL+".sig", fetchTimeout)
	if err != nil {
		log.Debugf("no release signature available: %v", err)
		return nil
	}

	sigPath := archivePath + ".sig"
	if err := os.WriteFile(sigPath, sig, 0o644); err != nil {
		return fmt.Errorf("write signature: %w", err)
	}
	defer os.Remove(sigPath)

	if err := verifySignature(archivePath, sigPath, keyringPath); err != nil {
		return err
	}
	log.Debugf("release signature verified against %s", keyringPath)
	return nil
}

func (m *Manager) removeInstalled() error {
	if err := os.Remove(m.BinaryPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(m.versionMarkerPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Uninstall removes the binary and its version marker. The pin, if any, is
// left in place: it records the user's version choice, not install state.
func (m *Manager) Uninstall() error {
	return m.removeInstalled()
}
