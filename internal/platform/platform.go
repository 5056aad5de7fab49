// Package platform maps the running OS and CPU architecture to the exact
// release artifact names published by the CLI Proxy API release channel.
//
// Detection is a pure function of GOOS/GOARCH and the requested version:
// nothing here touches the network or the filesystem. Callers that need a
// different platform than the host (tests, cross checks) can go through
// DetectFor directly.
package platform

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	// BinaryName is the base name of the executable inside release archives.
	BinaryName = "cli-proxy-api"

	// ReleaseBaseURL is the fixed hosting location for release artifacts.
	ReleaseBaseURL = "https://github.com/router-for-me/CLIProxyAPI/releases/download"

	// LatestReleaseURL returns metadata for the newest published release.
	LatestReleaseURL = "https://api.github.com/repos/router-for-me/CLIProxyAPI/releases/latest"
)

// ErrUnsupportedPlatform indicates the host is outside the supported
// OS/architecture matrix. There is no retry or fallback for this.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ArchiveKind identifies the container format of a release archive.
type ArchiveKind string

const (
	// ArchiveTarGz is a gzip-compressed tar archive (darwin, linux).
	ArchiveTarGz ArchiveKind = "tar.gz"
	// ArchiveZip is a zip archive (windows).
	ArchiveZip ArchiveKind = "zip"
)

// Info describes the release artifact matching one platform and version.
type Info struct {
	OS          string // "darwin", "linux", "windows"
	Arch        string // "amd64", "arm64"
	ArchiveName string // e.g. "CLIProxyAPI_6.5.5_linux_amd64.tar.gz"
	ArchiveKind ArchiveKind
}

// Detect resolves the artifact for the running host and the given version.
func Detect(version string) (*Info, error) {
	return DetectFor(version, runtime.GOOS, runtime.GOARCH)
}

// DetectFor resolves the artifact for an explicit GOOS/GOARCH pair.
func DetectFor(version, goos, goarch string) (*Info, error) {
	switch goos {
	case "darwin", "linux", "windows":
	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}

	switch goarch {
	case "amd64", "arm64":
	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}

	kind := ArchiveTarGz
	if goos == "windows" {
		kind = ArchiveZip
	}

	return &Info{
		OS:          goos,
		Arch:        goarch,
		ArchiveName: fmt.Sprintf("CLIProxyAPI_%s_%s_%s.%s", version, goos, goarch, kind),
		ArchiveKind: kind,
	}, nil
}

// ExecutableName returns the binary file name for the running host.
func ExecutableName() string {
	return executableNameFor(runtime.GOOS)
}

func executableNameFor(goos string) string {
	if goos == "windows" {
		return BinaryName + ".exe"
	}
	return BinaryName
}

// DownloadURL returns the artifact URL for this platform at the given version.
func (i *Info) DownloadURL(version string) string {
	return fmt.Sprintf("%s/v%s/%s", ReleaseBaseURL, version, i.ArchiveName)
}

// ChecksumsName returns the name of the sibling checksums manifest.
func ChecksumsName(version string) string {
	return fmt.Sprintf("CLIProxyAPI_%s_checksums.txt", version)
}

// ChecksumsURL returns the checksums manifest URL for the given version.
func ChecksumsURL(version string) string {
	return fmt.Sprintf("%s/v%s/%s", ReleaseBaseURL, version, ChecksumsName(version))
}
