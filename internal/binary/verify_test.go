package binary

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeTestArchive(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func manifestFor(name string, content []byte) []byte {
	sum := sha256.Sum256(content)
	return []byte(fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), name))
}

func TestFindChecksum(t *testing.T) {
	manifest := []byte(`
# release checksums
aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa  CLIProxyAPI_1.0.0_linux_amd64.tar.gz
BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB  dist/CLIProxyAPI_1.0.0_windows_amd64.zip
not-a-digest  CLIProxyAPI_1.0.0_darwin_arm64.tar.gz
`)

	tests := []struct {
		name     string
		filename string
		want     string
		wantErr  bool
	}{
		{"exact", "CLIProxyAPI_1.0.0_linux_amd64.tar.gz", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"basename_and_lowered", "CLIProxyAPI_1.0.0_windows_amd64.zip", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", false},
		{"bad_digest_skipped", "CLIProxyAPI_1.0.0_darwin_arm64.tar.gz", "", true},
		{"missing", "CLIProxyAPI_1.0.0_darwin_amd64.tar.gz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findChecksum(manifest, tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("findChecksum() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("findChecksum() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	content := []byte("archive payload bytes")
	name := "CLIProxyAPI_1.0.0_linux_amd64.tar.gz"
	path := writeTestArchive(t, content)

	if err := verifyChecksum(path, manifestFor(name, content), name); err != nil {
		t.Fatalf("verifyChecksum() on valid archive: %v", err)
	}
}

// Flipping any single byte of the archive must fail verification.
func TestVerifyChecksumFlippedByte(t *testing.T) {
	content := []byte("archive payload bytes")
	name := "CLIProxyAPI_1.0.0_linux_amd64.tar.gz"
	manifest := manifestFor(name, content)

	for i := range content {
		flipped := append([]byte(nil), content...)
		flipped[i] ^= 0x01
		path := writeTestArchive(t, flipped)

		err := verifyChecksum(path, manifest, name)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("byte %d: verifyChecksum() error = %v, want ErrChecksumMismatch", i, err)
		}
	}
}

func TestVerifyChecksumCaseInsensitive(t *testing.T) {
	content := []byte("payload")
	name := "archive.tar.gz"
	sum := sha256.Sum256(content)
	upper := []byte(fmt.Sprintf("%X  %s\n", sum, name))
	path := writeTestArchive(t, content)

	if err := verifyChecksum(path, upper, name); err != nil {
		t.Fatalf("verifyChecksum() with uppercase manifest digest: %v", err)
	}
}
