package binary

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ErrChecksumMismatch indicates the downloaded archive does not match the
// published checksum. The artifact must be discarded, never executed.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// findChecksum locates the hex SHA-256 digest for filename in a checksums
// manifest of "<hex>  <filename>" lines. Blank lines and comments are
// skipped; manifest entries carrying a path are matched by basename.
func findChecksum(manifest []byte, filename string) (string, error) {
	for _, line := range strings.Split(string(manifest), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		digest := fields[0]
		if !isHexDigest(digest, sha256.Size*2) {
			continue
		}
		candidate := fields[len(fields)-1]
		if candidate == filename || filepath.Base(candidate) == filename {
			return strings.ToLower(digest), nil
		}
	}
	return "", fmt.Errorf("checksum for %s not found in manifest", filename)
}

func isHexDigest(value string, expectedLen int) bool {
	if len(value) != expectedLen {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

// fileSHA256 computes the hex SHA-256 digest of a file.
func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// verifyChecksum checks archivePath against the manifest entry for
// archiveName. Comparison is case-insensitive on the hex digest.
func verifyChecksum(archivePath string, manifest []byte, archiveName string) error {
	expected, err := findChecksum(manifest, archiveName)
	if err != nil {
		return err
	}

	actual, err := fileSHA256(archivePath)
	if err != nil {
		return fmt.Errorf("hash archive: %w", err)
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w for %s:\nactual:   %s\nexpected: %s",
			ErrChecksumMismatch, archiveName, actual, expected)
	}
	return nil
}

// verifySignature checks a detached OpenPGP signature over the archive
// against a local keyring. This is an additional layer on top of the
// mandatory checksum: it only runs when the user has placed a keyring on
// disk and the release publishes a signature.
func verifySignature(archivePath, signaturePath, keyringPath string) error {
	keyring, err := loadKeyring(keyringPath)
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, archive, sig, nil)
	if err != nil {
		// Retry as a binary signature.
		archive.Seek(0, io.SeekStart)
		sig.Seek(0, io.SeekStart)
		_, err = openpgp.CheckDetachedSignature(keyring, archive, sig, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

func loadKeyring(path string) (openpgp.EntityList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer file.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(file)
	if err != nil {
		file.Seek(0, io.SeekStart)
		keyring, err = openpgp.ReadKeyRing(file)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}
