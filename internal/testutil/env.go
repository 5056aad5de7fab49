// Package testutil provides utilities for testing ccswitch in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv pins the ccswitch state directory and HOME into a temp
// directory so tests never touch:
// - The user's real ~/.ccswitch state
// - Real credential files written by the proxy binary
//
// Cleanup is handled by t.TempDir and t.Setenv.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	rootDir := filepath.Join(tmpDir, "ccswitch")

	t.Setenv("CCSWITCH_DIR", rootDir)
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	dirs := []string{
		rootDir,
		filepath.Join(rootDir, "auth"),
		filepath.Join(tmpDir, "home"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return rootDir
}
