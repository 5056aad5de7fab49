package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zesbe/ccswitch/internal/account"
	"github.com/zesbe/ccswitch/internal/auth"
	"github.com/zesbe/ccswitch/internal/binary"
	"github.com/zesbe/ccswitch/internal/provider"
)

// EnvRootDir overrides the state directory location.
const EnvRootDir = "CCSWITCH_DIR"

// getRootDir returns the ccswitch state directory path
// First checks the CCSWITCH_DIR environment variable, then falls back to
// ~/.ccswitch
func getRootDir() (string, error) {
	if dir := os.Getenv(EnvRootDir); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ccswitch"), nil
}

func newBinaryManager() (*binary.Manager, error) {
	rootDir, err := getRootDir()
	if err != nil {
		return nil, err
	}
	return binary.NewManager(binary.Config{RootDir: rootDir})
}

func newAccountManager() (*account.Manager, error) {
	rootDir, err := getRootDir()
	if err != nil {
		return nil, err
	}
	return account.NewManager(rootDir)
}

func newAuthHandler() (*auth.Handler, error) {
	rootDir, err := getRootDir()
	if err != nil {
		return nil, err
	}
	binaries, err := binary.NewManager(binary.Config{RootDir: rootDir})
	if err != nil {
		return nil, err
	}
	accounts, err := account.NewManager(rootDir)
	if err != nil {
		return nil, err
	}
	return auth.NewHandler(auth.Config{
		RootDir:  rootDir,
		Binaries: binaries,
		Accounts: accounts,
	})
}

// parseProvider resolves a positional provider argument.
func parseProvider(arg string) (provider.Provider, error) {
	prov, ok := provider.Lookup(arg)
	if !ok {
		names := make([]string, 0, len(provider.All()))
		for _, p := range provider.All() {
			names = append(names, string(p.ID))
		}
		return provider.Provider{}, fmt.Errorf("unknown provider %q (expected one of: %s)", arg, strings.Join(names, ", "))
	}
	return prov, nil
}

// confirm asks a yes/no question on the terminal. Anything but an explicit
// yes declines.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
