package main

import (
	"context"
	"fmt"
	"time"
)

// binaryOpTimeout bounds one download-and-install cycle.
const binaryOpTimeout = 5 * time.Minute

// runEnsureBinary handles the `ccswitch ensure-binary` subcommand
func runEnsureBinary(args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			fmt.Println("Usage: ccswitch ensure-binary")
			fmt.Println()
			fmt.Println("Downloads, verifies, and installs the proxy binary if it is missing,")
			fmt.Println("or updates it when a newer release is available and no pin is set.")
			return nil
		}
	}

	m, err := newBinaryManager()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), binaryOpTimeout)
	defer cancel()

	path, err := m.EnsureBinary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Proxy binary v%s ready at %s\n", m.InstalledVersion(), path)
	return nil
}

// runUpdate handles the `ccswitch update` subcommand
func runUpdate(args []string) error {
	checkOnly := false
	for _, arg := range args {
		switch arg {
		case "--help", "-h":
			fmt.Println("Usage: ccswitch update [--check]")
			fmt.Println()
			fmt.Println("Checks the release channel for a newer proxy binary and installs it.")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --check    Only report whether an update exists")
			return nil
		case "--check":
			checkOnly = true
		}
	}

	m, err := newBinaryManager()
	if err != nil {
		return err
	}

	if pinned, ok := m.PinnedVersion(); ok {
		fmt.Printf("Version pinned to %s; remove the pin with 'ccswitch unpin' to update.\n", pinned)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), binaryOpTimeout)
	defer cancel()

	check, err := m.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("check for updates: %w", err)
	}

	if !check.HasUpdate {
		fmt.Printf("Proxy binary v%s is up to date.\n", check.CurrentVersion)
		return nil
	}
	fmt.Printf("Update available: v%s -> v%s\n", check.CurrentVersion, check.LatestVersion)
	if checkOnly {
		return nil
	}

	if _, err := m.EnsureBinary(ctx); err != nil {
		return err
	}
	fmt.Printf("Installed proxy binary v%s\n", m.InstalledVersion())
	return nil
}

// runPin handles the `ccswitch pin` subcommand
func runPin(args []string) error {
	if len(args) != 1 || args[0] == "--help" || args[0] == "-h" {
		fmt.Println("Usage: ccswitch pin <version>")
		fmt.Println()
		fmt.Println("Pins the proxy binary to a version. A pinned version is never")
		fmt.Println("upgraded and no update checks run until the pin is removed.")
		if len(args) != 1 {
			return fmt.Errorf("pin requires exactly one version argument")
		}
		return nil
	}

	m, err := newBinaryManager()
	if err != nil {
		return err
	}
	if err := m.Pin(args[0]); err != nil {
		return err
	}
	fmt.Printf("Pinned proxy binary to v%s\n", args[0])
	return nil
}

// runUnpin handles the `ccswitch unpin` subcommand
func runUnpin(args []string) error {
	m, err := newBinaryManager()
	if err != nil {
		return err
	}
	if err := m.Unpin(); err != nil {
		return err
	}
	fmt.Println("Removed version pin.")
	return nil
}
