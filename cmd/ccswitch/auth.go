package main

import (
	"context"
	"fmt"

	"github.com/zesbe/ccswitch/internal/auth"
)

// runAuth handles the `ccswitch auth` subcommand
func runAuth(args []string) error {
	var providerArg string
	var nickname string
	var headless *bool
	accountAdd := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			printAuthHelp()
			return nil
		case "--headless":
			v := true
			headless = &v
		case "--no-headless":
			v := false
			headless = &v
		case "--add":
			accountAdd = true
		case "--nickname":
			if i+1 >= len(args) {
				return fmt.Errorf("--nickname requires a value")
			}
			i++
			nickname = args[i]
		default:
			if providerArg != "" {
				return fmt.Errorf("unexpected argument %q", args[i])
			}
			providerArg = args[i]
		}
	}

	if providerArg == "" {
		printAuthHelp()
		return fmt.Errorf("auth requires a provider argument")
	}
	prov, err := parseProvider(providerArg)
	if err != nil {
		return err
	}

	h, err := newAuthHandler()
	if err != nil {
		return err
	}

	// A nil account with no error means the user declined the
	// multi-account prompt; the handler already printed a notice.
	_, err = h.Authenticate(context.Background(), prov.ID, auth.Options{
		Headless:   headless,
		AccountAdd: accountAdd,
		Nickname:   nickname,
		Confirm:    confirm,
	})
	return err
}

func printAuthHelp() {
	fmt.Println("Usage: ccswitch auth <provider> [options]")
	fmt.Println()
	fmt.Println("Runs the provider's OAuth login through the proxy binary and")
	fmt.Println("registers the resulting account.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --headless           Force headless mode (print the URL instead of")
	fmt.Println("                       opening a browser)")
	fmt.Println("  --no-headless        Force interactive mode")
	fmt.Println("  --add                Add another account without prompting")
	fmt.Println("  --nickname <name>    Nickname for the new account")
}
