package main

import (
	"fmt"

	"github.com/zesbe/ccswitch/internal/auth"
	"github.com/zesbe/ccswitch/internal/provider"
)

// runStatus handles the `ccswitch status` subcommand
func runStatus(args []string) error {
	var providerArg string
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			fmt.Println("Usage: ccswitch status [provider]")
			fmt.Println()
			fmt.Println("Shows authentication status for one provider, or all of them.")
			return nil
		}
		providerArg = arg
	}

	h, err := newAuthHandler()
	if err != nil {
		return err
	}

	providers := provider.All()
	if providerArg != "" {
		prov, err := parseProvider(providerArg)
		if err != nil {
			return err
		}
		providers = []provider.Provider{prov}
	}

	for _, prov := range providers {
		status, err := h.GetAuthStatus(prov.ID)
		if err != nil {
			return err
		}
		printProviderStatus(prov, status)
	}
	return nil
}

func printProviderStatus(prov provider.Provider, status *auth.Status) {
	state := "not authenticated"
	if status.Authenticated {
		state = "authenticated"
	}
	fmt.Printf("%s: %s\n", prov.Name, state)

	for _, acc := range status.Accounts {
		marker := " "
		if acc.ID == status.DefaultID {
			marker = "*"
		}
		fmt.Printf("  %s %s (%s)\n", marker, acc.Nickname, acc.ID)
	}
}

// runLogout handles the `ccswitch logout` subcommand
func runLogout(args []string) error {
	var providerArg string
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			fmt.Println("Usage: ccswitch logout <provider>")
			fmt.Println()
			fmt.Println("Deletes the provider's credential files and forgets its accounts.")
			return nil
		}
		providerArg = arg
	}
	if providerArg == "" {
		return fmt.Errorf("logout requires a provider argument")
	}

	prov, err := parseProvider(providerArg)
	if err != nil {
		return err
	}

	h, err := newAuthHandler()
	if err != nil {
		return err
	}
	if err := h.ClearAuth(prov.ID); err != nil {
		return err
	}
	fmt.Printf("Logged out of %s.\n", prov.Name)
	return nil
}
