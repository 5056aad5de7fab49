package main

import (
	"fmt"
	"os"
)

// runAccounts handles the `ccswitch accounts` subcommand
func runAccounts(args []string) error {
	if len(args) == 0 {
		printAccountsHelp()
		return fmt.Errorf("accounts requires an action")
	}

	switch args[0] {
	case "--help", "-h":
		printAccountsHelp()
		return nil
	case "list":
		return runAccountsList(args[1:])
	case "rename":
		return runAccountsRename(args[1:])
	case "default":
		return runAccountsDefault(args[1:])
	case "remove":
		return runAccountsRemove(args[1:])
	case "discover":
		return runAccountsDiscover(args[1:])
	default:
		printAccountsHelp()
		return fmt.Errorf("unknown accounts action: %s", args[0])
	}
}

func printAccountsHelp() {
	fmt.Fprintln(os.Stderr, "Usage: ccswitch accounts list <provider>")
	fmt.Fprintln(os.Stderr, "       ccswitch accounts rename <provider> <account> <nickname>")
	fmt.Fprintln(os.Stderr, "       ccswitch accounts default <provider> <account>")
	fmt.Fprintln(os.Stderr, "       ccswitch accounts remove <provider> <account>")
	fmt.Fprintln(os.Stderr, "       ccswitch accounts discover <provider>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "<account> may be an account ID, email, nickname, or a unique prefix.")
}

func runAccountsList(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("accounts list requires a provider argument")
	}
	prov, err := parseProvider(args[0])
	if err != nil {
		return err
	}

	m, err := newAccountManager()
	if err != nil {
		return err
	}

	accounts := m.List(prov.ID)
	if len(accounts) == 0 {
		fmt.Printf("No %s accounts registered. Run 'ccswitch auth %s' to add one.\n", prov.Name, prov.ID)
		return nil
	}

	defaultID := ""
	if def, ok := m.Default(prov.ID); ok {
		defaultID = def.ID
	}
	for _, acc := range accounts {
		marker := " "
		if acc.ID == defaultID {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s (last used %s)\n", marker, acc.Nickname, acc.ID, acc.LastUsedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runAccountsRename(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("accounts rename requires provider, account, and nickname arguments")
	}
	prov, err := parseProvider(args[0])
	if err != nil {
		return err
	}

	m, err := newAccountManager()
	if err != nil {
		return err
	}
	acc, err := m.FindByQuery(prov.ID, args[1])
	if err != nil {
		return err
	}
	if err := m.Rename(prov.ID, acc.ID, args[2]); err != nil {
		return err
	}
	fmt.Printf("Renamed %s account %s to %q\n", prov.Name, acc.ID, args[2])
	return nil
}

func runAccountsDefault(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("accounts default requires provider and account arguments")
	}
	prov, err := parseProvider(args[0])
	if err != nil {
		return err
	}

	m, err := newAccountManager()
	if err != nil {
		return err
	}
	acc, err := m.FindByQuery(prov.ID, args[1])
	if err != nil {
		return err
	}
	if err := m.SetDefault(prov.ID, acc.ID); err != nil {
		return err
	}
	fmt.Printf("%s is now the default %s account\n", acc.Nickname, prov.Name)
	return nil
}

func runAccountsRemove(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("accounts remove requires provider and account arguments")
	}
	prov, err := parseProvider(args[0])
	if err != nil {
		return err
	}

	m, err := newAccountManager()
	if err != nil {
		return err
	}
	acc, err := m.FindByQuery(prov.ID, args[1])
	if err != nil {
		return err
	}
	if err := m.Remove(prov.ID, acc.ID); err != nil {
		return err
	}
	fmt.Printf("Removed %s account %s\n", prov.Name, acc.Nickname)
	return nil
}

func runAccountsDiscover(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("accounts discover requires a provider argument")
	}
	prov, err := parseProvider(args[0])
	if err != nil {
		return err
	}

	m, err := newAccountManager()
	if err != nil {
		return err
	}
	added, err := m.Discover(prov.ID)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		fmt.Printf("No unregistered %s credential files found.\n", prov.Name)
		return nil
	}
	for _, acc := range added {
		fmt.Printf("Registered %s account %s (%s)\n", prov.Name, acc.Nickname, acc.ID)
	}
	return nil
}
