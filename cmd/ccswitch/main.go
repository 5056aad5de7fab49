package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Version will be set at build time via -ldflags
var Version = "v0.0.1-alpha"

func main() {
	args := setupLogging(os.Args[1:])

	if len(args) > 0 {
		switch args[0] {
		case "--version", "version":
			fmt.Printf("ccswitch %s\n", Version)
			return
		case "ensure-binary":
			if err := runEnsureBinary(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "update":
			if err := runUpdate(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "pin":
			if err := runPin(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "unpin":
			if err := runUnpin(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "auth":
			if err := runAuth(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "status":
			if err := runStatus(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "logout":
			if err := runLogout(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "accounts":
			if err := runAccounts(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	printUsage()
}

// setupLogging configures logrus from --verbose / CCSWITCH_DEBUG and
// returns the remaining args with the flag stripped.
func setupLogging(args []string) []string {
	verbose := os.Getenv("CCSWITCH_DEBUG") != ""

	rest := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--verbose" || arg == "-v" {
			verbose = true
			continue
		}
		rest = append(rest, arg)
	}

	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	return rest
}

func printUsage() {
	fmt.Println("ccswitch - account switcher for the CLI proxy")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ccswitch auth <provider> [options]      Authenticate a provider account")
	fmt.Println("  ccswitch status [provider]              Show authentication status")
	fmt.Println("  ccswitch logout <provider>              Remove a provider's credentials")
	fmt.Println("  ccswitch accounts <action> [args]       Manage registered accounts")
	fmt.Println("  ccswitch ensure-binary                  Install or update the proxy binary")
	fmt.Println("  ccswitch update                         Check for a newer proxy binary")
	fmt.Println("  ccswitch pin <version>                  Pin the proxy binary version")
	fmt.Println("  ccswitch unpin                          Remove the version pin")
	fmt.Println("  ccswitch version                        Show version information")
	fmt.Println()
	fmt.Println("Providers: gemini, codex, claude, qwen, iflow")
	fmt.Println()
	fmt.Println("Global options:")
	fmt.Println("  --verbose, -v                           Show debug output")
}
