package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// runAPIKey dispatches apikey subcommands (hash, verify).
func runAPIKey(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAPIKeyHelp()
		return nil
	}

	switch args[0] {
	case "hash":
		return runAPIKeyHash(args[1:])
	case "verify":
		return runAPIKeyVerify(args[1:])
	default:
		printAPIKeyHelp()
		return fmt.Errorf("unknown apikey command: %s", args[0])
	}
}

func printAPIKeyHelp() {
	fmt.Fprintf(os.Stderr, `Usage: conductor apikey <command> [options]

Commands:
  hash     Hash an API key for the auth.api_key_hash config setting
  verify   Check an API key against an existing hash
  help     Show this help message

Examples:
  conductor apikey hash
  conductor apikey hash --cost 12
  conductor apikey verify --hash '$2a$10$...'
`)
}

func runAPIKeyHash(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := promptKey("API key: ")
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	confirm, err := promptKey("Confirm key: ")
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	if key != confirm {
		return fmt.Errorf("keys do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), *cost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}

func runAPIKeyVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	hash := fs.String("hash", "", "bcrypt hash to check against (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *hash == "" {
		return fmt.Errorf("--hash is required")
	}

	key, err := promptKey("API key: ")
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(key)); err != nil {
		return fmt.Errorf("key does not match hash")
	}

	fmt.Fprintln(os.Stderr, "OK")
	return nil
}

// promptKey reads a key from the terminal without echoing.
func promptKey(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
