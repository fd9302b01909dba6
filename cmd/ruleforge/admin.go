package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/Strob0t/RuleForge/internal/adapter/postgres"
	"github.com/Strob0t/RuleForge/internal/config"
)

// runAdmin dispatches admin subcommands (hash-key).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-key":
		return runAdminHashKey(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: ruleforge admin <command> [options]

Commands:
  hash-key   Hash an API key for auth.api_key_hash
  help       Show this help message

Examples:
  ruleforge admin hash-key
  ruleforge admin hash-key --key my-secret-key
`)
}

func runAdminHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "API key to hash (prompted if not provided)") //nolint:gosec // CLI flag
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost (4-31)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k := *key
	if k == "" {
		var err error
		k, err = promptSecret("API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if k != confirm {
			return fmt.Errorf("keys do not match")
		}
	}
	if k == "" {
		return fmt.Errorf("api key must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(k), *cost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	fmt.Println(string(hash))
	fmt.Fprintln(os.Stderr, "Set as auth.api_key_hash in ruleforge.yaml or via RULEFORGE_API_KEY_HASH.")
	return nil
}

// runMigrate dispatches migration subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	cmd := args[0]
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (overrides config)")
	steps := fs.Int("steps", 1, "number of migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	resolved := *dsn
	if resolved == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		resolved = cfg.Postgres.DSN
	}

	ctx := context.Background()
	switch cmd {
	case "up":
		if err := postgres.RunMigrations(ctx, resolved); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		fmt.Fprintln(os.Stderr, "migrations applied")
		return nil
	case "down":
		if err := postgres.RollbackMigrations(ctx, resolved, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		fmt.Fprintf(os.Stderr, "rolled back %d migration(s)\n", *steps)
		return nil
	case "version":
		v, err := postgres.MigrationVersion(ctx, resolved)
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		fmt.Println(v)
		return nil
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", cmd)
	}
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: ruleforge migrate <command> [options]

Commands:
  up         Apply all pending migrations
  down       Roll back migrations (--steps N, default 1)
  version    Print the current migration version
  help       Show this help message

Examples:
  ruleforge migrate up
  ruleforge migrate down --steps 2
  ruleforge migrate version --dsn postgres://localhost:5432/ruleforge
`)
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
