// Command identkit-admin bootstraps an account from the terminal, bypassing
// the email-confirmation workflow. Intended for creating the first user of a
// fresh deployment.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/identkit/identkit/internal/server/auth"
	"github.com/identkit/identkit/internal/server/config"
	"github.com/identkit/identkit/internal/server/models"
	"github.com/identkit/identkit/internal/server/repositories/repomanager"
	"github.com/identkit/identkit/internal/server/repositories/users"
	"github.com/identkit/identkit/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &config.Config{}
	cfg.LoadDefaults()

	dsn := flag.String("d", cfg.DatabaseDSN, "database DSN")
	username := flag.String("u", "", "username")
	email := flag.String("e", "", "email address")
	flag.Parse()

	if *username == "" || *email == "" {
		return fmt.Errorf("both -u and -e are required")
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	// the admin tool never issues tokens, an ephemeral key satisfies the
	// constructor
	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	credentials := services.NewCredentialService(db, m, cfg, key)

	user := &models.User{Username: *username, Email: *email}
	if _, err := credentials.Create(ctx, user, password); err != nil {
		return err
	}

	verified := true
	if err := credentials.Update(ctx, users.Filter{ID: user.ID}, users.Patch{Verified: &verified}); err != nil {
		return err
	}

	fmt.Printf("created user %s (%s)\n", user.Username, user.ID)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}

	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
