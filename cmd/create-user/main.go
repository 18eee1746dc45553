// CLI tool to create a user with a bcrypt-hashed password. This is the only
// way to create admin accounts. Client accounts also get an empty profile row.
// Usage: go run ./cmd/create-user
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

var validRoles = map[string]bool{"admin": true, "trainer": true, "client": true}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label + ": ")
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	name := prompt("Name")
	email := strings.ToLower(prompt("Email"))
	password := prompt("Password")
	role := prompt("Role (admin, trainer, client)")

	if err := validateInput(name, email, password, role); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}

	var userID int
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (name, email, password, role)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			name, email, string(hash), role,
		).Scan(&userID); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if role == "client" {
			if _, err := tx.Exec(ctx, `INSERT INTO client_profiles (user_id) VALUES ($1)`, userID); err != nil {
				return fmt.Errorf("create client profile: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:    %d\n", userID)
	fmt.Printf("  Email: %s\n", email)
	fmt.Printf("  Role:  %s\n", role)
}

// validateInput checks the prompted values before touching the database.
func validateInput(name, email, password, role string) error {
	switch {
	case name == "":
		return errors.New("name is required")
	case !strings.Contains(email, "@"):
		return errors.New("a valid email is required")
	case len(password) < 8:
		return errors.New("password must be at least 8 characters")
	case !validRoles[role]:
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}
