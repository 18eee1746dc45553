package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var validRoles = map[string]bool{"admin": true, "trainer": true, "client": true}

// userRow is what the users commands print.
type userRow struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Password  string    `db:"password"`
	Role      string    `db:"role"`
	TrainerID *int      `db:"trainer_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Look up users and manage passwords",
}

var (
	findEmail     string
	listRole      string
	checkEmail    string
	checkPassword string
	resetEmail    string
	resetPassword string
)

var usersFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Show one user by email",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			u, err := userByEmail(ctx, conn, findEmail)
			if err != nil {
				return err
			}
			return printUsers(cmd, []userRow{u})
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users, optionally filtered by role",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listRole != "" && !validRoles[listRole] {
			return fmt.Errorf("unknown role %q (want admin, trainer or client)", listRole)
		}
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			rows, err := conn.Query(ctx,
				`SELECT * FROM users WHERE ($1 = '' OR role = $1) ORDER BY id`, listRole)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			users, err := pgx.CollectRows(rows, pgx.RowToStructByName[userRow])
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			return printUsers(cmd, users)
		})
	},
}

var usersCheckPasswordCmd = &cobra.Command{
	Use:   "check-password",
	Short: "Check whether a password matches the stored hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			u, err := userByEmail(ctx, conn, checkEmail)
			if err != nil {
				return err
			}
			if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(checkPassword)); err != nil {
				return fmt.Errorf("password does not match for %s", u.Email)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password matches for %s\n", u.Email)
			return nil
		})
	},
}

var usersResetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(resetPassword) < minPasswordLength {
			return fmt.Errorf("password must be at least %d characters", minPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(resetPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		email := normalizeEmail(resetEmail)
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			tag, err := conn.Exec(ctx,
				"UPDATE users SET password = $1, updated_at = now() WHERE email = $2",
				string(hash), email)
			if err != nil {
				return fmt.Errorf("reset password: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("no user with email %s", email)
			}
			logger.Info("password reset", zap.String("email", email))
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", email)
			return nil
		})
	},
}

func init() {
	usersFindCmd.Flags().StringVar(&findEmail, "email", "", "User email (required)")
	usersFindCmd.MarkFlagRequired("email")

	usersListCmd.Flags().StringVar(&listRole, "role", "", "Only list users with this role")

	usersCheckPasswordCmd.Flags().StringVar(&checkEmail, "email", "", "User email (required)")
	usersCheckPasswordCmd.Flags().StringVar(&checkPassword, "password", "", "Password to check (required)")
	usersCheckPasswordCmd.MarkFlagRequired("email")
	usersCheckPasswordCmd.MarkFlagRequired("password")

	usersResetPasswordCmd.Flags().StringVar(&resetEmail, "email", "", "User email (required)")
	usersResetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "New password (required)")
	usersResetPasswordCmd.MarkFlagRequired("email")
	usersResetPasswordCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersFindCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCheckPasswordCmd)
	usersCmd.AddCommand(usersResetPasswordCmd)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userByEmail loads one user, turning a missing row into a readable error.
func userByEmail(ctx context.Context, conn *pgx.Conn, email string) (userRow, error) {
	email = normalizeEmail(email)
	rows, err := conn.Query(ctx, "SELECT * FROM users WHERE email = $1", email)
	if err != nil {
		return userRow{}, fmt.Errorf("find user: %w", err)
	}
	u, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return userRow{}, fmt.Errorf("no user with email %s", email)
	}
	if err != nil {
		return userRow{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func printUsers(cmd *cobra.Command, users []userRow) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tTRAINER\tCREATED")
	for _, u := range users {
		trainer := "-"
		if u.TrainerID != nil {
			trainer = fmt.Sprint(*u.TrainerID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Name, u.Email, u.Role, trainer, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
