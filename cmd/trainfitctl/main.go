// trainfitctl is the operator tool for inspecting and repairing TrainFit data:
// user lookups, password checks and resets, routine listing and reassignment,
// seeding test data and table counts.
// Usage: go run ./cmd/trainfitctl <command> [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	dbURL   string
	timeout time.Duration

	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "trainfitctl",
	Short: "Operator tool for the TrainFit database",
	Long: `trainfitctl runs maintenance tasks directly against the TrainFit database.

The connection string comes from --db-url or DB_URL (a .env file in the
working directory is loaded first when present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		if dbURL == "" {
			dbURL = os.Getenv("DB_URL")
		}

		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Postgres connection string (default: $DB_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Operation timeout")

	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(routinesCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withConn opens a connection for the duration of fn, bounded by --timeout.
func withConn(cmd *cobra.Command, fn func(ctx context.Context, conn *pgx.Conn) error) error {
	if dbURL == "" {
		return errors.New("no database configured: set DB_URL or pass --db-url")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close(context.Background())
	logger.Debug("connected", zap.String("host", conn.Config().Host))

	return fn(ctx, conn)
}
