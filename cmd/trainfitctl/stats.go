package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

// statTables are the tables `stats` counts, in schema order.
var statTables = []string{
	"users",
	"client_profiles",
	"exercises",
	"routines",
	"routine_exercises",
	"routine_assignments",
	"progress_entries",
	"workout_logs",
	"migrations",
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts per table and users per role",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS")
			for _, table := range statTables {
				var n int
				if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
					return fmt.Errorf("count %s: %w", table, err)
				}
				fmt.Fprintf(w, "%s\t%d\n", table, n)
			}

			rows, err := conn.Query(ctx, "SELECT role, COUNT(*)::int FROM users GROUP BY role ORDER BY role")
			if err != nil {
				return fmt.Errorf("count roles: %w", err)
			}
			var role string
			var n int
			_, err = pgx.ForEachRow(rows, []any{&role, &n}, func() error {
				_, err := fmt.Fprintf(w, "users[%s]\t%d\n", role, n)
				return err
			})
			if err != nil {
				return fmt.Errorf("count roles: %w", err)
			}
			return w.Flush()
		})
	},
}
