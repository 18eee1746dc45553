package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// routineRow is one line of `routines list`.
type routineRow struct {
	ID                int    `db:"id"`
	Name              string `db:"name"`
	TrainerEmail      string `db:"trainer_email"`
	ExerciseCount     int    `db:"exercise_count"`
	ActiveAssignments int    `db:"active_assignments"`
}

var routinesCmd = &cobra.Command{
	Use:   "routines",
	Short: "List routines and move assignments between clients",
}

var (
	routinesTrainerEmail string
	reassignID           int
	reassignClientEmail  string
)

var routinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routines with exercise and active assignment counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			rows, err := conn.Query(ctx,
				`SELECT r.id, r.name, t.email AS trainer_email,
				        (SELECT COUNT(*) FROM routine_exercises re WHERE re.routine_id = r.id)::int AS exercise_count,
				        (SELECT COUNT(*) FROM routine_assignments a
				          WHERE a.routine_id = r.id AND a.start_date <= CURRENT_DATE
				            AND (a.end_date IS NULL OR a.end_date >= CURRENT_DATE))::int AS active_assignments
				 FROM routines r
				 JOIN users t ON t.id = r.trainer_id
				 WHERE ($1 = '' OR t.email = $1)
				 ORDER BY t.email, r.name`,
				normalizeEmail(routinesTrainerEmail))
			if err != nil {
				return fmt.Errorf("list routines: %w", err)
			}
			routines, err := pgx.CollectRows(rows, pgx.RowToStructByName[routineRow])
			if err != nil {
				return fmt.Errorf("list routines: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTRAINER\tEXERCISES\tACTIVE")
			for _, r := range routines {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", r.ID, r.Name, r.TrainerEmail, r.ExerciseCount, r.ActiveAssignments)
			}
			return w.Flush()
		})
	},
}

var routinesReassignCmd = &cobra.Command{
	Use:   "reassign",
	Short: "Move an assignment to another client of the same trainer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reassignID <= 0 {
			return errors.New("--assignment-id must be a positive integer")
		}
		email := normalizeEmail(reassignClientEmail)
		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			var routineID, clientID int
			err := conn.QueryRow(ctx,
				`UPDATE routine_assignments a
				 SET client_id = u.id, updated_at = now()
				 FROM users u
				 WHERE a.id = $1 AND u.email = $2 AND u.role = 'client' AND u.trainer_id = a.trainer_id
				 RETURNING a.routine_id, u.id`,
				reassignID, email).Scan(&routineID, &clientID)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("assignment %d not found, or %s is not a client of the routine's trainer", reassignID, email)
			}
			if err != nil {
				return fmt.Errorf("reassign: %w", err)
			}
			logger.Info("assignment reassigned",
				zap.Int("assignment_id", reassignID), zap.Int("routine_id", routineID), zap.Int("client_id", clientID))
			fmt.Fprintf(cmd.OutOrStdout(), "assignment %d (routine %d) now belongs to %s\n", reassignID, routineID, email)
			return nil
		})
	},
}

func init() {
	routinesListCmd.Flags().StringVar(&routinesTrainerEmail, "trainer-email", "", "Only list this trainer's routines")

	routinesReassignCmd.Flags().IntVar(&reassignID, "assignment-id", 0, "Assignment to move (required)")
	routinesReassignCmd.Flags().StringVar(&reassignClientEmail, "client-email", "", "Email of the new client (required)")
	routinesReassignCmd.MarkFlagRequired("assignment-id")
	routinesReassignCmd.MarkFlagRequired("client-email")

	routinesCmd.AddCommand(routinesListCmd)
	routinesCmd.AddCommand(routinesReassignCmd)
}
