package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// loadTrainerStats reads the records behind the trainer dashboard.
func (h *Handler) loadTrainerStats(ctx context.Context, trainerID int) (trainerStats, error) {
	args := pgx.NamedArgs{"trainerID": trainerID}
	var in trainerStatsInput
	var err error

	in.Clients, err = queryMany[user](h.db, ctx,
		"SELECT * FROM users WHERE role = 'client' AND trainer_id = @trainerID", args)
	if err != nil {
		return trainerStats{}, err
	}
	in.Assignments, err = queryMany[routineAssignment](h.db, ctx,
		"SELECT * FROM routine_assignments WHERE trainer_id = @trainerID", args)
	if err != nil {
		return trainerStats{}, err
	}
	in.Workouts, err = queryMany[workoutLog](h.db, ctx,
		`SELECT w.* FROM workout_logs w
		 JOIN users u ON u.id = w.client_id
		 WHERE u.trainer_id = @trainerID AND w.date >= CURRENT_DATE - 6`, args)
	if err != nil {
		return trainerStats{}, err
	}
	in.Routines, err = queryCount(h.db, ctx, "SELECT COUNT(*) FROM routines WHERE trainer_id = @trainerID", args)
	if err != nil {
		return trainerStats{}, err
	}
	in.Exercises, err = queryCount(h.db, ctx, "SELECT COUNT(*) FROM exercises WHERE trainer_id = @trainerID", args)
	if err != nil {
		return trainerStats{}, err
	}

	return buildTrainerStats(in, utcNow()), nil
}

// getTrainerDashboard returns the trainer's aggregate stats.
// GET /api/dashboard/trainer. Served from cache when Redis is configured.
func (h *Handler) getTrainerDashboard(c *gin.Context) {
	trainerID := c.GetInt("user_id")
	stats, err := loadCached(c.Request.Context(), h.cache, trainerStatsKey(trainerID),
		func(ctx context.Context) (trainerStats, error) {
			return h.loadTrainerStats(ctx, trainerID)
		})
	if err != nil {
		dbError(c, err, "stats not found", "failed to load dashboard")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getClientDashboard returns the client's current plan and recent activity.
// GET /api/dashboard/client. Weeks run Monday to Sunday.
func (h *Handler) getClientDashboard(c *gin.Context) {
	clientID := c.GetInt("user_id")
	now := utcNow()
	args := pgx.NamedArgs{"clientID": clientID}

	active, err := queryMany[assignmentDetail](h.db, c,
		detailQuery("routine_assignments")+" WHERE a.client_id = @clientID AND "+activeAssignmentCond+
			" ORDER BY a.start_date DESC, a.id DESC", args)
	if err != nil {
		dbError(c, err, "assignments not found", "failed to fetch assignments")
		return
	}
	markActive(active, now.Format(dateLayout))

	weekStart := mondayOf(now)
	weekArgs := pgx.NamedArgs{
		"clientID":  clientID,
		"weekStart": weekStart.Format(dateLayout),
		"weekEnd":   weekStart.AddDate(0, 0, 6).Format(dateLayout),
	}
	thisWeek, err := queryCount(h.db, c,
		`SELECT COUNT(*) FROM workout_logs
		 WHERE client_id = @clientID AND completed AND date >= @weekStart::date AND date <= @weekEnd::date`,
		weekArgs)
	if err != nil {
		dbError(c, err, "workouts not found", "failed to count workouts")
		return
	}

	rows, err := h.db.Query(c,
		`SELECT DISTINCT date FROM workout_logs
		 WHERE client_id = @clientID AND completed AND date <= CURRENT_DATE
		 ORDER BY date DESC LIMIT 366`, args)
	if err != nil {
		dbError(c, err, "workouts not found", "failed to fetch workout dates")
		return
	}
	dates, err := pgx.CollectRows(rows, pgx.RowTo[DateOnly])
	if err != nil {
		dbError(c, err, "workouts not found", "failed to fetch workout dates")
		return
	}

	since := now.AddDate(0, 0, -30).Format(dateLayout)
	entries, err := h.fetchProgress(c, clientID, &since, nil)
	if err != nil {
		dbError(c, err, "progress not found", "failed to fetch progress")
		return
	}

	dash := clientDashboard{
		ActiveAssignments: active,
		WorkoutsThisWeek:  thisWeek,
		WeekStart:         weekStart.Format(dateLayout),
		Streak:            workoutStreak(dates, now),
		Last30Days:        computeProgressDelta(entries),
	}

	latest, err := queryOne[progressEntry](h.db, c,
		"SELECT * FROM progress_entries WHERE client_id = @clientID ORDER BY date DESC LIMIT 1", args)
	switch {
	case err == nil:
		dash.LatestProgress = &latest
	case !errors.Is(err, pgx.ErrNoRows):
		dbError(c, err, "progress not found", "failed to fetch latest progress")
		return
	}

	c.JSON(http.StatusOK, dash)
}
