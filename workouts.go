package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// workoutRequest is the request body for POST /api/clients/:id/workouts.
type workoutRequest struct {
	RoutineID       *int    `json:"routine_id"`
	Date            *string `json:"date"`
	DurationMinutes *int    `json:"duration_minutes"`
	Completed       *bool   `json:"completed"`
	Rating          *int    `json:"rating"`
	Notes           *string `json:"notes"`
}

// validateWorkout fills defaults (today, completed) and checks ranges.
func validateWorkout(body *workoutRequest) string {
	if body.Date == nil {
		d := today()
		body.Date = &d
	}
	d, err := time.Parse(dateLayout, *body.Date)
	if err != nil {
		return "invalid date, expected YYYY-MM-DD"
	}
	if d.After(utcNow()) {
		return "date must not be in the future"
	}
	if body.RoutineID != nil && *body.RoutineID <= 0 {
		return "invalid routine_id"
	}
	if body.DurationMinutes != nil && (*body.DurationMinutes <= 0 || *body.DurationMinutes > 600) {
		return "duration_minutes must be between 1 and 600"
	}
	if body.Rating != nil && (*body.Rating < 1 || *body.Rating > 5) {
		return "rating must be between 1 and 5"
	}
	if body.Completed == nil {
		completed := true
		body.Completed = &completed
	}
	return ""
}

// listWorkouts returns a client's workout log, newest first.
// GET /api/clients/:id/workouts?start=&end=&page=&limit=.
func (h *Handler) listWorkouts(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}
	p, ok := parsePageParams(c)
	if !ok {
		return
	}
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	where := `client_id = @clientID
		AND (@start::date IS NULL OR date >= @start::date)
		AND (@end::date IS NULL OR date <= @end::date)`
	args := pgx.NamedArgs{
		"clientID": client.ID, "start": start, "end": end,
		"limit": p.Limit, "offset": p.offset(),
	}

	total, err := queryCount(h.db, c, "SELECT COUNT(*) FROM workout_logs WHERE "+where, args)
	if err != nil {
		dbError(c, err, "workouts not found", "failed to count workouts")
		return
	}
	items, err := queryMany[workoutLog](h.db, c,
		"SELECT * FROM workout_logs WHERE "+where+" ORDER BY date DESC, id DESC LIMIT @limit OFFSET @offset", args)
	if err != nil {
		dbError(c, err, "workouts not found", "failed to fetch workouts")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(items, p, total))
}

// createWorkout logs a session. A routine, when given, must have been
// assigned to the client.
// POST /api/clients/:id/workouts.
func (h *Handler) createWorkout(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}

	var body workoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateWorkout(&body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	w, err := queryOne[workoutLog](h.db, c,
		`INSERT INTO workout_logs (client_id, routine_id, date, duration_minutes, completed, rating, notes)
		 SELECT @clientID, @routineID::int, @date::date, @duration::int, @completed::boolean, @rating::int, @notes::text
		 WHERE @routineID::int IS NULL OR EXISTS (
		       SELECT 1 FROM routine_assignments WHERE routine_id = @routineID::int AND client_id = @clientID)
		 RETURNING *`,
		pgx.NamedArgs{
			"clientID": client.ID, "routineID": body.RoutineID, "date": *body.Date,
			"duration": body.DurationMinutes, "completed": *body.Completed,
			"rating": body.Rating, "notes": body.Notes,
		})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apiError(c, http.StatusBadRequest, "routine is not assigned to this client")
			return
		}
		dbError(c, err, "client not found", "failed to log workout")
		return
	}

	h.invalidateTrainerStats(c, client.TrainerID)
	c.JSON(http.StatusCreated, w)
}

// deleteWorkout removes a workout log entry.
// DELETE /api/workouts/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteWorkout(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	args := pgx.NamedArgs{"id": id}
	where := ownedClientCond(c, args, "w.client_id")
	rows, err := h.db.Query(c,
		`DELETE FROM workout_logs w USING users u
		 WHERE w.id = @id AND u.id = w.client_id AND `+where+`
		 RETURNING u.trainer_id`,
		args)
	if err != nil {
		dbError(c, err, "workout not found", "failed to delete workout")
		return
	}
	trainerID, err := pgx.CollectOneRow(rows, pgx.RowTo[*int])
	if err != nil {
		dbError(c, err, "workout not found", "failed to delete workout")
		return
	}

	h.invalidateTrainerStats(c, trainerID)
	c.Status(http.StatusNoContent)
}
