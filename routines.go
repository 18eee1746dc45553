package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// errUnknownExercise is returned when a routine references an exercise the
// trainer does not own.
var errUnknownExercise = errors.New("unknown exercise")

const routineSummaryColumns = `r.*, (SELECT COUNT(*) FROM routine_exercises re WHERE re.routine_id = r.id)::int AS exercise_count`

// activeAssignmentCond matches assignments whose window contains today.
const activeAssignmentCond = `a.start_date <= CURRENT_DATE AND (a.end_date IS NULL OR a.end_date >= CURRENT_DATE)`

// validateRoutineExercises checks each slot's prescription. Defaults are
// applied by the database for omitted sets, reps and rest.
func validateRoutineExercises(items []routineExerciseInput) string {
	for i, it := range items {
		switch {
		case it.ExerciseID <= 0:
			return fmt.Sprintf("exercises[%d].exercise_id is required", i)
		case it.Sets != nil && (*it.Sets <= 0 || *it.Sets > 100):
			return fmt.Sprintf("exercises[%d].sets must be between 1 and 100", i)
		case it.Reps != nil && (*it.Reps <= 0 || *it.Reps > 1000):
			return fmt.Sprintf("exercises[%d].reps must be between 1 and 1000", i)
		case it.WeightKG != nil && *it.WeightKG < 0:
			return fmt.Sprintf("exercises[%d].weight_kg must not be negative", i)
		case it.RestSeconds != nil && (*it.RestSeconds < 0 || *it.RestSeconds > 3600):
			return fmt.Sprintf("exercises[%d].rest_seconds must be between 0 and 3600", i)
		}
	}
	return ""
}

// insertRoutineExercises writes items in order as positions 1..n. Each insert
// only succeeds when the exercise belongs to trainerID.
func insertRoutineExercises(tx pgx.Tx, c *gin.Context, routineID, trainerID int, items []routineExerciseInput) error {
	for i, it := range items {
		tag, err := tx.Exec(c,
			`INSERT INTO routine_exercises (routine_id, exercise_id, position, sets, reps, weight_kg, rest_seconds, notes)
			 SELECT @routineID, e.id, @position,
			        COALESCE(@sets::int, 3), COALESCE(@reps::int, 10),
			        @weightKG::double precision, COALESCE(@restSeconds::int, 60), @notes::text
			 FROM exercises e
			 WHERE e.id = @exerciseID AND e.trainer_id = @trainerID`,
			pgx.NamedArgs{
				"routineID": routineID, "position": i + 1, "exerciseID": it.ExerciseID, "trainerID": trainerID,
				"sets": it.Sets, "reps": it.Reps, "weightKG": it.WeightKG,
				"restSeconds": it.RestSeconds, "notes": it.Notes,
			})
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", errUnknownExercise, it.ExerciseID)
		}
	}
	return nil
}

// loadRoutineExercises returns a routine's slots in position order.
func loadRoutineExercises(q querier, c *gin.Context, routineID int) ([]routineExerciseDetail, error) {
	return queryMany[routineExerciseDetail](q, c,
		`SELECT re.*, e.name AS exercise_name, e.muscle_group
		 FROM routine_exercises re
		 JOIN exercises e ON e.id = re.exercise_id
		 WHERE re.routine_id = @routineID
		 ORDER BY re.position`,
		pgx.NamedArgs{"routineID": routineID})
}

// routineWriteError maps errors from routine writes to responses.
func routineWriteError(c *gin.Context, err error, failed string) {
	if errors.Is(err, errUnknownExercise) {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	dbError(c, err, "routine not found", failed)
}

// listRoutines returns the trainer's routines, or for clients the routines
// currently assigned to them.
// GET /api/routines?page=&limit=&q=.
func (h *Handler) listRoutines(c *gin.Context) {
	p, ok := parsePageParams(c)
	if !ok {
		return
	}

	args := pgx.NamedArgs{"userID": c.GetInt("user_id"), "limit": p.Limit, "offset": p.offset()}
	where := "r.trainer_id = @userID"
	if c.GetString("role") == roleClient {
		where = `EXISTS (SELECT 1 FROM routine_assignments a
		                 WHERE a.routine_id = r.id AND a.client_id = @userID AND ` + activeAssignmentCond + `)`
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		where += " AND r.name ILIKE @q"
		args["q"] = "%" + q + "%"
	}

	total, err := queryCount(h.db, c, "SELECT COUNT(*) FROM routines r WHERE "+where, args)
	if err != nil {
		dbError(c, err, "routines not found", "failed to count routines")
		return
	}
	items, err := queryMany[routineSummary](h.db, c,
		"SELECT "+routineSummaryColumns+" FROM routines r WHERE "+where+
			" ORDER BY r.updated_at DESC, r.id DESC LIMIT @limit OFFSET @offset", args)
	if err != nil {
		dbError(c, err, "routines not found", "failed to fetch routines")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(items, p, total))
}

// createRoutine creates a routine and its exercise slots in one transaction.
// POST /api/routines.
func (h *Handler) createRoutine(c *gin.Context) {
	var body struct {
		Name        string                 `json:"name"`
		Description *string                `json:"description"`
		Exercises   []routineExerciseInput `json:"exercises"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		apiError(c, http.StatusBadRequest, "name is required")
		return
	}
	if msg := validateRoutineExercises(body.Exercises); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	trainerID := c.GetInt("user_id")
	var detail routineDetail
	err := withTx(c, h.db, func(tx pgx.Tx) error {
		r, err := queryOne[routine](tx, c,
			`INSERT INTO routines (trainer_id, name, description)
			 VALUES (@trainerID, @name, @description)
			 RETURNING *`,
			pgx.NamedArgs{"trainerID": trainerID, "name": body.Name, "description": body.Description})
		if err != nil {
			return err
		}
		if err := insertRoutineExercises(tx, c, r.ID, trainerID, body.Exercises); err != nil {
			return err
		}
		detail.routine = r
		detail.Exercises, err = loadRoutineExercises(tx, c, r.ID)
		return err
	})
	if err != nil {
		routineWriteError(c, err, "failed to create routine")
		return
	}

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.JSON(http.StatusCreated, detail)
}

// getRoutine returns a routine with its exercises. Clients may read routines
// that were ever assigned to them.
// GET /api/routines/:id.
func (h *Handler) getRoutine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	where := "r.trainer_id = @userID"
	if c.GetString("role") == roleClient {
		where = "EXISTS (SELECT 1 FROM routine_assignments a WHERE a.routine_id = r.id AND a.client_id = @userID)"
	}
	r, err := queryOne[routine](h.db, c,
		"SELECT r.* FROM routines r WHERE r.id = @id AND "+where,
		pgx.NamedArgs{"id": id, "userID": c.GetInt("user_id")})
	if err != nil {
		dbError(c, err, "routine not found", "failed to fetch routine")
		return
	}

	exercises, err := loadRoutineExercises(h.db, c, r.ID)
	if err != nil {
		dbError(c, err, "routine not found", "failed to fetch routine exercises")
		return
	}

	c.JSON(http.StatusOK, routineDetail{routine: r, Exercises: exercises})
}

// updateRoutine updates name/description and, when exercises is present,
// replaces the whole exercise list in the same transaction.
// PUT /api/routines/:id.
func (h *Handler) updateRoutine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Name        *string                 `json:"name"`
		Description *string                 `json:"description"`
		Exercises   *[]routineExerciseInput `json:"exercises"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			apiError(c, http.StatusBadRequest, "name must not be empty")
			return
		}
		body.Name = &name
	}
	if body.Exercises != nil {
		if msg := validateRoutineExercises(*body.Exercises); msg != "" {
			apiError(c, http.StatusBadRequest, msg)
			return
		}
	}

	trainerID := c.GetInt("user_id")
	var detail routineDetail
	err := withTx(c, h.db, func(tx pgx.Tx) error {
		r, err := queryOne[routine](tx, c,
			`UPDATE routines SET
				name        = COALESCE(@name, name),
				description = COALESCE(@description, description),
				updated_at  = now()
			 WHERE id = @id AND trainer_id = @trainerID
			 RETURNING *`,
			pgx.NamedArgs{"id": id, "trainerID": trainerID, "name": body.Name, "description": body.Description})
		if err != nil {
			return err
		}
		if body.Exercises != nil {
			if _, err := tx.Exec(c, "DELETE FROM routine_exercises WHERE routine_id = @id", pgx.NamedArgs{"id": id}); err != nil {
				return err
			}
			if err := insertRoutineExercises(tx, c, id, trainerID, *body.Exercises); err != nil {
				return err
			}
		}
		detail.routine = r
		detail.Exercises, err = loadRoutineExercises(tx, c, id)
		return err
	})
	if err != nil {
		routineWriteError(c, err, "failed to update routine")
		return
	}

	c.JSON(http.StatusOK, detail)
}

// deleteRoutine removes a routine along with its slots and assignments.
// DELETE /api/routines/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteRoutine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	trainerID := c.GetInt("user_id")
	result, err := h.db.Exec(c,
		"DELETE FROM routines WHERE id = @id AND trainer_id = @trainerID",
		pgx.NamedArgs{"id": id, "trainerID": trainerID})
	if err != nil {
		dbError(c, err, "routine not found", "failed to delete routine")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "routine not found")
		return
	}

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.Status(http.StatusNoContent)
}
