package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// validDifficulties is the set of allowed exercise difficulty values.
// Reject unknown values with 400 rather than letting the DB return a cryptic 500.
var validDifficulties = map[string]bool{
	"beginner":     true,
	"intermediate": true,
	"advanced":     true,
}

// exerciseRequest is the request body for exercise create and update.
// On update nil fields keep their current value.
type exerciseRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	MuscleGroup *string `json:"muscle_group"`
	Equipment   *string `json:"equipment"`
	Difficulty  *string `json:"difficulty"`
	VideoURL    *string `json:"video_url"`
}

// validateExercise checks the fields that were provided. create requires a name.
func validateExercise(body *exerciseRequest, create bool) string {
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		body.Name = &name
	}
	if create && (body.Name == nil || *body.Name == "") {
		return "name is required"
	}
	if !create && body.Name != nil && *body.Name == "" {
		return "name must not be empty"
	}
	if body.Difficulty != nil && !validDifficulties[*body.Difficulty] {
		return "difficulty must be one of: beginner, intermediate, advanced"
	}
	if body.MuscleGroup != nil {
		mg := strings.ToLower(strings.TrimSpace(*body.MuscleGroup))
		body.MuscleGroup = &mg
	}
	return ""
}

// listExercises returns the trainer's exercise library.
// GET /api/exercises?page=&limit=&q=&muscle_group=&difficulty=.
func (h *Handler) listExercises(c *gin.Context) {
	p, ok := parsePageParams(c)
	if !ok {
		return
	}

	conds := []string{"trainer_id = @trainerID"}
	args := pgx.NamedArgs{"trainerID": c.GetInt("user_id"), "limit": p.Limit, "offset": p.offset()}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		conds = append(conds, "name ILIKE @q")
		args["q"] = "%" + q + "%"
	}
	if mg := c.Query("muscle_group"); mg != "" {
		conds = append(conds, "muscle_group = @muscleGroup")
		args["muscleGroup"] = strings.ToLower(mg)
	}
	if d := c.Query("difficulty"); d != "" {
		if !validDifficulties[d] {
			apiError(c, http.StatusBadRequest, "difficulty must be one of: beginner, intermediate, advanced")
			return
		}
		conds = append(conds, "difficulty = @difficulty")
		args["difficulty"] = d
	}
	where := strings.Join(conds, " AND ")

	total, err := queryCount(h.db, c, "SELECT COUNT(*) FROM exercises WHERE "+where, args)
	if err != nil {
		dbError(c, err, "exercises not found", "failed to count exercises")
		return
	}
	items, err := queryMany[exercise](h.db, c,
		"SELECT * FROM exercises WHERE "+where+" ORDER BY name LIMIT @limit OFFSET @offset", args)
	if err != nil {
		dbError(c, err, "exercises not found", "failed to fetch exercises")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(items, p, total))
}

// createExercise adds an exercise to the trainer's library.
// POST /api/exercises. Names are unique per trainer.
func (h *Handler) createExercise(c *gin.Context) {
	var body exerciseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateExercise(&body, true); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	trainerID := c.GetInt("user_id")
	item, err := queryOne[exercise](h.db, c,
		`INSERT INTO exercises (trainer_id, name, description, muscle_group, equipment, difficulty, video_url)
		 VALUES (@trainerID, @name, @description, @muscleGroup, @equipment, @difficulty, @videoURL)
		 RETURNING *`,
		pgx.NamedArgs{
			"trainerID": trainerID, "name": *body.Name, "description": body.Description,
			"muscleGroup": body.MuscleGroup, "equipment": body.Equipment,
			"difficulty": body.Difficulty, "videoURL": body.VideoURL,
		})
	if err != nil {
		if isUniqueViolation(err) {
			apiError(c, http.StatusConflict, "an exercise with this name already exists")
			return
		}
		dbError(c, err, "exercise not found", "failed to create exercise")
		return
	}

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.JSON(http.StatusCreated, item)
}

// getExercise returns one of the trainer's exercises.
// GET /api/exercises/:id.
func (h *Handler) getExercise(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	item, err := queryOne[exercise](h.db, c,
		"SELECT * FROM exercises WHERE id = @id AND trainer_id = @trainerID",
		pgx.NamedArgs{"id": id, "trainerID": c.GetInt("user_id")})
	if err != nil {
		dbError(c, err, "exercise not found", "failed to fetch exercise")
		return
	}
	c.JSON(http.StatusOK, item)
}

// updateExercise updates an existing exercise.
// PUT /api/exercises/:id. Uses COALESCE so omitted fields keep their current value.
func (h *Handler) updateExercise(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body exerciseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateExercise(&body, false); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	item, err := queryOne[exercise](h.db, c,
		`UPDATE exercises SET
			name         = COALESCE(@name, name),
			description  = COALESCE(@description, description),
			muscle_group = COALESCE(@muscleGroup, muscle_group),
			equipment    = COALESCE(@equipment, equipment),
			difficulty   = COALESCE(@difficulty, difficulty),
			video_url    = COALESCE(@videoURL, video_url),
			updated_at   = now()
		 WHERE id = @id AND trainer_id = @trainerID
		 RETURNING *`,
		pgx.NamedArgs{
			"id": id, "trainerID": c.GetInt("user_id"),
			"name": body.Name, "description": body.Description,
			"muscleGroup": body.MuscleGroup, "equipment": body.Equipment,
			"difficulty": body.Difficulty, "videoURL": body.VideoURL,
		})
	if err != nil {
		if isUniqueViolation(err) {
			apiError(c, http.StatusConflict, "an exercise with this name already exists")
			return
		}
		dbError(c, err, "exercise not found", "failed to update exercise")
		return
	}

	c.JSON(http.StatusOK, item)
}

// deleteExercise removes an exercise. Returns 204 on success, 404 if not
// found, 409 while a routine still uses it.
// DELETE /api/exercises/:id.
func (h *Handler) deleteExercise(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	trainerID := c.GetInt("user_id")
	result, err := h.db.Exec(c,
		"DELETE FROM exercises WHERE id = @id AND trainer_id = @trainerID",
		pgx.NamedArgs{"id": id, "trainerID": trainerID})
	if err != nil {
		if isForeignKeyViolation(err) {
			apiError(c, http.StatusConflict, "exercise is used by a routine")
			return
		}
		dbError(c, err, "exercise not found", "failed to delete exercise")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "exercise not found")
		return
	}

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.Status(http.StatusNoContent)
}
