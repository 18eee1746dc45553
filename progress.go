package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// validateProgress checks dates and measurement ranges on the provided fields.
func validateProgress(body *progressEntryRequest) string {
	if body.Date != nil {
		d, err := time.Parse(dateLayout, *body.Date)
		if err != nil {
			return "invalid date, expected YYYY-MM-DD"
		}
		if d.After(utcNow()) {
			return "date must not be in the future"
		}
	}
	if body.WeightKG != nil && (*body.WeightKG <= 0 || *body.WeightKG > 700) {
		return "weight_kg must be between 0 and 700"
	}
	if body.BodyFatPct != nil && (*body.BodyFatPct <= 0 || *body.BodyFatPct >= 100) {
		return "body_fat_pct must be between 0 and 100"
	}
	for name, v := range map[string]*float64{
		"chest_cm": body.ChestCM, "waist_cm": body.WaistCM, "hips_cm": body.HipsCM,
		"arm_cm": body.ArmCM, "thigh_cm": body.ThighCM,
	} {
		if v != nil && (*v <= 0 || *v > 300) {
			return name + " must be between 0 and 300"
		}
	}
	return ""
}

// hasMeasurement reports whether the body carries anything worth storing.
func (r progressEntryRequest) hasMeasurement() bool {
	return r.WeightKG != nil || r.BodyFatPct != nil || r.ChestCM != nil || r.WaistCM != nil ||
		r.HipsCM != nil || r.ArmCM != nil || r.ThighCM != nil || r.Notes != nil
}

func (r progressEntryRequest) args() pgx.NamedArgs {
	return pgx.NamedArgs{
		"date": r.Date, "weightKG": r.WeightKG, "bodyFatPct": r.BodyFatPct,
		"chestCM": r.ChestCM, "waistCM": r.WaistCM, "hipsCM": r.HipsCM,
		"armCM": r.ArmCM, "thighCM": r.ThighCM, "notes": r.Notes,
	}
}

// fetchProgress loads a client's entries in [start, end], ascending by date.
// Nil bounds are open.
func (h *Handler) fetchProgress(c *gin.Context, clientID int, start, end *string) ([]progressEntry, error) {
	return queryMany[progressEntry](h.db, c,
		`SELECT * FROM progress_entries
		 WHERE client_id = @clientID
		   AND (@start::date IS NULL OR date >= @start::date)
		   AND (@end::date IS NULL OR date <= @end::date)
		 ORDER BY date ASC`,
		pgx.NamedArgs{"clientID": clientID, "start": start, "end": end})
}

// listProgress returns a client's progress entries within [start, end].
// GET /api/clients/:id/progress?start=&end=. Both bounds are optional.
func (h *Handler) listProgress(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	entries, err := h.fetchProgress(c, client.ID, start, end)
	if err != nil {
		dbError(c, err, "progress not found", "failed to fetch progress")
		return
	}

	c.JSON(http.StatusOK, entries)
}

// upsertProgress creates or merges the entry for the given date.
// POST /api/clients/:id/progress. date defaults to today. The
// UNIQUE(client_id, date) constraint means posting the same date updates in
// place; omitted measurements keep their stored values.
func (h *Handler) upsertProgress(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}

	var body progressEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Date == nil {
		d := today()
		body.Date = &d
	}
	if msg := validateProgress(&body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}
	if !body.hasMeasurement() {
		apiError(c, http.StatusBadRequest, "at least one measurement is required")
		return
	}

	args := body.args()
	args["clientID"] = client.ID
	entry, err := queryOne[progressEntry](h.db, c,
		`INSERT INTO progress_entries (client_id, date, weight_kg, body_fat_pct, chest_cm, waist_cm, hips_cm, arm_cm, thigh_cm, notes)
		 VALUES (@clientID, @date, @weightKG, @bodyFatPct, @chestCM, @waistCM, @hipsCM, @armCM, @thighCM, @notes)
		 ON CONFLICT (client_id, date) DO UPDATE SET
			weight_kg    = COALESCE(EXCLUDED.weight_kg, progress_entries.weight_kg),
			body_fat_pct = COALESCE(EXCLUDED.body_fat_pct, progress_entries.body_fat_pct),
			chest_cm     = COALESCE(EXCLUDED.chest_cm, progress_entries.chest_cm),
			waist_cm     = COALESCE(EXCLUDED.waist_cm, progress_entries.waist_cm),
			hips_cm      = COALESCE(EXCLUDED.hips_cm, progress_entries.hips_cm),
			arm_cm       = COALESCE(EXCLUDED.arm_cm, progress_entries.arm_cm),
			thigh_cm     = COALESCE(EXCLUDED.thigh_cm, progress_entries.thigh_cm),
			notes        = COALESCE(EXCLUDED.notes, progress_entries.notes)
		 RETURNING *`,
		args)
	if err != nil {
		dbError(c, err, "client not found", "failed to save progress entry")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// updateProgress partially updates an entry by ID.
// PUT /api/progress/:id. Uses COALESCE so omitted fields keep their current values.
func (h *Handler) updateProgress(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body progressEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateProgress(&body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	args := body.args()
	args["id"] = id
	where := ownedClientCond(c, args, "client_id")
	entry, err := queryOne[progressEntry](h.db, c,
		`UPDATE progress_entries SET
			date         = COALESCE(@date::date, date),
			weight_kg    = COALESCE(@weightKG, weight_kg),
			body_fat_pct = COALESCE(@bodyFatPct, body_fat_pct),
			chest_cm     = COALESCE(@chestCM, chest_cm),
			waist_cm     = COALESCE(@waistCM, waist_cm),
			hips_cm      = COALESCE(@hipsCM, hips_cm),
			arm_cm       = COALESCE(@armCM, arm_cm),
			thigh_cm     = COALESCE(@thighCM, thigh_cm),
			notes        = COALESCE(@notes, notes)
		 WHERE id = @id AND `+where+`
		 RETURNING *`,
		args)
	if err != nil {
		if isUniqueViolation(err) {
			apiError(c, http.StatusConflict, "a progress entry already exists for this date")
			return
		}
		dbError(c, err, "progress entry not found", "failed to update progress entry")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// deleteProgress removes a progress entry by ID.
// DELETE /api/progress/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteProgress(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	args := pgx.NamedArgs{"id": id}
	where := ownedClientCond(c, args, "client_id")
	result, err := h.db.Exec(c, "DELETE FROM progress_entries WHERE id = @id AND "+where, args)
	if err != nil {
		dbError(c, err, "progress entry not found", "failed to delete progress entry")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "progress entry not found")
		return
	}

	c.Status(http.StatusNoContent)
}

// getProgressSummary returns the first-to-latest change of each measurement.
// GET /api/clients/:id/progress/summary?start=&end=.
func (h *Handler) getProgressSummary(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	entries, err := h.fetchProgress(c, client.ID, start, end)
	if err != nil {
		dbError(c, err, "progress not found", "failed to fetch progress")
		return
	}

	c.JSON(http.StatusOK, computeProgressDelta(entries))
}
