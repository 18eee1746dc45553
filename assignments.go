package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const assignmentDetailSelect = `SELECT a.*, r.name AS routine_name, u.name AS client_name
	FROM %s a
	JOIN routines r ON r.id = a.routine_id
	JOIN users u ON u.id = a.client_id`

// isAssignmentActive reports whether day (YYYY-MM-DD) falls inside the
// assignment's window. An open end date never expires.
func isAssignmentActive(a routineAssignment, day string) bool {
	if a.StartDate.Format(dateLayout) > day {
		return false
	}
	return a.EndDate == nil || a.EndDate.Format(dateLayout) >= day
}

func markActive(items []assignmentDetail, day string) {
	for i := range items {
		items[i].Active = isAssignmentActive(items[i].routineAssignment, day)
	}
}

// assignmentWindow validates optional start/end dates. end must not be
// before start when both are known.
func assignmentWindow(start, end *string) string {
	if start != nil && !validDate(*start) {
		return "invalid start_date, expected YYYY-MM-DD"
	}
	if end != nil && !validDate(*end) {
		return "invalid end_date, expected YYYY-MM-DD"
	}
	if start != nil && end != nil && *end < *start {
		return "end_date must not be before start_date"
	}
	return ""
}

func detailQuery(source string) string {
	return fmt.Sprintf(assignmentDetailSelect, source)
}

// assignRoutine assigns one of the trainer's routines to one of their clients.
// POST /api/routines/:id/assign. start_date defaults to today.
func (h *Handler) assignRoutine(c *gin.Context) {
	routineID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		ClientID  int     `json:"client_id"`
		StartDate *string `json:"start_date"`
		EndDate   *string `json:"end_date"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ClientID <= 0 {
		apiError(c, http.StatusBadRequest, "client_id is required")
		return
	}
	if body.StartDate == nil {
		d := today()
		body.StartDate = &d
	}
	if msg := assignmentWindow(body.StartDate, body.EndDate); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	trainerID := c.GetInt("user_id")
	item, err := queryOne[assignmentDetail](h.db, c,
		`WITH inserted AS (
			INSERT INTO routine_assignments (routine_id, client_id, trainer_id, start_date, end_date)
			SELECT r.id, u.id, r.trainer_id, @startDate::date, @endDate::date
			FROM routines r
			JOIN users u ON u.id = @clientID AND u.role = 'client' AND u.trainer_id = r.trainer_id
			WHERE r.id = @routineID AND r.trainer_id = @trainerID
			RETURNING *
		)
		`+detailQuery("inserted"),
		pgx.NamedArgs{
			"routineID": routineID, "clientID": body.ClientID, "trainerID": trainerID,
			"startDate": *body.StartDate, "endDate": body.EndDate,
		})
	if err != nil {
		dbError(c, err, "routine or client not found", "failed to assign routine")
		return
	}
	item.Active = isAssignmentActive(item.routineAssignment, today())

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.JSON(http.StatusCreated, item)
}

// listClientAssignments returns a client's assignments, newest window first.
// GET /api/clients/:id/assignments?active=true.
func (h *Handler) listClientAssignments(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}

	activeOnly := false
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			apiError(c, http.StatusBadRequest, "active must be true or false")
			return
		}
		activeOnly = b
	}

	query := detailQuery("routine_assignments") + " WHERE a.client_id = @clientID"
	if activeOnly {
		query += " AND " + activeAssignmentCond
	}
	query += " ORDER BY a.start_date DESC, a.id DESC"

	items, err := queryMany[assignmentDetail](h.db, c, query, pgx.NamedArgs{"clientID": client.ID})
	if err != nil {
		dbError(c, err, "assignments not found", "failed to fetch assignments")
		return
	}
	markActive(items, today())

	c.JSON(http.StatusOK, items)
}

// patchAssignment moves an assignment to another of the trainer's clients
// and/or changes its window.
// PATCH /api/assignments/:id. clear_end_date makes the assignment open-ended.
func (h *Handler) patchAssignment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		ClientID     *int    `json:"client_id"`
		StartDate    *string `json:"start_date"`
		EndDate      *string `json:"end_date"`
		ClearEndDate bool    `json:"clear_end_date"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ClientID == nil && body.StartDate == nil && body.EndDate == nil && !body.ClearEndDate {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if body.ClientID != nil && *body.ClientID <= 0 {
		apiError(c, http.StatusBadRequest, "invalid client_id")
		return
	}
	if body.ClearEndDate && body.EndDate != nil {
		apiError(c, http.StatusBadRequest, "end_date and clear_end_date are mutually exclusive")
		return
	}
	if msg := assignmentWindow(body.StartDate, body.EndDate); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	trainerID := c.GetInt("user_id")
	item, err := queryOne[assignmentDetail](h.db, c,
		`WITH updated AS (
			UPDATE routine_assignments SET
				client_id  = COALESCE(@clientID::int, client_id),
				start_date = COALESCE(@startDate::date, start_date),
				end_date   = CASE WHEN @clearEnd::boolean THEN NULL ELSE COALESCE(@endDate::date, end_date) END,
				updated_at = now()
			WHERE id = @id AND trainer_id = @trainerID
			  AND (@clientID::int IS NULL OR EXISTS (
			        SELECT 1 FROM users WHERE id = @clientID::int AND role = 'client' AND trainer_id = @trainerID))
			RETURNING *
		)
		`+detailQuery("updated"),
		pgx.NamedArgs{
			"id": id, "trainerID": trainerID, "clientID": body.ClientID,
			"startDate": body.StartDate, "endDate": body.EndDate, "clearEnd": body.ClearEndDate,
		})
	if err != nil {
		if isCheckViolation(err) {
			apiError(c, http.StatusBadRequest, "end_date must not be before start_date")
			return
		}
		dbError(c, err, "assignment or client not found", "failed to update assignment")
		return
	}
	item.Active = isAssignmentActive(item.routineAssignment, today())

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.JSON(http.StatusOK, item)
}

// deleteAssignment removes an assignment.
// DELETE /api/assignments/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteAssignment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	trainerID := c.GetInt("user_id")
	result, err := h.db.Exec(c,
		"DELETE FROM routine_assignments WHERE id = @id AND trainer_id = @trainerID",
		pgx.NamedArgs{"id": id, "trainerID": trainerID})
	if err != nil {
		dbError(c, err, "assignment not found", "failed to delete assignment")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "assignment not found")
		return
	}

	h.cache.invalidate(c, trainerStatsKey(trainerID))
	c.Status(http.StatusNoContent)
}
