package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// getClientProfile returns the client's profile with computed BMI/BMR/TDEE.
// GET /api/clients/:id/profile.
func (h *Handler) getClientProfile(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}

	p, err := queryOne[clientProfile](h.db, c,
		"SELECT * FROM client_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": client.ID})
	if err != nil {
		dbError(c, err, "profile not found", "failed to fetch profile")
		return
	}

	populateBodyMetrics(&p, time.Now())

	c.JSON(http.StatusOK, p)
}

// profileSetClauses validates body and builds the SET clause for the provided
// fields only. Returns a user-facing message when validation fails.
func profileSetClauses(body patchProfileRequest) ([]string, pgx.NamedArgs, string) {
	if body.Sex != nil && *body.Sex != "male" && *body.Sex != "female" {
		return nil, nil, "sex must be one of: male, female"
	}
	// Validate activity_level before saving; an unknown level silently breaks
	// TDEE calculations with no visible error.
	if body.ActivityLevel != nil {
		if _, ok := activityMultipliers[*body.ActivityLevel]; !ok {
			return nil, nil, "activity_level must be one of: sedentary, light, moderate, active, very_active"
		}
	}
	if body.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, *body.DateOfBirth)
		if err != nil {
			return nil, nil, "invalid date_of_birth, expected YYYY-MM-DD"
		}
		if dob.After(utcNow()) {
			return nil, nil, "date_of_birth must be in the past"
		}
	}
	if body.HeightCM != nil && (*body.HeightCM <= 0 || *body.HeightCM > 300) {
		return nil, nil, "height_cm must be between 0 and 300"
	}
	if body.WeightKG != nil && (*body.WeightKG <= 0 || *body.WeightKG > 700) {
		return nil, nil, "weight_kg must be between 0 and 700"
	}

	// Build SET clause dynamically: only update fields the client actually sent
	setClauses := []string{}
	args := pgx.NamedArgs{}
	add := func(column, arg string, value any) {
		setClauses = append(setClauses, column+" = @"+arg)
		args[arg] = value
	}

	if body.Phone != nil {
		add("phone", "phone", *body.Phone)
	}
	if body.Sex != nil {
		add("sex", "sex", *body.Sex)
	}
	if body.DateOfBirth != nil {
		add("date_of_birth", "dateOfBirth", *body.DateOfBirth)
	}
	if body.HeightCM != nil {
		add("height_cm", "heightCM", *body.HeightCM)
	}
	if body.WeightKG != nil {
		add("weight_kg", "weightKG", *body.WeightKG)
	}
	if body.ActivityLevel != nil {
		add("activity_level", "activityLevel", *body.ActivityLevel)
	}
	if body.Goals != nil {
		add("goals", "goals", *body.Goals)
	}
	if body.MedicalConditions != nil {
		add("medical_conditions", "medicalConditions", *body.MedicalConditions)
	}
	if body.Injuries != nil {
		add("injuries", "injuries", *body.Injuries)
	}
	if body.Notes != nil {
		add("notes", "notes", *body.Notes)
	}
	return setClauses, args, ""
}

// patchClientProfile updates only the provided profile fields.
// PATCH /api/clients/:id/profile. Uses pointer fields in the request body
// to distinguish "not provided" from zero; only non-nil fields get updated.
func (h *Handler) patchClientProfile(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}

	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	setClauses, args, msg := profileSetClauses(body)
	if msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}
	if len(setClauses) == 0 {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}

	p, err := applyProfileUpdate(h.db, c, client.ID, setClauses, args)
	if err != nil {
		dbError(c, err, "profile not found", "failed to update profile")
		return
	}

	populateBodyMetrics(&p, time.Now())

	c.JSON(http.StatusOK, p)
}

// applyProfileUpdate applies setClauses to the client's profile row, creating
// the row first for accounts that never had one.
func applyProfileUpdate(q execQuerier, c *gin.Context, userID int, setClauses []string, args pgx.NamedArgs) (clientProfile, error) {
	if len(setClauses) == 0 {
		return clientProfile{}, errors.New("no profile fields to update")
	}
	if _, err := q.Exec(c,
		"INSERT INTO client_profiles (user_id) VALUES (@userID) ON CONFLICT (user_id) DO NOTHING",
		pgx.NamedArgs{"userID": userID}); err != nil {
		return clientProfile{}, err
	}
	args["userID"] = userID
	query := "UPDATE client_profiles SET " +
		strings.Join(setClauses, ", ") +
		", updated_at = now() WHERE user_id = @userID RETURNING *"
	return queryOne[clientProfile](q, c, query, args)
}
