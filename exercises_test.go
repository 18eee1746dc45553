package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExercise(t *testing.T) {
	tests := []struct {
		name    string
		body    exerciseRequest
		create  bool
		wantMsg string
	}{
		{"create ok", exerciseRequest{Name: ptr("Squat")}, true, ""},
		{"create missing name", exerciseRequest{}, true, "name is required"},
		{"create blank name", exerciseRequest{Name: ptr("   ")}, true, "name is required"},
		{"update without name", exerciseRequest{Equipment: ptr("Barbell")}, false, ""},
		{"update blank name", exerciseRequest{Name: ptr("")}, false, "name must not be empty"},
		{"bad difficulty", exerciseRequest{Name: ptr("Squat"), Difficulty: ptr("easy")}, true,
			"difficulty must be one of: beginner, intermediate, advanced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, validateExercise(&tt.body, tt.create))
		})
	}
}

func TestValidateExercise_Normalizes(t *testing.T) {
	body := exerciseRequest{Name: ptr("  Bench Press "), MuscleGroup: ptr(" Chest ")}
	require.Equal(t, "", validateExercise(&body, true))
	assert.Equal(t, "Bench Press", *body.Name)
	assert.Equal(t, "chest", *body.MuscleGroup)
}

func TestExerciseHandlers_Validation(t *testing.T) {
	router, _ := newTestServer(t)
	token := tokenFor(t, 10, roleTrainer)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"list bad difficulty", http.MethodGet, "/api/exercises?difficulty=easy", "", http.StatusBadRequest,
			"difficulty must be one of: beginner, intermediate, advanced"},
		{"create no name", http.MethodPost, "/api/exercises", `{"muscle_group":"legs"}`, http.StatusBadRequest, "name is required"},
		{"create malformed", http.MethodPost, "/api/exercises", `{"name":`, http.StatusBadRequest, "invalid request body"},
		{"create db failure", http.MethodPost, "/api/exercises", `{"name":"Squat"}`, http.StatusInternalServerError, "failed to create exercise"},
		{"update blank name", http.MethodPut, "/api/exercises/1", `{"name":" "}`, http.StatusBadRequest, "name must not be empty"},
		{"get bad id", http.MethodGet, "/api/exercises/nope", "", http.StatusBadRequest, "invalid id"},
		{"delete bad id", http.MethodDelete, "/api/exercises/0", "", http.StatusBadRequest, "invalid id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, w))
		})
	}
}
