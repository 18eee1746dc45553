package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAssignmentActive(t *testing.T) {
	end := mustDate("2026-03-31")
	tests := []struct {
		name string
		a    routineAssignment
		day  string
		want bool
	}{
		{"open ended, started", routineAssignment{StartDate: mustDate("2026-03-01")}, "2027-01-01", true},
		{"not started yet", routineAssignment{StartDate: mustDate("2026-03-01")}, "2026-02-28", false},
		{"first day", routineAssignment{StartDate: mustDate("2026-03-01"), EndDate: &end}, "2026-03-01", true},
		{"last day", routineAssignment{StartDate: mustDate("2026-03-01"), EndDate: &end}, "2026-03-31", true},
		{"ended", routineAssignment{StartDate: mustDate("2026-03-01"), EndDate: &end}, "2026-04-01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAssignmentActive(tt.a, tt.day))
		})
	}
}

func TestMarkActive(t *testing.T) {
	end := mustDate("2026-01-31")
	items := []assignmentDetail{
		{routineAssignment: routineAssignment{StartDate: mustDate("2026-01-01"), EndDate: &end}},
		{routineAssignment: routineAssignment{StartDate: mustDate("2026-02-01")}},
	}
	markActive(items, "2026-02-10")
	assert.False(t, items[0].Active)
	assert.True(t, items[1].Active)
}

func TestAssignmentWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end *string
		wantMsg    string
	}{
		{"nothing", nil, nil, ""},
		{"open ended", ptr("2026-01-01"), nil, ""},
		{"same day", ptr("2026-01-01"), ptr("2026-01-01"), ""},
		{"bad start", ptr("01/01/2026"), nil, "invalid start_date, expected YYYY-MM-DD"},
		{"bad end", nil, ptr("soon"), "invalid end_date, expected YYYY-MM-DD"},
		{"end before start", ptr("2026-02-01"), ptr("2026-01-31"), "end_date must not be before start_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, assignmentWindow(tt.start, tt.end))
		})
	}
}

func TestAssignmentHandlers_Validation(t *testing.T) {
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
		{"assign without client", http.MethodPost, "/api/routines/1/assign", `{}`, http.StatusBadRequest, "client_id is required"},
		{"assign bad routine id", http.MethodPost, "/api/routines/abc/assign", `{"client_id":2}`, http.StatusBadRequest, "invalid id"},
		{"assign reversed window", http.MethodPost, "/api/routines/1/assign",
			`{"client_id":2,"start_date":"2026-03-10","end_date":"2026-03-01"}`, http.StatusBadRequest, "end_date must not be before start_date"},
		{"assign db failure", http.MethodPost, "/api/routines/1/assign", `{"client_id":2}`, http.StatusInternalServerError, "failed to assign routine"},
		{"patch nothing", http.MethodPatch, "/api/assignments/1", `{}`, http.StatusBadRequest, "no fields to update"},
		{"patch zero client", http.MethodPatch, "/api/assignments/1", `{"client_id":0}`, http.StatusBadRequest, "invalid client_id"},
		{"patch end and clear", http.MethodPatch, "/api/assignments/1",
			`{"end_date":"2026-05-01","clear_end_date":true}`, http.StatusBadRequest, "end_date and clear_end_date are mutually exclusive"},
		{"patch bad start", http.MethodPatch, "/api/assignments/1", `{"start_date":"May 1"}`, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD"},
		{"delete bad id", http.MethodDelete, "/api/assignments/0", "", http.StatusBadRequest, "invalid id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, w))
		})
	}
}
