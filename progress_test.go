package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateProgress(t *testing.T) {
	tomorrow := time.Now().AddDate(0, 0, 2).Format(dateLayout)

	tests := []struct {
		name    string
		body    progressEntryRequest
		wantMsg string
	}{
		{"weight only", progressEntryRequest{WeightKG: ptr(82.5)}, ""},
		{"all measurements", progressEntryRequest{
			Date: ptr("2026-01-05"), WeightKG: ptr(80.0), BodyFatPct: ptr(18.0),
			ChestCM: ptr(100.0), WaistCM: ptr(85.0), HipsCM: ptr(95.0), ArmCM: ptr(35.0), ThighCM: ptr(55.0),
		}, ""},
		{"bad date", progressEntryRequest{Date: ptr("2026-02-30")}, "invalid date, expected YYYY-MM-DD"},
		{"future date", progressEntryRequest{Date: &tomorrow}, "date must not be in the future"},
		{"zero weight", progressEntryRequest{WeightKG: ptr(0.0)}, "weight_kg must be between 0 and 700"},
		{"huge weight", progressEntryRequest{WeightKG: ptr(701.0)}, "weight_kg must be between 0 and 700"},
		{"body fat 100", progressEntryRequest{BodyFatPct: ptr(100.0)}, "body_fat_pct must be between 0 and 100"},
		{"negative waist", progressEntryRequest{WaistCM: ptr(-1.0)}, "waist_cm must be between 0 and 300"},
		{"huge thigh", progressEntryRequest{ThighCM: ptr(301.0)}, "thigh_cm must be between 0 and 300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, validateProgress(&tt.body))
		})
	}
}

func TestProgressEntryRequest_HasMeasurement(t *testing.T) {
	assert.False(t, progressEntryRequest{}.hasMeasurement())
	assert.False(t, progressEntryRequest{Date: ptr("2026-01-01")}.hasMeasurement())
	assert.True(t, progressEntryRequest{ArmCM: ptr(30.0)}.hasMeasurement())
	assert.True(t, progressEntryRequest{Notes: ptr("felt strong")}.hasMeasurement())
}

func TestProgressEntryRequest_Args(t *testing.T) {
	args := progressEntryRequest{WeightKG: ptr(70.0)}.args()
	assert.Equal(t, ptr(70.0), args["weightKG"])
	assert.Nil(t, args["chestCM"])
	assert.Len(t, args, 9)
}

func TestProgressHandlers_Validation(t *testing.T) {
	router, _ := newTestServer(t)
	token := tokenFor(t, 20, roleClient)

	w := doRequest(router, http.MethodPut, "/api/progress/5", token, `{"weight_kg":-3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "weight_kg must be between 0 and 700", errorMessage(t, w))

	w = doRequest(router, http.MethodPut, "/api/progress/5", token, `{"date":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/progress/zero", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid id", errorMessage(t, w))

	// Another client's progress is rejected before any lookup.
	w = doRequest(router, http.MethodPost, "/api/clients/21/progress", token, `{"weight_kg":80}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
