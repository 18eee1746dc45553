package main

import (
	"math"
	"time"
)

// activityMultipliers maps activity level strings to their TDEE multiplier.
// This is the single source of truth for valid activity levels, also used for
// input validation in profileSetClauses.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// ageOn returns completed years between dob and now.
func ageOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Before(dob.AddDate(age, 0, 0)) {
		age--
	}
	return age
}

// computeBMI returns weight / height² (kg/m²) rounded to one decimal.
func computeBMI(p *clientProfile) (float64, bool) {
	if p.HeightCM == nil || p.WeightKG == nil || *p.HeightCM <= 0 || *p.WeightKG <= 0 {
		return 0, false
	}
	m := *p.HeightCM / 100
	return math.Round(*p.WeightKG/(m*m)*10) / 10, true
}

// computeTDEE computes BMR (Mifflin-St Jeor) and TDEE from the client profile.
// Returns ok=false when any required field is nil, the activity level is
// unknown, or the age is implausible.
func computeTDEE(p *clientProfile, now time.Time) (bmr, tdee int, ok bool) {
	if p.Sex == nil || p.DateOfBirth == nil || p.HeightCM == nil ||
		p.WeightKG == nil || p.ActivityLevel == nil {
		return 0, 0, false
	}

	age := ageOn(p.DateOfBirth.Time, now)
	// Guard against implausible ages (e.g. DOB in the future, or over 130 years ago)
	if age < 0 || age > 130 {
		return 0, 0, false
	}

	// BMR via Mifflin-St Jeor: different constant for male vs female
	bmrF := 10**p.WeightKG + 6.25**p.HeightCM - 5*float64(age)
	if *p.Sex == "male" {
		bmrF += 5
	} else {
		bmrF -= 161
	}

	mult, found := activityMultipliers[*p.ActivityLevel]
	if !found {
		return 0, 0, false
	}
	return int(math.Round(bmrF)), int(math.Round(bmrF * mult)), true
}

// mondayOf returns the Monday of t's week at midnight UTC.
// Uses AddDate to safely handle month/year boundaries.
func mondayOf(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7 // treat Sunday as day 7 so Mon=1..Sun=7
	}
	return t.AddDate(0, 0, -(weekday - 1)).Truncate(24 * time.Hour)
}

// populateBodyMetrics fills the computed-only fields on p.
// Each metric is set independently so partial profiles still get a BMI.
func populateBodyMetrics(p *clientProfile, now time.Time) {
	if bmi, ok := computeBMI(p); ok {
		p.BMI = &bmi
	}
	if bmr, tdee, ok := computeTDEE(p, now); ok {
		p.BMR = &bmr
		p.TDEE = &tdee
	}
}
