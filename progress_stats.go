package main

import (
	"math"
	"slices"
)

// metricDelta is the first and latest recorded value of one measurement.
// Change is nil until the metric was recorded at least once.
type metricDelta struct {
	First         *float64 `json:"first"`
	Latest        *float64 `json:"latest"`
	Change        *float64 `json:"change"`
	PercentChange *float64 `json:"percent_change,omitempty"`
}

// progressSummary is the response for GET /api/clients/:id/progress/summary.
type progressSummary struct {
	StartDate   *DateOnly   `json:"start_date"`
	EndDate     *DateOnly   `json:"end_date"`
	EntryCount  int         `json:"entry_count"`
	DaysSpanned int         `json:"days_spanned"`
	WeightKG    metricDelta `json:"weight_kg"`
	BodyFatPct  metricDelta `json:"body_fat_pct"`
	ChestCM     metricDelta `json:"chest_cm"`
	WaistCM     metricDelta `json:"waist_cm"`
	HipsCM      metricDelta `json:"hips_cm"`
	ArmCM       metricDelta `json:"arm_cm"`
	ThighCM     metricDelta `json:"thigh_cm"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// deltaOf scans entries (ascending by date) for the first and last non-nil
// value returned by get.
func deltaOf(entries []progressEntry, get func(progressEntry) *float64) metricDelta {
	var d metricDelta
	for _, e := range entries {
		v := get(e)
		if v == nil {
			continue
		}
		if d.First == nil {
			first := *v
			d.First = &first
		}
		latest := *v
		d.Latest = &latest
	}
	if d.First != nil {
		change := round2(*d.Latest - *d.First)
		d.Change = &change
	}
	return d
}

// computeProgressDelta summarizes entries. Entries may arrive in any order.
// Percent change is reported for weight only and only from a non-zero start.
func computeProgressDelta(entries []progressEntry) progressSummary {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b progressEntry) int {
		return a.Date.Compare(b.Date.Time)
	})

	s := progressSummary{EntryCount: len(sorted)}
	if len(sorted) == 0 {
		return s
	}
	first, last := sorted[0].Date, sorted[len(sorted)-1].Date
	s.StartDate, s.EndDate = &first, &last
	s.DaysSpanned = int(last.Sub(first.Time).Hours() / 24)

	s.WeightKG = deltaOf(sorted, func(e progressEntry) *float64 { return e.WeightKG })
	s.BodyFatPct = deltaOf(sorted, func(e progressEntry) *float64 { return e.BodyFatPct })
	s.ChestCM = deltaOf(sorted, func(e progressEntry) *float64 { return e.ChestCM })
	s.WaistCM = deltaOf(sorted, func(e progressEntry) *float64 { return e.WaistCM })
	s.HipsCM = deltaOf(sorted, func(e progressEntry) *float64 { return e.HipsCM })
	s.ArmCM = deltaOf(sorted, func(e progressEntry) *float64 { return e.ArmCM })
	s.ThighCM = deltaOf(sorted, func(e progressEntry) *float64 { return e.ThighCM })

	if w := s.WeightKG; w.First != nil && *w.First != 0 {
		pct := round2((*w.Latest - *w.First) / *w.First * 100)
		s.WeightKG.PercentChange = &pct
	}
	return s
}
