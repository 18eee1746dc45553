package main

import (
	"math"
	"slices"
	"time"
)

const recentClientsLimit = 5

// trainerStats is the response for GET /api/dashboard/trainer. It is cached
// as JSON, so every field must round-trip.
type trainerStats struct {
	TotalClients                int       `json:"total_clients"`
	NewClientsLast30Days        int       `json:"new_clients_last_30_days"`
	Routines                    int       `json:"routines"`
	Exercises                   int       `json:"exercises"`
	ActiveAssignments           int       `json:"active_assignments"`
	ClientsWithoutActiveRoutine int       `json:"clients_without_active_routine"`
	WorkoutsLast7Days           int       `json:"workouts_last_7_days"`
	CompletionRate              float64   `json:"completion_rate"`
	RecentClients               []user    `json:"recent_clients"`
	GeneratedAt                 time.Time `json:"generated_at"`
}

// trainerStatsInput is everything buildTrainerStats aggregates over.
type trainerStatsInput struct {
	Clients     []user
	Assignments []routineAssignment
	Workouts    []workoutLog
	Routines    int
	Exercises   int
}

// buildTrainerStats aggregates the trainer's records as of now. Workouts
// count when dated within the last 7 days including today; the completion
// rate is the percentage of those marked completed.
func buildTrainerStats(in trainerStatsInput, now time.Time) trainerStats {
	now = now.UTC()
	day := now.Format(dateLayout)
	weekAgo := now.AddDate(0, 0, -6).Format(dateLayout)
	monthAgo := now.AddDate(0, 0, -30)

	s := trainerStats{
		TotalClients:  len(in.Clients),
		Routines:      in.Routines,
		Exercises:     in.Exercises,
		RecentClients: []user{},
		GeneratedAt:   now,
	}

	active := map[int]bool{}
	for _, a := range in.Assignments {
		if isAssignmentActive(a, day) {
			s.ActiveAssignments++
			active[a.ClientID] = true
		}
	}
	for _, u := range in.Clients {
		if !u.CreatedAt.Before(monthAgo) {
			s.NewClientsLast30Days++
		}
		if !active[u.ID] {
			s.ClientsWithoutActiveRoutine++
		}
	}

	completed := 0
	for _, w := range in.Workouts {
		d := w.Date.Format(dateLayout)
		if d < weekAgo || d > day {
			continue
		}
		s.WorkoutsLast7Days++
		if w.Completed {
			completed++
		}
	}
	if s.WorkoutsLast7Days > 0 {
		s.CompletionRate = math.Round(float64(completed)/float64(s.WorkoutsLast7Days)*1000) / 10
	}

	recent := slices.Clone(in.Clients)
	slices.SortStableFunc(recent, func(a, b user) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(recent) > recentClientsLimit {
		recent = recent[:recentClientsLimit]
	}
	s.RecentClients = append(s.RecentClients, recent...)
	return s
}

// workoutStreak counts consecutive days with a workout ending today, or
// ending yesterday when nothing has been logged yet today. dates may repeat
// and arrive in any order.
func workoutStreak(dates []DateOnly, now time.Time) int {
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		seen[d.Format(dateLayout)] = true
	}

	cursor := now.UTC()
	if !seen[cursor.Format(dateLayout)] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	streak := 0
	for seen[cursor.Format(dateLayout)] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// clientDashboard is the response for GET /api/dashboard/client.
type clientDashboard struct {
	ActiveAssignments []assignmentDetail `json:"active_assignments"`
	WorkoutsThisWeek  int                `json:"workouts_this_week"`
	WeekStart         string             `json:"week_start"`
	Streak            int                `json:"streak"`
	LatestProgress    *progressEntry     `json:"latest_progress"`
	Last30Days        progressSummary    `json:"last_30_days"`
}
