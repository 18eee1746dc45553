package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const dateLayout = "2006-01-02"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

/* ─── Roles ──────────────────────────────────────────────────────────── */

const (
	roleAdmin   = "admin"
	roleTrainer = "trainer"
	roleClient  = "client"
)

var validRoles = map[string]bool{
	roleAdmin:   true,
	roleTrainer: true,
	roleClient:  true,
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. Password is hidden from JSON responses.
// TrainerID is set for clients and points at the trainer who manages them.
type user struct {
	ID        int       `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	Email     string    `json:"email"      db:"email"`
	Password  string    `json:"-"          db:"password"`
	Role      string    `json:"role"       db:"role"`
	TrainerID *int      `json:"trainer_id" db:"trainer_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// clientProfile maps to client_profiles. All attributes are nullable so a
// freshly created client has a usable row before onboarding.
type clientProfile struct {
	UserID            int       `json:"user_id"            db:"user_id"`
	Phone             *string   `json:"phone"              db:"phone"`
	Sex               *string   `json:"sex"                db:"sex"`
	DateOfBirth       *DateOnly `json:"date_of_birth"      db:"date_of_birth"`
	HeightCM          *float64  `json:"height_cm"          db:"height_cm"`
	WeightKG          *float64  `json:"weight_kg"          db:"weight_kg"`
	ActivityLevel     *string   `json:"activity_level"     db:"activity_level"`
	Goals             *string   `json:"goals"              db:"goals"`
	MedicalConditions *string   `json:"medical_conditions" db:"medical_conditions"`
	Injuries          *string   `json:"injuries"           db:"injuries"`
	Notes             *string   `json:"notes"              db:"notes"`
	CreatedAt         time.Time `json:"created_at"         db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"         db:"updated_at"`

	// Computed from the profile; db:"-" keeps RowToStructByName from expecting columns.
	BMI  *float64 `json:"bmi,omitempty"  db:"-"`
	BMR  *int     `json:"bmr,omitempty"  db:"-"`
	TDEE *int     `json:"tdee,omitempty" db:"-"`
}

// clientDetail is the response shape for GET /api/clients/:id.
type clientDetail struct {
	user
	Profile *clientProfile `json:"profile"`
}

// exercise maps to the exercises table. Exercises belong to the trainer who
// created them.
type exercise struct {
	ID          int       `json:"id"           db:"id"`
	TrainerID   int       `json:"trainer_id"   db:"trainer_id"`
	Name        string    `json:"name"         db:"name"`
	Description *string   `json:"description"  db:"description"`
	MuscleGroup *string   `json:"muscle_group" db:"muscle_group"`
	Equipment   *string   `json:"equipment"    db:"equipment"`
	Difficulty  *string   `json:"difficulty"   db:"difficulty"`
	VideoURL    *string   `json:"video_url"    db:"video_url"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}

// routine maps to the routines table.
type routine struct {
	ID          int       `json:"id"          db:"id"`
	TrainerID   int       `json:"trainer_id"  db:"trainer_id"`
	Name        string    `json:"name"        db:"name"`
	Description *string   `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"  db:"updated_at"`
}

// routineSummary is one row of GET /api/routines.
type routineSummary struct {
	routine
	ExerciseCount int `json:"exercise_count" db:"exercise_count"`
}

// routineExercise maps to routine_exercises: one exercise slot in a routine
// with its prescription.
type routineExercise struct {
	ID          int      `json:"id"           db:"id"`
	RoutineID   int      `json:"routine_id"   db:"routine_id"`
	ExerciseID  int      `json:"exercise_id"  db:"exercise_id"`
	Position    int      `json:"position"     db:"position"`
	Sets        int      `json:"sets"         db:"sets"`
	Reps        int      `json:"reps"         db:"reps"`
	WeightKG    *float64 `json:"weight_kg"    db:"weight_kg"`
	RestSeconds int      `json:"rest_seconds" db:"rest_seconds"`
	Notes       *string  `json:"notes"        db:"notes"`
}

// routineExerciseDetail adds the joined exercise name for display.
type routineExerciseDetail struct {
	routineExercise
	ExerciseName string  `json:"exercise_name" db:"exercise_name"`
	MuscleGroup  *string `json:"muscle_group"  db:"muscle_group"`
}

// routineDetail is the response shape for GET /api/routines/:id.
type routineDetail struct {
	routine
	Exercises []routineExerciseDetail `json:"exercises"`
}

// routineAssignment maps to routine_assignments.
type routineAssignment struct {
	ID        int       `json:"id"         db:"id"`
	RoutineID int       `json:"routine_id" db:"routine_id"`
	ClientID  int       `json:"client_id"  db:"client_id"`
	TrainerID int       `json:"trainer_id" db:"trainer_id"`
	StartDate DateOnly  `json:"start_date" db:"start_date"`
	EndDate   *DateOnly `json:"end_date"   db:"end_date"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// assignmentDetail joins the routine and client names. Active is computed
// against today's date after scanning.
type assignmentDetail struct {
	routineAssignment
	RoutineName string `json:"routine_name" db:"routine_name"`
	ClientName  string `json:"client_name"  db:"client_name"`
	Active      bool   `json:"active"       db:"-"`
}

// progressEntry maps to progress_entries. One row per client per date.
type progressEntry struct {
	ID         int       `json:"id"           db:"id"`
	ClientID   int       `json:"client_id"    db:"client_id"`
	Date       DateOnly  `json:"date"         db:"date"`
	WeightKG   *float64  `json:"weight_kg"    db:"weight_kg"`
	BodyFatPct *float64  `json:"body_fat_pct" db:"body_fat_pct"`
	ChestCM    *float64  `json:"chest_cm"     db:"chest_cm"`
	WaistCM    *float64  `json:"waist_cm"     db:"waist_cm"`
	HipsCM     *float64  `json:"hips_cm"      db:"hips_cm"`
	ArmCM      *float64  `json:"arm_cm"       db:"arm_cm"`
	ThighCM    *float64  `json:"thigh_cm"     db:"thigh_cm"`
	Notes      *string   `json:"notes"        db:"notes"`
	CreatedAt  time.Time `json:"created_at"   db:"created_at"`
}

// workoutLog maps to workout_logs: one completed (or skipped) session.
type workoutLog struct {
	ID              int       `json:"id"               db:"id"`
	ClientID        int       `json:"client_id"        db:"client_id"`
	RoutineID       *int      `json:"routine_id"       db:"routine_id"`
	Date            DateOnly  `json:"date"             db:"date"`
	DurationMinutes *int      `json:"duration_minutes" db:"duration_minutes"`
	Completed       bool      `json:"completed"        db:"completed"`
	Rating          *int      `json:"rating"           db:"rating"`
	Notes           *string   `json:"notes"            db:"notes"`
	CreatedAt       time.Time `json:"created_at"       db:"created_at"`
}

/* ─── Request bodies ─────────────────────────────────────────────────── */

// patchProfileRequest is the request body for PATCH /api/clients/:id/profile.
// All fields are pointers; only non-nil fields get written to the database.
type patchProfileRequest struct {
	Phone             *string  `json:"phone"`
	Sex               *string  `json:"sex"`
	DateOfBirth       *string  `json:"date_of_birth"` // YYYY-MM-DD string, stored as date
	HeightCM          *float64 `json:"height_cm"`
	WeightKG          *float64 `json:"weight_kg"`
	ActivityLevel     *string  `json:"activity_level"`
	Goals             *string  `json:"goals"`
	MedicalConditions *string  `json:"medical_conditions"`
	Injuries          *string  `json:"injuries"`
	Notes             *string  `json:"notes"`
}

// routineExerciseInput is one entry of the exercises array on routine create/update.
type routineExerciseInput struct {
	ExerciseID  int      `json:"exercise_id"`
	Sets        *int     `json:"sets"`
	Reps        *int     `json:"reps"`
	WeightKG    *float64 `json:"weight_kg"`
	RestSeconds *int     `json:"rest_seconds"`
	Notes       *string  `json:"notes"`
}

// progressEntryRequest is the request body for POST /api/clients/:id/progress
// and PUT /api/progress/:id.
type progressEntryRequest struct {
	Date       *string  `json:"date"`
	WeightKG   *float64 `json:"weight_kg"`
	BodyFatPct *float64 `json:"body_fat_pct"`
	ChestCM    *float64 `json:"chest_cm"`
	WaistCM    *float64 `json:"waist_cm"`
	HipsCM     *float64 `json:"hips_cm"`
	ArmCM      *float64 `json:"arm_cm"`
	ThighCM    *float64 `json:"thigh_cm"`
	Notes      *string  `json:"notes"`
}
