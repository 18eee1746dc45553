package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// seedFile is the top level of a seed YAML document. Trainers own everything
// nested under them; clients are linked to the trainer that lists them.
type seedFile struct {
	Trainers []seedTrainer `yaml:"trainers"`
}

type seedTrainer struct {
	Name      string         `yaml:"name"`
	Email     string         `yaml:"email"`
	Password  string         `yaml:"password"`
	Clients   []seedClient   `yaml:"clients"`
	Exercises []seedExercise `yaml:"exercises"`
	Routines  []seedRoutine  `yaml:"routines"`
}

type seedClient struct {
	Name     string       `yaml:"name"`
	Email    string       `yaml:"email"`
	Password string       `yaml:"password"`
	Profile  *seedProfile `yaml:"profile"`
}

type seedProfile struct {
	Sex           *string  `yaml:"sex"`
	DateOfBirth   *string  `yaml:"date_of_birth"`
	HeightCM      *float64 `yaml:"height_cm"`
	WeightKG      *float64 `yaml:"weight_kg"`
	ActivityLevel *string  `yaml:"activity_level"`
	Goals         *string  `yaml:"goals"`
}

type seedExercise struct {
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
	MuscleGroup *string `yaml:"muscle_group"`
	Equipment   *string `yaml:"equipment"`
	Difficulty  *string `yaml:"difficulty"`
}

type seedRoutine struct {
	Name        string            `yaml:"name"`
	Description *string           `yaml:"description"`
	Exercises   []seedRoutineItem `yaml:"exercises"`
	Assign      []seedAssignment  `yaml:"assign"`
}

type seedRoutineItem struct {
	Exercise    string   `yaml:"exercise"`
	Sets        int      `yaml:"sets"`
	Reps        int      `yaml:"reps"`
	WeightKG    *float64 `yaml:"weight_kg"`
	RestSeconds int      `yaml:"rest_seconds"`
}

type seedAssignment struct {
	Client    string  `yaml:"client"`
	StartDate string  `yaml:"start_date"`
	EndDate   *string `yaml:"end_date"`
}

// seedResult counts what a seed run wrote.
type seedResult struct {
	Trainers    int
	Clients     int
	Exercises   int
	Routines    int
	Assignments int
}

var (
	seedPath   string
	seedDryRun bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert trainers, clients, exercises, routines and assignments from YAML",
	Long: `Reads a seed file and upserts its contents in one transaction.

Users are matched by email, exercises by (trainer, name), routines by
(trainer, name) and assignments by (routine, client, start_date), so running
the same file twice creates no duplicates. Existing rows are rewritten with
the file's values and get a new updated_at; a password that already matches
keeps its stored hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(seedPath)
		if err != nil {
			return fmt.Errorf("open seed file: %w", err)
		}
		defer f.Close()

		seed, err := parseSeed(f)
		if err != nil {
			return err
		}
		if seedDryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d trainer(s)\n", seedPath, len(seed.Trainers))
			return nil
		}

		return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
			var res seedResult
			err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
				var err error
				res, err = applySeed(ctx, tx, seed)
				return err
			})
			if err != nil {
				return err
			}
			logger.Info("seed applied", zap.String("file", seedPath), zap.Any("result", res))
			fmt.Fprintf(cmd.OutOrStdout(),
				"seeded %d trainer(s), %d client(s), %d exercise(s), %d routine(s), %d assignment(s)\n",
				res.Trainers, res.Clients, res.Exercises, res.Routines, res.Assignments)
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedPath, "file", "f", "", "Seed YAML file (required)")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Validate the file without writing")
	seedCmd.MarkFlagRequired("file")
}

// parseSeed decodes and validates a seed document. Unknown keys are rejected
// so typos do not silently drop data.
func parseSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

var (
	seedSexes        = map[string]bool{"male": true, "female": true}
	seedActivity     = map[string]bool{"sedentary": true, "light": true, "moderate": true, "active": true, "very_active": true}
	seedDifficulties = map[string]bool{"beginner": true, "intermediate": true, "advanced": true}
)

func validSeedDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// validate normalizes emails and checks every cross reference inside the file.
func (s *seedFile) validate() error {
	if len(s.Trainers) == 0 {
		return errors.New("seed file has no trainers")
	}
	emails := map[string]bool{}
	claim := func(where, email string) (string, error) {
		email = normalizeEmail(email)
		if email == "" {
			return "", fmt.Errorf("%s: email is required", where)
		}
		if emails[email] {
			return "", fmt.Errorf("%s: duplicate email %s", where, email)
		}
		emails[email] = true
		return email, nil
	}

	for i := range s.Trainers {
		t := &s.Trainers[i]
		where := fmt.Sprintf("trainers[%d]", i)
		var err error
		if t.Email, err = claim(where, t.Email); err != nil {
			return err
		}
		if t.Name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if len(t.Password) < minPasswordLength {
			return fmt.Errorf("%s: password must be at least %d characters", where, minPasswordLength)
		}

		clients := map[string]bool{}
		for j := range t.Clients {
			c := &t.Clients[j]
			cw := fmt.Sprintf("%s.clients[%d]", where, j)
			if c.Email, err = claim(cw, c.Email); err != nil {
				return err
			}
			if c.Name == "" {
				return fmt.Errorf("%s: name is required", cw)
			}
			if len(c.Password) < minPasswordLength {
				return fmt.Errorf("%s: password must be at least %d characters", cw, minPasswordLength)
			}
			if p := c.Profile; p != nil {
				switch {
				case p.Sex != nil && !seedSexes[*p.Sex]:
					return fmt.Errorf("%s.profile: unknown sex %q", cw, *p.Sex)
				case p.ActivityLevel != nil && !seedActivity[*p.ActivityLevel]:
					return fmt.Errorf("%s.profile: unknown activity_level %q", cw, *p.ActivityLevel)
				case p.DateOfBirth != nil && !validSeedDate(*p.DateOfBirth):
					return fmt.Errorf("%s.profile: invalid date_of_birth %q", cw, *p.DateOfBirth)
				}
			}
			clients[c.Email] = true
		}

		exercises := map[string]bool{}
		for j, e := range t.Exercises {
			ew := fmt.Sprintf("%s.exercises[%d]", where, j)
			if e.Name == "" {
				return fmt.Errorf("%s: name is required", ew)
			}
			if exercises[e.Name] {
				return fmt.Errorf("%s: duplicate exercise %q", ew, e.Name)
			}
			if e.Difficulty != nil && !seedDifficulties[*e.Difficulty] {
				return fmt.Errorf("%s: unknown difficulty %q", ew, *e.Difficulty)
			}
			exercises[e.Name] = true
		}

		routines := map[string]bool{}
		for j := range t.Routines {
			r := &t.Routines[j]
			rw := fmt.Sprintf("%s.routines[%d]", where, j)
			if r.Name == "" {
				return fmt.Errorf("%s: name is required", rw)
			}
			if routines[r.Name] {
				return fmt.Errorf("%s: duplicate routine %q", rw, r.Name)
			}
			routines[r.Name] = true
			for k, item := range r.Exercises {
				if !exercises[item.Exercise] {
					return fmt.Errorf("%s.exercises[%d]: exercise %q is not defined for this trainer", rw, k, item.Exercise)
				}
				if item.Sets < 0 || item.Reps < 0 || item.RestSeconds < 0 {
					return fmt.Errorf("%s.exercises[%d]: sets, reps and rest_seconds must not be negative", rw, k)
				}
			}
			for k := range r.Assign {
				a := &r.Assign[k]
				aw := fmt.Sprintf("%s.assign[%d]", rw, k)
				a.Client = normalizeEmail(a.Client)
				if !clients[a.Client] {
					return fmt.Errorf("%s: %s is not a client of this trainer", aw, a.Client)
				}
				if !validSeedDate(a.StartDate) {
					return fmt.Errorf("%s: invalid start_date %q", aw, a.StartDate)
				}
				if a.EndDate != nil && (!validSeedDate(*a.EndDate) || *a.EndDate < a.StartDate) {
					return fmt.Errorf("%s: end_date must be a date on or after start_date", aw)
				}
			}
		}
	}
	return nil
}

// orDefault returns v, or def when v is zero.
func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// upsertUser writes a user keyed by email and returns its id.
func upsertUser(ctx context.Context, tx pgx.Tx, name, email, password, role string, trainerID *int) (int, error) {
	var existing string
	err := tx.QueryRow(ctx, "SELECT password FROM users WHERE email = $1", email).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("look up user %s: %w", email, err)
	}
	hash, err := seedPasswordHash(existing, password)
	if err != nil {
		return 0, fmt.Errorf("hash password for %s: %w", email, err)
	}
	var id int
	err = tx.QueryRow(ctx,
		`INSERT INTO users (name, email, password, role, trainer_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name, password = EXCLUDED.password,
			role = EXCLUDED.role, trainer_id = EXCLUDED.trainer_id, updated_at = now()
		 RETURNING id`,
		name, email, hash, role, trainerID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user %s: %w", email, err)
	}
	return id, nil
}

// seedPasswordHash returns existing when it already verifies password, and a
// fresh bcrypt hash otherwise.
func seedPasswordHash(existing, password string) (string, error) {
	if existing != "" && bcrypt.CompareHashAndPassword([]byte(existing), []byte(password)) == nil {
		return existing, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// applySeed writes seed inside tx. The caller commits.
func applySeed(ctx context.Context, tx pgx.Tx, seed *seedFile) (seedResult, error) {
	var res seedResult
	for _, t := range seed.Trainers {
		trainerID, err := upsertUser(ctx, tx, t.Name, t.Email, t.Password, "trainer", nil)
		if err != nil {
			return res, err
		}
		res.Trainers++

		clientIDs := map[string]int{}
		for _, c := range t.Clients {
			id, err := upsertUser(ctx, tx, c.Name, c.Email, c.Password, "client", &trainerID)
			if err != nil {
				return res, err
			}
			var p seedProfile
			if c.Profile != nil {
				p = *c.Profile
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO client_profiles (user_id, sex, date_of_birth, height_cm, weight_kg, activity_level, goals)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (user_id) DO UPDATE SET
					sex            = COALESCE(EXCLUDED.sex, client_profiles.sex),
					date_of_birth  = COALESCE(EXCLUDED.date_of_birth, client_profiles.date_of_birth),
					height_cm      = COALESCE(EXCLUDED.height_cm, client_profiles.height_cm),
					weight_kg      = COALESCE(EXCLUDED.weight_kg, client_profiles.weight_kg),
					activity_level = COALESCE(EXCLUDED.activity_level, client_profiles.activity_level),
					goals          = COALESCE(EXCLUDED.goals, client_profiles.goals),
					updated_at     = now()`,
				id, p.Sex, p.DateOfBirth, p.HeightCM, p.WeightKG, p.ActivityLevel, p.Goals); err != nil {
				return res, fmt.Errorf("upsert profile for %s: %w", c.Email, err)
			}
			clientIDs[c.Email] = id
			res.Clients++
		}

		exerciseIDs := map[string]int{}
		for _, e := range t.Exercises {
			var id int
			err := tx.QueryRow(ctx,
				`INSERT INTO exercises (trainer_id, name, description, muscle_group, equipment, difficulty)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (trainer_id, name) DO UPDATE SET
					description = EXCLUDED.description, muscle_group = EXCLUDED.muscle_group,
					equipment = EXCLUDED.equipment, difficulty = EXCLUDED.difficulty, updated_at = now()
				 RETURNING id`,
				trainerID, e.Name, e.Description, e.MuscleGroup, e.Equipment, e.Difficulty).Scan(&id)
			if err != nil {
				return res, fmt.Errorf("upsert exercise %q: %w", e.Name, err)
			}
			exerciseIDs[e.Name] = id
			res.Exercises++
		}

		for _, r := range t.Routines {
			routineID, err := upsertRoutine(ctx, tx, trainerID, r)
			if err != nil {
				return res, err
			}
			for i, item := range r.Exercises {
				if _, err := tx.Exec(ctx,
					`INSERT INTO routine_exercises (routine_id, exercise_id, position, sets, reps, weight_kg, rest_seconds)
					 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					routineID, exerciseIDs[item.Exercise], i+1,
					orDefault(item.Sets, 3), orDefault(item.Reps, 10), item.WeightKG, orDefault(item.RestSeconds, 60)); err != nil {
					return res, fmt.Errorf("add %q to routine %q: %w", item.Exercise, r.Name, err)
				}
			}
			res.Routines++

			for _, a := range r.Assign {
				tag, err := tx.Exec(ctx,
					`INSERT INTO routine_assignments (routine_id, client_id, trainer_id, start_date, end_date)
					 SELECT $1, $2, $3, $4::date, $5::date
					 WHERE NOT EXISTS (
						SELECT 1 FROM routine_assignments
						WHERE routine_id = $1 AND client_id = $2 AND start_date = $4::date)`,
					routineID, clientIDs[a.Client], trainerID, a.StartDate, a.EndDate)
				if err != nil {
					return res, fmt.Errorf("assign routine %q to %s: %w", r.Name, a.Client, err)
				}
				res.Assignments += int(tag.RowsAffected())
			}
		}
	}
	return res, nil
}

// upsertRoutine finds the trainer's routine by name or creates it, and clears
// its exercise list so the caller can rewrite it.
func upsertRoutine(ctx context.Context, tx pgx.Tx, trainerID int, r seedRoutine) (int, error) {
	var id int
	err := tx.QueryRow(ctx,
		`UPDATE routines SET description = $3, updated_at = now()
		 WHERE trainer_id = $1 AND name = $2
		 RETURNING id`,
		trainerID, r.Name, r.Description).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx,
			"INSERT INTO routines (trainer_id, name, description) VALUES ($1, $2, $3) RETURNING id",
			trainerID, r.Name, r.Description).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("create routine %q: %w", r.Name, err)
		}
		return id, nil
	case err != nil:
		return 0, fmt.Errorf("update routine %q: %w", r.Name, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM routine_exercises WHERE routine_id = $1", id); err != nil {
		return 0, fmt.Errorf("clear routine %q: %w", r.Name, err)
	}
	return id, nil
}
