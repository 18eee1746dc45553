package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const minimalSeed = `
trainers:
  - name: Tess
    email: "  Tess@Example.com "
    password: password123
    clients:
      - name: Carl
        email: CARL@example.com
        password: password123
    exercises:
      - name: Squat
        difficulty: beginner
    routines:
      - name: Legs
        exercises:
          - exercise: Squat
            sets: 5
            reps: 5
        assign:
          - client: carl@EXAMPLE.com
            start_date: "2026-01-05"
`

func TestParseSeed_NormalizesEmails(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(minimalSeed))
	require.NoError(t, err)

	tr := seed.Trainers[0]
	assert.Equal(t, "tess@example.com", tr.Email)
	assert.Equal(t, "carl@example.com", tr.Clients[0].Email)

	want := []seedAssignment{{Client: "carl@example.com", StartDate: "2026-01-05"}}
	if diff := cmp.Diff(want, tr.Routines[0].Assign); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSeed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(string) string
		wantErr string
	}{
		{
			name:    "unknown key",
			edit:    func(s string) string { return strings.Replace(s, "name: Tess", "nmae: Tess", 1) },
			wantErr: "parse seed file",
		},
		{
			name:    "short password",
			edit:    func(s string) string { return strings.Replace(s, "password: password123", "password: short", 1) },
			wantErr: "trainers[0]: password must be at least 8 characters",
		},
		{
			name:    "undefined exercise",
			edit:    func(s string) string { return strings.Replace(s, "exercise: Squat", "exercise: Deadlift", 1) },
			wantErr: `exercise "Deadlift" is not defined`,
		},
		{
			name:    "assign to stranger",
			edit:    func(s string) string { return strings.Replace(s, "client: carl@EXAMPLE.com", "client: nobody@example.com", 1) },
			wantErr: "nobody@example.com is not a client of this trainer",
		},
		{
			name:    "bad difficulty",
			edit:    func(s string) string { return strings.Replace(s, "difficulty: beginner", "difficulty: easy", 1) },
			wantErr: `unknown difficulty "easy"`,
		},
		{
			name:    "duplicate email",
			edit:    func(s string) string { return strings.Replace(s, "CARL@example.com", "tess@example.com", 1) },
			wantErr: "duplicate email tess@example.com",
		},
		{
			name:    "end before start",
			edit:    func(s string) string { return s + "            end_date: \"2026-01-01\"\n" },
			wantErr: "end_date must be a date on or after start_date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed(strings.NewReader(tt.edit(minimalSeed)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSeed_Empty(t *testing.T) {
	_, err := parseSeed(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, err = parseSeed(strings.NewReader("trainers: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trainers")
}

func TestParseSeed_ExampleFileIsValid(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "seed", "example.yaml"))
	require.NoError(t, err)
	defer f.Close()

	seed, err := parseSeed(f)
	require.NoError(t, err)
	require.Len(t, seed.Trainers, 1)
	assert.Len(t, seed.Trainers[0].Clients, 2)
	assert.Len(t, seed.Trainers[0].Routines[0].Exercises, 3)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 3, orDefault(0, 3))
	assert.Equal(t, 5, orDefault(5, 3))
}

func TestSeedPasswordHash(t *testing.T) {
	stored, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	kept, err := seedPasswordHash(string(stored), "password123")
	require.NoError(t, err)
	assert.Equal(t, string(stored), kept)

	changed, err := seedPasswordHash(string(stored), "new-password")
	require.NoError(t, err)
	assert.NotEqual(t, string(stored), changed)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(changed), []byte("new-password")))

	fresh, err := seedPasswordHash("", "password123")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(fresh), []byte("password123")))
}
