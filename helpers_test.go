package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-bytes"

// errNoDatabase is what stubDB returns for every statement.
var errNoDatabase = errors.New("stub: no database")

// stubDB satisfies dbPool without a server. Every statement fails, so tests
// only reach validation paths or assert the generic 500.
type stubDB struct {
	pingErr error
}

func (s stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNoDatabase
}

func (s stubDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (s stubDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoDatabase
}

func (s stubDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, errNoDatabase
}

func (s stubDB) Ping(context.Context) error { return s.pingErr }

type errRow struct{}

func (errRow) Scan(...any) error { return errNoDatabase }

func testConfig() config {
	return config{
		Env:                "development",
		JWTSecret:          testSecret,
		JWTTTL:             time.Hour,
		CookieName:         "trainfit_token",
		StatsCacheTTL:      time.Minute,
		LoginRatePerMinute: 1000,
	}
}

// newTestServer builds the full router over stubDB with caching disabled.
func newTestServer(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	return newTestServerWith(t, stubDB{}, &cacheStore{})
}

func newTestServerWith(t *testing.T, db dbPool, cache *cacheStore) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &Handler{db: db, cache: cache, cfg: testConfig()}
	return h.newRouter(newMetrics(), newIPRateLimiter(1000)), h
}

// tokenFor signs a token the test server accepts.
func tokenFor(t *testing.T, id int, role string) string {
	t.Helper()
	token, err := issueToken(user{ID: id, Role: role}, testSecret, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

// newJSONRequest builds a request carrying body (if any) as JSON.
func newJSONRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// doRequest sends body (if any) as JSON with an optional bearer token.
func doRequest(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := newJSONRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(router, req)
}

// errorMessage decodes the {"error": ...} body.
func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

// testContext returns a gin context for a GET of target.
func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func ptr[T any](v T) *T { return &v }

func mustDate(s string) DateOnly {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return DateOnly{t}
}

// recordingTx records the statements run inside a transaction. Exec succeeds
// unless execErr is set; Query always fails, ending the transaction there.
type recordingTx struct {
	pgx.Tx
	execErr    error
	statements []string
	committed  bool
	rolledBack bool
}

func (tx *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.statements = append(tx.statements, sql)
	if tx.execErr != nil {
		return pgconn.CommandTag{}, tx.execErr
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (tx *recordingTx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	tx.statements = append(tx.statements, sql)
	return nil, errNoDatabase
}

func (tx *recordingTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

// recordingDB hands out tx from Begin; everything else behaves like stubDB.
type recordingDB struct {
	stubDB
	tx *recordingTx
}

func (db recordingDB) Begin(context.Context) (pgx.Tx, error) { return db.tx, nil }
