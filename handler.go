package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// dbPool is the subset of *pgxpool.Pool the handlers use.
type dbPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// execQuerier adds Exec for helpers that write.
type execQuerier interface {
	querier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Handler holds shared dependencies (db pool, cache, config) for all route handlers.
type Handler struct {
	db            dbPool
	cache         *cacheStore
	cfg           config
	openAIBaseURL string // Base URL for OpenAI API (overridable for tests)
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
func queryOne[T any](q querier, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		logger.Error("query failed", zap.String("op", "queryOne"), zap.Error(err))
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		logger.Error("scan failed", zap.String("op", "queryOne"), zap.Error(err))
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
// The result is never nil so JSON encodes an empty list as [].
func queryMany[T any](q querier, ctx context.Context, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		logger.Error("query failed", zap.String("op", "queryMany"), zap.Error(err))
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		logger.Error("scan failed", zap.String("op", "queryMany"), zap.Error(err))
		return nil, err
	}
	if results == nil {
		results = []T{}
	}
	return results, nil
}

// queryCount runs a SELECT COUNT(*) style query returning one integer.
func queryCount(q querier, ctx context.Context, sql string, args pgx.NamedArgs) (int, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		return 0, err
	}
	return pgx.CollectOneRow(rows, pgx.RowTo[int])
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db dbPool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

/* ─── Error helpers ───────────────────────────────────────────────────── */

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool     { return pgErrorCode(err) == "23505" }
func isForeignKeyViolation(err error) bool { return pgErrorCode(err) == "23503" }
func isCheckViolation(err error) bool      { return pgErrorCode(err) == "23514" }

// dbError maps a database error to a response: missing rows become 404,
// constraint violations 409/400, and anything else is logged and hidden behind 500.
func dbError(c *gin.Context, err error, notFound, failed string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		apiError(c, http.StatusNotFound, notFound)
	case isUniqueViolation(err):
		apiError(c, http.StatusConflict, "already exists")
	case isForeignKeyViolation(err):
		apiError(c, http.StatusBadRequest, "referenced record does not exist or is still in use")
	default:
		logger.Error(failed, zap.String("route", c.FullPath()), zap.Error(err))
		apiError(c, http.StatusInternalServerError, failed)
	}
}

/* ─── Request helpers ─────────────────────────────────────────────────── */

// paramID parses a positive integer path parameter, writing a 400 on failure.
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// validDate reports whether s is a YYYY-MM-DD date.
func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// dateRange reads optional start/end query params. Both must be valid dates
// when present and start must not be after end.
func dateRange(c *gin.Context) (start, end *string, ok bool) {
	if s := c.Query("start"); s != "" {
		if !validDate(s) {
			apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
			return nil, nil, false
		}
		start = &s
	}
	if e := c.Query("end"); e != "" {
		if !validDate(e) {
			apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
			return nil, nil, false
		}
		end = &e
	}
	if start != nil && end != nil && *start > *end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return nil, nil, false
	}
	return start, end, true
}

// utcNow is the API's clock. Calendar dates (today, week starts, streaks) are
// UTC days, matching CURRENT_DATE on sessions opened by newPoolConfig.
func utcNow() time.Time { return time.Now().UTC() }

func today() string { return utcNow().Format(dateLayout) }

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool. We use a pool (not a single conn) because
// hosted Postgres closes idle connections after a few minutes.
func getDBPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pcfg, err := newPoolConfig(dbURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

func newPoolConfig(dbURL string) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from server-side prepared statement caches after schema changes.
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	return pcfg, nil
}

// healthz pings the database.
// GET /healthz (public).
func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logger.Warn("health check failed", zap.Error(err))
		apiError(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// newRouter wires middleware and registers all routes.
func (h *Handler) newRouter(m *metrics, authLimiter *ipRateLimiter) *gin.Engine {
	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery(), requestLogger(logger), m.middleware())

	router.GET("/healthz", h.healthz)
	router.GET("/metrics", m.handler())
	h.registerRoutes(router, authLimiter)
	return router
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine, authLimiter *ipRateLimiter) {
	// Public routes
	public := router.Group("/api/auth", authLimiter.middleware())
	public.POST("/register", h.register)
	public.POST("/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.POST("/auth/logout", h.logout)
	api.GET("/auth/me", h.me)
	api.PUT("/auth/password", h.changePassword)

	admin := api.Group("", requireRole(roleAdmin))
	admin.GET("/users", h.listUsers)
	admin.GET("/users/:id", h.getUser)
	admin.PATCH("/users/:id", h.patchUser)
	admin.DELETE("/users/:id", h.deleteUser)

	staff := api.Group("", requireRole(roleTrainer, roleAdmin))
	staff.GET("/clients", h.listClients)
	staff.POST("/clients", h.createClient)
	staff.PUT("/clients/:id", h.updateClient)
	staff.DELETE("/clients/:id", h.deleteClient)

	// Client self-service or owning trainer; access checked per request.
	api.GET("/clients/:id", h.getClient)
	api.GET("/clients/:id/profile", h.getClientProfile)
	api.PATCH("/clients/:id/profile", h.patchClientProfile)

	trainer := api.Group("", requireRole(roleTrainer))
	trainer.GET("/exercises", h.listExercises)
	trainer.POST("/exercises", h.createExercise)
	trainer.POST("/exercises/suggest", h.suggestExercise)
	trainer.GET("/exercises/:id", h.getExercise)
	trainer.PUT("/exercises/:id", h.updateExercise)
	trainer.DELETE("/exercises/:id", h.deleteExercise)

	api.GET("/routines", requireRole(roleTrainer, roleClient), h.listRoutines)
	api.GET("/routines/:id", requireRole(roleTrainer, roleClient), h.getRoutine)
	trainer.POST("/routines", h.createRoutine)
	trainer.PUT("/routines/:id", h.updateRoutine)
	trainer.DELETE("/routines/:id", h.deleteRoutine)

	trainer.POST("/routines/:id/assign", h.assignRoutine)
	trainer.PATCH("/assignments/:id", h.patchAssignment)
	trainer.DELETE("/assignments/:id", h.deleteAssignment)
	api.GET("/clients/:id/assignments", h.listClientAssignments)

	api.GET("/clients/:id/progress", h.listProgress)
	api.POST("/clients/:id/progress", h.upsertProgress)
	api.GET("/clients/:id/progress/summary", h.getProgressSummary)
	api.PUT("/progress/:id", h.updateProgress)
	api.DELETE("/progress/:id", h.deleteProgress)

	api.GET("/clients/:id/workouts", h.listWorkouts)
	api.POST("/clients/:id/workouts", h.createWorkout)
	api.DELETE("/workouts/:id", h.deleteWorkout)

	trainer.GET("/dashboard/trainer", h.getTrainerDashboard)
	api.GET("/dashboard/client", requireRole(roleClient), h.getClientDashboard)
}
