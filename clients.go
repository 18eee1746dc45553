package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// clientScope returns the WHERE fragment restricting clients to the caller's
// trainer, or no restriction for admins.
func clientScope(c *gin.Context, args pgx.NamedArgs) string {
	if c.GetString("role") == roleAdmin {
		return "role = 'client'"
	}
	args["trainerID"] = c.GetInt("user_id")
	return "role = 'client' AND trainer_id = @trainerID"
}

// listClients returns the caller's clients, newest first.
// GET /api/clients?page=&limit=&q=. Admins see every client.
func (h *Handler) listClients(c *gin.Context) {
	p, ok := parsePageParams(c)
	if !ok {
		return
	}

	args := pgx.NamedArgs{"limit": p.Limit, "offset": p.offset()}
	where := clientScope(c, args)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		where += " AND (name ILIKE @q OR email ILIKE @q)"
		args["q"] = "%" + q + "%"
	}

	total, err := queryCount(h.db, c, "SELECT COUNT(*) FROM users WHERE "+where, args)
	if err != nil {
		dbError(c, err, "clients not found", "failed to count clients")
		return
	}
	clients, err := queryMany[user](h.db, c,
		"SELECT * FROM users WHERE "+where+" ORDER BY created_at DESC, id DESC LIMIT @limit OFFSET @offset",
		args)
	if err != nil {
		dbError(c, err, "clients not found", "failed to fetch clients")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(clients, p, total))
}

// createClientRequest is the request body for POST /api/clients.
type createClientRequest struct {
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Password  string               `json:"password"`
	TrainerID *int                 `json:"trainer_id"` // admin only
	Profile   *patchProfileRequest `json:"profile"`
}

// createClientResponse returns the temporary password once when the server generated it.
type createClientResponse struct {
	Client            clientDetail `json:"client"`
	TemporaryPassword string       `json:"temporary_password,omitempty"`
}

// temporaryPassword returns a random 12-character password.
func temporaryPassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// validateCreateClient normalizes and checks the body, returning a message on failure.
func validateCreateClient(body *createClientRequest, role string) string {
	body.Name = strings.TrimSpace(body.Name)
	body.Email = normalizeEmail(body.Email)
	if body.Name == "" {
		return "name is required"
	}
	if !validEmail(body.Email) {
		return "a valid email is required"
	}
	if body.Password != "" && len(body.Password) < minPasswordLength {
		return "password must be at least 8 characters"
	}
	if body.TrainerID != nil && role != roleAdmin {
		return "only admins may set trainer_id"
	}
	return ""
}

// createClient creates a client account managed by the calling trainer.
// POST /api/clients. Generates a temporary password when none is supplied.
func (h *Handler) createClient(c *gin.Context) {
	var body createClientRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	role := c.GetString("role")
	if msg := validateCreateClient(&body, role); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	var setClauses []string
	var profileArgs pgx.NamedArgs
	if body.Profile != nil {
		var msg string
		setClauses, profileArgs, msg = profileSetClauses(*body.Profile)
		if msg != "" {
			apiError(c, http.StatusBadRequest, msg)
			return
		}
	}

	trainerID := body.TrainerID
	if role == roleTrainer {
		id := c.GetInt("user_id")
		trainerID = &id
	}

	password, generated := body.Password, ""
	if password == "" {
		password = temporaryPassword()
		generated = password
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to hash password")
		return
	}

	var detail clientDetail
	err = withTx(c, h.db, func(tx pgx.Tx) error {
		u, err := queryOne[user](tx, c,
			`INSERT INTO users (name, email, password, role, trainer_id)
			 SELECT @name, @email, @password, 'client', @trainerID::int
			 WHERE @trainerID::int IS NULL
			    OR EXISTS (SELECT 1 FROM users WHERE id = @trainerID::int AND role = 'trainer')
			 RETURNING *`,
			pgx.NamedArgs{"name": body.Name, "email": body.Email, "password": string(hash), "trainerID": trainerID})
		if err != nil {
			return err
		}
		detail.user = u

		var p clientProfile
		if len(setClauses) > 0 {
			p, err = applyProfileUpdate(tx, c, u.ID, setClauses, profileArgs)
		} else {
			p, err = queryOne[clientProfile](tx, c,
				"INSERT INTO client_profiles (user_id) VALUES (@userID) RETURNING *",
				pgx.NamedArgs{"userID": u.ID})
		}
		if err != nil {
			return err
		}
		populateBodyMetrics(&p, time.Now())
		detail.Profile = &p
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			apiError(c, http.StatusConflict, "email already registered")
			return
		}
		dbError(c, err, "trainer not found", "failed to create client")
		return
	}

	h.invalidateTrainerStats(c, trainerID)
	c.JSON(http.StatusCreated, createClientResponse{Client: detail, TemporaryPassword: generated})
}

// getClient returns the client with profile and computed body metrics.
// GET /api/clients/:id. Accessible to the client, their trainer and admins.
func (h *Handler) getClient(c *gin.Context) {
	client, ok := h.authorizeClient(c)
	if !ok {
		return
	}

	detail := clientDetail{user: client}
	p, err := queryOne[clientProfile](h.db, c,
		"SELECT * FROM client_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": client.ID})
	switch {
	case err == nil:
		populateBodyMetrics(&p, time.Now())
		detail.Profile = &p
	case !errors.Is(err, pgx.ErrNoRows):
		dbError(c, err, "profile not found", "failed to fetch profile")
		return
	}

	c.JSON(http.StatusOK, detail)
}

// updateClient changes a client's name or email.
// PUT /api/clients/:id. Uses COALESCE so omitted fields keep their current value.
func (h *Handler) updateClient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name != nil {
		trimmed := strings.TrimSpace(*body.Name)
		if trimmed == "" {
			apiError(c, http.StatusBadRequest, "name must not be empty")
			return
		}
		body.Name = &trimmed
	}
	if body.Email != nil {
		email := normalizeEmail(*body.Email)
		if !validEmail(email) {
			apiError(c, http.StatusBadRequest, "a valid email is required")
			return
		}
		body.Email = &email
	}

	args := pgx.NamedArgs{"id": id, "name": body.Name, "email": body.Email}
	where := clientScope(c, args)
	u, err := queryOne[user](h.db, c,
		`UPDATE users SET
			name       = COALESCE(@name, name),
			email      = COALESCE(@email, email),
			updated_at = now()
		 WHERE id = @id AND `+where+`
		 RETURNING *`, args)
	if err != nil {
		if isUniqueViolation(err) {
			apiError(c, http.StatusConflict, "email already registered")
			return
		}
		dbError(c, err, "client not found", "failed to update client")
		return
	}

	c.JSON(http.StatusOK, u)
}

// deleteClient removes a client account and everything attached to it.
// DELETE /api/clients/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteClient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	args := pgx.NamedArgs{"id": id}
	where := clientScope(c, args)
	u, err := queryOne[user](h.db, c,
		"DELETE FROM users WHERE id = @id AND "+where+" RETURNING *", args)
	if err != nil {
		dbError(c, err, "client not found", "failed to delete client")
		return
	}

	h.invalidateTrainerStats(c, u.TrainerID)
	c.Status(http.StatusNoContent)
}
