package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a pre-computed bcrypt hash used when a login email isn't found.
// Running bcrypt against it (instead of returning early) keeps response time
// constant, preventing timing-based account enumeration.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)

const minPasswordLength = 8

// claims is the JWT payload. ID (jti) identifies the token for revocation.
type claims struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// issueToken signs an HS256 token for u valid for ttl.
func issueToken(u user, secret string, ttl time.Duration, now time.Time) (string, error) {
	cl := claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(u.ID),
			Issuer:    "trainfit",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte(secret))
}

// parseToken verifies signature, algorithm and expiry.
func parseToken(tokenString, secret string) (*claims, error) {
	cl := &claims{}
	_, err := jwt.ParseWithClaims(tokenString, cl, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer("trainfit"))
	if err != nil {
		return nil, err
	}
	if cl.UserID <= 0 || !validRoles[cl.Role] {
		return nil, errors.New("token has invalid claims")
	}
	return cl, nil
}

// tokenFromRequest reads the bearer token, falling back to the auth cookie.
func (h *Handler) tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(h.cfg.CookieName); err == nil {
		return cookie
	}
	return ""
}

func (h *Handler) setAuthCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token, maxAge, "/", "", h.cfg.CookieSecure, true)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// authResponse is returned by register and login.
type authResponse struct {
	Token string `json:"token"`
	User  user   `json:"user"`
}

func (h *Handler) respondWithToken(c *gin.Context, status int, u user) {
	token, err := issueToken(u, h.cfg.JWTSecret, h.cfg.JWTTTL, time.Now())
	if err != nil {
		logger.Error("sign token failed", zap.Int("user_id", u.ID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to issue token")
		return
	}
	h.setAuthCookie(c, token, int(h.cfg.JWTTTL.Seconds()))
	c.JSON(status, authResponse{Token: token, User: u})
}

// register creates a trainer or client account and logs it in.
// POST /api/auth/register (public). Admin accounts are created with the CLI.
func (h *Handler) register(c *gin.Context) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	body.Email = normalizeEmail(body.Email)
	if body.Role == "" {
		body.Role = roleClient
	}
	if body.Name == "" {
		apiError(c, http.StatusBadRequest, "name is required")
		return
	}
	if !validEmail(body.Email) {
		apiError(c, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(body.Password) < minPasswordLength {
		apiError(c, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if body.Role != roleTrainer && body.Role != roleClient {
		apiError(c, http.StatusBadRequest, "role must be one of: trainer, client")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to hash password")
		return
	}

	var u user
	err = withTx(c, h.db, func(tx pgx.Tx) error {
		var err error
		u, err = queryOne[user](tx, c,
			`INSERT INTO users (name, email, password, role)
			 VALUES (@name, @email, @password, @role)
			 RETURNING *`,
			pgx.NamedArgs{"name": body.Name, "email": body.Email, "password": string(hash), "role": body.Role})
		if err != nil {
			return err
		}
		if u.Role == roleClient {
			_, err = tx.Exec(c, "INSERT INTO client_profiles (user_id) VALUES (@userID)", pgx.NamedArgs{"userID": u.ID})
		}
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			apiError(c, http.StatusConflict, "email already registered")
			return
		}
		dbError(c, err, "user not found", "failed to register")
		return
	}

	h.respondWithToken(c, http.StatusCreated, u)
}

// login verifies email/password and returns a signed token, also set as a cookie.
// POST /api/auth/login (public, no auth required).
func (h *Handler) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	u, lookupErr := queryOne[user](h.db, c,
		"SELECT * FROM users WHERE email = @email",
		pgx.NamedArgs{"email": normalizeEmail(body.Email)})

	// Always run bcrypt to keep response time constant regardless of whether the
	// email was found. This prevents timing-based account enumeration.
	hashToCheck := string(dummyHash)
	if lookupErr == nil {
		hashToCheck = u.Password
	}
	compareErr := bcrypt.CompareHashAndPassword([]byte(hashToCheck), []byte(body.Password))

	if lookupErr != nil && !errors.Is(lookupErr, pgx.ErrNoRows) {
		apiError(c, http.StatusInternalServerError, "failed to log in")
		return
	}
	if lookupErr != nil || compareErr != nil {
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondWithToken(c, http.StatusOK, u)
}

// logout clears the auth cookie and revokes the current token when Redis is available.
// POST /api/auth/logout.
func (h *Handler) logout(c *gin.Context) {
	if exp, ok := c.Get("token_exp"); ok {
		if err := h.cache.revokeToken(c, c.GetString("jti"), exp.(time.Time)); err != nil {
			logger.Warn("token revocation failed", zap.Int("user_id", c.GetInt("user_id")), zap.Error(err))
		}
	}
	h.setAuthCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// me returns the authenticated user.
// GET /api/auth/me.
func (h *Handler) me(c *gin.Context) {
	u, err := queryOne[user](h.db, c,
		"SELECT * FROM users WHERE id = @id",
		pgx.NamedArgs{"id": c.GetInt("user_id")})
	if err != nil {
		dbError(c, err, "user not found", "failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, u)
}

// changePassword replaces the password after verifying the current one.
// PUT /api/auth/password.
func (h *Handler) changePassword(c *gin.Context) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.NewPassword) < minPasswordLength {
		apiError(c, http.StatusBadRequest, "new_password must be at least 8 characters")
		return
	}

	userID := c.GetInt("user_id")
	u, err := queryOne[user](h.db, c,
		"SELECT * FROM users WHERE id = @id", pgx.NamedArgs{"id": userID})
	if err != nil {
		dbError(c, err, "user not found", "failed to fetch user")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(body.CurrentPassword)) != nil {
		apiError(c, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if _, err := h.db.Exec(c,
		"UPDATE users SET password = @password, updated_at = now() WHERE id = @id",
		pgx.NamedArgs{"password": string(hash), "id": userID}); err != nil {
		dbError(c, err, "user not found", "failed to update password")
		return
	}

	c.Status(http.StatusNoContent)
}

// authMiddleware validates the token and sets user_id, role, jti and
// token_exp on the context.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := h.tokenFromRequest(c)
		if token == "" {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		cl, err := parseToken(token, h.cfg.JWTSecret)
		if err != nil {
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		// An unreachable Redis fails open: tokens still expire on their own.
		revoked, err := h.cache.isTokenRevoked(c, cl.ID)
		if err != nil {
			logger.Warn("revocation check failed", zap.Error(err))
		}
		if revoked {
			apiError(c, http.StatusUnauthorized, "token has been revoked")
			c.Abort()
			return
		}

		c.Set("user_id", cl.UserID)
		c.Set("role", cl.Role)
		c.Set("jti", cl.ID)
		if cl.ExpiresAt != nil {
			c.Set("token_exp", cl.ExpiresAt.Time)
		}
		c.Next()
	}
}

// requireRole rejects requests whose role is not one of roles.
func requireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if !allowed[c.GetString("role")] {
			apiError(c, http.StatusForbidden, "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}
