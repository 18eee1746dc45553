package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// listUsers returns all users, optionally filtered by role or a name/email search.
// GET /api/users?page=&limit=&role=&q= (admin).
func (h *Handler) listUsers(c *gin.Context) {
	p, ok := parsePageParams(c)
	if !ok {
		return
	}

	conds := []string{"TRUE"}
	args := pgx.NamedArgs{"limit": p.Limit, "offset": p.offset()}
	if role := c.Query("role"); role != "" {
		if !validRoles[role] {
			apiError(c, http.StatusBadRequest, "role must be one of: admin, trainer, client")
			return
		}
		conds = append(conds, "role = @role")
		args["role"] = role
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		conds = append(conds, "(name ILIKE @q OR email ILIKE @q)")
		args["q"] = "%" + q + "%"
	}
	where := strings.Join(conds, " AND ")

	total, err := queryCount(h.db, c, "SELECT COUNT(*) FROM users WHERE "+where, args)
	if err != nil {
		dbError(c, err, "users not found", "failed to count users")
		return
	}
	users, err := queryMany[user](h.db, c,
		"SELECT * FROM users WHERE "+where+" ORDER BY id LIMIT @limit OFFSET @offset", args)
	if err != nil {
		dbError(c, err, "users not found", "failed to fetch users")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(users, p, total))
}

// getUser returns one user by ID.
// GET /api/users/:id (admin).
func (h *Handler) getUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := queryOne[user](h.db, c, "SELECT * FROM users WHERE id = @id", pgx.NamedArgs{"id": id})
	if err != nil {
		dbError(c, err, "user not found", "failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, u)
}

// patchUser changes a user's name, role or trainer.
// PATCH /api/users/:id (admin). trainer_id = 0 unlinks the client from its trainer.
func (h *Handler) patchUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Name      *string `json:"name"`
		Role      *string `json:"role"`
		TrainerID *int    `json:"trainer_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Role != nil && !validRoles[*body.Role] {
		apiError(c, http.StatusBadRequest, "role must be one of: admin, trainer, client")
		return
	}
	if body.Role != nil && id == c.GetInt("user_id") && *body.Role != roleAdmin {
		apiError(c, http.StatusBadRequest, "cannot remove your own admin role")
		return
	}

	setClauses := []string{}
	args := pgx.NamedArgs{"id": id}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			apiError(c, http.StatusBadRequest, "name must not be empty")
			return
		}
		setClauses = append(setClauses, "name = @name")
		args["name"] = name
	}
	if body.Role != nil {
		setClauses = append(setClauses, "role = @role")
		args["role"] = *body.Role
	}
	if body.TrainerID != nil {
		if *body.TrainerID == 0 {
			setClauses = append(setClauses, "trainer_id = NULL")
		} else {
			setClauses = append(setClauses, "trainer_id = @trainerID")
			args["trainerID"] = *body.TrainerID
		}
	}
	if len(setClauses) == 0 {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}

	var before, updated user
	err := withTx(c, h.db, func(tx pgx.Tx) error {
		var err error
		before, err = queryOne[user](tx, c, "SELECT * FROM users WHERE id = @id FOR UPDATE", pgx.NamedArgs{"id": id})
		if err != nil {
			return err
		}
		if body.TrainerID != nil && *body.TrainerID != 0 {
			if err := checkTrainerLink(before, body.Role); err != nil {
				return err
			}
			n, err := queryCount(tx, c, "SELECT COUNT(*) FROM users WHERE id = @trainerID AND role = 'trainer'", args)
			if err != nil {
				return err
			}
			if n == 0 {
				return errNotATrainer
			}
		}
		updated, err = queryOne[user](tx, c,
			"UPDATE users SET "+strings.Join(setClauses, ", ")+", updated_at = now() WHERE id = @id RETURNING *",
			args)
		return err
	})
	switch {
	case errors.Is(err, errTrainerOnNonClient):
		apiError(c, http.StatusBadRequest, "trainer_id can only be set on clients")
		return
	case errors.Is(err, errNotATrainer):
		apiError(c, http.StatusBadRequest, "trainer_id must reference a trainer")
		return
	case err != nil:
		dbError(c, err, "user not found", "failed to update user")
		return
	}

	h.invalidateTrainerStats(c, before.TrainerID, updated.TrainerID)
	c.JSON(http.StatusOK, updated)
}

var (
	errTrainerOnNonClient = errors.New("trainer_id on non-client")
	errNotATrainer        = errors.New("trainer_id is not a trainer")
)

// checkTrainerLink reports whether target may be linked to a trainer once
// newRole (if set) is applied. Only clients have trainers.
func checkTrainerLink(target user, newRole *string) error {
	role := target.Role
	if newRole != nil {
		role = *newRole
	}
	if role != roleClient {
		return errTrainerOnNonClient
	}
	return nil
}

// deleteUser removes any account except the caller's own.
// DELETE /api/users/:id (admin).
func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if id == c.GetInt("user_id") {
		apiError(c, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	var u user
	err := withTx(c, h.db, func(tx pgx.Tx) error {
		var err error
		u, err = removeUser(tx, c, id)
		return err
	})
	if err != nil {
		dbError(c, err, "user not found", "failed to delete user")
		return
	}

	h.invalidateTrainerStats(c, u.TrainerID, &u.ID)
	c.Status(http.StatusNoContent)
}

// removeUser deletes a user and everything it owns. A trainer's routines are
// deleted first: routine_exercises restricts exercise deletes, and the users
// cascade may reach exercises before routines.
func removeUser(q execQuerier, ctx context.Context, id int) (user, error) {
	args := pgx.NamedArgs{"id": id}
	if _, err := q.Exec(ctx, "DELETE FROM routines WHERE trainer_id = @id", args); err != nil {
		return user{}, err
	}
	return queryOne[user](q, ctx, "DELETE FROM users WHERE id = @id RETURNING *", args)
}
