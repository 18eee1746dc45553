package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// canAccessClient reports whether the caller may read or write the client's
// data: admins always, trainers for their own clients, clients for themselves.
func canAccessClient(role string, callerID int, client user) bool {
	switch role {
	case roleAdmin:
		return true
	case roleTrainer:
		return client.TrainerID != nil && *client.TrainerID == callerID
	case roleClient:
		return client.ID == callerID
	}
	return false
}

// authorizeClient loads the client named by the :id path param and checks
// access. Clients the caller may not see are reported as not found.
func (h *Handler) authorizeClient(c *gin.Context) (user, bool) {
	clientID, ok := paramID(c, "id")
	if !ok {
		return user{}, false
	}
	role, callerID := c.GetString("role"), c.GetInt("user_id")
	if role == roleClient && clientID != callerID {
		apiError(c, http.StatusForbidden, "forbidden")
		return user{}, false
	}

	client, err := queryOne[user](h.db, c,
		"SELECT * FROM users WHERE id = @id AND role = 'client'",
		pgx.NamedArgs{"id": clientID})
	if err != nil {
		dbError(c, err, "client not found", "failed to fetch client")
		return user{}, false
	}
	if !canAccessClient(role, callerID, client) {
		apiError(c, http.StatusNotFound, "client not found")
		return user{}, false
	}
	return client, true
}

// invalidateTrainerStats drops the cached dashboards of the given trainers.
// Nil and repeated IDs are skipped.
func (h *Handler) invalidateTrainerStats(c *gin.Context, trainerIDs ...*int) {
	h.cache.invalidate(c, trainerStatsKeys(trainerIDs...)...)
}

func trainerStatsKeys(trainerIDs ...*int) []string {
	var keys []string
	seen := make(map[int]bool, len(trainerIDs))
	for _, id := range trainerIDs {
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		keys = append(keys, trainerStatsKey(*id))
	}
	return keys
}

// ownedClientCond returns a WHERE fragment limiting column (a client_id
// reference) to clients the caller may access.
func ownedClientCond(c *gin.Context, args pgx.NamedArgs, column string) string {
	switch c.GetString("role") {
	case roleAdmin:
		return "TRUE"
	case roleTrainer:
		args["callerID"] = c.GetInt("user_id")
		return column + " IN (SELECT id FROM users WHERE role = 'client' AND trainer_id = @callerID)"
	default:
		args["callerID"] = c.GetInt("user_id")
		return column + " = @callerID"
	}
}
