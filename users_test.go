package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHandlers_Validation(t *testing.T) {
	router, _ := newTestServer(t)
	admin := tokenFor(t, 1, roleAdmin)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"list bad role", http.MethodGet, "/api/users?role=owner", "", http.StatusBadRequest, "role must be one of: admin, trainer, client"},
		{"patch bad role", http.MethodPatch, "/api/users/2", `{"role":"owner"}`, http.StatusBadRequest, "role must be one of: admin, trainer, client"},
		{"demote self", http.MethodPatch, "/api/users/1", `{"role":"trainer"}`, http.StatusBadRequest, "cannot remove your own admin role"},
		{"patch nothing", http.MethodPatch, "/api/users/2", `{}`, http.StatusBadRequest, "no fields to update"},
		{"patch blank name", http.MethodPatch, "/api/users/2", `{"name":"  "}`, http.StatusBadRequest, "name must not be empty"},
		{"delete self", http.MethodDelete, "/api/users/1", "", http.StatusBadRequest, "cannot delete your own account"},
		{"get bad id", http.MethodGet, "/api/users/abc", "", http.StatusBadRequest, "invalid id"},
		{"list db failure", http.MethodGet, "/api/users", "", http.StatusInternalServerError, "failed to count users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, admin, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, w))
		})
	}
}

func TestRemoveUser_DeletesRoutinesFirst(t *testing.T) {
	tx := &recordingTx{}
	_, err := removeUser(tx, context.Background(), 7)
	assert.ErrorIs(t, err, errNoDatabase)
	assert.Equal(t, []string{
		"DELETE FROM routines WHERE trainer_id = @id",
		"DELETE FROM users WHERE id = @id RETURNING *",
	}, tx.statements)
}

func TestRemoveUser_StopsWhenRoutineDeleteFails(t *testing.T) {
	boom := errors.New("boom")
	tx := &recordingTx{execErr: boom}
	_, err := removeUser(tx, context.Background(), 7)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, tx.statements, 1)
}

func TestDeleteUser_RunsInTransaction(t *testing.T) {
	tx := &recordingTx{}
	router, _ := newTestServerWith(t, recordingDB{tx: tx}, &cacheStore{})

	w := doRequest(router, http.MethodDelete, "/api/users/7", tokenFor(t, 1, roleAdmin), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to delete user", errorMessage(t, w))
	require.Len(t, tx.statements, 2)
	assert.Contains(t, tx.statements[0], "DELETE FROM routines")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestCheckTrainerLink(t *testing.T) {
	client := user{ID: 2, Role: roleClient}
	trainer := user{ID: 3, Role: roleTrainer}

	assert.NoError(t, checkTrainerLink(client, nil))
	assert.NoError(t, checkTrainerLink(trainer, ptr(roleClient)))
	assert.ErrorIs(t, checkTrainerLink(trainer, nil), errTrainerOnNonClient)
	assert.ErrorIs(t, checkTrainerLink(client, ptr(roleAdmin)), errTrainerOnNonClient)
}

func TestPatchUser_LocksTargetBeforeLinking(t *testing.T) {
	tx := &recordingTx{}
	router, _ := newTestServerWith(t, recordingDB{tx: tx}, &cacheStore{})

	w := doRequest(router, http.MethodPatch, "/api/users/2", tokenFor(t, 1, roleAdmin), `{"trainer_id":3}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to update user", errorMessage(t, w))
	assert.Equal(t, []string{"SELECT * FROM users WHERE id = @id FOR UPDATE"}, tx.statements)
	assert.True(t, tx.rolledBack)
}
