package eligibility

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository/memory"
)

func TestUserChecker(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	users := []*models.User{
		{ID: uuid.New(), Email: "ok@x", Role: models.RoleWorker, IsVerified: true, IsActive: true},
		{ID: uuid.New(), Email: "unverified@x", Role: models.RoleWorker, IsActive: true},
		{ID: uuid.New(), Email: "suspended@x", Role: models.RoleWorker, IsVerified: true},
		{ID: uuid.New(), Email: "client@x", Role: models.RoleClient, IsVerified: true, IsActive: true},
	}
	for _, u := range users {
		require.NoError(t, store.Users().Create(ctx, u))
	}
	c := NewUserChecker(store.Users())

	want := []bool{true, false, false, false}
	for i, u := range users {
		got, err := c.IsVerifiedAndActive(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, want[i], got, u.Email)
	}

	got, err := c.IsVerifiedAndActive(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, got)
}
