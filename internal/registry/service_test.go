package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/eligibility"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/repository/memory"
	"github.com/gighire/backend/internal/testutil"
)

func newUser(t *testing.T, store *memory.Store, role string, verified bool, at time.Time) *models.User {
	t.Helper()
	u := &models.User{
		ID: uuid.New(), Email: uuid.NewString() + "@example.com", DisplayName: role,
		Role: role, IsVerified: verified, IsActive: true, CreatedAt: at,
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func TestVerificationGatesEligibility(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &testutil.Notifier{}
	svc := NewService(store.Users(), notifier, testutil.DiscardLogger())
	checker := eligibility.NewUserChecker(store.Users())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	worker := newUser(t, store, models.RoleWorker, false, base)
	ok, err := checker.IsVerifiedAndActive(ctx, worker.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.SetVerified(ctx, worker.ID, true)
	require.NoError(t, err)
	ok, _ = checker.IsVerifiedAndActive(ctx, worker.ID)
	assert.True(t, ok)
	assert.Equal(t, []string{notify.KindAccountVerified}, notifier.Kinds(worker.ID))

	_, err = svc.SetActive(ctx, worker.ID, false)
	require.NoError(t, err)
	ok, _ = checker.IsVerifiedAndActive(ctx, worker.ID)
	assert.False(t, ok, "suspended workers are not eligible")
}

func TestSetVerifiedRejectsNonWorkers(t *testing.T) {
	store := memory.New()
	svc := NewService(store.Users(), &testutil.Notifier{}, testutil.DiscardLogger())
	client := newUser(t, store, models.RoleClient, true, time.Now())

	_, err := svc.SetVerified(context.Background(), client.ID, true)
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(err))

	_, err = svc.SetVerified(context.Background(), uuid.New(), true)
	assert.Equal(t, apperr.ReasonNotFound, apperr.ReasonOf(err))
}

func TestListWorkers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store.Users(), &testutil.Notifier{}, testutil.DiscardLogger())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a := newUser(t, store, models.RoleWorker, true, base)
	b := newUser(t, store, models.RoleWorker, false, base.Add(time.Minute))
	c := newUser(t, store, models.RoleWorker, true, base.Add(2*time.Minute))
	newUser(t, store, models.RoleClient, true, base)
	_, err := svc.SetActive(ctx, c.ID, false)
	require.NoError(t, err)

	all, err := svc.ListWorkers(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	unverified := false
	pending, err := svc.ListWorkers(ctx, &unverified, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	directory, err := svc.ListActiveWorkers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, directory, 1)
	assert.Equal(t, a.ID, directory[0].ID)
}

func TestUpdateProfile(t *testing.T) {
	store := memory.New()
	svc := NewService(store.Users(), &testutil.Notifier{}, testutil.DiscardLogger())
	u := newUser(t, store, models.RoleClient, true, time.Now())

	got, err := svc.UpdateProfile(context.Background(), u.ID, "  Ada  ")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)

	_, err = svc.UpdateProfile(context.Background(), u.ID, "   ")
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(err))
}

func TestAdminCannotBeSuspended(t *testing.T) {
	store := memory.New()
	svc := NewService(store.Users(), &testutil.Notifier{}, testutil.DiscardLogger())
	admin := newUser(t, store, models.RoleAdmin, true, time.Now())

	_, err := svc.SetActive(context.Background(), admin.ID, false)
	assert.Equal(t, apperr.ReasonValidation, apperr.ReasonOf(err))
}
