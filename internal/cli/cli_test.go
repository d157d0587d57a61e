package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/config"
	"github.com/gighire/backend/internal/lock"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/testutil"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nauth:\n  jwt_secret: cli-test-secret-0123456789\n"), 0o600))
	return path
}

// run executes gigctl against env's store and returns stdout.
func run(t *testing.T, env *testutil.Env, args ...string) (string, error) {
	t.Helper()
	open := func(_ context.Context, cfg *config.Config, log *slog.Logger) (*App, func(), error) {
		app, err := NewApp(env.Store, lock.NewLocalLocker(), log, cfg)
		if err != nil {
			return nil, nil, err
		}
		app.Ledger = env.Ledger
		return app, func() {}, nil
	}
	cmd := newRoot(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-c", writeConfig(t)}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRulesSeedListDisable(t *testing.T) {
	env := testutil.NewEnv()

	out, err := run(t, env, "rules", "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 rules")

	out, err = run(t, env, "rules", "list")
	require.NoError(t, err)
	var rules []models.AutoReleaseRule
	require.NoError(t, json.Unmarshal([]byte(out), &rules))
	require.Len(t, rules, len(autorelease.DefaultRules()))

	_, err = run(t, env, "rules", "disable", rules[0].ID.String())
	require.NoError(t, err)
	got, err := env.Store.Rules().GetByID(context.Background(), rules[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = run(t, env, "rules", "enable", "not-a-uuid")
	assert.Error(t, err)
}

func TestSweepAutoRelease(t *testing.T) {
	env := testutil.NewEnv()
	_, err := run(t, env, "rules", "seed")
	require.NoError(t, err)
	// The fixture clock sits in the past, so the wall-clock sweep sees the
	// completion as well over 48h old.
	bk := env.Book(t, 50_000, 20_000, models.BookingWorkerCompleted)

	out, err := run(t, env, "sweep", "auto-release")
	require.NoError(t, err)
	var res autorelease.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Released)

	b := env.Reload(t, bk.Booking.ID)
	assert.Equal(t, models.PaymentReleased, b.PaymentStatus)
}

func TestEscrowCheckAndReconcile(t *testing.T) {
	env := testutil.NewEnv()
	bk := env.Book(t, 50_000, 20_000, models.BookingConfirmed)

	out, err := run(t, env, "escrow-check")
	require.NoError(t, err)
	assert.Contains(t, out, `"consistent": true`)

	// The fixture credits the client directly, bypassing the ledger, so the
	// replayed history falls short of the balance.
	out, err = run(t, env, "reconcile", bk.Client.String())
	require.Error(t, err)
	assert.Contains(t, out, `"consistent": false`)
}
