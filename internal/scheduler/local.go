package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/jobs"
)

// RunLocal drives the same sweeps with tickers when there is no Postgres
// for river to run on. It blocks until ctx is done.
func RunLocal(ctx context.Context, iv Intervals, e autorelease.Engine, svc jobs.Service, log *slog.Logger) {
	iv = iv.withDefaults()
	release := time.NewTicker(iv.AutoRelease)
	selections := time.NewTicker(iv.SelectionExpiry)
	expiry := time.NewTicker(iv.JobExpiry)
	defer release.Stop()
	defer selections.Stop()
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-release.C:
			if _, err := e.RunSweep(ctx); err != nil {
				log.Error("auto-release sweep failed", "error", err)
			}
		case <-selections.C:
			if _, err := svc.ExpireSelections(ctx); err != nil {
				log.Error("selection expiry failed", "error", err)
			}
		case <-expiry.C:
			if _, err := svc.ExpireJobs(ctx); err != nil {
				log.Error("job expiry failed", "error", err)
			}
		}
	}
}
