// Package scheduler runs the periodic sweeps as river jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/jobs"
	"github.com/gighire/backend/internal/metrics"
	"github.com/gighire/backend/internal/notify"
)

const QueueMaintenance = "maintenance"

const (
	DefaultAutoReleaseInterval     = 30 * time.Minute
	DefaultSelectionExpiryInterval = 5 * time.Minute
	DefaultJobExpiryInterval       = 15 * time.Minute
)

type Intervals struct {
	AutoRelease     time.Duration
	SelectionExpiry time.Duration
	JobExpiry       time.Duration
}

func (iv Intervals) withDefaults() Intervals {
	if iv.AutoRelease <= 0 {
		iv.AutoRelease = DefaultAutoReleaseInterval
	}
	if iv.SelectionExpiry <= 0 {
		iv.SelectionExpiry = DefaultSelectionExpiryInterval
	}
	if iv.JobExpiry <= 0 {
		iv.JobExpiry = DefaultJobExpiryInterval
	}
	return iv
}

type AutoReleaseSweepArgs struct{}

func (AutoReleaseSweepArgs) Kind() string { return "auto_release_sweep" }

func (AutoReleaseSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueMaintenance, MaxAttempts: 1}
}

type ExpireSelectionsArgs struct{}

func (ExpireSelectionsArgs) Kind() string { return "expire_selections" }

func (ExpireSelectionsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueMaintenance, MaxAttempts: 1}
}

type ExpireJobsArgs struct{}

func (ExpireJobsArgs) Kind() string { return "expire_jobs" }

func (ExpireJobsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueMaintenance, MaxAttempts: 1}
}

// AutoReleaseSweepWorker runs one auto-release sweep per job.
type AutoReleaseSweepWorker struct {
	river.WorkerDefaults[AutoReleaseSweepArgs]
	engine autorelease.Engine
	log    *slog.Logger
}

func NewAutoReleaseSweepWorker(e autorelease.Engine, log *slog.Logger) *AutoReleaseSweepWorker {
	return &AutoReleaseSweepWorker{engine: e, log: log}
}

func (w *AutoReleaseSweepWorker) Timeout(*river.Job[AutoReleaseSweepArgs]) time.Duration {
	return 10 * time.Minute
}

func (w *AutoReleaseSweepWorker) Work(ctx context.Context, job *river.Job[AutoReleaseSweepArgs]) error {
	res, err := w.engine.RunSweep(ctx)
	if err != nil {
		return fmt.Errorf("auto-release sweep: %w", err)
	}
	w.log.Debug("auto-release sweep job done", "job_id", job.ID, "released", res.Released, "locked", res.Locked)
	return nil
}

// ExpireSelectionsWorker unpicks selections past the acceptance window.
type ExpireSelectionsWorker struct {
	river.WorkerDefaults[ExpireSelectionsArgs]
	jobs jobs.Service
	log  *slog.Logger
}

func NewExpireSelectionsWorker(svc jobs.Service, log *slog.Logger) *ExpireSelectionsWorker {
	return &ExpireSelectionsWorker{jobs: svc, log: log}
}

func (w *ExpireSelectionsWorker) Work(ctx context.Context, _ *river.Job[ExpireSelectionsArgs]) error {
	res, err := w.jobs.ExpireSelections(ctx)
	if err != nil {
		return fmt.Errorf("expire selections: %w", err)
	}
	if res.Expired > 0 || res.Failed > 0 {
		w.log.Info("selection expiry sweep", "expired", res.Expired, "failed", res.Failed)
	}
	return nil
}

// ExpireJobsWorker closes open jobs past their deadline.
type ExpireJobsWorker struct {
	river.WorkerDefaults[ExpireJobsArgs]
	jobs jobs.Service
	log  *slog.Logger
}

func NewExpireJobsWorker(svc jobs.Service, log *slog.Logger) *ExpireJobsWorker {
	return &ExpireJobsWorker{jobs: svc, log: log}
}

func (w *ExpireJobsWorker) Work(ctx context.Context, _ *river.Job[ExpireJobsArgs]) error {
	res, err := w.jobs.ExpireJobs(ctx)
	if err != nil {
		return fmt.Errorf("expire jobs: %w", err)
	}
	if res.Expired > 0 {
		w.log.Info("job expiry sweep", "expired", res.Expired)
	}
	return nil
}

type Deps struct {
	Engine  autorelease.Engine
	Jobs    jobs.Service
	Sender  notify.Sender
	Metrics *metrics.Collector
	Log     *slog.Logger
}

// Workers registers every background worker the API process runs.
func Workers(d Deps) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewAutoReleaseSweepWorker(d.Engine, d.Log))
	river.AddWorker(workers, NewExpireSelectionsWorker(d.Jobs, d.Log))
	river.AddWorker(workers, NewExpireJobsWorker(d.Jobs, d.Log))
	river.AddWorker(workers, notify.NewDeliverWorker(d.Sender, d.Log, d.Metrics))
	return workers
}

// PeriodicJobs schedules the sweeps. river elects one leader to enqueue
// them, so each runs once per interval across all replicas.
func PeriodicJobs(iv Intervals) []*river.PeriodicJob {
	iv = iv.withDefaults()
	return []*river.PeriodicJob{
		river.NewPeriodicJob(river.PeriodicInterval(iv.AutoRelease),
			func() (river.JobArgs, *river.InsertOpts) { return AutoReleaseSweepArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true}),
		river.NewPeriodicJob(river.PeriodicInterval(iv.SelectionExpiry),
			func() (river.JobArgs, *river.InsertOpts) { return ExpireSelectionsArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true}),
		river.NewPeriodicJob(river.PeriodicInterval(iv.JobExpiry),
			func() (river.JobArgs, *river.InsertOpts) { return ExpireJobsArgs{}, nil },
			nil),
	}
}

func Queues(maxWorkers int) map[string]river.QueueConfig {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return map[string]river.QueueConfig{
		river.QueueDefault:        {MaxWorkers: maxWorkers},
		QueueMaintenance:          {MaxWorkers: 2},
		notify.QueueNotifications: {MaxWorkers: maxWorkers},
	}
}
