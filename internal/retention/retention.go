// Package retention purges stored conversation turns older than a fixed age
// on a cron schedule.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes turns created before cutoff and reports how many went.
type Purger interface {
	PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	purger   Purger
	maxAge   time.Duration
	schedule string
	timeout  time.Duration
	now      func() time.Time

	cron *cron.Cron
}

// New builds a job that keeps days worth of turns. days must be positive.
func New(p Purger, days int, schedule string) (*Job, error) {
	if days <= 0 {
		return nil, errors.New("retention days must be positive")
	}
	if schedule == "" {
		schedule = "@daily"
	}
	return &Job{
		purger:   p,
		maxAge:   time.Duration(days) * 24 * time.Hour,
		schedule: schedule,
		timeout:  time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
		cron:     cron.New(),
	}, nil
}

// Start schedules the purge. An invalid schedule is returned as an error.
func (j *Job) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	}); err != nil {
		return err
	}
	j.cron.Start()
	slog.Info("chat retention scheduled", "schedule", j.schedule, "max_age", j.maxAge)
	return nil
}

// Stop halts scheduling and waits for a running purge to finish.
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce purges everything older than the retention window.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.purger.PurgeTurnsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("chat retention purge failed", "cutoff", cutoff, "error", err)
		return 0, err
	}
	slog.Info("chat retention purge", "cutoff", cutoff, "deleted", n)
	return n, nil
}
