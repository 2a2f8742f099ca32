package retention

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestRunOnceUsesRetentionWindow(t *testing.T) {
	p := &fakePurger{n: 3}
	j, err := New(p, 7, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if want := now.AddDate(0, 0, -7); !p.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", p.cutoff, want)
	}
}

func TestRunOnceReportsError(t *testing.T) {
	j, _ := New(&fakePurger{err: errors.New("db down")}, 1, "")
	if _, err := j.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewRejectsNonPositiveDays(t *testing.T) {
	if _, err := New(&fakePurger{}, 0, ""); err == nil {
		t.Fatalf("expected error for zero days")
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	j, _ := New(&fakePurger{}, 1, "not a schedule")
	if err := j.Start(); err == nil {
		j.Stop()
		t.Fatalf("expected invalid schedule error")
	}
}

func TestStartAndStop(t *testing.T) {
	j, _ := New(&fakePurger{}, 1, "@hourly")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Stop()
}
