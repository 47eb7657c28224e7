package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "pzrelay/pkg/logx"
)

func TestAddScheduleUpsertsByName(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }

	if _, err := s.AddSchedule("workshop", "5m", time.Minute, job); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddSchedule("workshop", "*/10 * * * *", time.Minute, job); err != nil {
		t.Fatal(err)
	}
	got := s.Schedules()
	if len(got) != 1 {
		t.Fatalf("schedules = %d, want 1", len(got))
	}
	if got[0].Spec != "*/10 * * * *" {
		t.Fatalf("Spec = %q, want cron spec", got[0].Spec)
	}
	if !s.Remove("workshop") || len(s.Schedules()) != 0 {
		t.Fatal("Remove did not drop the schedule")
	}
}

func TestAddScheduleRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	if _, err := s.AddSchedule("x", "nope", 0, job); err == nil {
		t.Fatal("invalid schedule accepted")
	}
	if _, err := s.AddCron("x", "99 * * * *", 0, job); err == nil {
		t.Fatal("invalid cron accepted")
	}
	if _, err := s.AddInterval("", time.Minute, 0, job); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestRunJobSkipsOverlap(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	def := scheduleDef{
		name:  "slow",
		state: &runState{},
		job: func(ctx context.Context) error {
			calls.Add(1)
			close(started)
			<-release
			return errors.New("boom")
		},
	}

	done := make(chan struct{})
	go func() {
		s.runJob(def)
		close(done)
	}()
	<-started
	s.runJob(def) // overlaps; skipped
	close(release)
	<-done

	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	if n := def.state.skipped.Load(); n != 1 {
		t.Fatalf("skipped = %d, want 1", n)
	}
	if v, _ := def.state.lastErr.Load().(string); v != "boom" {
		t.Fatalf("lastErr = %q, want boom", v)
	}
}

func TestRunJobRecoversPanicAndAppliesTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	var hadDeadline bool
	s.runJob(scheduleDef{
		name:    "panicky",
		timeout: time.Second,
		state:   &runState{},
		job: func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			panic("bad")
		},
	})
	if !hadDeadline {
		t.Fatal("job context has no deadline")
	}
}

func TestIntervalScheduleSpread(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a := spreadOffset("workshop.check", 5*time.Minute)
	if a != spreadOffset("workshop.check", 5*time.Minute) {
		t.Fatal("spreadOffset not stable for the same name")
	}
	if a < 0 || a >= maxStartupSpread {
		t.Fatalf("spreadOffset = %v, want [0, %v)", a, maxStartupSpread)
	}
	if got := spreadOffset("x", 10*time.Second); got >= 10*time.Second {
		t.Fatalf("spreadOffset(10s) = %v, want < 10s", got)
	}

	sched, off := intervalSchedule("workshop.check", 5*time.Minute, now)
	first := sched.Next(now)
	if want := now.Add(5*time.Minute + off); !first.Equal(want) {
		t.Fatalf("first run = %v, want %v", first, want)
	}
	if second := sched.Next(first); !second.Equal(first.Add(5 * time.Minute)) {
		t.Fatalf("second run = %v, want %v", second, first.Add(5*time.Minute))
	}
}
