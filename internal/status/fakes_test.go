package status

import (
	"context"
	"errors"
	"sync"
	"time"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

var errDown = errors.New("down")

type fakePanel struct {
	power    string
	powerErr error
	jobs     []ScheduledJob
	jobsErr  error
	panicMsg string
}

func (p *fakePanel) PowerState(ctx context.Context) (string, error) {
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	return p.power, p.powerErr
}

func (p *fakePanel) Schedules(ctx context.Context) ([]ScheduledJob, error) {
	return p.jobs, p.jobsErr
}

type fakeLive struct {
	mu    sync.Mutex
	info  LiveInfo
	err   error
	calls int
}

func (l *fakeLive) Query(ctx context.Context) (LiveInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.info, l.err
}

func (l *fakeLive) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// scriptedChecker returns results in order, repeating the last one.
type scriptedChecker struct {
	mu      sync.Mutex
	results []ServerStatus
	calls   int
	silent  []bool

	// When set, the first call signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (c *scriptedChecker) Check(ctx context.Context, silent bool) ServerStatus {
	c.mu.Lock()
	n := c.calls
	c.calls++
	c.silent = append(c.silent, silent)
	var st ServerStatus
	if len(c.results) > 0 {
		i := n
		if i >= len(c.results) {
			i = len(c.results) - 1
		}
		st = c.results[i]
	}
	entered, release := c.entered, c.release
	c.mu.Unlock()

	if n == 0 && entered != nil {
		close(entered)
		<-release
	}
	return st
}

func (c *scriptedChecker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingSink struct {
	mu       sync.Mutex
	changes  []string
	presence []ServerStatus
	err      error
}

func (s *recordingSink) StatusChanged(ctx context.Context, st ServerStatus, prevKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, newKey)
	return s.err
}

func (s *recordingSink) Presence(ctx context.Context, st ServerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = append(s.presence, st)
	return nil
}

func (s *recordingSink) Changes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.changes...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
