package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manual clock. Time moves only on Advance; due AfterFunc
// callbacks run synchronously inside Advance in deadline order, and due
// tickers receive a non-blocking send.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeEntry
	changed *sync.Cond
}

type fakeEntry struct {
	at       time.Time
	fn       func()
	ch       chan time.Time
	interval time.Duration
	done     bool
}

func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.changed = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	e := &fakeEntry{at: f.now.Add(d), fn: fn}
	f.pending = append(f.pending, e)
	f.changed.Broadcast()
	f.mu.Unlock()
	return &fakeTimer{clock: f, entry: e}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	e := &fakeEntry{at: f.now.Add(d), ch: make(chan time.Time, 1), interval: d}
	f.pending = append(f.pending, e)
	f.changed.Broadcast()
	f.mu.Unlock()
	return &fakeTicker{clock: f, entry: e}
}

// Advance moves time forward by d, firing everything that comes due.
// Callbacks must not call Advance.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var next *fakeEntry
		for _, e := range f.pending {
			if e.done || e.at.After(target) {
				continue
			}
			if next == nil || e.at.Before(next.at) {
				next = e
			}
		}
		if next == nil {
			f.now = target
			f.compactLocked()
			f.mu.Unlock()
			return
		}
		if next.at.After(f.now) {
			f.now = next.at
		}
		at := next.at
		if next.interval > 0 {
			next.at = next.at.Add(next.interval)
		} else {
			next.done = true
		}
		fn, ch := next.fn, next.ch
		f.mu.Unlock()

		if fn != nil {
			fn()
		} else if ch != nil {
			select {
			case ch <- at:
			default:
			}
		}
	}
}

// Pending returns the number of armed timers and tickers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

// WaitForTimers blocks until at least n timers or tickers are armed.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.changed.Wait()
	}
}

func (f *Fake) pendingLocked() int {
	n := 0
	for _, e := range f.pending {
		if !e.done {
			n++
		}
	}
	return n
}

func (f *Fake) compactLocked() {
	kept := f.pending[:0]
	for _, e := range f.pending {
		if !e.done {
			kept = append(kept, e)
		}
	}
	f.pending = kept
	sort.SliceStable(f.pending, func(i, j int) bool { return f.pending[i].at.Before(f.pending[j].at) })
}

type fakeTimer struct {
	clock *Fake
	entry *fakeEntry
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.entry.done {
		return false
	}
	t.entry.done = true
	return true
}

type fakeTicker struct {
	clock *Fake
	entry *fakeEntry
}

func (t *fakeTicker) C() <-chan time.Time { return t.entry.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	t.entry.done = true
	t.clock.mu.Unlock()
}
