package status

import (
	"fmt"
	"sync"
	"time"

	"pzrelay/internal/clock"
)

// ChangeGate turns a status into a stable identity key and suppresses
// repeats of the last key.
type ChangeGate struct {
	clock clock.Clock

	mu      sync.Mutex
	bucket  time.Duration
	lastKey string
	hasKey  bool
}

func NewChangeGate(clk clock.Clock, bucket time.Duration) *ChangeGate {
	if clk == nil {
		clk = clock.Real()
	}
	if bucket < time.Second {
		bucket = DefaultTimings().Bucket
	}
	return &ChangeGate{clock: clk, bucket: bucket}
}

func (g *ChangeGate) SetBucket(bucket time.Duration) {
	if bucket < time.Second {
		return
	}
	g.mu.Lock()
	g.bucket = bucket
	g.mu.Unlock()
}

// Key returns the identity of st. Restarts are keyed by type and the
// trigger time floored to the bucket, so panel timestamp jitter during one
// restart does not look like a new restart.
func (g *ChangeGate) Key(st ServerStatus) string {
	g.mu.Lock()
	bucket := g.bucket
	g.mu.Unlock()
	return g.key(st, bucket)
}

func (g *ChangeGate) key(st ServerStatus, bucket time.Duration) string {
	if st.State != StateRestarting {
		return string(st.State)
	}
	var typ string
	var trigger time.Time
	if st.Restart != nil {
		typ = st.Restart.Type
		trigger = st.Restart.Trigger
	}
	if trigger.IsZero() {
		trigger = g.clock.Now()
	}
	n := int64(bucket / time.Second)
	unix := trigger.Unix()
	b := unix / n * n
	if unix < 0 && unix%n != 0 {
		b -= n
	}
	return fmt.Sprintf("%s_%s_%d", st.State, typ, b)
}

// Observe stores the key of st and reports whether it differs from the
// previous one. The very first observation always counts as a change.
func (g *ChangeGate) Observe(st ServerStatus) (prev, next string, changed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next = g.key(st, g.bucket)
	prev = g.lastKey
	changed = !g.hasKey || next != prev
	g.lastKey = next
	g.hasKey = true
	return prev, next, changed
}

func (g *ChangeGate) ShouldNotify(st ServerStatus) bool {
	_, _, changed := g.Observe(st)
	return changed
}

// LastKey returns the stored key ("" before the first observation).
func (g *ChangeGate) LastKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastKey
}
