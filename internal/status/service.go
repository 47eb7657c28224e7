package status

import (
	"context"
	"sync"
	"time"

	"pzrelay/internal/clock"
	"pzrelay/internal/eventbus"
	logx "pzrelay/pkg/logx"
)

// Sink receives the outcome of each cycle. StatusChanged is called only for
// approved, non-silent changes; Presence after every cycle.
type Sink interface {
	StatusChanged(ctx context.Context, st ServerStatus, prevKey, newKey string) error
	Presence(ctx context.Context, st ServerStatus) error
}

// Snapshot is the last completed cycle.
type Snapshot struct {
	Status  ServerStatus `json:"status"`
	Key     string       `json:"key"`
	Changed bool         `json:"changed"`
	At      time.Time    `json:"at"`
}

// Service owns the resolver and change gate and is the Scheduler's Checker.
type Service struct {
	resolver *Resolver
	gate     *ChangeGate
	sink     Sink
	bus      eventbus.Bus
	clock    clock.Clock
	log      logx.Logger

	mu   sync.RWMutex
	last *Snapshot
}

func NewService(resolver *Resolver, gate *ChangeGate, sink Sink, bus eventbus.Bus, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{resolver: resolver, gate: gate, sink: sink, bus: bus, clock: clk, log: log}
}

func (s *Service) Check(ctx context.Context, silent bool) ServerStatus {
	st := s.resolver.Resolve(ctx)
	prev, next, changed := s.gate.Observe(st)

	s.mu.Lock()
	s.last = &Snapshot{Status: st, Key: next, Changed: changed, At: s.clock.Now()}
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Presence(ctx, st); err != nil {
			s.log.Debug("presence update failed", logx.Err(err))
		}
	}
	if !changed {
		return st
	}
	if silent {
		s.log.Info("status initialized", logx.String("key", next))
		return st
	}

	s.log.Info("status changed", logx.String("from", prev), logx.String("to", next), logx.String("label", st.Label))
	s.bus.Publish(eventbus.Event{Type: eventbus.StatusChanged, Data: st})
	if s.sink != nil {
		// A failed delivery is not retried here and the gate keeps the new key.
		if err := s.sink.StatusChanged(ctx, st, prev, next); err != nil {
			s.log.Warn("status notification failed", logx.Err(err), logx.String("key", next))
		}
	}
	return st
}

// Last returns the most recent snapshot, if any cycle has completed.
func (s *Service) Last() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Snapshot{}, false
	}
	return *s.last, true
}

func (s *Service) ApplyTimings(t Timings) {
	t = t.WithDefaults()
	s.resolver.SetTimings(t)
	s.gate.SetBucket(t.Bucket)
}
