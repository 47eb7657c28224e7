package status

import (
	"context"
	"strings"
	"sync"
	"time"

	"pzrelay/internal/clock"
	logx "pzrelay/pkg/logx"
)

// Checker runs one resolution cycle. Silent cycles update state without announcing.
type Checker interface {
	Check(ctx context.Context, silent bool) ServerStatus
}

// Scheduler decides when to check: a heartbeat, push events from the panel
// socket, and one-shot timers derived from the last result. At most one
// check runs at a time.
type Scheduler struct {
	checker Checker
	clock   clock.Clock
	log     logx.Logger

	resetHeartbeat chan struct{}

	mu       sync.Mutex
	timings  Timings
	baseCtx  context.Context
	stopped  bool
	checking bool
	rerun    bool

	precision   clock.Timer
	precisionAt time.Time
	precisionID uint64
	followUp    clock.Timer
	followUpID  uint64
	ready       clock.Timer
	readyID     uint64
}

func NewScheduler(checker Checker, clk clock.Clock, log logx.Logger, t Timings) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{
		checker:        checker,
		clock:          clk,
		log:            log,
		timings:        t.WithDefaults(),
		resetHeartbeat: make(chan struct{}, 1),
	}
}

// ApplyTimings takes effect for the next timer armed; a changed heartbeat
// restarts the ticker.
func (s *Scheduler) ApplyTimings(t Timings) {
	t = t.WithDefaults()
	s.mu.Lock()
	hbChanged := s.timings.Heartbeat != t.Heartbeat
	s.timings = t
	s.mu.Unlock()
	if hbChanged {
		select {
		case s.resetHeartbeat <- struct{}{}:
		default:
		}
	}
}

func (s *Scheduler) ctx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Initialize runs the silent startup check that seeds the change gate.
func (s *Scheduler) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.baseCtx == nil {
		s.baseCtx = ctx
	}
	if s.checking {
		s.mu.Unlock()
		return
	}
	s.checking = true
	s.mu.Unlock()
	s.cycle(ctx, "startup", true)
}

// Run drives the heartbeat until ctx is done, then cancels every pending timer.
// It may be called again after it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.stopped = false
	interval := s.timings.Heartbeat
	s.mu.Unlock()
	// Only shutdown stops the scheduler. A run that panicked is restarted
	// with its timers intact.
	defer func() {
		if ctx.Err() != nil {
			s.stop()
		}
	}()

	tk := s.clock.NewTicker(interval)
	defer func() { tk.Stop() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.resetHeartbeat:
			tk.Stop()
			s.mu.Lock()
			interval = s.timings.Heartbeat
			s.mu.Unlock()
			tk = s.clock.NewTicker(interval)
			s.log.Info("heartbeat interval changed", logx.Duration("interval", interval))
		case <-tk.C():
			s.Trigger(ctx, "heartbeat")
		}
	}
}

// Trigger runs a check in the calling goroutine unless one is already in
// flight, in which case the call is dropped and false is returned.
func (s *Scheduler) Trigger(ctx context.Context, reason string) bool {
	s.mu.Lock()
	if s.stopped || s.checking {
		busy := s.checking
		s.mu.Unlock()
		if busy {
			s.log.Debug("status check already running; trigger dropped", logx.String("reason", reason))
		}
		return false
	}
	s.checking = true
	s.mu.Unlock()
	s.cycle(ctx, reason, false)
	return true
}

// ForceTrigger is Trigger for timer-driven checks: when a check is in flight
// it queues exactly one re-run instead of being dropped.
func (s *Scheduler) ForceTrigger(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.checking {
		s.rerun = true
		s.mu.Unlock()
		s.log.Debug("status check busy; re-run queued", logx.String("reason", reason))
		return
	}
	s.checking = true
	s.mu.Unlock()
	s.cycle(ctx, reason, false)
}

// cycle runs checks until no re-run is pending. Caller must have set checking.
// A panicking check still releases the in-flight flag.
func (s *Scheduler) cycle(ctx context.Context, reason string, silent bool) {
	finished := false
	defer func() {
		if !finished {
			s.mu.Lock()
			s.checking = false
			s.rerun = false
			s.mu.Unlock()
		}
	}()
	for {
		s.log.Debug("status check", logx.String("reason", reason), logx.Bool("silent", silent))
		st := s.checker.Check(ctx, silent)
		s.afterCheck(st)

		s.mu.Lock()
		if s.rerun && !s.stopped && ctx.Err() == nil {
			s.rerun = false
			s.mu.Unlock()
			reason, silent = "re-run", false
			continue
		}
		s.rerun = false
		s.checking = false
		s.mu.Unlock()
		finished = true
		return
	}
}

// OnPowerState is wired to the panel socket.
func (s *Scheduler) OnPowerState(state string) {
	s.log.Debug("power state pushed", logx.String("state", state))
	go s.Trigger(s.ctx(), "power:"+state)
}

// OnConsoleLine is wired to the panel socket. Restart keywords trigger a
// check right away; the ready marker forces one after ReadyDelay.
func (s *Scheduler) OnConsoleLine(line string) {
	s.mu.Lock()
	t := s.timings
	s.mu.Unlock()

	lower := strings.ToLower(line)
	for _, kw := range t.RestartKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			s.log.Info("restart keyword in console", logx.String("keyword", kw))
			go s.Trigger(s.ctx(), "console:"+kw)
			break
		}
	}

	if t.ReadyMarker != "" && strings.Contains(line, t.ReadyMarker) {
		s.log.Info("server ready marker seen", logx.Duration("delay", t.ReadyDelay))
		s.mu.Lock()
		if !s.stopped {
			if s.ready != nil {
				s.ready.Stop()
			}
			s.readyID++
			id := s.readyID
			s.ready = s.clock.AfterFunc(t.ReadyDelay, func() {
				s.mu.Lock()
				if s.readyID == id {
					s.ready = nil
				}
				s.mu.Unlock()
				s.ForceTrigger(s.ctx(), "ready marker")
			})
		}
		s.mu.Unlock()
	}
}

// afterCheck arms or cancels the precision and follow-up timers from st.
func (s *Scheduler) afterCheck(st ServerStatus) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	t := s.timings

	var deadline time.Time
	if st.State == StateRestarting && st.Restart != nil {
		deadline = st.Restart.Countdown
	}
	if until := deadline.Sub(now); !deadline.IsZero() && until > 0 && until < t.PrecisionHorizon {
		if s.precision == nil || !s.precisionAt.Equal(deadline) {
			if s.precision != nil {
				s.precision.Stop()
			}
			s.precisionID++
			id := s.precisionID
			s.precisionAt = deadline
			s.precision = s.clock.AfterFunc(until+t.PrecisionBuffer, func() {
				s.mu.Lock()
				if s.precisionID == id {
					s.precision = nil
					s.precisionAt = time.Time{}
				}
				s.mu.Unlock()
				s.ForceTrigger(s.ctx(), "precision")
			})
			s.log.Info("precision check armed", logx.Duration("in", until+t.PrecisionBuffer))
		}
	} else if s.precision != nil {
		s.precision.Stop()
		s.precision = nil
		s.precisionAt = time.Time{}
	}

	transitional := st.State == StateStarting || st.Label == LabelOffline
	if transitional && (st.PowerState == PowerStarting || st.PowerState == PowerRunning) {
		if s.followUp == nil {
			s.followUpID++
			id := s.followUpID
			s.followUp = s.clock.AfterFunc(t.FollowUpDelay, func() {
				s.mu.Lock()
				if s.followUpID == id {
					s.followUp = nil
				}
				s.mu.Unlock()
				s.ForceTrigger(s.ctx(), "follow-up")
			})
			s.log.Debug("follow-up check armed", logx.String("label", st.Label), logx.Duration("in", t.FollowUpDelay))
		}
	} else if s.followUp != nil {
		s.followUp.Stop()
		s.followUp = nil
	}
}

// Pending reports which one-shot timers are armed.
func (s *Scheduler) Pending() (precision, followUp, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.precision != nil, s.followUp != nil, s.ready != nil
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, t := range []clock.Timer{s.precision, s.followUp, s.ready} {
		if t != nil {
			t.Stop()
		}
	}
	s.precision, s.followUp, s.ready = nil, nil, nil
}
