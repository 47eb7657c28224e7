package status

import (
	"context"
	"testing"
	"time"

	"pzrelay/internal/clock"
	"pzrelay/internal/eventbus"
	logx "pzrelay/pkg/logx"
)

func newTestService(p *fakePanel, l *fakeLive, clk clock.Clock, sink Sink, bus eventbus.Bus) *Service {
	r := NewResolver(p, l, clk, logx.Nop(), Timings{})
	return NewService(r, NewChangeGate(clk, 0), sink, bus, clk, logx.Nop())
}

func TestServiceRunningScenario(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(t0)
	sink := &recordingSink{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, eventbus.StatusChanged)
	defer unsub()

	svc := newTestService(&fakePanel{power: PowerRunning}, &fakeLive{info: LiveInfo{Players: 3, MaxPlayers: 10}}, clk, sink, bus)
	st := svc.Check(context.Background(), false)
	if st.State != StateRunning || st.Live.Players != 3 || st.Live.MaxPlayers != 10 {
		t.Fatalf("Check() = %+v", st)
	}
	svc.Check(context.Background(), false)

	if got := sink.Changes(); len(got) != 1 || got[0] != "running" {
		t.Fatalf("notifications = %v, want [running]", got)
	}
	if len(sink.presence) != 2 {
		t.Fatalf("presence updates = %d, want 2", len(sink.presence))
	}
	if len(events) != 1 {
		t.Fatalf("bus events = %d, want 1", len(events))
	}
	snap, ok := svc.Last()
	if !ok || snap.Key != "running" || snap.Changed {
		t.Fatalf("Last() = %+v, %v", snap, ok)
	}
}

func TestServiceDailyRestartScenario(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(t0)
	sink := &recordingSink{}
	p := &fakePanel{power: PowerRunning, jobs: []ScheduledJob{{Name: "Daily Restart", IsProcessing: true, UpdatedAt: t0}}}
	svc := newTestService(p, &fakeLive{}, clk, sink, nil)

	st := svc.Check(context.Background(), false)
	if st.State != StateRestarting || st.Restart.Type != RestartDaily || !st.Restart.Countdown.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("Check() = %+v", st)
	}
	clk.Advance(3 * time.Minute)
	svc.Check(context.Background(), false)
	if got := sink.Changes(); len(got) != 1 {
		t.Fatalf("notifications = %v, want one", got)
	}
}

func TestServiceSilentCheckSeedsGate(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(t0)
	sink := &recordingSink{}
	p := &fakePanel{power: PowerOffline}
	svc := newTestService(p, &fakeLive{}, clk, sink, nil)

	svc.Check(context.Background(), true)
	svc.Check(context.Background(), false)
	if got := sink.Changes(); len(got) != 0 {
		t.Fatalf("silent seed still notified: %v", got)
	}
	if len(sink.presence) != 2 {
		t.Fatalf("presence updates = %d, want 2", len(sink.presence))
	}

	p.power = PowerStarting
	svc.Check(context.Background(), false)
	if got := sink.Changes(); len(got) != 1 || got[0] != "starting" {
		t.Fatalf("notifications = %v", got)
	}
}

func TestServiceFailedDeliveryKeepsKey(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(t0)
	sink := &recordingSink{err: errDown}
	svc := newTestService(&fakePanel{power: PowerOffline}, &fakeLive{}, clk, sink, nil)

	svc.Check(context.Background(), false)
	svc.Check(context.Background(), false)
	if got := sink.Changes(); len(got) != 1 {
		t.Fatalf("failed notification was re-sent: %v", got)
	}
}

func TestServiceWithSchedulerFollowUp(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(t0)
	sink := &recordingSink{}
	p := &fakePanel{power: PowerStarting}
	svc := newTestService(p, &fakeLive{info: LiveInfo{Players: 0, MaxPlayers: 16}}, clk, sink, nil)
	s := NewScheduler(svc, clk, logx.Nop(), Timings{})

	s.Trigger(context.Background(), "power:starting")
	if _, followUp, _ := s.Pending(); !followUp {
		t.Fatal("follow-up not armed for starting server")
	}
	p.power = PowerRunning
	clk.Advance(20 * time.Second)

	if got := sink.Changes(); len(got) != 2 || got[1] != "running" {
		t.Fatalf("notifications = %v, want [starting running]", got)
	}
}
