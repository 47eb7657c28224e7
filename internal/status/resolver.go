package status

import (
	"context"
	"fmt"
	"sync"

	"pzrelay/internal/clock"
	logx "pzrelay/pkg/logx"
)

// Resolver fuses panel and live-query data into a ServerStatus. It never
// returns an error: every failure becomes a status.
type Resolver struct {
	panel PanelClient
	live  LiveQuerier
	clock clock.Clock
	log   logx.Logger

	mu      sync.RWMutex
	timings Timings
}

func NewResolver(panel PanelClient, live LiveQuerier, clk clock.Clock, log logx.Logger, t Timings) *Resolver {
	if clk == nil {
		clk = clock.Real()
	}
	return &Resolver{panel: panel, live: live, clock: clk, log: log, timings: t.WithDefaults()}
}

func (r *Resolver) SetTimings(t Timings) {
	r.mu.Lock()
	r.timings = t.WithDefaults()
	r.mu.Unlock()
}

func (r *Resolver) currentTimings() Timings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timings
}

func apiError() ServerStatus {
	return ServerStatus{State: StateError, Label: LabelAPIError, PowerState: PowerError}
}

func (r *Resolver) Resolve(ctx context.Context) (st ServerStatus) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("status resolution panicked", logx.String("panic", fmt.Sprint(p)))
			st = apiError()
		}
	}()

	power, err := r.panel.PowerState(ctx)
	if err != nil {
		r.log.Warn("panel power state failed", logx.Err(err))
		return apiError()
	}

	switch power {
	case PowerOffline:
		return ServerStatus{State: StateOffline, Label: LabelOffline, PowerState: power}
	case PowerStopping:
		return ServerStatus{State: StateStopping, Label: LabelStopping, PowerState: power}
	case PowerStarting:
		return ServerStatus{State: StateStarting, Label: LabelStarting, PowerState: power}
	case PowerRunning:
		return r.resolveRunning(ctx)
	case "":
		// A missing state becomes unknown so the gate key is never empty.
		return ServerStatus{State: StateUnknown, Label: LabelUnknown, PowerState: power}
	default:
		return ServerStatus{State: State(power), Label: LabelUnknown, PowerState: power}
	}
}

func (r *Resolver) resolveRunning(ctx context.Context) ServerStatus {
	t := r.currentTimings()
	now := r.clock.Now()

	jobs, err := r.panel.Schedules(ctx)
	if err != nil {
		r.log.Warn("panel schedules failed; assuming none", logx.Err(err))
		jobs = nil
	}

	if job, ok := Classify(jobs); ok {
		typ := restartType(job.Name)

		if job.IsProcessing {
			trigger := job.UpdatedAt
			if trigger.IsZero() {
				trigger = job.LastRunAt
			}
			if !trigger.IsZero() {
				return ServerStatus{
					State:      StateRestarting,
					Label:      "Scheduled " + typ + " Restart",
					PowerState: PowerRunning,
					Restart: &RestartInfo{
						Type:      typ,
						Countdown: trigger.Add(t.RestartWindow),
						Trigger:   trigger,
					},
				}
			}
			r.log.Debug("processing schedule has no timestamp; ignoring", logx.String("schedule", job.Name))
		} else if !job.LastRunAt.IsZero() {
			elapsed := now.Sub(job.LastRunAt)
			if elapsed < 0 {
				elapsed = -elapsed
			}
			if elapsed < t.RestartWindow {
				if elapsed > t.GracePeriod {
					if live, err := r.live.Query(ctx); err == nil {
						return running(live)
					}
				}
				return ServerStatus{
					State:      StateRestarting,
					Label:      LabelProcessing,
					PowerState: PowerRunning,
					Restart: &RestartInfo{
						Type:          typ,
						CountdownNote: NoteFinalizing,
						Trigger:       job.LastRunAt,
					},
				}
			}
		}
	}

	live, err := r.live.Query(ctx)
	if err != nil {
		r.log.Debug("live query failed", logx.Err(err))
		return ServerStatus{State: StateStarting, Label: LabelInitializing, PowerState: PowerRunning}
	}
	return running(live)
}

func running(live LiveInfo) ServerStatus {
	return ServerStatus{State: StateRunning, Label: LabelRunning, PowerState: PowerRunning, Live: &live}
}
