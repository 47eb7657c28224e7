package app

import (
	"context"
	"strings"
	"time"

	"pzrelay/internal/config"
	"pzrelay/internal/eventbus"
	"pzrelay/internal/notifier"
	"pzrelay/internal/render"
	logx "pzrelay/pkg/logx"
)

// reloadLoop applies hot-reloadable sections of every committed config.
// Sections that need a restart are only reported.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, needRestart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(needRestart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(needRestart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	timings := mapTimings(newCfg)
	a.status.ApplyTimings(timings)
	a.checks.ApplyTimings(timings)

	a.relay.SetTargets(mapTargets(newCfg))
	if a.watcher != nil {
		a.watcher.SetMention(newCfg.Workshop.Mention)
	}
	a.sched.Apply(mapSchedulerConfig(newCfg))
	if loc, err := render.LoadLocation(newCfg.Timezone); err == nil {
		a.render.SetLocation(loc)
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.applyNotifier(ctx, ncfg)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyNotifier also starts or stops the workers when enabled flips.
func (a *App) applyNotifier(ctx context.Context, ncfg notifier.Config) {
	prev := a.notif.Enabled()
	a.notif.Apply(ncfg)
	switch {
	case prev && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prev && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(context.WithoutCancel(ctx))
	}
}
