// Package app wires the relay together: config, logging, transports, the
// status pipeline, the workshop watcher and the optional HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pzrelay/internal/clock"
	"pzrelay/internal/config"
	"pzrelay/internal/eventbus"
	"pzrelay/internal/gamequery"
	"pzrelay/internal/httpapi"
	"pzrelay/internal/notifier"
	"pzrelay/internal/panel"
	"pzrelay/internal/relay"
	"pzrelay/internal/render"
	"pzrelay/internal/runtime/supervisor"
	"pzrelay/internal/status"
	"pzrelay/internal/steam"
	"pzrelay/internal/storage"
	"pzrelay/internal/task/scheduler"
	kit "pzrelay/internal/transport"
	"pzrelay/internal/transport/email"
	"pzrelay/internal/transport/telegram"
	"pzrelay/internal/workshop"
	logx "pzrelay/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	sd   sdNotifier

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	tg     *telegram.Adapter
	notif  *notifier.Service
	sched  *scheduler.Service
	render *render.Renderer
	relay  *relay.Relay

	status *status.Service
	checks *status.Scheduler
	socket *panel.Socket

	watcher *workshop.Watcher
	http    *httpapi.Server
}

// NewApp loads and validates the config and builds every component. Nothing
// touches the network until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), tg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm: cfgm,
		logs: logSvc,
		log:  log.With(logx.String("comp", "app")),
		bus:  eventbus.New(),
		tg:   tg,
	}
	a.sd = sdNotifier{log: a.log}

	// Storage (optional; only the workshop watcher needs it)
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		return nil, err
	default:
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	senders := map[string]kit.Sender{kit.ChannelTelegram: tg}
	if ec := cfg.Email; ec != nil && ec.Enabled {
		em, err := email.New(email.Config{
			APIKey:   ec.APIKey,
			From:     ec.From,
			FromName: ec.FromName,
			To:       ec.To,
		}, log.With(logx.String("comp", "email")))
		if err != nil {
			a.closeStore()
			return nil, err
		}
		senders[kit.ChannelEmail] = em
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.notif = notifier.New(ncfg, senders, log.With(logx.String("comp", "notifier")), a.bus)

	loc, err := render.LoadLocation(cfg.Timezone)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.render = render.New(loc, cfg.Game.DefaultMap, time.Now)
	a.relay = relay.New(a.notif, tg, a.render, mapTargets(cfg), log.With(logx.String("comp", "relay")))

	if err := a.buildStatus(cfg, log); err != nil {
		a.closeStore()
		return nil, err
	}

	a.sched = scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "cron")))
	if err := a.buildWorkshop(cfg, log); err != nil {
		a.closeStore()
		return nil, err
	}

	if hc := cfg.HTTP; hc != nil && hc.Enabled {
		a.http = httpapi.New(hc.Addr, httpapi.Deps{
			Status:  a.status,
			Trigger: a.checks,
			Tasks:   a,
			History: a.notif,
		}, log.With(logx.String("comp", "http")),
			httpapi.WithToken(hc.Token),
			httpapi.WithPprof(hc.Pprof),
		)
	}

	return a, nil
}

func (a *App) buildStatus(cfg *config.Config, log logx.Logger) error {
	panelTimeout, err := config.ParseDurationOrDefault("panel.timeout", cfg.Panel.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	pc, err := panel.New(cfg.Panel.URL, cfg.Panel.APIKey, cfg.Panel.ServerID, panelTimeout)
	if err != nil {
		return fmt.Errorf("panel: %w", err)
	}

	host, port := gameEndpoint(cfg)
	gameTimeout, err := config.ParseDurationOrDefault("game.timeout", cfg.Game.Timeout, 5*time.Second)
	if err != nil {
		return err
	}
	gq := gamequery.New(host, port, gameTimeout)

	timings := mapTimings(cfg)
	clk := clock.Real()
	statusLog := log.With(logx.String("comp", "status"))
	resolver := status.NewResolver(pc, gq, clk, statusLog, timings)
	gate := status.NewChangeGate(clk, timings.Bucket)
	a.status = status.NewService(resolver, gate, a.relay, a.bus, clk, statusLog)
	a.checks = status.NewScheduler(a.status, clk, log.With(logx.String("comp", "status.scheduler")), timings)

	if cfg.Panel.DisableRealtime {
		a.log.Info("panel realtime disabled; heartbeat polling only")
		return nil
	}
	a.socket = panel.NewSocket(pc, a.checks, log.With(logx.String("comp", "panel.socket")), panel.SocketOptions{
		ReconnectDelay:   config.MustDuration(cfg.Panel.ReconnectDelay, 5*time.Second),
		CredentialsRetry: config.MustDuration(cfg.Panel.CredentialsRetry, 30*time.Second),
	})
	return nil
}

func (a *App) buildWorkshop(cfg *config.Config, log logx.Logger) error {
	if !cfg.Workshop.Enabled {
		return nil
	}
	if a.store == nil {
		a.log.Warn("workshop enabled but storage is disabled; workshop watcher off")
		return nil
	}
	sc := steam.New(cfg.Workshop.SteamURL, cfg.Workshop.SteamAPIKey, defaultSteamTimeout)
	a.watcher = workshop.New(a.store, sc, a.relay, a.render, a.bus, log.With(logx.String("comp", "workshop")))
	a.watcher.SetMention(cfg.Workshop.Mention)
	if _, err := a.sched.AddSchedule("workshop.check", workshopSchedule(cfg), defaultWorkshopTimeout, a.watcher.Run); err != nil {
		return fmt.Errorf("workshop.schedule: %w", err)
	}
	return nil
}

func (a *App) closeStore() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Tasks lists the supervised goroutines, for the health endpoint.
func (a *App) Tasks() []supervisor.TaskStats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Tasks()
}

// Done is closed when the app context ends: Stop, or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		// Only the HTTP listener returns hard errors; losing it is fatal.
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetValidator(a.validateReload)
	a.sd.status("starting")

	if err := a.tg.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	// Drained in Stop after the producers are gone.
	a.notif.Start(context.WithoutCancel(a.sup.Context()))

	if a.watcher != nil {
		cfg := a.cfgm.Get()
		if err := a.watcher.Seed(a.sup.Context(), cfg.Workshop.Mods); err != nil {
			a.log.Warn("workshop seed failed", logx.Err(err))
		}
		a.sup.Go0("workshop.initial", func(c context.Context) { _ = a.watcher.Run(c) })
	}
	a.sched.Start(a.sup.Context())

	// Seed the change gate before anything can announce.
	a.checks.Initialize(a.sup.Context())
	if snap, ok := a.status.Last(); ok {
		a.log.Info("initial status", logx.String("state", string(snap.Status.State)), logx.String("label", snap.Status.Label))
	}

	a.sup.GoRestart("status.scheduler", a.checks.Run)
	if a.socket != nil {
		a.sup.GoRestart("panel.socket", a.socket.Run)
	}
	if a.http != nil {
		a.sup.Go("http", a.http.Run)
	}
	a.sup.Go0("systemd.watchdog", a.sd.watchdog)
	a.sup.Go0("status.report", a.reportStatus)
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.ready()
	a.log.Info("app started")
	return nil
}

// validateReload rejects reloads this process could not apply.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if cfg.Workshop.Enabled {
		if err := scheduler.ValidateSchedule(workshopSchedule(cfg)); err != nil {
			return fmt.Errorf("workshop.schedule: %w", err)
		}
	}
	return nil
}

// reportStatus mirrors the latest status label into the unit's STATUS line.
func (a *App) reportStatus(ctx context.Context) {
	events, unsub := a.bus.Subscribe(8, eventbus.StatusChanged)
	defer unsub()
	if snap, ok := a.status.Last(); ok {
		a.sd.status(render.DisplayFor(snap.Status).Label)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if st, ok := e.Data.(status.ServerStatus); ok {
				a.sd.status(render.DisplayFor(st).Label)
			}
		}
	}
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping()

	a.sup.Cancel()

	a.step(ctx, "cron", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "telegram", time.Second, a.tg.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline, so a
// stuck component cannot stall the rest.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)))
	}
}

// CheckConfig validates the file at path and everything NewApp would map
// from it, without connecting anywhere.
func CheckConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, err
	}
	if err := (&App{}).validateReload(context.Background(), cfg); err != nil {
		return nil, err
	}
	if _, err := render.LoadLocation(cfg.Timezone); err != nil {
		return nil, err
	}
	return cfg, nil
}
