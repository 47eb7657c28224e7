package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "pzrelay/pkg/logx"
)

// sdNotifier reports lifecycle to the service manager. Outside systemd
// (no NOTIFY_SOCKET) every call is a no-op.
type sdNotifier struct {
	log logx.Logger
}

func (n sdNotifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n sdNotifier) ready()          { n.notify(daemon.SdNotifyReady) }
func (n sdNotifier) stopping()       { n.notify(daemon.SdNotifyStopping) }
func (n sdNotifier) status(s string) { n.notify("STATUS=" + s) }

// watchdog pings at half the configured interval until ctx is done.
// It returns immediately when the watchdog is not enabled for this unit.
func (n sdNotifier) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	tick := interval / 2
	if tick < time.Second {
		tick = time.Second
	}
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
