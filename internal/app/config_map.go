package app

import (
	"net/url"
	"strings"
	"time"

	"pzrelay/internal/config"
	"pzrelay/internal/notifier"
	"pzrelay/internal/relay"
	"pzrelay/internal/status"
	"pzrelay/internal/storage"
	"pzrelay/internal/task/scheduler"
	kit "pzrelay/internal/transport"
	logx "pzrelay/pkg/logx"
)

const (
	defaultGamePort         = 16261
	defaultWorkshopSchedule = "5m"
	defaultWorkshopTimeout  = 2 * time.Minute
	defaultSteamTimeout     = 15 * time.Second
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.GroupLog,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// mapTimings expects a validated config; unparsable values fall back to defaults.
func mapTimings(cfg *config.Config) status.Timings {
	st := cfg.Status
	d := status.DefaultTimings()
	return status.Timings{
		Heartbeat:        config.MustDuration(st.Heartbeat, d.Heartbeat),
		RestartWindow:    config.MustDuration(st.RestartWindow, d.RestartWindow),
		GracePeriod:      config.MustDuration(st.GracePeriod, d.GracePeriod),
		Bucket:           config.MustDuration(st.Bucket, d.Bucket),
		FollowUpDelay:    config.MustDuration(st.FollowUpDelay, d.FollowUpDelay),
		ReadyDelay:       config.MustDuration(st.ReadyDelay, d.ReadyDelay),
		PrecisionHorizon: config.MustDuration(st.PrecisionHorizon, d.PrecisionHorizon),
		PrecisionBuffer:  config.MustDuration(st.PrecisionBuffer, d.PrecisionBuffer),
		ReadyMarker:      strings.TrimSpace(st.ReadyMarker),
		RestartKeywords:  st.RestartKeywords,
	}.WithDefaults()
}

// mapNotifierConfig treats an omitted section as enabled with defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true, RetryMax: 3, DedupWindow: 30 * time.Second}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       base,
		RetryMaxDelay:   maxDelay,
		DedupWindow:     dedup,
		DedupMaxEntries: n.DedupMaxEntries,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

// mapTargets derives the relay destinations. Presence falls back to the
// status chat when its own chat id is unset.
func mapTargets(cfg *config.Config) relay.Targets {
	t := relay.Targets{
		Status: kit.ChatTarget{ChatID: cfg.Telegram.StatusChatID, ThreadID: cfg.Telegram.StatusThreadID},
		Email:  cfg.Email != nil && cfg.Email.Enabled,
	}
	if p := cfg.Telegram.Presence; p.Enabled {
		t.Presence = kit.ChatTarget{ChatID: p.ChatID, ThreadID: p.ThreadID}
		if p.ChatID == 0 {
			t.Presence = t.Status
		}
	}
	return t
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Timezone)}
}

// gameEndpoint defaults the query host to the panel's host name.
func gameEndpoint(cfg *config.Config) (string, int) {
	host := strings.TrimSpace(cfg.Game.Host)
	if host == "" {
		if u, err := url.Parse(strings.TrimSpace(cfg.Panel.URL)); err == nil {
			host = u.Hostname()
		}
	}
	port := cfg.Game.Port
	if port == 0 {
		port = defaultGamePort
	}
	return host, port
}

func workshopSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Workshop.Schedule); s != "" {
		return s
	}
	return defaultWorkshopSchedule
}
