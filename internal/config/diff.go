package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pzrelay/pkg/logx"
)

// Sections that can be applied without a restart.
var hotSections = map[string]bool{"logging": true, "status": true, "notifier": true, "timezone": true}

// SummarizeConfigChange lists the changed top-level sections, log fields safe
// to print (never secrets), and the changed sections that need a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, needRestart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	sections := map[string][2]any{
		"telegram": {oldCfg.Telegram, newCfg.Telegram},
		"logging":  {oldCfg.Logging, newCfg.Logging},
		"panel":    {oldCfg.Panel, newCfg.Panel},
		"game":     {oldCfg.Game, newCfg.Game},
		"status":   {oldCfg.Status, newCfg.Status},
		"workshop": {oldCfg.Workshop, newCfg.Workshop},
		"timezone": {oldCfg.Timezone, newCfg.Timezone},
		"notifier": {oldCfg.Notifier, newCfg.Notifier},
		"storage":  {oldCfg.Storage, newCfg.Storage},
		"email":    {oldCfg.Email, newCfg.Email},
		"http":     {oldCfg.HTTP, newCfg.HTTP},
	}
	for name, pair := range sections {
		if reflect.DeepEqual(pair[0], pair[1]) {
			continue
		}
		changed = append(changed, name)
		hot := hotSections[name]
		if name == "telegram" {
			// Chat targets apply live; a new bot token does not.
			hot = oldCfg.Telegram.Token == newCfg.Telegram.Token
		}
		if !hot {
			needRestart = append(needRestart, name)
		}
	}
	sort.Strings(changed)
	sort.Strings(needRestart)

	for _, name := range changed {
		switch name {
		case "logging":
			attrs = append(attrs,
				logx.String("logging.level", newCfg.Logging.Level),
				logx.Bool("logging.file", newCfg.Logging.File.Enabled),
				logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
			)
		case "status":
			attrs = append(attrs,
				logx.String("status.heartbeat", strings.TrimSpace(newCfg.Status.Heartbeat)),
				logx.String("status.bucket", strings.TrimSpace(newCfg.Status.Bucket)),
			)
		case "notifier":
			if n := newCfg.Notifier; n != nil {
				attrs = append(attrs, logx.Bool("notifier.enabled", n.Enabled), logx.Int("notifier.rate_per_sec", n.RatePerSec))
			}
		case "workshop":
			attrs = append(attrs,
				logx.Bool("workshop.enabled", newCfg.Workshop.Enabled),
				logx.Int("workshop.mods", len(newCfg.Workshop.Mods)),
				logx.Bool("workshop.steam_key_set", strings.TrimSpace(newCfg.Workshop.SteamAPIKey) != ""),
			)
		}
	}
	return changed, attrs, needRestart
}
