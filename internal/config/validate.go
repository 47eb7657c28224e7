package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks required fields and parses every duration. All problems
// are reported together, each prefixed with its field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	bad := func(path, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", path, fmt.Sprintf(format, args...)))
	}
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		bad("telegram.token", "required")
	}
	if cfg.Telegram.StatusChatID == 0 {
		bad("telegram.status_chat_id", "required")
	}

	if u := strings.TrimSpace(cfg.Panel.URL); u == "" {
		bad("panel.url", "required")
	} else if pu, err := url.Parse(u); err != nil || pu.Scheme == "" || pu.Host == "" {
		bad("panel.url", "must be an absolute URL, got %q", u)
	}
	if strings.TrimSpace(cfg.Panel.APIKey) == "" {
		bad("panel.api_key", "required")
	}
	if strings.TrimSpace(cfg.Panel.ServerID) == "" {
		bad("panel.server_id", "required")
	}
	dur("panel.timeout", cfg.Panel.Timeout)
	dur("panel.reconnect_delay", cfg.Panel.ReconnectDelay)
	dur("panel.credentials_retry", cfg.Panel.CredentialsRetry)

	if cfg.Game.Port < 0 || cfg.Game.Port > 65535 {
		bad("game.port", "out of range: %d", cfg.Game.Port)
	}
	dur("game.timeout", cfg.Game.Timeout)

	st := cfg.Status
	for path, raw := range map[string]string{
		"status.heartbeat":         st.Heartbeat,
		"status.restart_window":    st.RestartWindow,
		"status.grace_period":      st.GracePeriod,
		"status.bucket":            st.Bucket,
		"status.follow_up_delay":   st.FollowUpDelay,
		"status.ready_delay":       st.ReadyDelay,
		"status.precision_horizon": st.PrecisionHorizon,
		"status.precision_buffer":  st.PrecisionBuffer,
	} {
		dur(path, raw)
	}
	if b, err := ParseDurationField("status.bucket", st.Bucket); err == nil && b > 0 && b%time.Second != 0 {
		bad("status.bucket", "must be a whole number of seconds")
	}

	if cfg.Workshop.Enabled {
		for i, m := range cfg.Workshop.Mods {
			p := fmt.Sprintf("workshop.mods[%d]", i)
			if _, err := strconv.ParseUint(strings.TrimSpace(m.ModID), 10, 64); err != nil {
				bad(p+".mod_id", "must be numeric, got %q", m.ModID)
			}
			if _, _, err := ParseChannel(m.Channel); err != nil {
				bad(p+".channel", "%v", err)
			}
		}
	}

	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			bad("timezone", "unknown location %q", tz)
		}
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
			bad("notifier", "numeric fields must be >= 0")
		}
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.dedup_window", n.DedupWindow)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				bad("storage.path", "required for driver %q", s.Driver)
			}
		case "postgres":
			if strings.TrimSpace(s.DSN) == "" {
				bad("storage.dsn", "required for driver postgres")
			}
		default:
			bad("storage.driver", "unknown driver %q", s.Driver)
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	if e := cfg.Email; e != nil && e.Enabled {
		if strings.TrimSpace(e.APIKey) == "" {
			bad("email.api_key", "required when email is enabled")
		}
		if strings.TrimSpace(e.From) == "" {
			bad("email.from", "required when email is enabled")
		}
		if len(e.To) == 0 {
			bad("email.to", "at least one recipient required")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// ParseChannel parses "<chat_id>" or "<chat_id>:<thread_id>".
func ParseChannel(s string) (chatID int64, threadID int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, errors.New("empty channel")
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("invalid chat id %q", chatPart)
	}
	if hasThread {
		threadID, err = strconv.Atoi(threadPart)
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("invalid thread id %q", threadPart)
		}
	}
	return chatID, threadID, nil
}
