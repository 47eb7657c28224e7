package config

// Config is the relay's whole configuration file.
//
// Durations are Go duration strings ("20s", "5m"). Secrets may be written as
// ${ENV_NAME} and are expanded when the file is read.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Panel    PanelConfig    `json:"panel"`
	Game     GameConfig     `json:"game"`
	Status   StatusConfig   `json:"status"`
	Workshop WorkshopConfig `json:"workshop"`

	// Timezone used when rendering times in messages (IANA name). Empty: local.
	Timezone string `json:"timezone,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// Status alerts go here.
	StatusChatID   int64 `json:"status_chat_id"`
	StatusThreadID int   `json:"status_thread_id,omitempty"`

	Presence PresenceConfig `json:"presence"`

	// GroupLog receives mirrored warnings when logging.telegram is enabled.
	GroupLog int64 `json:"group_log,omitempty"`
}

// PresenceConfig controls the single status line edited in place.
// ChatID 0 falls back to telegram.status_chat_id.
type PresenceConfig struct {
	Enabled  bool  `json:"enabled"`
	ChatID   int64 `json:"chat_id,omitempty"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// PanelConfig points at one server on a Pterodactyl-style panel.
type PanelConfig struct {
	URL      string `json:"url"`
	APIKey   string `json:"api_key"`
	ServerID string `json:"server_id"`
	Timeout  string `json:"timeout,omitempty"` // default 10s

	// DisableRealtime turns off the websocket push channel; heartbeat polling stays.
	DisableRealtime bool `json:"disable_realtime,omitempty"`
	// ReconnectDelay after a closed socket (default 5s); CredentialsRetry when
	// the socket credentials cannot be fetched (default 30s).
	ReconnectDelay   string `json:"reconnect_delay,omitempty"`
	CredentialsRetry string `json:"credentials_retry,omitempty"`
}

// GameConfig is the live query endpoint (Source query protocol).
type GameConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"` // default 16261
	Timeout string `json:"timeout,omitempty"`
	// Map shown when the server does not report one.
	DefaultMap string `json:"default_map,omitempty"`
}

// StatusConfig tunes status resolution and scheduling. Empty fields keep defaults.
type StatusConfig struct {
	Heartbeat        string   `json:"heartbeat,omitempty"`
	RestartWindow    string   `json:"restart_window,omitempty"`
	GracePeriod      string   `json:"grace_period,omitempty"`
	Bucket           string   `json:"bucket,omitempty"`
	FollowUpDelay    string   `json:"follow_up_delay,omitempty"`
	ReadyDelay       string   `json:"ready_delay,omitempty"`
	ReadyMarker      string   `json:"ready_marker,omitempty"`
	PrecisionHorizon string   `json:"precision_horizon,omitempty"`
	PrecisionBuffer  string   `json:"precision_buffer,omitempty"`
	RestartKeywords  []string `json:"restart_keywords,omitempty"`
}

type WorkshopConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule accepts a cron expression, a duration, or HH:MM. Default "5m".
	Schedule    string `json:"schedule,omitempty"`
	SteamAPIKey string `json:"steam_api_key,omitempty"`
	SteamURL    string `json:"steam_url,omitempty"`
	// Mention is prepended to update alerts (e.g. "@modwatchers").
	Mention string `json:"mention,omitempty"`

	// Mods are seeded into the store at startup if absent.
	Mods []WorkshopMod `json:"mods,omitempty"`
}

// WorkshopMod binds a workshop item to the chat that hears about its updates.
// Channel is "<chat_id>" or "<chat_id>:<thread_id>".
type WorkshopMod struct {
	ModID   string `json:"mod_id"`
	Channel string `json:"channel"`
}

// NotifierConfig controls the async delivery pipeline. If omitted the
// notifier runs enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// StorageConfig selects the tracked-mod store.
//
//	"storage": { "driver": "sqlite", "path": "./pzrelay.db" }
//	"storage": { "driver": "postgres", "dsn": "${DATABASE_URL}" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | postgres
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EmailConfig mirrors status changes to email through SendGrid.
type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	APIKey   string   `json:"api_key"`
	From     string   `json:"from"`
	FromName string   `json:"from_name,omitempty"`
	To       []string `json:"to"`
}

// HTTPConfig enables the local status API.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:8089
	// Token guards POST /status/check and the profiler. Required for pprof
	// on a non-loopback addr.
	Token string `json:"token,omitempty"`
	Pprof bool   `json:"pprof,omitempty"`
}
