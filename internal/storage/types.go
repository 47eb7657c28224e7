package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config selects a driver. Driver "" or "none" disables storage.
type Config struct {
	Driver      string
	Path        string // file, sqlite
	DSN         string // postgres
	BusyTimeout time.Duration
}

// TrackedMod is one row of workshop_tracks. LastUpdated is the Steam
// time_updated (unix seconds) last announced; 0 means never seen.
type TrackedMod struct {
	ModID       string `json:"mod_id"`
	ChannelID   string `json:"channel_id"`
	LastUpdated int64  `json:"last_updated"`
}

type Store interface {
	TrackedMods(ctx context.Context) ([]TrackedMod, error)
	// UpdateModTimestamp reports false when no row matched modID.
	UpdateModTimestamp(ctx context.Context, modID string, ts int64) (bool, error)
	// TrackMod inserts m unless modID is already tracked; it reports whether it inserted.
	TrackMod(ctx context.Context, m TrackedMod) (bool, error)
	Close() error
}
