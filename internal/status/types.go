// Package status derives one coherent server status from the panel power
// state, the panel's restart schedules and a live game query, and decides
// when that status is worth announcing.
package status

import (
	"context"
	"time"
)

type State string

const (
	StateOffline    State = "offline"
	StateStopping   State = "stopping"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting_scheduled"
	StateError      State = "error"
	StateUnknown    State = "unknown"
)

// Raw power states reported by the panel.
const (
	PowerOffline  = "offline"
	PowerStarting = "starting"
	PowerStopping = "stopping"
	PowerRunning  = "running"
	PowerError    = "error"
)

const (
	LabelOffline      = "Offline"
	LabelStopping     = "Stopping..."
	LabelStarting     = "Starting..."
	LabelRunning      = "Running"
	LabelAPIError     = "Offline (API Error)"
	LabelInitializing = "Offline (Initializing)"
	LabelProcessing   = "Processing Restart"
	LabelUnknown      = "Unknown"

	NoteFinalizing = "Finalizing reboot..."
)

const (
	RestartWorkshop = "Workshop"
	RestartDaily    = "Daily"
)

// ServerStatus is the result of one resolution cycle.
type ServerStatus struct {
	State      State  `json:"state"`
	Label      string `json:"label"`
	PowerState string `json:"power_state"`

	// Set only for StateRestarting.
	Restart *RestartInfo `json:"restart,omitempty"`
	// Set only for StateRunning after a successful live query.
	Live *LiveInfo `json:"live,omitempty"`
}

type RestartInfo struct {
	Type string `json:"type"`
	// Countdown is the expected completion time; zero in the post-run phase.
	Countdown     time.Time `json:"countdown,omitempty"`
	CountdownNote string    `json:"countdown_note,omitempty"`
	Trigger       time.Time `json:"trigger"`
}

type LiveInfo struct {
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Map        string `json:"map,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ScheduledJob is one panel schedule. Zero times mean "not set".
type ScheduledJob struct {
	ID           int
	Name         string
	IsActive     bool
	IsProcessing bool
	LastRunAt    time.Time
	NextRunAt    time.Time
	UpdatedAt    time.Time
}

type PanelClient interface {
	PowerState(ctx context.Context) (string, error)
	Schedules(ctx context.Context) ([]ScheduledJob, error)
}

// LiveQuerier asks the game server itself; host and port are bound at construction.
type LiveQuerier interface {
	Query(ctx context.Context) (LiveInfo, error)
}

// Timings holds every tunable interval. Zero fields take the default.
type Timings struct {
	Heartbeat        time.Duration
	RestartWindow    time.Duration
	GracePeriod      time.Duration
	Bucket           time.Duration
	FollowUpDelay    time.Duration
	ReadyDelay       time.Duration
	PrecisionHorizon time.Duration
	PrecisionBuffer  time.Duration

	ReadyMarker     string
	RestartKeywords []string
}

const DefaultReadyMarker = "[StatsCollector] Economy hooks attached."

var DefaultRestartKeywords = []string{"restart", "reboot", "shutting down"}

func DefaultTimings() Timings {
	return Timings{
		Heartbeat:        20 * time.Second,
		RestartWindow:    5 * time.Minute,
		GracePeriod:      60 * time.Second,
		Bucket:           600 * time.Second,
		FollowUpDelay:    20 * time.Second,
		ReadyDelay:       15 * time.Second,
		PrecisionHorizon: 10 * time.Minute,
		PrecisionBuffer:  2 * time.Second,
		ReadyMarker:      DefaultReadyMarker,
		RestartKeywords:  DefaultRestartKeywords,
	}
}

// WithDefaults fills zero fields from DefaultTimings.
func (t Timings) WithDefaults() Timings {
	d := DefaultTimings()
	pick := func(v, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v
	}
	t.Heartbeat = pick(t.Heartbeat, d.Heartbeat)
	t.RestartWindow = pick(t.RestartWindow, d.RestartWindow)
	t.GracePeriod = pick(t.GracePeriod, d.GracePeriod)
	t.Bucket = pick(t.Bucket, d.Bucket)
	t.FollowUpDelay = pick(t.FollowUpDelay, d.FollowUpDelay)
	t.ReadyDelay = pick(t.ReadyDelay, d.ReadyDelay)
	t.PrecisionHorizon = pick(t.PrecisionHorizon, d.PrecisionHorizon)
	t.PrecisionBuffer = pick(t.PrecisionBuffer, d.PrecisionBuffer)
	if t.ReadyMarker == "" {
		t.ReadyMarker = d.ReadyMarker
	}
	if len(t.RestartKeywords) == 0 {
		t.RestartKeywords = d.RestartKeywords
	}
	return t
}
