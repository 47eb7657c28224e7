// Package render turns statuses and workshop updates into chat messages.
package render

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pzrelay/internal/status"
	"pzrelay/internal/steam"
)

const (
	DefaultMap = "Knox Country"

	// Workshop descriptions are cut to this many runes.
	descriptionLimit = 300
)

// Display is how a state is presented.
type Display struct {
	Emoji  string `json:"emoji"`
	Label  string `json:"label"`
	Accent int    `json:"accent"`
}

func (d Display) AccentHex() string { return fmt.Sprintf("#%06X", d.Accent) }

type Renderer struct {
	loc        atomic.Pointer[time.Location]
	defaultMap string
	now        func() time.Time
}

// New returns a renderer. A nil loc renders in local time; now may be nil.
func New(loc *time.Location, defaultMap string, now func() time.Time) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	if strings.TrimSpace(defaultMap) == "" {
		defaultMap = DefaultMap
	}
	if now == nil {
		now = time.Now
	}
	r := &Renderer{defaultMap: defaultMap, now: now}
	r.loc.Store(loc)
	return r
}

// SetLocation switches the zone used for times in later messages.
func (r *Renderer) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	r.loc.Store(loc)
}

// LoadLocation resolves an IANA name; empty means local time.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}

func DisplayFor(st status.ServerStatus) Display {
	switch st.State {
	case status.StateRunning:
		return Display{Emoji: "🟢", Label: "Server is Online", Accent: 0x2ECC71}
	case status.StateRestarting:
		typ := status.RestartDaily
		if st.Restart != nil && st.Restart.Type != "" {
			typ = st.Restart.Type
		}
		return Display{Emoji: "⏳", Label: "Scheduled " + typ + " Restart", Accent: 0x9B59B6}
	case status.StateStarting:
		return Display{Emoji: "🟡", Label: "Server is Initializing", Accent: 0xF1C40F}
	case status.StateOffline, status.StateStopping:
		return Display{Emoji: "🔴", Label: "Server is Offline", Accent: 0xE74C3C}
	default:
		return Display{Emoji: "⚪", Label: st.Label, Accent: 0x808080}
	}
}

// Presence is the one-line status kept in the presence message.
func (r *Renderer) Presence(st status.ServerStatus) string {
	switch st.State {
	case status.StateRunning:
		if st.Live != nil {
			return fmt.Sprintf("🟢 Online | %d / %d Players", st.Live.Players, st.Live.MaxPlayers)
		}
	case status.StateRestarting:
		if st.Restart != nil && !st.Restart.Countdown.IsZero() {
			return "⏳ Restarting | Countdown"
		}
		return "⏳ Restarting | " + st.Label
	}
	d := DisplayFor(st)
	return d.Emoji + " " + d.Label
}

// Subject is a short title for mail-like channels.
func (r *Renderer) Subject(st status.ServerStatus) string {
	d := DisplayFor(st)
	return d.Emoji + " " + d.Label
}

// Status renders the alert posted when the status changes.
func (r *Renderer) Status(st status.ServerStatus) string {
	d := DisplayFor(st)
	title := B(d.Emoji + " " + d.Label)

	var body H
	switch st.State {
	case status.StateRunning:
		if st.Live != nil {
			m := st.Live.Map
			if strings.TrimSpace(m) == "" {
				m = r.defaultMap
			}
			body = Lines(
				B(st.Live.Name),
				H("👤 "+B("Players:").String()+" "+Code(fmt.Sprintf("%d / %d", st.Live.Players, st.Live.MaxPlayers)).String()),
				H("🗺️ "+B("Map:").String()+" "+Code(m).String()),
			)
		}
	case status.StateRestarting:
		if st.Restart != nil {
			body = Lines(
				H(B("Restarting:").String()+" "+Esc(r.countdown(st.Restart)).String()),
				H(B("Triggered At:").String()+" "+Esc(r.clock(st.Restart.Trigger)).String()),
			)
		}
	}

	now := r.now().In(r.loc.Load())
	footer := I(now.Format("2006-01-02") + " | " + now.Format("15:04"))
	return Blocks(title, body, footer).String()
}

func (r *Renderer) countdown(ri *status.RestartInfo) string {
	if ri.Countdown.IsZero() {
		if ri.CountdownNote != "" {
			return ri.CountdownNote
		}
		return "soon"
	}
	left := ri.Countdown.Sub(r.now()).Round(time.Second)
	at := r.clock(ri.Countdown)
	if left <= 0 {
		return at + " (any moment now)"
	}
	return at + " (in " + humanDuration(left) + ")"
}

func (r *Renderer) clock(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.In(r.loc.Load()).Format("15:04:05")
}

// humanDuration renders whole minutes and seconds, e.g. "4m 05s".
func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}

// Workshop renders the update alert for one mod.
func (r *Renderer) Workshop(d steam.FileDetails, mention string) string {
	desc, _ := TruncRunes(strings.TrimSpace(d.Description), descriptionLimit)
	var descH H
	if desc != "" {
		descH = Esc(desc + "...")
	}
	var mentionH H
	if m := strings.TrimSpace(mention); m != "" {
		mentionH = Esc(m)
	}
	return Blocks(
		B("🛠️ Workshop Update Detected!"),
		Lines(
			H(B("Mod Name:").String()+" "+Esc(d.Title).String()),
			H(B("Mod ID:").String()+" "+Code(d.PublishedFileID).String()),
		),
		descH,
		Lines(mentionH, Link("View on Workshop", steam.WorkshopURL(d.PublishedFileID))),
	).String()
}
