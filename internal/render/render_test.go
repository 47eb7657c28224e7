package render

import (
	"strings"
	"testing"
	"time"

	"pzrelay/internal/status"
	"pzrelay/internal/steam"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestRenderer() *Renderer {
	return New(time.UTC, "", func() time.Time { return fixedNow })
}

func TestDisplayFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		st    status.ServerStatus
		emoji string
		label string
	}{
		{"running", status.ServerStatus{State: status.StateRunning}, "🟢", "Server is Online"},
		{"restarting", status.ServerStatus{State: status.StateRestarting, Restart: &status.RestartInfo{Type: status.RestartWorkshop}}, "⏳", "Scheduled Workshop Restart"},
		{"starting", status.ServerStatus{State: status.StateStarting, Label: status.LabelInitializing}, "🟡", "Server is Initializing"},
		{"offline", status.ServerStatus{State: status.StateOffline}, "🔴", "Server is Offline"},
		{"stopping", status.ServerStatus{State: status.StateStopping}, "🔴", "Server is Offline"},
		{"error", status.ServerStatus{State: status.StateError, Label: status.LabelAPIError}, "⚪", status.LabelAPIError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := DisplayFor(tt.st)
			if d.Emoji != tt.emoji || d.Label != tt.label {
				t.Fatalf("DisplayFor = %s %q, want %s %q", d.Emoji, d.Label, tt.emoji, tt.label)
			}
		})
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	r := newTestRenderer()
	tests := []struct {
		name string
		st   status.ServerStatus
		want string
	}{
		{
			name: "running",
			st:   status.ServerStatus{State: status.StateRunning, Live: &status.LiveInfo{Players: 3, MaxPlayers: 10}},
			want: "🟢 Online | 3 / 10 Players",
		},
		{
			name: "restarting with countdown",
			st: status.ServerStatus{State: status.StateRestarting, Label: "Scheduled Daily Restart",
				Restart: &status.RestartInfo{Type: status.RestartDaily, Countdown: fixedNow.Add(time.Minute)}},
			want: "⏳ Restarting | Countdown",
		},
		{
			name: "restarting finalizing",
			st: status.ServerStatus{State: status.StateRestarting, Label: status.LabelProcessing,
				Restart: &status.RestartInfo{Type: status.RestartDaily, CountdownNote: status.NoteFinalizing}},
			want: "⏳ Restarting | Processing Restart",
		},
		{
			name: "offline",
			st:   status.ServerStatus{State: status.StateOffline, Label: status.LabelOffline},
			want: "🔴 Server is Offline",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Presence(tt.st); got != tt.want {
				t.Fatalf("Presence = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusRunning(t *testing.T) {
	t.Parallel()
	got := newTestRenderer().Status(status.ServerStatus{
		State: status.StateRunning,
		Live:  &status.LiveInfo{Players: 3, MaxPlayers: 10, Name: "Knox <PvE>"},
	})
	for _, want := range []string{
		"<b>🟢 Server is Online</b>",
		"<b>Knox &lt;PvE&gt;</b>",
		"<code>3 / 10</code>",
		"<code>Knox Country</code>",
		"<i>2026-03-14 | 09:26</i>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Status missing %q:\n%s", want, got)
		}
	}
}

func TestStatusRestarting(t *testing.T) {
	t.Parallel()
	got := newTestRenderer().Status(status.ServerStatus{
		State: status.StateRestarting,
		Restart: &status.RestartInfo{
			Type:      status.RestartDaily,
			Trigger:   fixedNow.Add(-time.Minute),
			Countdown: fixedNow.Add(4*time.Minute + 5*time.Second),
		},
	})
	for _, want := range []string{
		"Scheduled Daily Restart",
		"<b>Restarting:</b> 09:30:58 (in 4m 05s)",
		"<b>Triggered At:</b> 09:25:53",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Status missing %q:\n%s", want, got)
		}
	}
}

func TestStatusFinalizing(t *testing.T) {
	t.Parallel()
	got := newTestRenderer().Status(status.ServerStatus{
		State:   status.StateRestarting,
		Restart: &status.RestartInfo{Type: status.RestartWorkshop, CountdownNote: status.NoteFinalizing, Trigger: fixedNow},
	})
	if !strings.Contains(got, "<b>Restarting:</b> Finalizing reboot...") {
		t.Fatalf("Status = %s", got)
	}
}

func TestWorkshop(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", 400)
	got := newTestRenderer().Workshop(steam.FileDetails{PublishedFileID: "2392709985", Title: "Brita's Weapon Pack", Description: long}, "@survivors")

	for _, want := range []string{
		"<b>🛠️ Workshop Update Detected!</b>",
		"<b>Mod Name:</b> Brita&#39;s Weapon Pack",
		"<b>Mod ID:</b> <code>2392709985</code>",
		strings.Repeat("é", 300) + "...",
		"@survivors",
		`<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=2392709985">View on Workshop</a>`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Workshop missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, strings.Repeat("é", 301)) {
		t.Fatal("description not truncated")
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if s, cut := TruncRunes("héllo", 3); s != "hél" || !cut {
		t.Fatalf("TruncRunes = %q, %v", s, cut)
	}
	if s, cut := TruncRunes("hi", 3); s != "hi" || cut {
		t.Fatalf("TruncRunes = %q, %v", s, cut)
	}
}

func TestSetLocationChangesFooter(t *testing.T) {
	t.Parallel()
	r := newTestRenderer()
	r.SetLocation(time.FixedZone("UTC+7", 7*3600))
	got := r.Status(status.ServerStatus{State: status.StateOffline, Label: status.LabelOffline})
	if !strings.Contains(got, "<i>2026-03-14 | 16:26</i>") {
		t.Fatalf("Status footer not shifted:\n%s", got)
	}
}
