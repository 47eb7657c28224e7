// Package workshop announces updates of tracked Steam Workshop items.
package workshop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pzrelay/internal/config"
	"pzrelay/internal/eventbus"
	"pzrelay/internal/render"
	"pzrelay/internal/steam"
	"pzrelay/internal/storage"
	kit "pzrelay/internal/transport"
	logx "pzrelay/pkg/logx"
)

// DetailsFetcher is the Steam lookup.
type DetailsFetcher interface {
	PublishedFileDetails(ctx context.Context, ids []string) ([]steam.FileDetails, error)
}

type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Update is the Data of workshop.updated events.
type Update struct {
	ModID       string    `json:"mod_id"`
	Title       string    `json:"title"`
	TimeUpdated time.Time `json:"time_updated"`
	ChannelID   string    `json:"channel_id"`
}

// Result summarizes one check.
type Result struct {
	Tracked   int
	Updated   int
	Baselined int
	Failed    int
}

type Watcher struct {
	store    storage.Store
	steam    DetailsFetcher
	notifier Notifier
	render   *render.Renderer
	bus      eventbus.Bus
	log      logx.Logger

	mu      sync.Mutex
	mention string
}

func New(store storage.Store, steam DetailsFetcher, notifier Notifier, r *render.Renderer, bus eventbus.Bus, log logx.Logger) *Watcher {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Watcher{store: store, steam: steam, notifier: notifier, render: r, bus: bus, log: log}
}

// SetMention changes the text placed above the workshop link.
func (w *Watcher) SetMention(m string) {
	w.mu.Lock()
	w.mention = m
	w.mu.Unlock()
}

// Seed adds mods that are not tracked yet. Existing rows keep their timestamp.
func (w *Watcher) Seed(ctx context.Context, mods []config.WorkshopMod) error {
	var errs []error
	for _, m := range mods {
		inserted, err := w.store.TrackMod(ctx, storage.TrackedMod{ModID: m.ModID, ChannelID: m.Channel})
		if err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", m.ModID, err))
			continue
		}
		if inserted {
			w.log.Info("mod tracked", logx.String("mod_id", m.ModID), logx.String("channel", m.Channel))
		}
	}
	return errors.Join(errs...)
}

// Check runs one pass. A mod seen for the first time (stored timestamp 0)
// is baselined without an alert. Per-mod failures are logged and counted;
// the returned error covers only the store and Steam lookups.
func (w *Watcher) Check(ctx context.Context) (Result, error) {
	var res Result
	mods, err := w.store.TrackedMods(ctx)
	if err != nil {
		return res, fmt.Errorf("load tracked mods: %w", err)
	}
	res.Tracked = len(mods)
	if len(mods) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(mods))
	for _, m := range mods {
		ids = append(ids, m.ModID)
	}
	details, err := w.steam.PublishedFileDetails(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("steam details: %w", err)
	}
	byID := make(map[string]steam.FileDetails, len(details))
	for _, d := range details {
		if d.Found() {
			byID[d.PublishedFileID] = d
		}
	}

	w.mu.Lock()
	mention := w.mention
	w.mu.Unlock()

	for _, m := range mods {
		d, ok := byID[m.ModID]
		if !ok {
			w.log.Debug("mod not found on steam", logx.String("mod_id", m.ModID))
			continue
		}
		if d.TimeUpdated <= m.LastUpdated {
			continue
		}

		if m.LastUpdated == 0 {
			if _, err := w.store.UpdateModTimestamp(ctx, m.ModID, d.TimeUpdated); err != nil {
				res.Failed++
				w.log.Warn("baseline failed", logx.String("mod_id", m.ModID), logx.Err(err))
				continue
			}
			res.Baselined++
			w.log.Info("mod baselined", logx.String("mod_id", m.ModID), logx.String("title", d.Title))
			continue
		}

		w.log.Info("workshop update detected", logx.String("mod_id", m.ModID), logx.String("title", d.Title))
		if err := w.announce(ctx, m, d, mention); err != nil {
			// The timestamp stays old so the next pass retries.
			res.Failed++
			w.log.Warn("workshop notification failed", logx.String("mod_id", m.ModID), logx.Err(err))
			continue
		}
		if _, err := w.store.UpdateModTimestamp(ctx, m.ModID, d.TimeUpdated); err != nil {
			res.Failed++
			w.log.Warn("timestamp update failed", logx.String("mod_id", m.ModID), logx.Err(err))
			continue
		}
		res.Updated++
		w.bus.Publish(eventbus.Event{Type: eventbus.WorkshopUpdated, Data: Update{
			ModID:       m.ModID,
			Title:       d.Title,
			TimeUpdated: time.Unix(d.TimeUpdated, 0),
			ChannelID:   m.ChannelID,
		}})
	}
	return res, nil
}

func (w *Watcher) announce(ctx context.Context, m storage.TrackedMod, d steam.FileDetails, mention string) error {
	chatID, threadID, err := config.ParseChannel(m.ChannelID)
	if err != nil {
		return err
	}
	return w.notifier.Notify(ctx, kit.Notification{
		Channel:  kit.ChannelTelegram,
		Priority: 5,
		Target:   kit.ChatTarget{ChatID: chatID, ThreadID: threadID},
		Text:     w.render.Workshop(d, mention),
		Options:  &kit.SendOptions{ParseMode: "HTML"},
	})
}

// Run is the scheduled job: it logs the outcome and never fails the schedule
// for per-mod problems.
func (w *Watcher) Run(ctx context.Context) error {
	res, err := w.Check(ctx)
	if err != nil {
		w.log.Warn("workshop check failed", logx.Err(err))
		return err
	}
	w.log.Debug("workshop check done",
		logx.Int("tracked", res.Tracked),
		logx.Int("updated", res.Updated),
		logx.Int("baselined", res.Baselined),
		logx.Int("failed", res.Failed))
	return nil
}
