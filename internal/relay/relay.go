// Package relay delivers status results to chat: alerts on changes and a
// presence message edited in place after every cycle.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pzrelay/internal/notifier"
	"pzrelay/internal/render"
	"pzrelay/internal/status"
	"pzrelay/internal/transport/telegram"

	kit "pzrelay/internal/transport"
	logx "pzrelay/pkg/logx"
)

type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// ChatClient sends and edits chat messages directly.
type ChatClient interface {
	kit.Sender
	kit.Editor
}

type Targets struct {
	Status kit.ChatTarget
	// Presence zero ChatID disables the presence message.
	Presence kit.ChatTarget
	// Email mirrors alerts to the email channel.
	Email bool
}

// After this many failed edits the presence message is re-created.
const maxEditFailures = 3

type Relay struct {
	notifier Notifier
	chat     ChatClient
	render   *render.Renderer
	log      logx.Logger

	mu           sync.Mutex
	targets      Targets
	presenceRef  *kit.MessageRef
	presenceText string
	editFailures int
}

func New(n Notifier, chat ChatClient, r *render.Renderer, targets Targets, log logx.Logger) *Relay {
	return &Relay{notifier: n, chat: chat, render: r, targets: targets, log: log}
}

// SetTargets swaps destinations. A moved presence chat gets a new message.
func (r *Relay) SetTargets(t Targets) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Presence != r.targets.Presence {
		r.presenceRef = nil
		r.presenceText = ""
		r.editFailures = 0
	}
	r.targets = t
}

func (r *Relay) StatusChanged(ctx context.Context, st status.ServerStatus, prevKey, newKey string) error {
	r.mu.Lock()
	t := r.targets
	r.mu.Unlock()

	text := r.render.Status(st)
	var errs []error
	err := r.deliver(ctx, kit.Notification{
		Channel:  kit.ChannelTelegram,
		Priority: 7,
		Target:   t.Status,
		Text:     text,
		Options:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("telegram: %w", err))
	}
	if t.Email {
		err := r.deliver(ctx, kit.Notification{
			Channel:  kit.ChannelEmail,
			Priority: 7,
			Text:     text,
			Options:  &kit.SendOptions{ParseMode: "HTML", Subject: r.render.Subject(st)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	r.log.Debug("status alert queued", logx.String("prev", prevKey), logx.String("key", newKey))
	return errors.Join(errs...)
}

// Notify lets other producers (the workshop watcher) share the relay's
// delivery path.
func (r *Relay) Notify(ctx context.Context, n kit.Notification) error {
	return r.deliver(ctx, n)
}

// deliver goes through the notifier; with the notifier disabled telegram
// messages are sent inline.
func (r *Relay) deliver(ctx context.Context, n kit.Notification) error {
	err := r.notifier.Notify(ctx, n)
	if !errors.Is(err, notifier.ErrDisabled) {
		return err
	}
	if n.Channel != kit.ChannelTelegram {
		return err
	}
	_, err = r.chat.SendText(ctx, n.Target, n.Text, n.Options)
	return err
}

// Presence updates the presence message when its text changed.
func (r *Relay) Presence(ctx context.Context, st status.ServerStatus) error {
	text := r.render.Presence(st)

	r.mu.Lock()
	defer r.mu.Unlock()
	to := r.targets.Presence
	if to.ChatID == 0 || text == r.presenceText {
		return nil
	}

	if r.presenceRef == nil {
		ref, err := r.chat.SendText(ctx, to, text, &kit.SendOptions{Silent: true, DisablePreview: true})
		if err != nil {
			return fmt.Errorf("send presence: %w", err)
		}
		r.presenceRef = &ref
		r.presenceText = text
		r.editFailures = 0
		r.log.Info("presence message created", logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID))
		return nil
	}

	err := r.chat.EditText(ctx, *r.presenceRef, text, &kit.SendOptions{DisablePreview: true})
	switch {
	case err == nil, errors.Is(err, telegram.ErrNotModified):
		r.presenceText = text
		r.editFailures = 0
		return nil
	default:
		r.editFailures++
		if r.editFailures >= maxEditFailures {
			r.log.Warn("presence message lost; will re-create", logx.Err(err))
			r.presenceRef = nil
			r.presenceText = ""
			r.editFailures = 0
		}
		return fmt.Errorf("edit presence: %w", err)
	}
}

var _ status.Sink = (*Relay)(nil)
