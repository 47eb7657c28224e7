package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pzrelay/internal/notifier"
	"pzrelay/internal/render"
	"pzrelay/internal/status"
	"pzrelay/internal/transport/telegram"

	kit "pzrelay/internal/transport"
	logx "pzrelay/pkg/logx"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeChat struct {
	sends   []string
	edits   []string
	editErr error
	nextID  int
}

func (f *fakeChat) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sends = append(f.sends, text)
	f.nextID++
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeChat) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, text)
	return nil
}

func newRelay(n Notifier, c ChatClient, t Targets) *Relay {
	return New(n, c, render.New(time.UTC, "", nil), t, logx.Nop())
}

var (
	running = status.ServerStatus{State: status.StateRunning, Label: status.LabelRunning, PowerState: "running", Live: &status.LiveInfo{Players: 3, MaxPlayers: 10}}
	offline = status.ServerStatus{State: status.StateOffline, Label: status.LabelOffline, PowerState: "offline"}
)

func TestStatusChangedRoutesToChannels(t *testing.T) {
	t.Parallel()
	n := &fakeNotifier{}
	r := newRelay(n, &fakeChat{}, Targets{Status: kit.ChatTarget{ChatID: -100, ThreadID: 2}, Email: true})

	if err := r.StatusChanged(context.Background(), running, "", "running"); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 2 {
		t.Fatalf("notifications = %d, want 2", len(n.sent))
	}
	if n.sent[0].Channel != kit.ChannelTelegram || n.sent[0].Target.ChatID != -100 || n.sent[0].Target.ThreadID != 2 {
		t.Fatalf("telegram notification = %+v", n.sent[0])
	}
	if n.sent[1].Channel != kit.ChannelEmail || n.sent[1].Options.Subject != "🟢 Server is Online" {
		t.Fatalf("email notification = %+v", n.sent[1])
	}
}

func TestStatusChangedFallsBackWhenNotifierDisabled(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r := newRelay(&fakeNotifier{err: notifier.ErrDisabled}, chat, Targets{Status: kit.ChatTarget{ChatID: -100}})
	if err := r.StatusChanged(context.Background(), offline, "running", "offline"); err != nil {
		t.Fatal(err)
	}
	if len(chat.sends) != 1 {
		t.Fatalf("direct sends = %d, want 1", len(chat.sends))
	}
}

func TestPresenceCreatesThenEdits(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r := newRelay(&fakeNotifier{}, chat, Targets{Presence: kit.ChatTarget{ChatID: -200}})
	ctx := context.Background()

	steps := []status.ServerStatus{running, running, offline}
	for _, st := range steps {
		if err := r.Presence(ctx, st); err != nil {
			t.Fatal(err)
		}
	}
	if len(chat.sends) != 1 || chat.sends[0] != "🟢 Online | 3 / 10 Players" {
		t.Fatalf("sends = %v", chat.sends)
	}
	// The repeated running status is not re-sent.
	if len(chat.edits) != 1 || chat.edits[0] != "🔴 Server is Offline" {
		t.Fatalf("edits = %v", chat.edits)
	}
}

func TestPresenceDisabledWithoutChat(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r := newRelay(&fakeNotifier{}, chat, Targets{})
	if err := r.Presence(context.Background(), running); err != nil || len(chat.sends) != 0 {
		t.Fatalf("err = %v, sends = %d", err, len(chat.sends))
	}
}

func TestPresenceRecreatedAfterRepeatedEditFailures(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r := newRelay(&fakeNotifier{}, chat, Targets{Presence: kit.ChatTarget{ChatID: -200}})
	ctx := context.Background()
	_ = r.Presence(ctx, running)

	chat.editErr = errors.New("message to edit not found")
	for i := 0; i < maxEditFailures; i++ {
		if err := r.Presence(ctx, offline); err == nil {
			t.Fatal("edit failure not reported")
		}
	}
	chat.editErr = nil
	if err := r.Presence(ctx, offline); err != nil {
		t.Fatal(err)
	}
	if len(chat.sends) != 2 {
		t.Fatalf("sends = %d, want a fresh presence message", len(chat.sends))
	}
}

func TestPresenceNotModifiedIsSuccess(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r := newRelay(&fakeNotifier{}, chat, Targets{Presence: kit.ChatTarget{ChatID: -200}})
	ctx := context.Background()
	_ = r.Presence(ctx, running)
	chat.editErr = telegram.ErrNotModified
	if err := r.Presence(ctx, offline); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestNotifySharesFallback(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r := newRelay(&fakeNotifier{err: notifier.ErrDisabled}, chat, Targets{})

	n := kit.Notification{Channel: kit.ChannelTelegram, Target: kit.ChatTarget{ChatID: -5}, Text: "mod updated"}
	if err := r.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(chat.sends) != 1 || chat.sends[0] != "mod updated" {
		t.Fatalf("direct sends = %v", chat.sends)
	}

	n.Channel = kit.ChannelEmail
	if err := r.Notify(context.Background(), n); !errors.Is(err, notifier.ErrDisabled) {
		t.Fatalf("email Notify err = %v, want ErrDisabled", err)
	}
}
