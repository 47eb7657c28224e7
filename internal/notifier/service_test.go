package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pzrelay/internal/eventbus"
	kit "pzrelay/internal/transport"
	logx "pzrelay/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	fails int // fail this many calls first
	calls int
}

func (r *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fails {
		return kit.MessageRef{}, errors.New("temporary")
	}
	r.texts = append(r.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: r.calls}, nil
}

func (r *recordingSender) snapshot() (calls int, texts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]string(nil), r.texts...)
}

func testConfig() Config {
	return Config{
		Enabled:     true,
		Workers:     1,
		RatePerSec:  1000,
		RetryMax:    2,
		RetryBase:   time.Millisecond,
		DedupWindow: time.Minute,
	}
}

func waitFor(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestNotifyDeliversWithRetry(t *testing.T) {
	t.Parallel()
	snd := &recordingSender{fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, eventbus.NotifySent, eventbus.NotifyFailed)
	defer unsub()

	s := New(testConfig(), map[string]kit.Sender{kit.ChannelTelegram: snd}, logx.Nop(), bus)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Notify(ctx, kit.Notification{Channel: kit.ChannelTelegram, Target: kit.ChatTarget{ChatID: 1}, Text: "online"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, events, eventbus.NotifySent)

	calls, texts := snd.snapshot()
	if calls != 3 || len(texts) != 1 || texts[0] != "online" {
		t.Fatalf("calls = %d, texts = %v", calls, texts)
	}
	if h := s.History(); len(h) != 1 || h[0].Channel != kit.ChannelTelegram {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	snd := &recordingSender{fails: 100}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, eventbus.NotifyFailed)
	defer unsub()

	s := New(testConfig(), map[string]kit.Sender{kit.ChannelTelegram: snd}, logx.Nop(), bus)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	_ = s.Notify(ctx, kit.Notification{Channel: kit.ChannelTelegram, Text: "x"})
	ev := waitFor(t, events, eventbus.NotifyFailed)
	if ne, _ := ev.Data.(NotificationEvent); ne.Error != "temporary" {
		t.Fatalf("event = %+v", ev.Data)
	}
	if calls, _ := snd.snapshot(); calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestNotifyDedupsIdenticalMessages(t *testing.T) {
	t.Parallel()
	snd := &recordingSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, eventbus.NotifyDeduped)
	defer unsub()

	s := New(testConfig(), map[string]kit.Sender{kit.ChannelTelegram: snd}, logx.Nop(), bus)
	ctx := context.Background()
	s.Start(ctx)

	n := kit.Notification{Channel: kit.ChannelTelegram, Target: kit.ChatTarget{ChatID: 5}, Text: "same"}
	_ = s.Notify(ctx, n)
	_ = s.Notify(ctx, n)
	waitFor(t, events, eventbus.NotifyDeduped)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if _, texts := snd.snapshot(); len(texts) != 1 {
		t.Fatalf("delivered = %d, want 1", len(texts))
	}
}

func TestNotifyRoutesByChannel(t *testing.T) {
	t.Parallel()
	tg, mail := &recordingSender{}, &recordingSender{}
	s := New(testConfig(), map[string]kit.Sender{kit.ChannelTelegram: tg}, logx.Nop(), nil)
	s.SetSender(kit.ChannelEmail, mail)
	ctx := context.Background()
	s.Start(ctx)

	_ = s.Notify(ctx, kit.Notification{Channel: kit.ChannelTelegram, Text: "a"})
	_ = s.Notify(ctx, kit.Notification{Channel: kit.ChannelEmail, Text: "b"})
	if err := s.Notify(ctx, kit.Notification{Channel: "sms", Text: "c"}); !errors.Is(err, ErrNoSender) {
		t.Fatalf("err = %v, want ErrNoSender", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if _, texts := tg.snapshot(); len(texts) != 1 || texts[0] != "a" {
		t.Fatalf("telegram got %v", texts)
	}
	if _, texts := mail.snapshot(); len(texts) != 1 || texts[0] != "b" {
		t.Fatalf("email got %v", texts)
	}
}

func TestNotifyStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	snd := map[string]kit.Sender{kit.ChannelTelegram: &recordingSender{}}

	disabled := New(Config{}, snd, logx.Nop(), nil)
	if err := disabled.Notify(ctx, kit.Notification{Channel: kit.ChannelTelegram, Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled err = %v", err)
	}

	notStarted := New(testConfig(), snd, logx.Nop(), nil)
	if err := notStarted.Notify(ctx, kit.Notification{Channel: kit.ChannelTelegram, Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started err = %v", err)
	}
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{1, 70 * time.Millisecond, 130 * time.Millisecond},
		{2, 140 * time.Millisecond, 260 * time.Millisecond},
		{10, 700 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		got := retryDelay(cfg, tt.attempt)
		if got < tt.min || got > tt.max {
			t.Fatalf("retryDelay(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}
