package transport

import "context"

// Channel names used to route notifications to a sender.
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
)

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Silent delivers without a sound/push where the platform supports it.
	Silent bool
	// Subject is used by mail-like channels; chat channels ignore it.
	Subject string
}

type Notification struct {
	Channel  string // "telegram" | "email"
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Sender delivers a text message to a target.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Editor replaces the text of a previously sent message.
type Editor interface {
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
}

type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Sender
	Editor
}
