// Package email mirrors notifications to mailboxes through SendGrid.
package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	kit "pzrelay/internal/transport"
	logx "pzrelay/pkg/logx"
)

type Config struct {
	APIKey   string
	From     string
	FromName string
	To       []string
	// Host overrides https://api.sendgrid.com.
	Host string
}

var ErrStatus = errors.New("sendgrid: unexpected status")

const defaultSubject = "Server status"

// Sender implements transport.Sender. The chat target is ignored; every
// message goes to the configured recipients.
type Sender struct {
	cfg    Config
	log    logx.Logger
	client *sendgrid.Client
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("email api_key is empty")
	}
	if strings.TrimSpace(cfg.From) == "" || len(cfg.To) == 0 {
		return nil, errors.New("email from and to are required")
	}
	if cfg.FromName == "" {
		cfg.FromName = "pzrelay"
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	if h := strings.TrimRight(cfg.Host, "/"); h != "" {
		req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", h)
		req.Method = "POST"
		client = &sendgrid.Client{Request: req}
	}
	return &Sender{cfg: cfg, log: log, client: client}, nil
}

func (s *Sender) SendText(ctx context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	subject := defaultSubject
	htmlMode := false
	if opt != nil {
		if strings.TrimSpace(opt.Subject) != "" {
			subject = opt.Subject
		}
		htmlMode = strings.EqualFold(opt.ParseMode, "HTML")
	}

	plain := text
	body := html.EscapeString(text)
	if htmlMode {
		plain = PlainText(text)
		body = text
	}
	body = strings.ReplaceAll(body, "\n", "<br>\n")

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.cfg.FromName, s.cfg.From))
	m.Subject = subject
	p := mail.NewPersonalization()
	for _, addr := range s.cfg.To {
		p.AddTos(mail.NewEmail("", addr))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", plain), mail.NewContent("text/html", body))

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return kit.MessageRef{}, err
	}
	if resp.StatusCode/100 != 2 {
		return kit.MessageRef{}, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	s.log.Debug("email sent", logx.Int("recipients", len(s.cfg.To)), logx.String("subject", subject))
	return kit.MessageRef{}, nil
}

var reTag = regexp.MustCompile(`<[^>]*>`)

// PlainText strips HTML tags and unescapes entities.
func PlainText(s string) string {
	return html.UnescapeString(reTag.ReplaceAllString(s, ""))
}
