package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	logx "pzrelay/pkg/logx"
)

// EventHandler receives realtime events. Calls come from the socket's read
// goroutine and must not block.
type EventHandler interface {
	OnPowerState(state string)
	OnConsoleLine(line string)
}

type CredentialSource interface {
	WebsocketCredentials(ctx context.Context) (Credentials, error)
	Origin() string
}

type SocketOptions struct {
	ReconnectDelay   time.Duration // after a closed connection, default 5s
	CredentialsRetry time.Duration // after a credentials failure, default 30s
	HandshakeTimeout time.Duration
}

// Socket keeps one realtime connection alive until its context ends.
type Socket struct {
	creds   CredentialSource
	handler EventHandler
	log     logx.Logger
	opts    SocketOptions
	dialer  *websocket.Dialer
}

type wsMessage struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

func (m wsMessage) firstArg() string {
	if len(m.Args) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Args[0], &s); err != nil {
		return string(m.Args[0])
	}
	return s
}

func NewSocket(creds CredentialSource, handler EventHandler, log logx.Logger, opts SocketOptions) *Socket {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.CredentialsRetry <= 0 {
		opts.CredentialsRetry = 30 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}
	return &Socket{
		creds:   creds,
		handler: handler,
		log:     log,
		opts:    opts,
		dialer:  &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// Run connects, reads until the connection drops, waits and reconnects.
// It returns nil once ctx is done.
func (s *Socket) Run(ctx context.Context) error {
	for {
		wait, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("panel socket disconnected", logx.Err(err), logx.Duration("retry_in", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one connection and returns how long to wait before the next.
func (s *Socket) session(ctx context.Context) (time.Duration, error) {
	cr, err := s.creds.WebsocketCredentials(ctx)
	if err != nil {
		return s.opts.CredentialsRetry, err
	}

	hdr := http.Header{}
	if o := s.creds.Origin(); o != "" {
		hdr.Set("Origin", o)
	}
	conn, _, err := s.dialer.DialContext(ctx, cr.Socket, hdr)
	if err != nil {
		return s.opts.ReconnectDelay, err
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := s.auth(conn, cr.Token); err != nil {
		return s.opts.ReconnectDelay, err
	}
	s.log.Info("panel socket connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return s.opts.ReconnectDelay, err
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("panel socket: bad message", logx.Err(err))
			continue
		}
		if err := s.handle(ctx, conn, msg); err != nil {
			return s.opts.ReconnectDelay, err
		}
	}
}

func (s *Socket) auth(conn *websocket.Conn, token string) error {
	return conn.WriteJSON(map[string]any{"event": "auth", "args": []string{token}})
}

func (s *Socket) handle(ctx context.Context, conn *websocket.Conn, msg wsMessage) error {
	switch msg.Event {
	case "auth success":
		s.log.Debug("panel socket authenticated")
	case "token expiring", "token expired":
		cr, err := s.creds.WebsocketCredentials(ctx)
		if err != nil {
			if msg.Event == "token expired" {
				return errors.New("panel socket: token expired and refresh failed: " + err.Error())
			}
			s.log.Warn("panel socket token refresh failed", logx.Err(err))
			return nil
		}
		s.log.Debug("panel socket token refreshed")
		return s.auth(conn, cr.Token)
	case "status":
		if st := msg.firstArg(); st != "" {
			s.handler.OnPowerState(st)
		}
	case "console output", "daemon message", "servermsg":
		s.handler.OnConsoleLine(msg.firstArg())
	}
	return nil
}
