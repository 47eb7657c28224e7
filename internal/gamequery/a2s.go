// Package gamequery asks a game server whether it is joinable, using the
// Source server queries A2S_INFO and A2S_PLAYER.
package gamequery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rumblefrog/go-a2s"

	"pzrelay/internal/status"
)

const DefaultPort = 16261

// Info is the subset of A2S_INFO the relay reports.
type Info struct {
	Name       string
	Map        string
	Folder     string
	Game       string
	Players    int
	MaxPlayers int
	Bots       int
}

// Client queries one server. It is safe for concurrent use; every call
// opens its own socket.
type Client struct {
	addr    string
	timeout time.Duration
}

func New(host string, port int, timeout time.Duration) *Client {
	if port <= 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{addr: net.JoinHostPort(host, strconv.Itoa(port)), timeout: timeout}
}

// Query reports the live server state. Players counts the player list like
// the in-game browser does; when that request fails the A2S_INFO count is used.
func (c *Client) Query(ctx context.Context) (status.LiveInfo, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return status.LiveInfo{}, err
	}
	live := status.LiveInfo{Players: info.Players, MaxPlayers: info.MaxPlayers, Map: info.Map, Name: info.Name}
	if names, err := c.Players(ctx); err == nil {
		live.Players = len(names)
	}
	return live, nil
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	var info *a2s.ServerInfo
	err := c.do(ctx, func(cl *a2s.Client) (err error) {
		info, err = cl.QueryInfo()
		return err
	})
	if err != nil {
		return Info{}, fmt.Errorf("a2s info %s: %w", c.addr, err)
	}
	return Info{
		Name:       info.Name,
		Map:        info.Map,
		Folder:     info.Folder,
		Game:       info.Game,
		Players:    int(info.Players),
		MaxPlayers: int(info.MaxPlayers),
		Bots:       int(info.Bots),
	}, nil
}

// Players returns the names in the player list. Split responses from busy
// servers are reassembled by the query client.
func (c *Client) Players(ctx context.Context) ([]string, error) {
	var pi *a2s.PlayerInfo
	err := c.do(ctx, func(cl *a2s.Client) (err error) {
		pi, err = cl.QueryPlayer()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("a2s player %s: %w", c.addr, err)
	}
	names := make([]string, 0, len(pi.Players))
	for _, p := range pi.Players {
		if p != nil {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// do runs one query on a fresh client whose timeout is capped by ctx.
// The query itself is not interruptible, so cancellation takes effect at the
// next socket deadline.
func (c *Client) do(ctx context.Context, q func(*a2s.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	cl, err := a2s.NewClient(c.addr, a2s.TimeoutOption(timeout))
	if err != nil {
		return err
	}
	defer cl.Close()
	return q(cl)
}
