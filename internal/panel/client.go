// Package panel talks to a Pterodactyl-style game panel: the client REST API
// for power state, schedules and socket credentials, and the realtime
// websocket that pushes power and console events.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pzrelay/internal/status"
)

var (
	ErrConfig = errors.New("panel: missing url, api key or server id")
	ErrStatus = errors.New("panel: unexpected http status")
)

type Client struct {
	origin string
	base   string
	apiKey string
	http   *http.Client
}

// New builds a client for one server. timeout <= 0 means 10s.
func New(baseURL, apiKey, serverID string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	serverID = strings.TrimSpace(serverID)
	if baseURL == "" || apiKey == "" || serverID == "" {
		return nil, ErrConfig
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		origin: baseURL,
		base:   baseURL + "/api/client/servers/" + serverID + "/",
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// Origin is the panel URL, sent as the websocket Origin header.
func (c *Client) Origin() string { return c.origin }

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("panel %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %d", ErrStatus, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("panel %s: decode: %w", path, err)
	}
	return nil
}

// PowerState returns attributes.current_state of /resources.
func (c *Client) PowerState(ctx context.Context) (string, error) {
	var body struct {
		Attributes struct {
			CurrentState string `json:"current_state"`
		} `json:"attributes"`
	}
	if err := c.get(ctx, "resources", &body); err != nil {
		return "", err
	}
	return body.Attributes.CurrentState, nil
}

type scheduleAttrs struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	IsActive     bool    `json:"is_active"`
	IsProcessing bool    `json:"is_processing"`
	LastRunAt    *string `json:"last_run_at"`
	NextRunAt    *string `json:"next_run_at"`
	UpdatedAt    *string `json:"updated_at"`
}

// Schedules lists the server's schedules. Unparseable timestamps become zero.
func (c *Client) Schedules(ctx context.Context) ([]status.ScheduledJob, error) {
	var body struct {
		Data []struct {
			Attributes scheduleAttrs `json:"attributes"`
		} `json:"data"`
	}
	if err := c.get(ctx, "schedules", &body); err != nil {
		return nil, err
	}
	jobs := make([]status.ScheduledJob, 0, len(body.Data))
	for _, d := range body.Data {
		a := d.Attributes
		jobs = append(jobs, status.ScheduledJob{
			ID:           a.ID,
			Name:         a.Name,
			IsActive:     a.IsActive,
			IsProcessing: a.IsProcessing,
			LastRunAt:    parseTime(a.LastRunAt),
			NextRunAt:    parseTime(a.NextRunAt),
			UpdatedAt:    parseTime(a.UpdatedAt),
		})
	}
	return jobs, nil
}

func parseTime(s *string) time.Time {
	if s == nil || *s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Credentials open the realtime socket. Tokens are short-lived.
type Credentials struct {
	Token  string `json:"token"`
	Socket string `json:"socket"`
}

func (c *Client) WebsocketCredentials(ctx context.Context) (Credentials, error) {
	var body struct {
		Data Credentials `json:"data"`
	}
	if err := c.get(ctx, "websocket", &body); err != nil {
		return Credentials{}, err
	}
	if body.Data.Token == "" || body.Data.Socket == "" {
		return Credentials{}, errors.New("panel websocket: empty credentials")
	}
	return body.Data, nil
}
