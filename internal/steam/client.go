// Package steam reads workshop item metadata from the Steam Web API.
package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.steampowered.com"

const detailsPath = "/ISteamRemoteStorage/GetPublishedFileDetails/v1/"

var ErrStatus = errors.New("steam: unexpected http status")

// FileDetails is one workshop item. Items Steam cannot find come back with
// Result != 1 and empty fields.
type FileDetails struct {
	PublishedFileID string `json:"publishedfileid"`
	Result          int    `json:"result"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	PreviewURL      string `json:"preview_url"`
	TimeUpdated     int64  `json:"time_updated"`
}

func (d FileDetails) Found() bool { return d.Result == 1 }

// WorkshopURL is the public page of the item.
func WorkshopURL(id string) string {
	return "https://steamcommunity.com/sharedfiles/filedetails/?id=" + url.QueryEscape(id)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client. baseURL may be empty for the public API; apiKey is optional.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{baseURL: baseURL, apiKey: strings.TrimSpace(apiKey), http: &http.Client{Timeout: timeout}}
}

// PublishedFileDetails fetches every id in a single request.
func (c *Client) PublishedFileDetails(ctx context.Context, ids []string) ([]FileDetails, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	form := url.Values{}
	if c.apiKey != "" {
		form.Set("key", c.apiKey)
	}
	form.Set("itemcount", strconv.Itoa(len(ids)))
	for i, id := range ids {
		form.Set(fmt.Sprintf("publishedfileids[%d]", i), id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+detailsPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("steam details: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var body struct {
		Response struct {
			Result  int           `json:"result"`
			Details []FileDetails `json:"publishedfiledetails"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("steam details: decode: %w", err)
	}
	return body.Response.Details, nil
}
