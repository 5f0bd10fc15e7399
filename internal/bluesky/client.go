package bluesky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjdrag/skyindex/internal/domain"
)

const defaultAppView = "https://public.api.bsky.app"

// profileTimeout bounds the whole profile lookup. Resolution is best-effort
// and callers treat failures as not-found, so the budget is short.
const profileTimeout = 5 * time.Second

// Client is a minimal AT Protocol AppView client used to resolve actor
// profiles. It implements domain.ProfileDirectory.
type Client struct {
	appView    string
	httpClient *http.Client
}

// NewClient creates a new AppView client. If appView is empty, it defaults
// to the public Bluesky AppView.
func NewClient(appView string) *Client {
	if appView == "" {
		appView = defaultAppView
	}
	return &Client{
		appView: appView,
		httpClient: &http.Client{
			Timeout: profileTimeout,
		},
	}
}

// GetProfile fetches the profile for a DID (or handle) via
// app.bsky.actor.getProfile. Network errors, timeouts, non-success statuses
// and responses without a handle are all returned as errors.
func (c *Client) GetProfile(ctx context.Context, actor string) (domain.Profile, error) {
	endpoint := c.appView + "/xrpc/app.bsky.actor.getProfile?actor=" + url.QueryEscape(actor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Profile{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result getProfileResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.Profile{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Handle == "" {
		return domain.Profile{}, fmt.Errorf("profile for %s has no handle", actor)
	}

	return domain.Profile{
		DID:         result.DID,
		Handle:      result.Handle,
		DisplayName: result.DisplayName,
	}, nil
}

type getProfileResponse struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}
