package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudwisp/wisp/pkg/types"
)

// Client wraps the wisp admin API for CLI usage
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new admin API client
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach manager: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("manager returned %s", resp.Status)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// RegisterSite registers a new site and returns the stored record
func (c *Client) RegisterSite(ctx context.Context, site *types.Site) (*types.Site, error) {
	var registered types.Site
	if err := c.do(ctx, http.MethodPost, "/api/v1/sites", site, &registered); err != nil {
		return nil, err
	}
	return &registered, nil
}

// ListSites returns all registered sites
func (c *Client) ListSites(ctx context.Context) ([]*types.Site, error) {
	var sites []*types.Site
	if err := c.do(ctx, http.MethodGet, "/api/v1/sites", nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// GetSite returns one site
func (c *Client) GetSite(ctx context.Context, id string) (*types.Site, error) {
	var site types.Site
	if err := c.do(ctx, http.MethodGet, "/api/v1/sites/"+url.PathEscape(id), nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// RemoveSite deletes a site
func (c *Client) RemoveSite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sites/"+url.PathEscape(id), nil, nil)
}

// SiteMirror returns the registry's mirror of a site's users
func (c *Client) SiteMirror(ctx context.Context, id string) ([]*types.ProvisionedUser, error) {
	var users []*types.ProvisionedUser
	if err := c.do(ctx, http.MethodGet, "/api/v1/sites/"+url.PathEscape(id)+"/mirror", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Fanout invokes one logical operation across a site set
func (c *Client) Fanout(ctx context.Context, req interface{}) (*types.FanoutResult, error) {
	var result types.FanoutResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/fanout", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncUser provisions a user across all non-offline sites
func (c *Client) SyncUser(ctx context.Context, username, password string, policy types.BandwidthPolicy) (*types.FanoutResult, error) {
	body := map[string]interface{}{
		"username": username,
		"password": password,
		"policy":   policy,
	}
	var result types.FanoutResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync/users", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IssueToken mints a management token for a site
func (c *Client) IssueToken(ctx context.Context, siteID string, scope []string) (*types.ManagementToken, error) {
	body := map[string]interface{}{"site_id": siteID, "scope": scope}
	var token types.ManagementToken
	if err := c.do(ctx, http.MethodPost, "/api/v1/tokens", body, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
