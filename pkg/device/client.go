package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwisp/wisp/pkg/log"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/rs/zerolog"
)

// Client is the abstract control plane of one site's controller.
// Every call is bounded by the client's timeout; a dead controller
// fails fast with ErrNotReachable rather than hanging the caller.
type Client interface {
	CreateUser(ctx context.Context, spec types.UserSpec) (*HotspotUser, error)
	UpdateUser(ctx context.Context, username string, patch types.UserPatch) (*HotspotUser, error)
	DeleteUser(ctx context.Context, username string) error
	SetBandwidthPolicy(ctx context.Context, username string, policy types.BandwidthPolicy) error
	GetBandwidthPolicy(ctx context.Context, username string) (*types.BandwidthPolicy, error)
	ListUsers(ctx context.Context) ([]HotspotUser, error)
	ListInterfaces(ctx context.Context) ([]WirelessInterface, error)
	ListClients(ctx context.Context, interfaceFilter string) ([]WirelessClient, error)
	GetIdentity(ctx context.Context) (*Identity, error)
	GetResources(ctx context.Context) (*SystemResources, error)
}

// Dialer constructs a Client for a site. The orchestrator and monitor
// take a Dialer so tests can substitute doubles.
type Dialer func(site *types.Site) Client

// Options configures HTTP clients produced by NewDialer
type Options struct {
	// Timeout bounds every individual vendor call
	Timeout time.Duration

	// CacheTTL is the freshness window for list responses; zero
	// disables caching
	CacheTTL time.Duration

	// Scheme is "http" or "https" (default http; remote controllers
	// normally sit behind https)
	Scheme string
}

// DefaultOptions returns client options with sensible defaults
func DefaultOptions() Options {
	return Options{
		Timeout:  8 * time.Second,
		CacheTTL: 2 * time.Minute,
		Scheme:   "http",
	}
}

// NewDialer returns a Dialer producing HTTP clients with the given options
func NewDialer(opts Options) Dialer {
	return func(site *types.Site) Client {
		return NewHTTPClient(site, opts)
	}
}

// HTTPClient talks to one controller's REST control plane
type HTTPClient struct {
	baseURL string
	creds   types.Credentials
	http    *http.Client
	timeout time.Duration
	cache   *ttlCache
	logger  zerolog.Logger
}

// NewHTTPClient creates a client for the given site's endpoint
func NewHTTPClient(site *types.Site, opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return &HTTPClient{
		baseURL: fmt.Sprintf("%s://%s", scheme, site.Endpoint),
		creds:   site.Credentials,
		http:    &http.Client{Timeout: opts.Timeout},
		timeout: opts.Timeout,
		cache:   newTTLCache(opts.CacheTTL),
		logger:  log.WithSite(site.ID),
	}
}

// do executes one vendor call and decodes the response into out (when
// out is non-nil). Transport failures map to ErrNotReachable, vendor
// rejections to the taxonomy, and undecodable bodies to ErrProtocol.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all one kind.
		// The caller's retry is the next attempt, not a different path.
		return fmt.Errorf("%w: %s %s: %v", types.ErrNotReachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapStatus(resp, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: undecodable body from %s %s: %v",
				types.ErrProtocol, method, path, err)
		}
	}
	return nil
}

func (c *HTTPClient) mapStatus(resp *http.Response, method, path string) error {
	var ae apiError
	detail := ""
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(data, &ae) == nil {
			detail = ae.Detail
			if detail == "" {
				detail = ae.Message
			}
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", types.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusConflict,
		strings.Contains(detail, "already have"):
		return fmt.Errorf("%w: %s", types.ErrConflict, detail)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: authentication rejected (%d)", types.ErrProtocol, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s %s returned %d: %s",
			types.ErrProtocol, method, path, resp.StatusCode, detail)
	}
}

// fetchUsers lists the hotspot users, optionally bypassing the cache
func (c *HTTPClient) fetchUsers(ctx context.Context, fresh bool) ([]HotspotUser, error) {
	if !fresh {
		if v, ok := c.cache.get("users"); ok {
			return v.([]HotspotUser), nil
		}
	}
	var users []HotspotUser
	if err := c.do(ctx, http.MethodGet, pathUsers, nil, &users); err != nil {
		return nil, err
	}
	c.cache.set("users", users)
	return users, nil
}

// resolveUserID maps a username to the vendor's internal object id.
// The vendor has no mutate-by-name primitive, so this listing precedes
// every update and delete.
func (c *HTTPClient) resolveUserID(ctx context.Context, username string, fresh bool) (string, error) {
	users, err := c.fetchUsers(ctx, fresh)
	if err != nil {
		return "", err
	}
	for i := range users {
		if users[i].Name == username {
			return users[i].ID, nil
		}
	}
	return "", fmt.Errorf("%w: user %q", types.ErrNotFound, username)
}

// CreateUser provisions a hotspot user and, when the spec carries a
// bandwidth policy, its matching simple queue.
func (c *HTTPClient) CreateUser(ctx context.Context, spec types.UserSpec) (*HotspotUser, error) {
	var created HotspotUser
	payload := HotspotUser{Name: spec.Username, Password: spec.Password}
	if err := c.do(ctx, http.MethodPost, pathUsers, payload, &created); err != nil {
		return nil, err
	}
	c.cache.invalidate("users")

	if created.Name != spec.Username {
		return nil, fmt.Errorf("%w: controller echoed user %q for create of %q",
			types.ErrProtocol, created.Name, spec.Username)
	}

	if !spec.Policy.IsZero() {
		if err := c.SetBandwidthPolicy(ctx, spec.Username, spec.Policy); err != nil {
			return nil, fmt.Errorf("user created but policy failed: %w", err)
		}
	}

	c.logger.Debug().Str("user", spec.Username).Msg("created hotspot user")
	return &created, nil
}

// UpdateUser patches a user by name. A stale resolved id (the object
// was recreated between resolve and mutate) triggers one fresh
// re-resolve before the update is reported as NotFound.
func (c *HTTPClient) UpdateUser(ctx context.Context, username string, patch types.UserPatch) (*HotspotUser, error) {
	id, err := c.resolveUserID(ctx, username, false)
	if err != nil {
		return nil, err
	}

	payload := HotspotUser{Name: username, Password: patch.Password}
	if patch.Disabled != nil {
		payload.Disabled = *patch.Disabled
	}

	var updated HotspotUser
	err = c.do(ctx, http.MethodPut, pathUsers+"/"+id, payload, &updated)
	if errors.Is(err, types.ErrNotFound) {
		if id, err = c.resolveUserID(ctx, username, true); err != nil {
			return nil, err
		}
		err = c.do(ctx, http.MethodPut, pathUsers+"/"+id, payload, &updated)
	}
	if err != nil {
		return nil, err
	}
	c.cache.invalidate("users")

	if !patch.Policy.IsZero() {
		if err := c.SetBandwidthPolicy(ctx, username, patch.Policy); err != nil {
			return nil, err
		}
	}
	return &updated, nil
}

// DeleteUser removes a user by name. Deleting an absent user succeeds:
// the end state is identical either way, and fan-out retries depend on
// that.
func (c *HTTPClient) DeleteUser(ctx context.Context, username string) error {
	id, err := c.resolveUserID(ctx, username, true)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := c.do(ctx, http.MethodDelete, pathUsers+"/"+id, nil, nil); err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
	}
	c.cache.invalidate("users")

	// Drop the user's queue with it; an absent queue is fine.
	if err := c.deleteQueue(ctx, username); err != nil {
		return err
	}

	c.logger.Debug().Str("user", username).Msg("deleted hotspot user")
	return nil
}

// fetchQueues lists the simple queues, optionally bypassing the cache
func (c *HTTPClient) fetchQueues(ctx context.Context, fresh bool) ([]SimpleQueue, error) {
	if !fresh {
		if v, ok := c.cache.get("queues"); ok {
			return v.([]SimpleQueue), nil
		}
	}
	var queues []SimpleQueue
	if err := c.do(ctx, http.MethodGet, pathQueues, nil, &queues); err != nil {
		return nil, err
	}
	c.cache.set("queues", queues)
	return queues, nil
}

func (c *HTTPClient) resolveQueue(ctx context.Context, name string, fresh bool) (*SimpleQueue, error) {
	queues, err := c.fetchQueues(ctx, fresh)
	if err != nil {
		return nil, err
	}
	for i := range queues {
		if queues[i].Name == name {
			return &queues[i], nil
		}
	}
	return nil, fmt.Errorf("%w: queue %q", types.ErrNotFound, name)
}

// SetBandwidthPolicy creates or updates the user's simple queue. The
// queue resource is independent of the user resource on the vendor
// side, so a queue can exist without its user and vice versa.
func (c *HTTPClient) SetBandwidthPolicy(ctx context.Context, username string, policy types.BandwidthPolicy) error {
	queue, err := c.resolveQueue(ctx, username, true)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		payload := SimpleQueue{Name: username, Target: username, MaxLimit: policy.MaxLimit()}
		if err := c.do(ctx, http.MethodPost, pathQueues, payload, nil); err != nil {
			return err
		}
		c.cache.invalidate("queues")
		return nil
	}

	payload := SimpleQueue{Name: username, Target: queue.Target, MaxLimit: policy.MaxLimit()}
	if err := c.do(ctx, http.MethodPut, pathQueues+"/"+queue.ID, payload, nil); err != nil {
		return err
	}
	c.cache.invalidate("queues")
	return nil
}

// GetBandwidthPolicy reads the user's queue back as a policy
func (c *HTTPClient) GetBandwidthPolicy(ctx context.Context, username string) (*types.BandwidthPolicy, error) {
	queue, err := c.resolveQueue(ctx, username, false)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(queue.MaxLimit, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: queue %q has malformed max-limit %q",
			types.ErrProtocol, username, queue.MaxLimit)
	}
	return &types.BandwidthPolicy{Upload: parts[0], Download: parts[1]}, nil
}

func (c *HTTPClient) deleteQueue(ctx context.Context, name string) error {
	queue, err := c.resolveQueue(ctx, name, true)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := c.do(ctx, http.MethodDelete, pathQueues+"/"+queue.ID, nil, nil); err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
	}
	c.cache.invalidate("queues")
	return nil
}

// ListUsers enumerates the controller's hotspot users (cached)
func (c *HTTPClient) ListUsers(ctx context.Context) ([]HotspotUser, error) {
	return c.fetchUsers(ctx, false)
}

// ListInterfaces enumerates the controller's radios (cached)
func (c *HTTPClient) ListInterfaces(ctx context.Context) ([]WirelessInterface, error) {
	if v, ok := c.cache.get("interfaces"); ok {
		return v.([]WirelessInterface), nil
	}
	var ifaces []WirelessInterface
	if err := c.do(ctx, http.MethodGet, pathInterfaces, nil, &ifaces); err != nil {
		return nil, err
	}
	c.cache.set("interfaces", ifaces)
	return ifaces, nil
}

// ListClients enumerates associated stations, optionally filtered to
// one interface (cached per filter)
func (c *HTTPClient) ListClients(ctx context.Context, interfaceFilter string) ([]WirelessClient, error) {
	key := "clients/" + interfaceFilter
	if v, ok := c.cache.get(key); ok {
		return v.([]WirelessClient), nil
	}

	var clients []WirelessClient
	if err := c.do(ctx, http.MethodGet, pathClients, nil, &clients); err != nil {
		return nil, err
	}
	if interfaceFilter != "" {
		filtered := clients[:0]
		for _, cl := range clients {
			if cl.Interface == interfaceFilter {
				filtered = append(filtered, cl)
			}
		}
		clients = filtered
	}
	c.cache.set(key, clients)
	return clients, nil
}

// GetIdentity reads the controller's identity. Never cached: the
// connectivity monitor uses it as its reachability probe, which must
// hit the wire every time.
func (c *HTTPClient) GetIdentity(ctx context.Context) (*Identity, error) {
	var ident Identity
	if err := c.do(ctx, http.MethodGet, pathIdentity, nil, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// GetResources reads the controller's resource snapshot (uncached)
func (c *HTTPClient) GetResources(ctx context.Context) (*SystemResources, error) {
	var res SystemResources
	if err := c.do(ctx, http.MethodGet, pathResources, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
