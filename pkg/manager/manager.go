package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwisp/wisp/pkg/device"
	"github.com/cloudwisp/wisp/pkg/events"
	"github.com/cloudwisp/wisp/pkg/log"
	"github.com/cloudwisp/wisp/pkg/storage"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager owns the site registry and executes fan-out operations
// against the fleet. It is the only writer of the provisioned-user
// mirror, and it writes the mirror only after a confirmed remote
// outcome.
type Manager struct {
	store  storage.Store
	dialer device.Dialer
	broker *events.Broker
	tokens *TokenIssuer
	locks  *keyedMutex
	logger zerolog.Logger
}

// Config holds configuration for creating a Manager
type Config struct {
	Store    storage.Store
	Dialer   device.Dialer
	Broker   *events.Broker
	TokenTTL time.Duration
}

// NewManager creates a new Manager instance
func NewManager(cfg Config) *Manager {
	return &Manager{
		store:  cfg.Store,
		dialer: cfg.Dialer,
		broker: cfg.Broker,
		tokens: NewTokenIssuer(cfg.Store, cfg.TokenTTL),
		locks:  newKeyedMutex(64),
		logger: log.WithComponent("manager"),
	}
}

// Store exposes the registry for read paths (API listings)
func (m *Manager) Store() storage.Store {
	return m.store
}

// Tokens exposes the management-token issuer
func (m *Manager) Tokens() *TokenIssuer {
	return m.tokens
}

// RegisterSite adds a site to the registry. The site starts in status
// unknown; the connectivity monitor takes it from there.
func (m *Manager) RegisterSite(site *types.Site) (*types.Site, error) {
	if site.Name == "" {
		return nil, fmt.Errorf("site name is required")
	}
	if site.Kind != types.SiteKindLocal && site.Kind != types.SiteKindRemote {
		return nil, fmt.Errorf("site kind must be %q or %q", types.SiteKindLocal, types.SiteKindRemote)
	}
	if site.Endpoint.Host == "" || site.Endpoint.Port == 0 {
		return nil, fmt.Errorf("site endpoint is required")
	}
	if site.ParentID != "" {
		if _, err := m.store.GetSite(site.ParentID); err != nil {
			return nil, fmt.Errorf("parent site: %w", err)
		}
	}

	site.ID = uuid.New().String()
	site.Status = types.SiteStatusUnknown
	site.CreatedAt = time.Now()
	site.Active = true

	if err := m.store.RegisterSite(site); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("site_id", site.ID).
		Str("name", site.Name).
		Str("kind", string(site.Kind)).
		Msg("site registered")
	m.publish(&events.Event{Type: events.EventSiteRegistered, SiteID: site.ID, Message: site.Name})

	return site, nil
}

// RemoveSite deletes a site and its mirror. Sites only ever leave the
// registry through this explicit call.
func (m *Manager) RemoveSite(id string) error {
	if _, err := m.store.GetSite(id); err != nil {
		return err
	}
	if err := m.store.DeleteSite(id); err != nil {
		return err
	}

	m.logger.Info().Str("site_id", id).Msg("site removed")
	m.publish(&events.Event{Type: events.EventSiteRemoved, SiteID: id})
	return nil
}

// GetSite returns one site record
func (m *Manager) GetSite(id string) (*types.Site, error) {
	return m.store.GetSite(id)
}

// ListSites returns all site records
func (m *Manager) ListSites() ([]*types.Site, error) {
	return m.store.ListSites()
}

// ListMirror returns the registry's belief about a site's users
func (m *Manager) ListMirror(siteID string) ([]*types.ProvisionedUser, error) {
	if _, err := m.store.GetSite(siteID); err != nil {
		return nil, err
	}
	return m.store.ListMirror(siteID)
}

// IssueToken mints a site-scoped management token
func (m *Manager) IssueToken(siteID string, scope []string) (*types.ManagementToken, error) {
	token, err := m.tokens.Issue(siteID, scope)
	if err != nil {
		return nil, err
	}
	m.publish(&events.Event{Type: events.EventTokenIssued, SiteID: siteID})
	return token, nil
}

// VerifyToken checks a delegated credential against a site
func (m *Manager) VerifyToken(siteID, secret string) bool {
	return m.tokens.Verify(siteID, secret)
}

// Live per-site views, proxied straight to the controller. These read
// the source of truth, not the mirror.

func (m *Manager) SiteUsers(ctx context.Context, siteID string) ([]device.HotspotUser, error) {
	site, err := m.store.GetSite(siteID)
	if err != nil {
		return nil, err
	}
	return m.dialer(site).ListUsers(ctx)
}

func (m *Manager) SiteClients(ctx context.Context, siteID, interfaceFilter string) ([]device.WirelessClient, error) {
	site, err := m.store.GetSite(siteID)
	if err != nil {
		return nil, err
	}
	return m.dialer(site).ListClients(ctx, interfaceFilter)
}

func (m *Manager) SiteIdentity(ctx context.Context, siteID string) (*device.Identity, error) {
	site, err := m.store.GetSite(siteID)
	if err != nil {
		return nil, err
	}
	return m.dialer(site).GetIdentity(ctx)
}

func (m *Manager) SiteResources(ctx context.Context, siteID string) (*device.SystemResources, error) {
	site, err := m.store.GetSite(siteID)
	if err != nil {
		return nil, err
	}
	return m.dialer(site).GetResources(ctx)
}

func (m *Manager) publish(event *events.Event) {
	if m.broker == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	m.broker.Publish(event)
}
