package storage

import (
	"time"

	"github.com/cloudwisp/wisp/pkg/types"
)

// Store defines the interface for registry state storage.
// Implemented by the bbolt-backed store.
//
// The store is authoritative for which sites exist and what credentials
// to use; the per-site user mirror is explicitly NOT authoritative for
// remote state (the controller is, queried live).
type Store interface {
	// Sites
	RegisterSite(site *types.Site) error
	GetSite(id string) (*types.Site, error)
	ListSites() ([]*types.Site, error)
	UpdateSite(site *types.Site) error
	DeleteSite(id string) error
	// UpdateSiteStatus is called only by the connectivity monitor
	UpdateSiteStatus(id string, status types.SiteStatus, ts time.Time) error

	// Provisioned-user mirror, written only after a confirmed remote
	// outcome, never speculatively
	RecordMirror(user *types.ProvisionedUser) error
	RemoveMirror(siteID, username string) error
	GetMirror(siteID, username string) (*types.ProvisionedUser, error)
	ListMirror(siteID string) ([]*types.ProvisionedUser, error)

	// Management tokens
	PutToken(token *types.ManagementToken) error
	GetToken(secret string) (*types.ManagementToken, error)
	DeleteToken(secret string) error
	ListTokens(siteID string) ([]*types.ManagementToken, error)

	// Utility
	Close() error
}
