package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwisp/wisp/pkg/device"
	"github.com/cloudwisp/wisp/pkg/events"
	"github.com/cloudwisp/wisp/pkg/metrics"
	"github.com/cloudwisp/wisp/pkg/types"
)

// Operation names as carried in fan-out results and API requests
const (
	OpCreateUser   = "create_user"
	OpUpdateUser   = "update_user"
	OpDeleteUser   = "delete_user"
	OpSetBandwidth = "set_bandwidth"
	OpSyncUser     = "sync_user"
)

// siteRun executes one logical operation against one resolved site
type siteRun func(ctx context.Context, site *types.Site) error

// preflight can reject a site before any network call is made; the
// returned error becomes that site's outcome
type preflight func(site *types.Site) error

// fanout runs op against every requested site concurrently and
// independently. One outcome slot exists per requested id before any
// branch starts, so the result's cardinality always equals the
// request's: a missing site, a preflight rejection, a timeout, and a
// success all land in their own slot, and no branch can abort another.
func (m *Manager) fanout(ctx context.Context, operation string, siteIDs []string, pre preflight, run siteRun) *types.FanoutResult {
	started := time.Now()
	outcomes := make([]types.SiteOutcome, len(siteIDs))

	var wg sync.WaitGroup
	for i, siteID := range siteIDs {
		wg.Add(1)
		go func(i int, siteID string) {
			defer wg.Done()
			outcomes[i] = m.runBranch(ctx, siteID, pre, run)
			metrics.RecordFanoutOutcome(operation, outcomes[i].Error)
		}(i, siteID)
	}
	wg.Wait()

	result := &types.FanoutResult{
		Operation: operation,
		Outcomes:  outcomes,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	metrics.FanoutDuration.WithLabelValues(operation).Observe(result.Duration.Seconds())

	m.logger.Info().
		Str("operation", operation).
		Int("sites", len(siteIDs)).
		Int("succeeded", result.Succeeded()).
		Int("failed", result.Failed()).
		Dur("duration", result.Duration).
		Msg("fan-out completed")
	m.publish(&events.Event{Type: events.EventFanoutCompleted, Message: operation})

	return result
}

func (m *Manager) runBranch(ctx context.Context, siteID string, pre preflight, run siteRun) types.SiteOutcome {
	site, err := m.store.GetSite(siteID)
	if err == nil && pre != nil {
		err = pre(site)
	}
	if err == nil {
		err = run(ctx, site)
	}

	if err != nil {
		return types.SiteOutcome{
			SiteID: siteID,
			Error:  types.ErrorKind(err),
			Detail: err.Error(),
		}
	}
	return types.SiteOutcome{SiteID: siteID, Success: true}
}

// CreateUser provisions a user on every targeted site. The mirror is
// written per site only after that site's controller confirms.
func (m *Manager) CreateUser(ctx context.Context, spec types.UserSpec, siteIDs []string) *types.FanoutResult {
	return m.fanout(ctx, OpCreateUser, siteIDs, nil, func(ctx context.Context, site *types.Site) error {
		return m.createOnSite(ctx, site, spec)
	})
}

// UpdateUser patches a user on every targeted site
func (m *Manager) UpdateUser(ctx context.Context, username string, patch types.UserPatch, siteIDs []string) *types.FanoutResult {
	return m.fanout(ctx, OpUpdateUser, siteIDs, nil, func(ctx context.Context, site *types.Site) error {
		unlock := m.locks.lock(site.ID + "/" + username)
		defer unlock()

		updated, err := m.dialer(site).UpdateUser(ctx, username, patch)
		if err != nil {
			return err
		}
		return m.refreshMirror(site.ID, username, updated.ID, patch.Policy)
	})
}

// DeleteUser removes a user from every targeted site. The device
// client's delete is idempotent, so retrying a partially failed
// fan-out is safe: sites that already lost the user report success.
func (m *Manager) DeleteUser(ctx context.Context, username string, siteIDs []string) *types.FanoutResult {
	return m.fanout(ctx, OpDeleteUser, siteIDs, nil, func(ctx context.Context, site *types.Site) error {
		unlock := m.locks.lock(site.ID + "/" + username)
		defer unlock()

		if err := m.dialer(site).DeleteUser(ctx, username); err != nil {
			return err
		}
		return m.store.RemoveMirror(site.ID, username)
	})
}

// SetBandwidth applies a bandwidth policy to a user on every targeted site
func (m *Manager) SetBandwidth(ctx context.Context, username string, policy types.BandwidthPolicy, siteIDs []string) *types.FanoutResult {
	return m.fanout(ctx, OpSetBandwidth, siteIDs, nil, func(ctx context.Context, site *types.Site) error {
		unlock := m.locks.lock(site.ID + "/" + username)
		defer unlock()

		if err := m.dialer(site).SetBandwidthPolicy(ctx, username, policy); err != nil {
			return err
		}
		return m.refreshMirror(site.ID, username, "", policy)
	})
}

// SyncUser ensures a user exists with the given spec on every active
// site. Sites the monitor currently marks offline are excluded before
// any network call, but still occupy a slot in the result as
// failure: site_offline — no site is ever silently dropped.
func (m *Manager) SyncUser(ctx context.Context, spec types.UserSpec) (*types.FanoutResult, error) {
	sites, err := m.store.ListSites()
	if err != nil {
		return nil, err
	}

	siteIDs := make([]string, 0, len(sites))
	for _, site := range sites {
		if site.Active {
			siteIDs = append(siteIDs, site.ID)
		}
	}

	skipOffline := func(site *types.Site) error {
		if site.Status == types.SiteStatusOffline {
			return types.ErrSiteOffline
		}
		return nil
	}

	return m.fanout(ctx, OpSyncUser, siteIDs, skipOffline, func(ctx context.Context, site *types.Site) error {
		return m.syncOnSite(ctx, site, spec)
	}), nil
}

// createOnSite is one branch of a create fan-out: remote call first,
// mirror only on confirmation.
func (m *Manager) createOnSite(ctx context.Context, site *types.Site, spec types.UserSpec) error {
	unlock := m.locks.lock(site.ID + "/" + spec.Username)
	defer unlock()

	created, err := m.dialer(site).CreateUser(ctx, spec)
	if err != nil {
		return err
	}

	now := time.Now()
	return m.store.RecordMirror(&types.ProvisionedUser{
		SiteID:    site.ID,
		Username:  spec.Username,
		Policy:    spec.Policy,
		CreatedAt: now,
		RemoteID:  created.ID,
		SyncedAt:  now,
	})
}

// syncOnSite converges one site on the spec: create, and fall back to
// update when the user already exists there.
func (m *Manager) syncOnSite(ctx context.Context, site *types.Site, spec types.UserSpec) error {
	unlock := m.locks.lock(site.ID + "/" + spec.Username)
	defer unlock()

	cli := m.dialer(site)
	created, err := cli.CreateUser(ctx, spec)
	if errors.Is(err, types.ErrConflict) {
		var updated *device.HotspotUser
		updated, err = cli.UpdateUser(ctx, spec.Username, types.UserPatch{
			Password: spec.Password,
			Policy:   spec.Policy,
		})
		if err == nil {
			created = updated
		}
	}
	if err != nil {
		return err
	}

	now := time.Now()
	return m.store.RecordMirror(&types.ProvisionedUser{
		SiteID:    site.ID,
		Username:  spec.Username,
		Policy:    spec.Policy,
		CreatedAt: now,
		RemoteID:  created.ID,
		SyncedAt:  now,
	})
}

// refreshMirror folds a confirmed remote mutation into the mirror,
// preserving the original creation time when the entry exists.
func (m *Manager) refreshMirror(siteID, username, remoteID string, policy types.BandwidthPolicy) error {
	now := time.Now()
	entry := &types.ProvisionedUser{
		SiteID:    siteID,
		Username:  username,
		CreatedAt: now,
		SyncedAt:  now,
	}

	if existing, err := m.store.GetMirror(siteID, username); err == nil {
		entry.CreatedAt = existing.CreatedAt
		entry.Policy = existing.Policy
		if remoteID == "" {
			entry.RemoteID = existing.RemoteID
		}
	}
	if remoteID != "" {
		entry.RemoteID = remoteID
	}
	if !policy.IsZero() {
		entry.Policy = policy
	}

	return m.store.RecordMirror(entry)
}
