package types

import (
	"fmt"
	"time"
)

// Site represents one physical or logical network location with its own
// access controller.
type Site struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Location      string            `json:"location,omitempty"`
	Kind          SiteKind          `json:"kind"`
	Endpoint      Endpoint          `json:"endpoint"`
	Credentials   Credentials       `json:"credentials"`
	MaxUsers      int               `json:"max_users,omitempty"`
	MaxBandwidth  *BandwidthPolicy  `json:"max_bandwidth,omitempty"`
	ParentID      string            `json:"parent_id,omitempty"` // hierarchical topologies
	Labels        map[string]string `json:"labels,omitempty"`
	Status        SiteStatus        `json:"status"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	CreatedAt     time.Time         `json:"created_at"`
	Active        bool              `json:"active"`
}

// SiteKind defines how a site's controller is reached
type SiteKind string

const (
	// SiteKindLocal is a controller sharing a network segment with the
	// orchestrator; reachability is a trivial liveness probe.
	SiteKindLocal SiteKind = "local"
	// SiteKindRemote is a controller reachable only over the public
	// internet; every call against it may be lost or time out.
	SiteKindRemote SiteKind = "remote"
)

// SiteStatus represents the current connectivity state of a site
type SiteStatus string

const (
	SiteStatusOnline  SiteStatus = "online"
	SiteStatusOffline SiteStatus = "offline"
	SiteStatusUnknown SiteStatus = "unknown"
)

// Endpoint is the network address of a site's controller
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Credentials are the basic-auth credentials for a site's control plane
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BandwidthPolicy is a per-user rate limit using RouterOS rate strings
// (e.g. "10M", "512k").
type BandwidthPolicy struct {
	Download string `json:"download"`
	Upload   string `json:"upload"`
}

func (p BandwidthPolicy) IsZero() bool {
	return p.Download == "" && p.Upload == ""
}

// MaxLimit renders the policy as the vendor's "upload/download" pair.
func (p BandwidthPolicy) MaxLimit() string {
	return fmt.Sprintf("%s/%s", p.Upload, p.Download)
}

// ProvisionedUser is the registry's local mirror of a hotspot user
// believed to exist on a site. The remote controller is the source of
// truth; this record may be stale until an explicit sync.
type ProvisionedUser struct {
	SiteID    string          `json:"site_id"`
	Username  string          `json:"username"`
	Policy    BandwidthPolicy `json:"policy"`
	CreatedAt time.Time       `json:"created_at"`
	// RemoteID is the vendor's internal object id as last observed
	RemoteID string    `json:"remote_id,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}

// UserSpec is the input for provisioning a hotspot user
type UserSpec struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Policy   BandwidthPolicy `json:"policy"`
}

// UserPatch carries the mutable fields of a user update; zero fields
// are left untouched on the controller.
type UserPatch struct {
	Password string          `json:"password,omitempty"`
	Policy   BandwidthPolicy `json:"policy,omitempty"`
	Disabled *bool           `json:"disabled,omitempty"`
}

// ManagementToken grants delegated, site-scoped access to a site's
// control plane. Expiry is the only disablement mechanism.
type ManagementToken struct {
	SiteID    string    `json:"site_id"`
	Secret    string    `json:"secret"`
	Scope     []string  `json:"scope"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token has passed its expiry at t.
func (mt *ManagementToken) Expired(t time.Time) bool {
	return t.After(mt.ExpiresAt)
}

// SiteOutcome is one entry of a fan-out result: the outcome of a single
// logical operation against a single site.
type SiteOutcome struct {
	SiteID  string `json:"site_id"`
	Success bool   `json:"success"`
	// Error is the error kind (see ErrorKind) when Success is false
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// FanoutResult aggregates per-site outcomes of one logical operation.
// Its cardinality always equals the requested site-id set's; no entry
// is ever dropped on failure.
type FanoutResult struct {
	Operation string        `json:"operation"`
	Outcomes  []SiteOutcome `json:"outcomes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded returns the number of successful outcomes.
func (r *FanoutResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of failed outcomes.
func (r *FanoutResult) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// StatusChange is emitted by the connectivity monitor when a site
// transitions between statuses. One event per transition, never one
// per probe tick.
type StatusChange struct {
	SiteID    string     `json:"site_id"`
	OldStatus SiteStatus `json:"old_status"`
	NewStatus SiteStatus `json:"new_status"`
	Timestamp time.Time  `json:"timestamp"`
}
