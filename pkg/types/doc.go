/*
Package types defines the core data structures used throughout wisp.

This package contains the domain model for multi-site hotspot
orchestration: sites and their connectivity state, per-site provisioned
user mirrors, bandwidth policies, management tokens, fan-out outcomes,
and the error taxonomy shared by the device client, registry, and
orchestrator.

# Core Types

Site topology:
  - Site: one network location with its own access controller
  - SiteKind: local (same segment) or remote (public internet)
  - SiteStatus: online, offline, unknown

Provisioning:
  - ProvisionedUser: the registry's non-authoritative mirror of a
    hotspot user on a site
  - UserSpec / UserPatch: provisioning inputs
  - BandwidthPolicy: per-user rate limits in vendor rate strings

Orchestration:
  - SiteOutcome / FanoutResult: per-site results of one logical
    operation fanned out across a site set
  - StatusChange: connectivity transition events

Security:
  - ManagementToken: site-scoped, time-limited delegated credential

All types marshal to JSON for both the bbolt store and the admin API.
The error sentinels in errors.go are matched with errors.Is; ErrorKind
maps them to the stable wire names carried in fan-out outcomes.
*/
package types
