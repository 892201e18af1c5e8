/*
Package storage provides the durable site registry for wisp.

The registry is the single source of truth for which sites exist and
what credentials reach them. It also keeps a per-site mirror of
provisioned hotspot users for audit and reconciliation; the mirror is a
local belief, not the truth — the controller is, and divergence is
tolerated until an explicit sync.

# Layout

Three bbolt buckets:

  - sites: Site records keyed by id
  - mirrors: ProvisionedUser records keyed "<site-id>/<username>"
  - tokens: ManagementToken records keyed by secret

All values are JSON. Mirror keys share a per-site prefix so a site's
users are a single cursor range, and deleting a site drops its mirror
in the same transaction.

RegisterSite refuses a second active site with the same endpoint and
credential username (ErrDuplicateEndpoint). UpdateSiteStatus is the
connectivity monitor's write path and touches only status and
last-heartbeat.
*/
package storage
