/*
Package manager implements the fan-out orchestrator and the management
token issuer.

# Fan-out

A fan-out executes one logical operation (create/update/delete user,
set bandwidth) against a set of target sites concurrently and
independently. The core correctness property: one site's failure —
timeout, auth rejection, protocol drift — never aborts or affects any
other branch. Every requested site id owns exactly one outcome slot
allocated before dispatch, so the result set's cardinality always
equals the request's, duplicates included, with the specific error kind
preserved per site. Partial remote failure is a successful
orchestration outcome.

An unregistered site id yields a site_not_found outcome without a
network call. SyncUser targets every active site, skipping those the
monitor marks offline pre-flight — and records those skips as explicit
site_offline failures rather than dropping them.

Mirror writes happen only after the controller confirms, and are
serialized per (site, username) with striped locks so overlapping
fan-outs touching the same user cannot lose updates. Branches for
different keys run fully in parallel.

# Tokens

TokenIssuer mints site-scoped, fixed-horizon bearer secrets persisted
in the registry. Verification is a pure lookup: exists, site matches,
not expired. All rejections are indistinguishable to the caller.
*/
package manager
