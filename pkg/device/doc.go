/*
Package device wraps one site controller's REST control plane.

Each Client instance is bound to a single site's endpoint and basic-auth
credentials. The consumed vendor surface is the hotspot user resource,
the simple-queue (bandwidth) resource, wireless interface and
registration-table enumeration, and the system identity/resource
queries.

# Resolve-by-name

The vendor addresses objects by an opaque internal ".id" and offers no
mutate-by-name primitive. Every update and delete therefore starts with
a list-and-find resolving the username to its current id. The resolved
id can go stale if the object is recreated externally between the two
calls; the client re-resolves once on a NotFound during the mutate and
otherwise reports NotFound — eventual consistency, not atomicity,
matching the controller's own guarantees.

# Idempotent delete

DeleteUser treats an absent user as success. The end state is identical
either way, and the orchestrator's retry path depends on a repeated
delete not degrading into NotFound.

# Caching

List responses (users, queues, interfaces, clients) are cached per
client with a short TTL; mutations invalidate the affected entries.
GetIdentity is deliberately uncached because the connectivity monitor
uses it as its reachability probe. The cache is owned by the client
instance; there is no global cache state.
*/
package device
