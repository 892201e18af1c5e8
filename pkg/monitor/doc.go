/*
Package monitor implements the per-site connectivity monitor.

Each active site gets its own probe goroutine ticking at a fixed
interval, so a hung site never delays another site's probe. The status
machine is Unknown → Online → Offline with no terminal state; a failed
probe flips the site to Offline only once the probe's own timeout has
elapsed, and the next tick is the retry — there is no intra-tick retry.

Local sites are probed with a TCP dial of their declared endpoint;
remote sites with an identity query via the device client.

The monitor writes every observation back to the registry (status and
last-heartbeat), but publishes an event only on a status transition so
subscribers see edges, not ticks.
*/
package monitor
