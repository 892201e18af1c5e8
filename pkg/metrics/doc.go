// Package metrics defines the prometheus collectors for wisp: site
// counts, probe results, status transitions, fan-out outcomes, and
// admin API request counters. Register once at startup and mount
// Handler() at /metrics.
package metrics
