// Package events provides the in-process event broker.
//
// The connectivity monitor publishes one event per site status
// transition; the orchestrator publishes fan-out completions. Slow
// subscribers are skipped rather than blocking the broker, so a stuck
// dashboard can never back-pressure the monitor.
package events
