// Package client is a thin Go client for the wisp admin API, used by
// the CLI subcommands.
package client
