// Package log provides structured logging for wisp built on zerolog.
//
// Init configures the global logger once at startup (console output for
// interactive use, JSON for production). Components obtain child
// loggers with WithComponent / WithSite so every line carries its
// origin and, where relevant, the site it concerns.
package log
