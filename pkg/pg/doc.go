// Package pg provides PostgreSQL plumbing: pooled connections via pgx
// with startup retry, goose migrations routed through slog, health
// probes, and SQLSTATE predicate helpers used by the stores.
package pg
