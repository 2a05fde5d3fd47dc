// Package api implements the read-only HTTP API of `reporter serve`.
//
// New(source, settings) returns a Handler that serves:
//
//	GET /api/v1/health             - store reachability and sample count
//	GET /api/v1/summary?days=N     - both averages, coverage, diagnostics, text
//	GET /api/v1/buckets?days=N     - the full date × hour grid
//	GET /api/v1/weekday?days=N     - weekday × hour averages for operating hours
//	GET /api/v1/recent?hours=N     - raw samples with scores, oldest first
//	GET /api/v1/report.png?days=N  - the rendered PNG report
//	GET /metrics                   - API request metrics in Prometheus format
//
// All /api/v1 endpoints return 405 for non-GET methods and 400 for a
// non-positive or oversized days/hours value. Missing parameters fall back
// to the report section of the config. Every request aggregates straight
// from the store; nothing is cached.
//
// Handler.Update swaps scoring weights, operating hours and defaults
// atomically; `reporter serve` calls it from the config file watcher.
// RequireAPIKey optionally guards the API with a static key header.
package api
