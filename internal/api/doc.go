// Package api hosts the HTTP server and handlers for operator access while a
// crawl runs. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the engine's run state and last outcome.
//   - GET /v1/results for the persisted result set.
package api
