// Package api hosts the control server for a running overlay. Routes:
//   - GET /healthz and /readyz for probes; readyz answers 503 until the dataset loads.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for dataset, settings and strategy state.
//   - GET and PUT /v1/settings to read or partially update settings.
//   - POST /v1/reload to force a dataset reload and full rescan.
package api
