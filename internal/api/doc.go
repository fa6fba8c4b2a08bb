// Package api serves a read-only HTTP view of the last exported catalog.
// Routes:
//   - GET /healthz, /readyz for probes; readyz fails until a document loads.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/catalog lists titles with file counts.
//   - GET /v1/catalog/{title} returns one entry; /files flattens its access URLs.
package api
