// Package api implements the read-only admin HTTP surface of the aggregator.
//
// New(src, m) returns an http.Handler that serves:
//
//	GET /api/v1/health          - station count and current Lamport time
//	GET /api/v1/stations        - all live stations keyed by id
//	GET /api/v1/stations/{id}   - single station; 404 if unknown or expired
//	GET /metrics                - Prometheus exposition (when m is non-nil)
//
// All JSON endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//   - Exclude entries past the expiry window even if no request has evicted them yet
//
// Nothing here advances the Lamport clock or triggers eviction; the weather
// protocol port stays the only writer. JSON types are defined in types.go.
package api
