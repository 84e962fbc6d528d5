// Package metrics owns the aggregator's Prometheus collectors.
//
// Each Metrics value has its own registry so tests and multiple engines in one
// process never collide. The admin HTTP surface serves it through Handler and
// the stdin console prints it with WriteText.
package metrics
