// Package shipper uploads a content server's current reading to the
// aggregator.
//
// Shipper.Ship() is non-blocking: the reading replaces any pending one, so the
// newest file contents always win. Shipper.Run() uploads each shipped reading
// immediately and re-sends the latest one every interval, which keeps the
// station alive in the aggregator's expiry window. Per-request retries and
// backoff live in pkg/client; a failed upload here is logged and tried again
// on the next tick.
package shipper
