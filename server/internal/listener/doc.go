// Package listener runs the aggregator's accept loop. Every accepted
// connection is handed to its own goroutine; there is no concurrency limit.
package listener
