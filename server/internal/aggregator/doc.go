// Package aggregator ties the Lamport clock, the station store and the
// snapshot backend together behind one Engine.
//
// Engine.mu is the coarse lock. It serialises clock read-modify-write
// sequences, eviction passes, snapshot writes and index rewrites. Store reads
// and the in-memory part of a Put only take the store's shard locks. Callers
// must never hold the engine across network I/O: the connection handler reads
// the whole request first, calls the engine, then writes the response.
//
// Eviction runs on demand at the start of every request and after every
// write; there is no background sweeper.
package aggregator
