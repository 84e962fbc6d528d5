// Package store holds the aggregator's authoritative in-memory state: the
// latest reading per station and the wall time it was written.
//
// The map is split into fixed shards, each guarded by its own RWMutex, so
// single-station Put/Get/Remove never contend with writes to other stations.
// Entries are immutable; Put swaps in a new *Entry. Eviction therefore removes
// with RemoveEntry, which only deletes if the station still points at the
// entry the caller scanned, so a concurrent refresh is never lost.
//
// GetAll walks the shards one at a time without a global lock. Stations added
// or removed during the walk may or may not appear; every returned reading was
// live at some instant during the call.
package store
