// Package lamport implements a scalar Lamport clock shared by the aggregator,
// content servers and GET clients.
//
// Every local event advances the clock by one (Tick). Receiving a message
// stamped with time t moves the clock to max(local, t) + 1 (Observe). All
// operations are serialized by one mutex, so callers never see a partially
// applied update. The zero Clock is ready to use and starts at time 0.
package lamport
