// Package client is the transport shared by the content server and the GET
// client.
//
// ParseAddr accepts the three server address forms the tools take on the
// command line:
//
//	http://name.domain:port
//	http://name:port
//	name:port
//
// Client.Do performs one request per connection using the wire codec. It
// ticks its Lamport clock before each send and observes the Lamport-Time of
// every response. Connection failures, 5xx and 404 are retried up to
// DefaultAttempts times (see WithAttempts). The pauses between tries double
// from 250ms up to a 2s cap, each drawn from the upper half of its step
// (WithBackoff changes both bounds). The Host header carries the host name only; a port
// would add a second colon to the header line.
package client
