// Package ws implements the WebSocket hub that streams live stations to
// admin clients.
//
// Hub manages a set of connected clients and broadcasts the current station
// set to all of them every interval (default 5s, server.admin.stream_interval).
//
// New(src, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// stations immediately on connect, then streams updates on each tick. A
// ?station=<id> query narrows every message to that one station.
//
// Message format sent to clients:
//
//	{
//	  "event": "stations",
//	  "data":  { /* same schema as GET /api/v1/stations */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/stream on the admin port.
package ws
