// Package receiver implements the aggregator's connection handler: one
// request, one response, then close.
//
// A connection moves through AwaitingRequestLine, ParsingHeaders, Dispatch,
// HandlingGet or HandlingPut, WritingResponse and Closed. Framing errors skip
// straight to WritingResponse with 400. A peer that disconnects before
// sending anything gets no response.
//
// Dispatch:
//
//	GET /weather, GET /weather/      all live stations
//	GET /weather/{id}                one station, wrapped as {id: reading}
//	PUT /weather/{id}                store the body as the station's reading
//	GET or PUT, any other resource   404
//	any other method                 400
//
// Errors map to status codes as follows: wire.ErrFraming, wire.ErrContentType
// and a missing Lamport-Time header give 400; wire.ErrEmptyBody gives 204;
// wire.ErrMalformedContent gives 500; an unknown resource or station gives
// 404. Every response, including errors, ticks the Lamport clock once and
// carries the new time.
//
// The handler reads the whole request before calling the engine and writes
// only after the engine returns, so the engine's lock is never held across
// network I/O.
package receiver
