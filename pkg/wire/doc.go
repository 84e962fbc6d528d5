// Package wire implements the line-oriented message framing spoken between
// the aggregator and its clients. It borrows HTTP/1.1 syntax but is not HTTP:
//
//	PUT /weather/IDS60901 HTTP/1.1\r\n
//	Content-Type: application/json\r\n
//	Content-Length: 34\r\n
//	Lamport-Time: 4\r\n
//	\r\n
//	{"id":"IDS60901","air_temp":15.2}
//
// Parsing fails fast. A start line without its separators, a header line that
// does not contain exactly one ':' and a body shorter than its declared
// Content-Length are all framing errors (ErrFraming) and abort the message.
// Body decoding is separate (DecodeReading) so callers can tell an empty body
// (ErrEmptyBody), a wrong Content-Type (ErrContentType) and undecodable JSON
// (ErrMalformedContent) apart.
//
// Writers always emit Content-Type, Content-Length and, when set,
// Lamport-Time, followed by a blank line and the body verbatim.
package wire
