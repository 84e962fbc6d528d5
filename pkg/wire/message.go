package wire

import (
	"errors"
	"fmt"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/weathermesh/weathermesh/pkg/types"
)

// Header names and values used by the protocol.
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderLamportTime   = "Lamport-Time"
	HeaderHost          = "Host"
	HeaderUserAgent     = "User-Agent"

	ContentTypeJSON  = "application/json"
	ContentTypePlain = "text/plain"

	Version = "HTTP/1.1"
)

// Limits applied while reading a message.
const (
	MaxHeaderBytes = 64 << 10
	MaxBodyBytes   = 1 << 20
)

var (
	// ErrFraming covers malformed start lines, header lines, lengths and
	// truncated bodies.
	ErrFraming = errors.New("wire: framing error")

	// ErrContentType is returned when a body is present but not JSON.
	ErrContentType = errors.New("wire: unsupported content type")

	// ErrEmptyBody is returned by DecodeReading when the message has no body.
	ErrEmptyBody = errors.New("wire: empty body")

	// ErrMalformedContent is returned when the body is not a valid reading.
	ErrMalformedContent = errors.New("wire: malformed content")

	// ErrMissingTime is returned by LamportTime when the header is absent.
	ErrMissingTime = errors.New("wire: missing Lamport-Time header")
)

// Header maps canonical header names to values. Later duplicates replace
// earlier ones.
type Header map[string]string

// Get returns the value for name, matched case-insensitively.
func (h Header) Get(name string) string { return h[textproto.CanonicalMIMEHeaderKey(name)] }

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// Set stores value under the canonical form of name.
func (h Header) Set(name, value string) { h[textproto.CanonicalMIMEHeaderKey(name)] = value }

// Request is one client message.
type Request struct {
	Method   string
	Resource string
	Version  string
	Header   Header
	Body     []byte
}

// NewRequest builds a request stamped with the given Lamport time.
func NewRequest(method, resource string, lamport uint64, body []byte) *Request {
	req := &Request{
		Method:   method,
		Resource: resource,
		Version:  Version,
		Header:   make(Header),
		Body:     body,
	}
	req.Header.Set(HeaderLamportTime, strconv.FormatUint(lamport, 10))
	if len(body) > 0 {
		req.Header.Set(HeaderContentType, ContentTypeJSON)
	}
	return req
}

// Response is the single reply the aggregator writes per connection.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Header     Header
	Body       []byte
}

// NewResponse builds a response with the standard reason phrase for code.
// An empty contentType defaults to JSON for non-empty bodies and plain text
// otherwise.
func NewResponse(code int, lamport uint64, contentType string, body []byte) *Response {
	if contentType == "" {
		contentType = ContentTypePlain
		if len(body) > 0 {
			contentType = ContentTypeJSON
		}
	}
	resp := &Response{
		Version:    Version,
		StatusCode: code,
		Reason:     StatusText(code),
		Header:     make(Header),
		Body:       body,
	}
	resp.Header.Set(HeaderContentType, contentType)
	resp.Header.Set(HeaderLamportTime, strconv.FormatUint(lamport, 10))
	return resp
}

// Status codes spoken by the aggregator.
const (
	StatusOK                  = 200
	StatusCreated             = 201
	StatusNoContent           = 204
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusInternalServerError = 500
)

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusNoContent:
		return "No Content"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	}
	return "Unknown"
}

// LamportTime parses the Lamport-Time header.
func LamportTime(h Header) (uint64, error) {
	if !h.Has(HeaderLamportTime) {
		return 0, ErrMissingTime
	}
	v := strings.TrimSpace(h.Get(HeaderLamportTime))
	t, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: Lamport-Time %q", ErrFraming, v)
	}
	return t, nil
}

// DecodeReading validates the body's Content-Type and decodes it as a reading.
func DecodeReading(h Header, body []byte) (types.Reading, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	if mediaType(h.Get(HeaderContentType)) != ContentTypeJSON {
		return nil, fmt.Errorf("%w: %q", ErrContentType, h.Get(HeaderContentType))
	}
	r, err := types.ParseReading(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return r, nil
}

// mediaType strips parameters and case from a Content-Type value.
func mediaType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// sortedExtra returns header names other than the three fixed ones, sorted,
// so serialization is deterministic.
func (h Header) sortedExtra() []string {
	var names []string
	for k := range h {
		switch k {
		case HeaderContentType, HeaderContentLength, HeaderLamportTime:
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
