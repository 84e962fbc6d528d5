package types

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// IDKey is the attribute holding a reading's station id.
const IDKey = "id"

var (
	// ErrNotObject is returned when a JSON document is not a single object.
	ErrNotObject = errors.New("reading: not a JSON object")

	// ErrNonScalar is returned when an attribute value is not a string or number.
	ErrNonScalar = errors.New("reading: attribute is not a scalar")
)

// Reading is one station's measurement set. Values are string or json.Number.
// A stored Reading is never mutated; updates replace it whole.
type Reading map[string]any

// ID returns the station id carried by the reading, or "" when absent.
func (r Reading) ID() string {
	switch v := r[IDKey].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// Clone returns a shallow copy. Values are immutable scalars, so the copy
// shares nothing mutable with r.
func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Validate checks that every attribute holds a scalar.
func (r Reading) Validate() error {
	for k, v := range r {
		switch v.(type) {
		case string, json.Number:
		default:
			return fmt.Errorf("%w: %q", ErrNonScalar, k)
		}
	}
	return nil
}

// ParseReading decodes a JSON object of scalars. Trailing data after the
// object is an error.
func ParseReading(data []byte) (Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("reading: decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading: trailing data after object")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	r := Reading(obj)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseKeyValue reads "key: value" lines. The line is split at its first
// colon and both halves are trimmed. A value containing "." that parses as a
// float, or one without "." that parses as an integer, becomes a number;
// anything else stays a string. Lines without a colon or with an empty key
// are skipped.
func ParseKeyValue(r io.Reader) (Reading, error) {
	out := make(Reading)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" {
			continue
		}
		out[key] = scalar(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading: scan: %w", err)
	}
	return out, nil
}

func scalar(v string) any {
	if strings.Contains(v, ".") {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return json.Number(v)
		}
		return v
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return json.Number(v)
	}
	return v
}
