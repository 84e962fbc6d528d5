package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/weathermesh/weathermesh/pkg/lamport"
	"github.com/weathermesh/weathermesh/pkg/types"
	"github.com/weathermesh/weathermesh/pkg/wire"
)

const (
	// DefaultAttempts is the number of tries per request, including the first.
	DefaultAttempts = 3
	// DefaultTimeout bounds one round trip.
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "weathermesh/1.0"
	weatherPath      = "/weather"
)

var (
	// ErrNotFound is returned when the aggregator answers 404 after all retries.
	ErrNotFound = errors.New("client: not found")

	// ErrInvalidID is returned by Put for readings without a usable station id.
	ErrInvalidID = errors.New("client: reading has no usable station id")
)

// StatusError reports a response status the caller did not expect.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: server returned %d %s", e.Code, e.Reason)
}

// DialFunc opens a connection to address.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Client talks to one aggregator.
type Client struct {
	addr      Addr
	clock     *lamport.Clock
	dial      DialFunc
	attempts  int
	initial   time.Duration
	maxWait   time.Duration
	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithClock shares clock with the client instead of a private one.
func WithClock(clock *lamport.Clock) Option { return func(c *Client) { c.clock = clock } }

// WithDialer replaces the TCP dialer.
func WithDialer(d DialFunc) Option { return func(c *Client) { c.dial = d } }

// WithAttempts sets the number of tries per request. Values below 1 mean 1.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithBackoff sets the first retry pause and the cap on later ones.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) { c.initial, c.maxWait = initial, max }
}

// WithTimeout bounds each round trip; zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// New creates a Client for addr.
func New(addr Addr, opts ...Option) *Client {
	d := &net.Dialer{}
	c := &Client{
		addr:      addr,
		clock:     lamport.New(),
		dial:      d.DialContext,
		attempts:  DefaultAttempts,
		initial:   retryInitial,
		maxWait:   retryMax,
		timeout:   DefaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Addr returns the aggregator address.
func (c *Client) Addr() Addr { return c.addr }

// Clock returns the client's Lamport clock.
func (c *Client) Clock() *lamport.Clock { return c.clock }

// Do sends method resource with body and returns the last response received.
// Connection failures, 5xx and 404 are retried. The error is non-nil only
// when the final attempt produced no response.
func (c *Client) Do(ctx context.Context, method, resource string, body []byte) (*wire.Response, error) {
	waits := retryWaits(c.attempts, c.initial, c.maxWait)
	for attempt := 1; ; attempt++ {
		resp, err := c.roundTrip(ctx, method, resource, body)
		if !retryable(resp, err) || attempt >= c.attempts || ctx.Err() != nil {
			return resp, err
		}

		wait := waits[attempt-1]
		args := []any{"method", method, "resource", resource, "attempt", attempt, "retry_in", wait}
		if err != nil {
			args = append(args, "err", err)
		} else {
			args = append(args, "status", resp.StatusCode)
		}
		slog.Warn("client: request failed, will retry", args...)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func retryable(resp *wire.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp.StatusCode >= 500 || resp.StatusCode == wire.StatusNotFound
}

// roundTrip sends one request on a fresh connection and reads the reply.
func (c *Client) roundTrip(ctx context.Context, method, resource string, body []byte) (*wire.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, "tcp", c.addr.String())
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	req := wire.NewRequest(method, resource, c.clock.Tick(), body)
	req.Header.Set(wire.HeaderHost, c.addr.Host)
	req.Header.Set(wire.HeaderUserAgent, c.userAgent)
	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}

	resp, err := wire.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if t, err := wire.LamportTime(resp.Header); err == nil {
		c.clock.Observe(t)
	} else {
		slog.Debug("client: response without usable Lamport-Time", "err", err)
	}
	return resp, nil
}

// Get fetches one station, or every live station when id is empty. The
// result is keyed by station id.
func (c *Client) Get(ctx context.Context, id string) (map[string]types.Reading, error) {
	resource := weatherPath
	if id != "" {
		resource += "/" + id
	}
	resp, err := c.Do(ctx, "GET", resource, nil)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case wire.StatusOK:
	case wire.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &StatusError{Code: resp.StatusCode, Reason: resp.Reason}
	}

	return decodeStations(resp.Body)
}

// decodeStations parses a {id: reading} body. A single-station GET uses the
// same shape with one key.
func decodeStations(body []byte) (map[string]types.Reading, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("client: decode stations: %w", err)
	}
	out := make(map[string]types.Reading, len(raw))
	for id, msg := range raw {
		r, err := types.ParseReading(msg)
		if err != nil {
			return nil, fmt.Errorf("client: decode station %s: %w", id, err)
		}
		out[id] = r
	}
	return out, nil
}

// Put uploads r to /weather/<id> and returns the status, 200 or 201.
func (c *Client) Put(ctx context.Context, r types.Reading) (int, error) {
	id := r.ID()
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, " \t\r\n/\\") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	body, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("client: encode reading: %w", err)
	}

	resp, err := c.Do(ctx, "PUT", weatherPath+"/"+id, body)
	if err != nil {
		return 0, err
	}
	switch resp.StatusCode {
	case wire.StatusOK, wire.StatusCreated:
		return resp.StatusCode, nil
	case wire.StatusNotFound:
		return resp.StatusCode, ErrNotFound
	}
	return resp.StatusCode, &StatusError{Code: resp.StatusCode, Reason: resp.Reason}
}
