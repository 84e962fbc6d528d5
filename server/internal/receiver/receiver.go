package receiver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weathermesh/weathermesh/pkg/types"
	"github.com/weathermesh/weathermesh/pkg/wire"
	"github.com/weathermesh/weathermesh/server/internal/aggregator"
	"github.com/weathermesh/weathermesh/server/internal/metrics"
)

const weatherPath = "/weather"

var (
	errNotFound   = errors.New("receiver: not found")
	errBadRequest = errors.New("receiver: bad request")
)

// Receiver serves weather protocol connections against an Engine.
type Receiver struct {
	engine      *aggregator.Engine
	metrics     *metrics.Metrics
	readTimeout time.Duration
}

// New creates a Receiver. A readTimeout of zero leaves reads unbounded.
func New(e *aggregator.Engine, m *metrics.Metrics, readTimeout time.Duration) *Receiver {
	return &Receiver{engine: e, metrics: m, readTimeout: readTimeout}
}

// ServeConn handles exactly one request on conn and closes it. A panic while
// handling is recovered and logged; only this connection is affected.
func (rc *Receiver) ServeConn(ctx context.Context, conn net.Conn) {
	log := slog.Default().With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())

	rc.metrics.ConnOpened()
	defer rc.metrics.ConnClosed()
	defer conn.Close()
	defer func() {
		if p := recover(); p != nil {
			log.Error("receiver: handler panic", "panic", p, "stack", string(debug.Stack()))
		}
	}()

	if rc.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(rc.readTimeout))
	}

	req, err := wire.ReadRequest(bufio.NewReader(conn))
	var resp *wire.Response
	switch {
	case err == nil:
		log.Debug("receiver: request", "method", req.Method, "resource", req.Resource)
		resp = rc.Handle(ctx, req)
	case errors.Is(err, io.EOF):
		log.Debug("receiver: peer closed before sending a request")
		return
	case errors.Is(err, wire.ErrFraming):
		log.Warn("receiver: framing error", "err", err)
		resp = rc.respond("", wire.StatusBadRequest, nil)
	default:
		log.Warn("receiver: read failed", "err", err)
		return
	}

	if err := resp.Write(conn); err != nil {
		log.Warn("receiver: write response failed", "err", err)
		return
	}
	log.Debug("receiver: response", "status", resp.StatusCode)
}

// Handle dispatches one decoded request and builds its response.
func (rc *Receiver) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	var (
		code int
		body []byte
		err  error
	)
	switch req.Method {
	case "GET":
		body, err = rc.handleGet(ctx, req)
		code = wire.StatusOK
	case "PUT":
		code, err = rc.handlePut(ctx, req)
	default:
		err = fmt.Errorf("%w: method %q", errBadRequest, req.Method)
	}
	if err != nil {
		code = statusFor(err)
		body = nil
		if code >= wire.StatusInternalServerError {
			slog.Error("receiver: request failed", "method", req.Method, "resource", req.Resource, "err", err)
		} else {
			slog.Debug("receiver: request rejected", "method", req.Method, "resource", req.Resource, "status", code, "err", err)
		}
	}
	return rc.respond(req.Method, code, body)
}

// respond ticks the clock for the send event and builds the response.
func (rc *Receiver) respond(method string, code int, body []byte) *wire.Response {
	rc.metrics.ObserveResponse(method, code)
	return wire.NewResponse(code, rc.engine.Tick(), "", body)
}

func (rc *Receiver) handleGet(ctx context.Context, req *wire.Request) ([]byte, error) {
	id, all, err := route(req.Resource)
	if err != nil {
		return nil, err
	}

	rc.engine.Evict(ctx)

	t, err := wire.LamportTime(req.Header)
	if err != nil {
		return nil, err
	}
	rc.engine.Observe(t)

	if rc.engine.Size() == 0 {
		return nil, fmt.Errorf("%w: no live stations", errNotFound)
	}

	var out any
	if all {
		out = rc.engine.All()
	} else {
		r, ok := rc.engine.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: station %q", errNotFound, id)
		}
		out = map[string]any{id: r}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("receiver: encode response: %w", err)
	}
	return body, nil
}

func (rc *Receiver) handlePut(ctx context.Context, req *wire.Request) (int, error) {
	id, all, err := route(req.Resource)
	if err != nil {
		return 0, err
	}
	if all {
		return 0, fmt.Errorf("%w: PUT needs a station id", errNotFound)
	}

	t, err := wire.LamportTime(req.Header)
	if err != nil {
		return 0, err
	}
	if current := rc.engine.Observe(t); !current {
		slog.Debug("receiver: accepting write with stale Lamport time", "station", id, "lamport", t)
	}

	r, err := wire.DecodeReading(req.Header, req.Body)
	if err != nil {
		return 0, err
	}
	// The resource path names the station; the body id follows it.
	if bodyID := r.ID(); bodyID != id {
		if bodyID != "" {
			slog.Debug("receiver: body id overridden by resource id", "station", id, "body_id", bodyID)
		}
		r = r.Clone()
		r[types.IDKey] = id
	}

	if rc.engine.Put(ctx, id, r) {
		return wire.StatusCreated, nil
	}
	return wire.StatusOK, nil
}

// route parses a /weather resource. all is true for /weather and /weather/.
func route(resource string) (id string, all bool, err error) {
	if resource == weatherPath || resource == weatherPath+"/" {
		return "", true, nil
	}
	id, ok := strings.CutPrefix(resource, weatherPath+"/")
	if !ok {
		return "", false, fmt.Errorf("%w: resource %q", errNotFound, resource)
	}
	if !validStationID(id) {
		return "", false, fmt.Errorf("%w: station id %q", errNotFound, id)
	}
	return id, false, nil
}

// validStationID rejects ids that cannot name a snapshot.
func validStationID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, wire.ErrEmptyBody):
		return wire.StatusNoContent
	case errors.Is(err, wire.ErrFraming),
		errors.Is(err, wire.ErrContentType),
		errors.Is(err, wire.ErrMissingTime),
		errors.Is(err, errBadRequest):
		return wire.StatusBadRequest
	case errors.Is(err, errNotFound):
		return wire.StatusNotFound
	default:
		return wire.StatusInternalServerError
	}
}
