package receiver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/weathermesh/weathermesh/pkg/wire"
	"github.com/weathermesh/weathermesh/server/internal/aggregator"
	"github.com/weathermesh/weathermesh/server/internal/metrics"
	"github.com/weathermesh/weathermesh/server/internal/receiver"
	"github.com/weathermesh/weathermesh/server/internal/snapshot"
)

// startServer serves rc on a loopback listener and returns its address.
func startServer(t *testing.T, rc *receiver.Receiver) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { lis.Close() })

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go rc.ServeConn(context.Background(), conn)
		}
	}()
	return lis.Addr().String()
}

func newReceiver(t *testing.T) (*receiver.Receiver, *aggregator.Engine) {
	t.Helper()
	m := metrics.New()
	e := aggregator.New(aggregator.Options{Backend: snapshot.NewMemory(), Metrics: m})
	return receiver.New(e, m, 0), e
}

// send writes raw to a new connection, half-closes it and reads one response.
func send(t *testing.T, addr, raw string) *wire.Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.(*net.TCPConn).CloseWrite()

	resp, err := wire.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func put(id string, lamport int, body string) string {
	return "PUT /weather/" + id + " HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Lamport-Time: " + strconv.Itoa(lamport) + "\r\n\r\n" + body
}

func get(resource string, lamport int) string {
	return "GET " + resource + " HTTP/1.1\r\nLamport-Time: " + strconv.Itoa(lamport) + "\r\n\r\n"
}

// decodeStations decodes a GET body keyed by station id, keeping numbers
// as written.
func decodeStations(t *testing.T, body []byte) map[string]map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var got map[string]map[string]any
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("decode body %q: %v", body, err)
	}
	return got
}

func lamportOf(t *testing.T, resp *wire.Response) uint64 {
	t.Helper()
	v, err := wire.LamportTime(resp.Header)
	if err != nil {
		t.Fatalf("response Lamport-Time: %v", err)
	}
	return v
}

func TestScenario(t *testing.T) {
	rc, _ := newReceiver(t)
	addr := startServer(t, rc)
	body := `{"id":"IDS60901","air_temp":15.2}`

	steps := []struct {
		name string
		raw  string
		want int
	}{
		{"first put", put("IDS60901", 1, body), 201},
		{"repeat put", put("IDS60901", 2, `{"id":"IDS60901","air_temp":16.0}`), 200},
		{"get station", get("/weather/IDS60901", 3), 200},
		{"get unknown", get("/weather/UNKNOWN", 4), 404},
		{"empty put", put("IDS60901", 5, ""), 204},
		{"truncated put", "PUT /weather/IDS60901 HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 40\r\nLamport-Time: 6\r\n\r\n{\"id\":", 400},
	}

	var last uint64
	for _, s := range steps {
		resp := send(t, addr, s.raw)
		if resp.StatusCode != s.want {
			t.Fatalf("%s: status %d, want %d", s.name, resp.StatusCode, s.want)
		}
		lt := lamportOf(t, resp)
		if lt <= last {
			t.Errorf("%s: Lamport-Time %d did not advance past %d", s.name, lt, last)
		}
		last = lt

		if s.name == "get station" {
			got := decodeStations(t, resp.Body)
			st := got["IDS60901"]
			if st["id"] != "IDS60901" || st["air_temp"] != json.Number("16.0") {
				t.Errorf("latest reading: got %v, want id IDS60901 and air_temp 16.0", got)
			}
		}
	}
}

func TestGetAll(t *testing.T) {
	rc, _ := newReceiver(t)
	addr := startServer(t, rc)

	if resp := send(t, addr, get("/weather", 1)); resp.StatusCode != 404 {
		t.Fatalf("GET with no stations: status %d, want 404", resp.StatusCode)
	}

	send(t, addr, put("A", 2, `{"id":"A","t":1}`))
	send(t, addr, put("B", 3, `{"t":"two"}`))

	for _, res := range []string{"/weather", "/weather/"} {
		resp := send(t, addr, get(res, 4))
		if resp.StatusCode != 200 {
			t.Fatalf("GET %s: status %d", res, resp.StatusCode)
		}
		var all map[string]map[string]any
		if err := json.Unmarshal(resp.Body, &all); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("GET %s: got %d stations, want 2", res, len(all))
		}
		// Missing body id is filled from the path.
		if all["B"]["id"] != "B" {
			t.Errorf("GET %s: B id = %v, want B", res, all["B"]["id"])
		}
	}
}

func TestHandle_Statuses(t *testing.T) {
	jsonHeader := func(lamport string) wire.Header {
		h := wire.Header{}
		h.Set(wire.HeaderContentType, "application/json; charset=utf-8")
		if lamport != "" {
			h.Set(wire.HeaderLamportTime, lamport)
		}
		return h
	}
	plainHeader := wire.Header{}
	plainHeader.Set(wire.HeaderContentType, "text/plain")
	plainHeader.Set(wire.HeaderLamportTime, "1")

	cases := []struct {
		name string
		req  *wire.Request
		want int
	}{
		{"post is bad request", &wire.Request{Method: "POST", Resource: "/weather/A", Header: jsonHeader("1")}, 400},
		{"delete is bad request", &wire.Request{Method: "DELETE", Resource: "/weather/A", Header: jsonHeader("1")}, 400},
		{"get other resource", &wire.Request{Method: "GET", Resource: "/status", Header: jsonHeader("1")}, 404},
		{"put without id", &wire.Request{Method: "PUT", Resource: "/weather/", Header: jsonHeader("1"), Body: []byte(`{"id":"A"}`)}, 404},
		{"put dot-dot", &wire.Request{Method: "PUT", Resource: "/weather/..", Header: jsonHeader("1"), Body: []byte(`{"id":".."}`)}, 404},
		{"put nested path", &wire.Request{Method: "PUT", Resource: "/weather/a/b", Header: jsonHeader("1"), Body: []byte(`{"id":"a"}`)}, 404},
		{"put missing time", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: jsonHeader(""), Body: []byte(`{"id":"A"}`)}, 400},
		{"put bad time", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: jsonHeader("soon"), Body: []byte(`{"id":"A"}`)}, 400},
		{"get missing time", &wire.Request{Method: "GET", Resource: "/weather", Header: jsonHeader("")}, 400},
		{"put plain text", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: plainHeader, Body: []byte(`{"id":"A"}`)}, 400},
		{"put malformed json", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: jsonHeader("1"), Body: []byte(`{"id":`)}, 500},
		{"put nested object", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: jsonHeader("1"), Body: []byte(`{"id":"A","wind":{"dir":"N"}}`)}, 500},
		{"put empty body", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: jsonHeader("1")}, 204},
		{"put ok", &wire.Request{Method: "PUT", Resource: "/weather/A", Header: jsonHeader("1"), Body: []byte(`{"id":"A","t":1}`)}, 201},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc, e := newReceiver(t)
			resp := rc.Handle(context.Background(), tc.req)
			if resp.StatusCode != tc.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
			if tc.want != 201 && e.Size() != 0 {
				t.Errorf("rejected request touched the store: size %d", e.Size())
			}
		})
	}
}

func TestHandle_PutStoresUnderResourceID(t *testing.T) {
	rc, e := newReceiver(t)
	h := wire.Header{}
	h.Set(wire.HeaderContentType, "application/json")
	h.Set(wire.HeaderLamportTime, "1")

	resp := rc.Handle(context.Background(), &wire.Request{
		Method: "PUT", Resource: "/weather/A", Header: h,
		Body: []byte(`{"id":"B","air_temp":12.5}`),
	})
	if resp.StatusCode != 201 {
		t.Fatalf("status: got %d, want 201", resp.StatusCode)
	}
	if _, ok := e.Get("B"); ok {
		t.Error("reading stored under the body id B")
	}
	r, ok := e.Get("A")
	if !ok {
		t.Fatal("reading not stored under the resource id A")
	}
	if r.ID() != "A" {
		t.Errorf("stored id: got %q, want %q", r.ID(), "A")
	}

	resp = rc.Handle(context.Background(), &wire.Request{Method: "GET", Resource: "/weather/A", Header: h})
	got := decodeStations(t, resp.Body)
	if got["A"]["id"] != "A" || got["A"]["air_temp"] != json.Number("12.5") {
		t.Errorf("GET /weather/A: got %v", got)
	}
}

func TestHandle_ClockTicksOnErrors(t *testing.T) {
	rc, e := newReceiver(t)
	before := e.Current()
	resp := rc.Handle(context.Background(), &wire.Request{Method: "PATCH", Resource: "/weather", Header: wire.Header{}})
	if resp.StatusCode != 400 {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	if got := lamportOf(t, resp); got != before+1 {
		t.Errorf("Lamport-Time: got %d, want %d", got, before+1)
	}
}

func TestHandle_ObservesRemoteTime(t *testing.T) {
	rc, _ := newReceiver(t)
	h := wire.Header{}
	h.Set(wire.HeaderContentType, "application/json")
	h.Set(wire.HeaderLamportTime, "100")

	resp := rc.Handle(context.Background(), &wire.Request{Method: "PUT", Resource: "/weather/A", Header: h, Body: []byte(`{"id":"A"}`)})
	// observe(100) -> 101, tick -> 102.
	if got := lamportOf(t, resp); got != 102 {
		t.Errorf("Lamport-Time: got %d, want 102", got)
	}
}

func TestServeConn_FramingError(t *testing.T) {
	rc, _ := newReceiver(t)
	addr := startServer(t, rc)

	cases := map[string]string{
		"two colons":    "GET /weather HTTP/1.1\r\nHost: localhost:4567\r\n\r\n",
		"no colon":      "GET /weather HTTP/1.1\r\nLamport-Time 1\r\n\r\n",
		"short request": "GET /weather\r\n\r\n",
		"bad length":    "PUT /weather/A HTTP/1.1\r\nContent-Length: -3\r\n\r\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if resp := send(t, addr, raw); resp.StatusCode != 400 {
				t.Errorf("status: got %d, want 400", resp.StatusCode)
			}
		})
	}
}

// readsNothing dials addr, runs fn on the connection and asserts the server
// closes it without writing a response.
func readsNothing(t *testing.T, addr string, fn func(net.Conn)) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	fn(conn)

	n, err := conn.Read(make([]byte, 1))
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF with no response, got n=%d err=%v", n, err)
	}
}

func TestServeConn_EmptyConnection(t *testing.T) {
	rc, _ := newReceiver(t)
	addr := startServer(t, rc)
	readsNothing(t, addr, func(c net.Conn) { _ = c.(*net.TCPConn).CloseWrite() })
}

func TestServeConn_RecoversPanic(t *testing.T) {
	// A receiver without an engine panics on the first request.
	addr := startServer(t, receiver.New(nil, nil, 0))
	readsNothing(t, addr, func(c net.Conn) {
		_, _ = io.WriteString(c, get("/weather", 1))
		_ = c.(*net.TCPConn).CloseWrite()
	})

	// The listener goroutine is unaffected.
	readsNothing(t, addr, func(c net.Conn) { _ = c.(*net.TCPConn).CloseWrite() })
}

func TestServeConn_ReadTimeout(t *testing.T) {
	m := metrics.New()
	rc := receiver.New(aggregator.New(aggregator.Options{Metrics: m}), m, 50*time.Millisecond)
	addr := startServer(t, rc)
	readsNothing(t, addr, func(c net.Conn) {
		// Headers promise a body that never arrives.
		_, _ = io.WriteString(c, "PUT /weather/A HTTP/1.1\r\nContent-Length: 10\r\n\r\n")
	})
}
