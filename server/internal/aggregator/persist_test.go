package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/weathermesh/weathermesh/pkg/types"
	"github.com/weathermesh/weathermesh/server/internal/snapshot"
)

// slowBackend reports itself as remote and holds every snapshot write until
// release is closed.
type slowBackend struct {
	*snapshot.Memory

	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	writes map[string]int
}

func newSlowBackend() *slowBackend {
	return &slowBackend{
		Memory:  snapshot.NewMemory(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		writes:  make(map[string]int),
	}
}

func (b *slowBackend) Driver() snapshot.Driver { return snapshot.DriverS3 }

func (b *slowBackend) WriteSnapshot(ctx context.Context, id string, data []byte) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	b.mu.Lock()
	b.writes[id]++
	b.mu.Unlock()
	return b.Memory.WriteSnapshot(ctx, id, data)
}

func (b *slowBackend) writeCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[id]
}

// within fails the test if fn does not return in d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s still blocked after %v", what, d)
	}
}

func waitStarted(t *testing.T, b *slowBackend) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot write never reached the backend")
	}
}

func storedTemp(t *testing.T, b snapshot.Backend, id string) json.Number {
	t.Helper()
	data, err := b.ReadSnapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadSnapshot(%s): %v", id, err)
	}
	_, r, err := snapshot.Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s): %v", id, err)
	}
	n, _ := r["air_temp"].(json.Number)
	return n
}

func TestRemoteBackend_SlowWriteDoesNotBlockEngine(t *testing.T) {
	ctx := context.Background()
	b := newSlowBackend()
	e := newEngine(t, newManualClock(), b)
	t.Cleanup(func() { _ = e.Close() })
	t.Cleanup(func() {
		select {
		case <-b.release:
		default:
			close(b.release)
		}
	})

	within(t, time.Second, "Put A", func() { e.Put(ctx, "A", reading("A")) })
	waitStarted(t, b)

	// The write of A is now stuck in the backend.
	within(t, 100*time.Millisecond, "engine calls during a slow write", func() {
		e.Observe(7)
		if got := e.Tick(); got != 9 {
			t.Errorf("Tick: got %d, want 9", got)
		}
		e.Put(ctx, "B", reading("B"))
		if _, ok := e.Get("B"); !ok {
			t.Error("Get B: not found")
		}
		if _, ok := e.Get("A"); !ok {
			t.Error("Get A: not found")
		}
	})

	if _, err := b.ReadSnapshot(ctx, "B"); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("B persisted before the queue drained: err %v", err)
	}

	close(b.release)
	e.Flush()
	for _, id := range []string{"A", "B"} {
		if _, err := b.ReadSnapshot(ctx, id); err != nil {
			t.Errorf("snapshot %s after flush: %v", id, err)
		}
	}
	if ids, _ := b.ReadIndex(ctx); !reflect.DeepEqual(ids, []string{"A", "B"}) {
		t.Errorf("index after flush: got %v, want [A B]", ids)
	}
}

func TestRemoteBackend_KeepsNewestWrite(t *testing.T) {
	ctx := context.Background()
	b := newSlowBackend()
	e := newEngine(t, newManualClock(), b)
	t.Cleanup(func() { _ = e.Close() })

	e.Put(ctx, "A", reading("A"))
	waitStarted(t, b)
	for _, temp := range []string{"14.0", "15.0", "16.0"} {
		e.Put(ctx, "A", types.Reading{"id": "A", "air_temp": json.Number(temp)})
	}

	close(b.release)
	e.Flush()
	if got := storedTemp(t, b, "A"); got != "16.0" {
		t.Errorf("persisted air_temp: got %s, want 16.0", got)
	}
	if n := b.writeCount("A"); n != 2 {
		t.Errorf("backend writes for A: got %d, want 2 (first plus newest)", n)
	}
}

func TestRemoteBackend_EvictionDeletesAfterQueuedWrite(t *testing.T) {
	ctx := context.Background()
	clk := newManualClock()
	b := newSlowBackend()
	close(b.release)
	e := newEngine(t, clk, b)
	t.Cleanup(func() { _ = e.Close() })

	e.Put(ctx, "old", reading("old"))
	clk.Advance(30 * time.Second)
	e.Put(ctx, "new", reading("new"))
	e.Flush()

	if _, err := b.ReadSnapshot(ctx, "old"); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("expired snapshot still stored: err %v", err)
	}
	if ids, _ := b.ReadIndex(ctx); !reflect.DeepEqual(ids, []string{"new"}) {
		t.Errorf("index: got %v, want [new]", ids)
	}
}

func TestAsyncPersist_CloseFlushes(t *testing.T) {
	ctx := context.Background()
	b := snapshot.NewMemory()
	e := New(Options{Backend: b, Now: newManualClock().Now, AsyncPersist: true})

	e.Put(ctx, "A", reading("A"))
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := storedTemp(t, b, "A"); got != "13.3" {
		t.Errorf("persisted air_temp after Close: got %s, want 13.3", got)
	}
	if ids, _ := b.ReadIndex(ctx); !reflect.DeepEqual(ids, []string{"A"}) {
		t.Errorf("index after Close: got %v", ids)
	}
}

func TestRemoteBackend_PurgeDropsQueuedWrites(t *testing.T) {
	ctx := context.Background()
	b := newSlowBackend()
	e := newEngine(t, newManualClock(), b)
	t.Cleanup(func() { _ = e.Close() })

	e.Put(ctx, "A", reading("A"))
	waitStarted(t, b)
	e.Put(ctx, "B", reading("B"))

	errc := make(chan error, 1)
	go func() { errc <- e.PurgeAll(ctx) }()
	close(b.release)
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("PurgeAll: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PurgeAll did not return")
	}

	e.Put(ctx, "C", reading("C"))
	e.Flush()
	for _, id := range []string{"A", "B", "C"} {
		if _, err := b.ReadSnapshot(ctx, id); !errors.Is(err, snapshot.ErrNotFound) {
			t.Errorf("snapshot %s survived the purge: err %v", id, err)
		}
	}
	if ids, _ := b.ReadIndex(ctx); len(ids) != 0 {
		t.Errorf("index after purge: %v", ids)
	}
	if e.Size() != 3 {
		t.Errorf("in-memory stations: got %d, want 3", e.Size())
	}
}

func TestLocalBackend_PersistsInline(t *testing.T) {
	ctx := context.Background()
	b := snapshot.NewMemory()
	e := newEngine(t, newManualClock(), b)

	e.Put(ctx, "A", reading("A"))
	if _, err := b.ReadSnapshot(ctx, "A"); err != nil {
		t.Errorf("snapshot not written before Put returned: %v", err)
	}
}
