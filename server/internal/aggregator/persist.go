package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weathermesh/weathermesh/server/internal/metrics"
	"github.com/weathermesh/weathermesh/server/internal/snapshot"
)

// remoteOpTimeout bounds one backend call made by the background writer.
const remoteOpTimeout = 30 * time.Second

// persister receives the snapshot and index updates produced under the
// engine lock.
type persister interface {
	writeSnapshot(ctx context.Context, id string, data []byte)
	deleteSnapshot(ctx context.Context, id string)
	writeIndex(ctx context.Context, ids []string)
}

// direct applies updates to the backend immediately. Failures are logged and
// counted; they never reach the caller.
type direct struct {
	backend snapshot.Backend
	metrics *metrics.Metrics
}

func (d direct) writeSnapshot(ctx context.Context, id string, data []byte) {
	if err := d.backend.WriteSnapshot(ctx, id, data); err != nil {
		slog.Error("aggregator: write snapshot failed", "station", id, "err", err)
		d.metrics.SnapshotError("write")
	}
}

func (d direct) deleteSnapshot(ctx context.Context, id string) {
	if err := d.backend.DeleteSnapshot(ctx, id); err != nil {
		slog.Error("aggregator: delete snapshot failed", "station", id, "err", err)
		d.metrics.SnapshotError("delete")
	}
}

func (d direct) writeIndex(ctx context.Context, ids []string) {
	if err := d.backend.WriteIndex(ctx, ids); err != nil {
		slog.Error("aggregator: write index failed", "err", err)
		d.metrics.SnapshotError("index")
	}
}

// batch is the set of updates waiting for the writer. A nil snapshot value
// means delete.
type batch struct {
	snapshots map[string][]byte
	index     []string
	hasIndex  bool
}

func (b batch) empty() bool { return len(b.snapshots) == 0 && !b.hasIndex }

// writer queues updates and applies them from its own goroutine, so backends
// that talk to the network are never called with the engine lock held. Only
// the newest update per station and the newest index are kept.
type writer struct {
	out direct

	mu      sync.Mutex
	pending batch
	closed  bool

	// apply serializes batch application between the goroutine, flush and
	// close so an older batch never lands after a newer one.
	apply sync.Mutex

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newWriter(out direct) *writer {
	w := &writer{
		out:  out,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	w.pending.snapshots = make(map[string][]byte)
	go w.run()
	return w
}

func (w *writer) writeSnapshot(_ context.Context, id string, data []byte) {
	w.enqueue(func(b *batch) { b.snapshots[id] = data })
}

func (w *writer) deleteSnapshot(_ context.Context, id string) {
	w.enqueue(func(b *batch) { b.snapshots[id] = nil })
}

func (w *writer) writeIndex(_ context.Context, ids []string) {
	w.enqueue(func(b *batch) { b.index, b.hasIndex = ids, true })
}

func (w *writer) enqueue(update func(*batch)) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		slog.Debug("aggregator: snapshot writer closed, update dropped")
		return
	}
	update(&w.pending)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) take() batch {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.pending
	w.pending = batch{snapshots: make(map[string][]byte)}
	return b
}

func (w *writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
			w.flush()
		}
	}
}

// flush applies everything queued so far and returns once it is written.
func (w *writer) flush() {
	w.apply.Lock()
	defer w.apply.Unlock()

	b := w.take()
	if b.empty() {
		return
	}
	for id, data := range b.snapshots {
		ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
		if data == nil {
			w.out.deleteSnapshot(ctx, id)
		} else {
			w.out.writeSnapshot(ctx, id, data)
		}
		cancel()
	}
	if b.hasIndex {
		ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
		w.out.writeIndex(ctx, b.index)
		cancel()
	}
}

// close stops the goroutine and refuses further updates. With keep set the
// queued updates are written first; otherwise they are discarded.
func (w *writer) close(keep bool) {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
		<-w.done
	})
	if keep {
		w.flush()
		return
	}
	if n := len(w.take().snapshots); n > 0 {
		slog.Info("aggregator: discarded queued snapshot updates", "count", n)
	}
}
