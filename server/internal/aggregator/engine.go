package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/weathermesh/weathermesh/pkg/lamport"
	"github.com/weathermesh/weathermesh/pkg/types"
	"github.com/weathermesh/weathermesh/server/internal/metrics"
	"github.com/weathermesh/weathermesh/server/internal/snapshot"
	"github.com/weathermesh/weathermesh/server/internal/store"
)

// Default eviction settings.
const (
	DefaultExpiry   = 30 * time.Second
	DefaultCapacity = 20
)

// Options configures an Engine. Zero values take the defaults; a nil Backend
// uses an in-memory one.
type Options struct {
	Expiry   time.Duration
	Capacity int
	Backend  snapshot.Backend
	Metrics  *metrics.Metrics
	Now      func() time.Time // injectable for deterministic tests

	// AsyncPersist moves backend writes to a background writer. It is always
	// on for remote drivers.
	AsyncPersist bool
}

// Engine holds all shared aggregator state.
type Engine struct {
	mu sync.Mutex

	clock   *lamport.Clock
	store   *store.Store
	backend snapshot.Backend
	persist persister
	writer  *writer // nil when persisting inline
	metrics *metrics.Metrics

	expiry   time.Duration
	capacity int
	now      func() time.Time
}

// New builds an Engine from opts.
func New(opts Options) *Engine {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Backend == nil {
		opts.Backend = snapshot.NewMemory()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		clock:    lamport.New(),
		store:    store.New(opts.Now),
		backend:  opts.Backend,
		metrics:  opts.Metrics,
		expiry:   opts.Expiry,
		capacity: opts.Capacity,
		now:      opts.Now,
	}
	out := direct{backend: opts.Backend, metrics: opts.Metrics}
	e.persist = out
	if opts.AsyncPersist || opts.Backend.Driver().Remote() {
		e.writer = newWriter(out)
		e.persist = e.writer
	}
	e.metrics.TrackState(e.store.Size, e.clock.Current)
	return e
}

// Observe merges a received Lamport time into the clock. The result is
// informational: stale messages are still applied.
func (e *Engine) Observe(received uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Observe(received)
}

// Tick advances the clock for a send event and returns the new time.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Tick()
}

// Current returns the clock's time without advancing it.
func (e *Engine) Current() uint64 { return e.clock.Current() }

// Get returns the live reading for id.
func (e *Engine) Get(id string) (types.Reading, bool) {
	en, ok := e.store.Get(id)
	if !ok {
		return nil, false
	}
	return en.Reading, true
}

// All returns every live reading keyed by station id.
func (e *Engine) All() map[string]types.Reading { return e.store.GetAll() }

// Entries returns the live entries, oldest write first.
func (e *Engine) Entries() []*store.Entry {
	entries := e.store.Entries()
	sortOldestFirst(entries)
	return entries
}

// Expiry returns the configured expiry window.
func (e *Engine) Expiry() time.Duration { return e.expiry }

// Size returns the number of live stations.
func (e *Engine) Size() int { return e.store.Size() }

// StationIDs returns the live station ids, sorted.
func (e *Engine) StationIDs() []string { return e.store.StationIDs() }

// Put stores r as the latest reading for id, persists it and then runs
// eviction. It reports whether the station was new. Persistence failures are
// logged and never undo the in-memory write. With a background writer the
// snapshot is only queued when Put returns.
func (e *Engine) Put(ctx context.Context, id string, r types.Reading) (isNew bool) {
	isNew = e.store.Put(id, r)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked(ctx, id)
	e.evictLocked(ctx)
	return isNew
}

// Evict runs the expiry pass and then the capacity pass. It returns how many
// stations each removed.
func (e *Engine) Evict(ctx context.Context) (expired, overCapacity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evictLocked(ctx)
}

func (e *Engine) evictLocked(ctx context.Context) (expired, overCapacity int) {
	expired = e.expireLocked(ctx)
	overCapacity = e.enforceCapacityLocked(ctx)
	return expired, overCapacity
}

// expireLocked removes every entry with now-lastWrite >= expiry. The
// candidates are collected first and removed in a second pass.
func (e *Engine) expireLocked(ctx context.Context) int {
	now := e.now()
	var stale []*store.Entry
	for _, en := range e.store.Entries() {
		if now.Sub(en.UpdatedAt) >= e.expiry {
			stale = append(stale, en)
		}
	}

	removed := 0
	for _, en := range stale {
		if e.removeLocked(ctx, en) {
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("aggregator: expired stations", "count", removed)
		e.metrics.Evicted(metrics.ReasonExpired, removed)
		e.writeIndexLocked(ctx)
	}
	return removed
}

// enforceCapacityLocked removes the oldest entries until at most capacity
// remain. Ties on write time go to the smallest station id.
func (e *Engine) enforceCapacityLocked(ctx context.Context) int {
	removed := 0
	for {
		entries := e.store.Entries()
		excess := len(entries) - e.capacity
		if excess <= 0 {
			break
		}
		sortOldestFirst(entries)
		for _, en := range entries[:excess] {
			if e.removeLocked(ctx, en) {
				removed++
			}
		}
	}
	if removed > 0 {
		slog.Debug("aggregator: evicted stations over capacity", "count", removed, "capacity", e.capacity)
		e.metrics.Evicted(metrics.ReasonCapacity, removed)
		e.writeIndexLocked(ctx)
	}
	return removed
}

// removeLocked drops en from the store if it is still current, and deletes
// its snapshot.
func (e *Engine) removeLocked(ctx context.Context, en *store.Entry) bool {
	if !e.store.RemoveEntry(en) {
		return false
	}
	e.persist.deleteSnapshot(ctx, en.StationID)
	return true
}

// persistLocked writes the current entry for id and rewrites the index. An
// entry already evicted by a concurrent request is skipped.
func (e *Engine) persistLocked(ctx context.Context, id string) {
	en, ok := e.store.Get(id)
	if !ok {
		return
	}
	data, err := snapshot.Encode(en.UpdatedAt, en.Reading)
	if err != nil {
		slog.Error("aggregator: encode snapshot failed", "station", id, "err", err)
		e.metrics.SnapshotError("encode")
		return
	}
	e.persist.writeSnapshot(ctx, id, data)
	e.writeIndexLocked(ctx)
}

func (e *Engine) writeIndexLocked(ctx context.Context) {
	e.persist.writeIndex(ctx, e.store.StationIDs())
}

// LoadAll restores every station listed in the persisted index, keeping the
// original write times, then runs eviction once. Missing or unreadable
// snapshots are logged and skipped. It returns the number of live stations
// after eviction.
func (e *Engine) LoadAll(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.backend.ReadIndex(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		data, err := e.backend.ReadSnapshot(ctx, id)
		if errors.Is(err, snapshot.ErrNotFound) {
			slog.Warn("aggregator: indexed station has no snapshot", "station", id)
			continue
		}
		if err != nil {
			slog.Warn("aggregator: read snapshot failed", "station", id, "err", err)
			continue
		}
		writtenAt, r, err := snapshot.Decode(data)
		if err != nil {
			slog.Warn("aggregator: corrupt snapshot skipped", "station", id, "err", err)
			continue
		}
		e.store.Restore(id, r, writtenAt)
	}

	e.evictLocked(ctx)
	if len(ids) != e.store.Size() {
		e.writeIndexLocked(ctx)
	}
	slog.Info("aggregator: recovered stations",
		"driver", e.backend.Driver(), "indexed", len(ids), "live", e.store.Size())
	return e.store.Size(), nil
}

// PurgeAll deletes every persisted snapshot and the index. In-memory state
// is left alone. Updates still queued for a background writer are discarded
// and later ones are dropped, since purging only happens on shutdown.
func (e *Engine) PurgeAll(ctx context.Context) error {
	if e.writer != nil {
		e.writer.close(false)
		return e.backend.Purge(ctx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Purge(ctx)
}

// Flush blocks until every queued snapshot update has reached the backend.
// It is a no-op when persisting inline.
func (e *Engine) Flush() {
	if e.writer != nil {
		e.writer.flush()
	}
}

// Close writes any queued updates and releases the snapshot backend.
func (e *Engine) Close() error {
	if e.writer != nil {
		e.writer.close(true)
	}
	return e.backend.Close()
}

func sortOldestFirst(entries []*store.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.StationID < b.StationID
	})
}
