package store

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/weathermesh/weathermesh/pkg/types"
)

const shardCount = 16

// Entry is a station's reading together with the time it was last written.
type Entry struct {
	StationID string
	Reading   types.Reading
	UpdatedAt time.Time
}

type shard struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

// Store is a concurrent map from station id to its latest Entry.
type Store struct {
	shards [shardCount]*shard
	now    func() time.Time // injectable for deterministic tests
}

// New creates an empty Store. A nil now uses time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{now: now}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]*Entry)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id)) //nolint:errcheck // hash writes never fail
	return s.shards[h.Sum32()%shardCount]
}

// Put stores or replaces the reading for id, stamped with the current time.
// It reports whether the station had no entry before.
// Callers must not modify r after calling Put.
func (s *Store) Put(id string, r types.Reading) (isNew bool) {
	return s.Restore(id, r, s.now())
}

// Restore stores r for id stamped with ts instead of the current time.
// Recovery uses it to keep the persisted write time.
func (s *Store) Restore(id string, r types.Reading, ts time.Time) (isNew bool) {
	return s.swap(&Entry{StationID: id, Reading: r, UpdatedAt: ts})
}

func (s *Store) swap(e *Entry) bool {
	sh := s.shardFor(e.StationID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, exists := sh.data[e.StationID]
	sh.data[e.StationID] = e
	return !exists
}

// Get returns the entry for id and whether one was found.
func (s *Store) Get(id string) (*Entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.data[id]
	return e, ok
}

// GetAll returns the readings of every station, keyed by id.
func (s *Store) GetAll() map[string]types.Reading {
	out := make(map[string]types.Reading)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.data {
			out[id] = e.Reading
		}
		sh.mu.RUnlock()
	}
	return out
}

// Entries returns every current entry. The slice is the caller's; the
// entries themselves are shared and must not be modified.
func (s *Store) Entries() []*Entry {
	var out []*Entry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.data {
			out = append(out, e)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Remove deletes the entry for id. It reports whether one existed.
func (s *Store) Remove(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.data[id]
	delete(sh.data, id)
	return ok
}

// RemoveEntry deletes e only if it is still the station's current entry.
// It reports whether e was removed.
func (s *Store) RemoveEntry(e *Entry) bool {
	sh := s.shardFor(e.StationID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.data[e.StationID] != e {
		return false
	}
	delete(sh.data, e.StationID)
	return true
}

// Size returns the number of stations held.
func (s *Store) Size() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

// StationIDs returns the ids of all stations, sorted.
func (s *Store) StationIDs() []string {
	ids := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.data {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}
