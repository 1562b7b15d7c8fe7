// Package accum provides the per-key accumulators used by the aggregation
// workers: a single-owner Local map and a mutex-guarded Shared map.
package accum

import (
	"sync"
)

// DefaultInitialCapacity is the default number of keys a map is sized for.
const DefaultInitialCapacity = 16_384

// Entry is the running (sum, count) for one key.
type Entry struct {
	sum   Sum
	count int64
}

// Add folds a single observation into the entry.
func (e *Entry) Add(v float64) {
	e.sum.Add(v)
	e.count++
}

// Merge folds another entry into e.
func (e *Entry) Merge(o *Entry) {
	e.sum.Merge(&o.sum)
	e.count += o.count
}

// Count returns the number of observations.
func (e *Entry) Count() int64 {
	return e.count
}

// Totals returns the rounded sum and the count.
func (e *Entry) Totals() Totals {
	return Totals{Sum: e.sum.Float64(), Count: e.count}
}

// Totals is the final, rounded view of an Entry.
type Totals struct {
	Sum   float64
	Count int64
}

// Local accumulates entries for one worker. It is NOT safe for concurrent
// use; each worker owns exactly one.
type Local struct {
	entries map[int64]*Entry
	total   Sum
	valid   int64
}

// NewLocal creates a local accumulator sized for initialCapacity keys.
func NewLocal(initialCapacity int) *Local {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}
	return &Local{entries: make(map[int64]*Entry, initialCapacity)}
}

// Add records one observation of key.
func (l *Local) Add(key int64, v float64) {
	e, ok := l.entries[key]
	if !ok {
		e = &Entry{}
		l.entries[key] = e
	}
	e.Add(v)
	l.total.Add(v)
	l.valid++
}

// Len returns the number of distinct keys.
func (l *Local) Len() int {
	return len(l.entries)
}

// Valid returns the number of observations added.
func (l *Local) Valid() int64 {
	return l.valid
}

// Total returns the exact sum of every observation added.
func (l *Local) Total() *Sum {
	return &l.total
}

// Get returns the entry for key, if present.
func (l *Local) Get(key int64) (*Entry, bool) {
	e, ok := l.entries[key]
	return e, ok
}

// Shared is the run-wide accumulator. Workers fold their Local maps into it
// with Merge; readers must wait until every writer has finished.
type Shared struct {
	mu      sync.Mutex
	entries map[int64]*Entry
	merges  int
}

// NewShared creates a shared accumulator sized for initialCapacity keys.
func NewShared(initialCapacity int) *Shared {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}
	return &Shared{entries: make(map[int64]*Entry, initialCapacity)}
}

// Merge folds every entry of l into the shared map. The lock is held for the
// merge loop only.
func (s *Shared) Merge(l *Local) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, le := range l.entries {
		se, ok := s.entries[key]
		if !ok {
			se = &Entry{}
			s.entries[key] = se
		}
		se.Merge(le)
	}
	s.merges++
}

// Len returns the number of distinct keys.
func (s *Shared) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Merges returns how many Local maps have been merged.
func (s *Shared) Merges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merges
}

// Totals rounds every entry and returns the result keyed by key.
// Call it only after all workers have merged.
func (s *Shared) Totals() map[int64]Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]Totals, len(s.entries))
	for key, e := range s.entries {
		out[key] = e.Totals()
	}
	return out
}
