// Package iterator defines the lazy, pull-based sequence abstraction
// the engine scans through — memtable ranges, frozen-batch ranges, and
// the k-way merge across every tier. Source is deliberately a plain
// pull interface over any (K, Option[V]) producer, since the merge
// needs to treat memtables and frozen batches uniformly.
package iterator

import (
	"container/heap"

	"github.com/bobboyms/lsmvcc/pkg/codec"
)

// Entry is one (key, value-or-tombstone) pair produced by a Source.
type Entry[K any, V any] struct {
	Key   K
	Value codec.Option[V]
}

// Source is a finite, non-restartable, pull-based sequence. Next
// returns ok=false once exhausted; a non-nil error means the sequence
// is broken and must not be pulled again.
type Source[K any, V any] interface {
	Next() (Entry[K, V], bool, error)
}

// sliceSource adapts a pre-materialized slice of entries (already in
// key order) into a Source, used by memtable.Range and sstable.Range.
type sliceSource[K any, V any] struct {
	entries []Entry[K, V]
	pos     int
}

// FromSlice wraps entries as a Source. Callers hand in entries already
// sorted ascending by key.
func FromSlice[K any, V any](entries []Entry[K, V]) Source[K, V] {
	return &sliceSource[K, V]{entries: entries}
}

func (s *sliceSource[K, V]) Next() (Entry[K, V], bool, error) {
	if s.pos >= len(s.entries) {
		var zero Entry[K, V]
		return zero, false, nil
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true, nil
}

// mapSource lazily projects a Source[K,V] into a Source[K,G] — kept
// separate from the range walk itself so the merge never needs to know
// about the caller's projection function.
type mapSource[K any, V any, G any] struct {
	src Source[K, V]
	fn  func(V) (G, error)
}

// Map returns a Source that applies fn to every present value produced
// by src, passing tombstones (Option.Valid == false) through
// unchanged.
func Map[K any, V any, G any](src Source[K, V], fn func(V) (G, error)) Source[K, G] {
	return &mapSource[K, V, G]{src: src, fn: fn}
}

func (m *mapSource[K, V, G]) Next() (Entry[K, G], bool, error) {
	e, ok, err := m.src.Next()
	if !ok || err != nil {
		var zero Entry[K, G]
		return zero, ok, err
	}
	var out Entry[K, G]
	out.Key = e.Key
	if e.Value.Valid {
		g, ferr := m.fn(e.Value.Value)
		if ferr != nil {
			return out, true, ferr
		}
		out.Value = codec.Some(g)
	}
	return out, true, nil
}

// RankedSource pairs a Source with its merge-priority. Higher Priority
// wins a key collision: a mutable shard outranks every immutable
// batch, and within immutable batches the back (newest) of the deque
// outranks the front (oldest) — callers translate that rule into
// increasing-with-recency integers when building the slice passed to
// NewMerge.
type RankedSource[K any, V any] struct {
	Src      Source[K, V]
	Priority int
}

type heapItem[K any, V any] struct {
	entry    Entry[K, V]
	priority int
	srcIdx   int
}

type mergeHeap[K codec.Key[K], V any] []*heapItem[K, V]

func (h mergeHeap[K, V]) Len() int { return len(h) }
func (h mergeHeap[K, V]) Less(i, j int) bool {
	c := h[i].entry.Key.Compare(h[j].entry.Key)
	if c != 0 {
		return c < 0
	}
	// Tie: higher priority sorts first.
	return h[i].priority > h[j].priority
}
func (h mergeHeap[K, V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap[K, V]) Push(x any)   { *h = append(*h, x.(*heapItem[K, V])) }
func (h *mergeHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Merge is a heap-ordered k-way merge: a min-heap on (current key,
// source priority descending). After emitting (K, _), every source
// whose current head equals K is advanced once, so duplicates across
// tiers are suppressed and only the highest-priority version of each
// key is surfaced.
type Merge[K codec.Key[K], V any] struct {
	sources    []Source[K, V]
	priorities []int
	h          mergeHeap[K, V]
	started    bool
}

// NewMerge constructs a merge iterator over sources.
func NewMerge[K codec.Key[K], V any](sources []RankedSource[K, V]) *Merge[K, V] {
	m := &Merge[K, V]{
		sources:    make([]Source[K, V], len(sources)),
		priorities: make([]int, len(sources)),
	}
	for i, rs := range sources {
		m.sources[i] = rs.Src
		m.priorities[i] = rs.Priority
	}
	return m
}

func (m *Merge[K, V]) fill(i int) error {
	e, ok, err := m.sources[i].Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	heap.Push(&m.h, &heapItem[K, V]{entry: e, priority: m.priorities[i], srcIdx: i})
	return nil
}

func (m *Merge[K, V]) ensureStarted() error {
	if m.started {
		return nil
	}
	m.started = true
	for i := range m.sources {
		if err := m.fill(i); err != nil {
			return err
		}
	}
	return nil
}

// Next returns the next distinct key in ascending order with the
// highest-priority value visible for it. Tombstones are surfaced as
// (K, codec.None[V]()).
func (m *Merge[K, V]) Next() (Entry[K, V], bool, error) {
	if err := m.ensureStarted(); err != nil {
		var zero Entry[K, V]
		return zero, false, err
	}
	if m.h.Len() == 0 {
		var zero Entry[K, V]
		return zero, false, nil
	}

	top := heap.Pop(&m.h).(*heapItem[K, V])
	result := top.entry
	if err := m.fill(top.srcIdx); err != nil {
		return result, true, err
	}

	for m.h.Len() > 0 && m.h[0].entry.Key.Compare(result.Key) == 0 {
		dup := heap.Pop(&m.h).(*heapItem[K, V])
		if err := m.fill(dup.srcIdx); err != nil {
			return result, true, err
		}
	}

	return result, true, nil
}
