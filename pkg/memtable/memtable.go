// Package memtable is the mutable, per-shard ordered write buffer,
// keyed by (user-key, timestamp descending). It is a sorted-slice
// ordered map of (InternalKey -> Option[V]) rather than a balanced
// tree: a memtable's size is bounded by WAL rotation, so it is frozen
// long before a slice's O(n) insert would matter, and a slice gives
// exact ascending-(K, descending-T) iteration for free, which is the
// property the merge iterator actually needs; see DESIGN.md.
package memtable

import (
	"sort"
	"sync"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	"github.com/bobboyms/lsmvcc/pkg/iterator"
)

// InternalKey is the (K, T) pair every stored version is keyed by.
// Ordering is lexicographic on UserKey, but descending on Ts within
// equal UserKey, so a forward scan positioned at (key, read_ts) lands
// on the newest version visible at read_ts.
type InternalKey[K codec.Key[K]] struct {
	UserKey K
	Ts      uint64
}

// Compare implements that total order.
func (k InternalKey[K]) Compare(other InternalKey[K]) int {
	if c := k.UserKey.Compare(other.UserKey); c != 0 {
		return c
	}
	switch {
	case k.Ts > other.Ts:
		return -1
	case k.Ts < other.Ts:
		return 1
	default:
		return 0
	}
}

type entry[K codec.Key[K], V codec.Value] struct {
	key   InternalKey[K]
	value codec.Option[V]
}

// Memtable is a single-writer-per-shard ordered map from InternalKey
// to Option[V]. Reads may interleave with each other but never with a
// write.
type Memtable[K codec.Key[K], V codec.Value] struct {
	mu      sync.RWMutex
	entries []entry[K, V]
	maxTs   uint64
}

// New constructs an empty memtable.
func New[K codec.Key[K], V codec.Value]() *Memtable[K, V] {
	return &Memtable[K, V]{}
}

// MaxTs returns the largest timestamp inserted so far, used when
// freezing into an immutable batch.
func (m *Memtable[K, V]) MaxTs() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxTs
}

// Len reports how many (key, ts) versions are currently buffered.
func (m *Memtable[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memtable[K, V]) search(ik InternalKey[K]) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].key.Compare(ik) >= 0
	})
}

// Insert unconditionally upserts (key, ts) -> value and advances
// maxTs. value.Valid == false records a tombstone.
func (m *Memtable[K, V]) Insert(key K, ts uint64, value codec.Option[V]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ik := InternalKey[K]{UserKey: key, Ts: ts}
	i := m.search(ik)
	if i < len(m.entries) && m.entries[i].key.Compare(ik) == 0 {
		m.entries[i].value = value
	} else {
		m.entries = append(m.entries, entry[K, V]{})
		copy(m.entries[i+1:], m.entries[i:])
		m.entries[i] = entry[K, V]{key: ik, value: value}
	}
	if ts > m.maxTs {
		m.maxTs = ts
	}
}

// Lookup is the result of Get: Found distinguishes "no version of this
// key is visible at ts" (Found == false) from "the newest visible
// version is a tombstone" (Found == true, Value.Valid == false).
type Lookup[V any] struct {
	Found bool
	Value codec.Option[V]
}

// Get returns the newest version of key with ts' <= ts: position on
// the least (K', T') with K'=K, T'<=ts — owing to descending-T
// ordering within a key, that is exactly the first entry found.
func (m *Memtable[K, V]) Get(key K, ts uint64) Lookup[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.search(InternalKey[K]{UserKey: key, Ts: ts})
	if i < len(m.entries) && m.entries[i].key.UserKey.Compare(key) == 0 {
		return Lookup[V]{Found: true, Value: m.entries[i].value}
	}
	return Lookup[V]{}
}

// Range produces entries for each distinct K in [lower, upper] (bounds
// inclusive, nil meaning open-ended) whose newest version with
// ts' <= ts is the emitted one.
func (m *Memtable[K, V]) Range(lower, upper *K, ts uint64) iterator.Source[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []iterator.Entry[K, V]
	var lastKey K
	haveLast := false

	for _, e := range m.entries {
		if lower != nil && e.key.UserKey.Compare(*lower) < 0 {
			continue
		}
		if upper != nil && e.key.UserKey.Compare(*upper) > 0 {
			continue
		}
		if e.key.Ts > ts {
			continue
		}
		if haveLast && e.key.UserKey.Compare(lastKey) == 0 {
			continue
		}
		out = append(out, iterator.Entry[K, V]{Key: e.key.UserKey, Value: e.value})
		lastKey = e.key.UserKey
		haveLast = true
	}

	return iterator.FromSlice(out)
}

// FrozenEntry is one (InternalKey, Option[V]) version as walked during
// freezing, exposing Ts since the columnar frozen batch keeps every
// version, not just the newest per key.
type FrozenEntry[K codec.Key[K], V codec.Value] struct {
	Key   InternalKey[K]
	Value codec.Option[V]
}

// All walks the memtable in ascending (K, descending T) order, every
// version included, for freezing into an immutable batch. The returned
// slice is a snapshot; the memtable itself is unaffected.
func (m *Memtable[K, V]) All() []FrozenEntry[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]FrozenEntry[K, V], len(m.entries))
	for i, e := range m.entries {
		out[i] = FrozenEntry[K, V]{Key: e.key, Value: e.value}
	}
	return out
}
