// Package shard routes keys to per-worker mutable memtables by
// consistent hashing and owns the immutable deque each shard
// accumulates as its memtables freeze.
package shard

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	"github.com/bobboyms/lsmvcc/pkg/iterator"
	"github.com/bobboyms/lsmvcc/pkg/memtable"
	"github.com/bobboyms/lsmvcc/pkg/sstable"
)

// mutablePriority is added to the immutable-batch count at Range time
// so the mutable memtable always outranks every immutable batch; each
// immutable batch's own priority is its deque index, so the newest
// (back of deque, highest index) outranks older ones: mutable shards
// outrank immutable batches, and within immutable batches the back
// outranks the front.
const mutablePriority = 1

// shardState is one worker's memtable plus the immutable deque it has
// accumulated. The deque grows at the back; lookups iterate back to
// front. mu guards both the mt pointer and the immutable slice
// together: Freeze (on the worker goroutine) takes the write lock
// across the swap-and-append so a concurrent Get/Range, which reads
// both fields under the read lock, always observes either the old
// memtable with the old deque or the new memtable with the batch
// already appended — never the gap in between. memtable's own
// internal RWMutex covers entry mutation, not this pointer
// reassignment.
type shardState[K codec.Key[K], V codec.Value] struct {
	mu        sync.RWMutex
	immutable []*sstable.Batch[K, V]

	mt *memtable.Memtable[K, V]

	w *worker
}

// Manager owns one mutable memtable per worker, routed by
// jump-consistent hashing of codec.Hashable keys.
type Manager[K codec.Key[K], V codec.Value] struct {
	shards    []*shardState[K, V]
	decodeKey codec.Decoder[K]
	decodeVal codec.Decoder[V]
}

// New constructs a Manager with workerCount shards, each starting with
// an empty memtable and one live goroutine.
func New[K codec.Key[K], V codec.Value](workerCount int, decodeKey codec.Decoder[K], decodeVal codec.Decoder[V]) *Manager[K, V] {
	m := &Manager[K, V]{
		shards:    make([]*shardState[K, V], workerCount),
		decodeKey: decodeKey,
		decodeVal: decodeVal,
	}
	for i := range m.shards {
		m.shards[i] = &shardState[K, V]{
			mt: memtable.New[K, V](),
			w:  newWorker(),
		}
	}
	return m
}

// Count returns the number of shards.
func (m *Manager[K, V]) Count() int { return len(m.shards) }

// Owner computes the owning shard index for key via jump-consistent
// hashing of its Hash(), deterministic and stable for the lifetime of
// the process.
func (m *Manager[K, V]) Owner(key K) int {
	return jumpConsistentHash(key.Hash(), len(m.shards))
}

// Insert dispatches an unconditional upsert to the owning worker,
// serializing it against any concurrent freeze on the same shard.
func (m *Manager[K, V]) Insert(shardIdx int, key K, ts uint64, value codec.Option[V]) error {
	s := m.shards[shardIdx]
	return s.w.dispatch(func() error {
		s.mt.Insert(key, ts, value)
		return nil
	})
}

// Freeze dispatches a freeze-and-swap to the owning worker: the
// current memtable is frozen into an immutable batch, then replaced
// with a fresh one while the batch is appended to the shard's deque.
// If hasPending is true (a write that triggered rotation), the pending
// edit is inserted into the fresh memtable before the swap, so it is
// never lost.
func (m *Manager[K, V]) Freeze(shardIdx int, pendingKey K, pendingTs uint64, pendingValue codec.Option[V], hasPending bool) error {
	s := m.shards[shardIdx]
	return s.w.dispatch(func() error {
		old := s.mt
		next := memtable.New[K, V]()
		if hasPending {
			next.Insert(pendingKey, pendingTs, pendingValue)
		}

		batch, err := sstable.Freeze[K, V](old.All(), m.decodeKey, m.decodeVal)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.mt = next
		s.immutable = append(s.immutable, batch)
		s.mu.Unlock()
		return nil
	})
}

// Get checks the owning shard's memtable first, then walks its
// immutable deque newest to oldest. found is false only if no tier has
// any version of key visible at ts.
func (m *Manager[K, V]) Get(shardIdx int, key K, ts uint64) (value codec.Option[V], found bool, err error) {
	s := m.shards[shardIdx]

	s.mu.RLock()
	mt := s.mt
	batches := append([]*sstable.Batch[K, V](nil), s.immutable...)
	s.mu.RUnlock()

	if lk := mt.Get(key, ts); lk.Found {
		return lk.Value, true, nil
	}

	for i := len(batches) - 1; i >= 0; i-- {
		v, ok, ferr := batches[i].Find(key, ts)
		if ferr != nil {
			return codec.Option[V]{}, false, ferr
		}
		if ok {
			return v, true, nil
		}
	}
	return codec.Option[V]{}, false, nil
}

// Range builds a merge iterator over this shard's memtable (highest
// priority) and its immutable batches (newest outranking oldest), over
// [lower, upper] at ts.
func (m *Manager[K, V]) Range(shardIdx int, lower, upper *K, ts uint64) *iterator.Merge[K, V] {
	s := m.shards[shardIdx]

	s.mu.RLock()
	mt := s.mt
	batches := append([]*sstable.Batch[K, V](nil), s.immutable...)
	s.mu.RUnlock()

	var sources []iterator.RankedSource[K, V]
	sources = append(sources, iterator.RankedSource[K, V]{
		Src:      mt.Range(lower, upper, ts),
		Priority: len(batches) + mutablePriority,
	})

	for i, batch := range batches {
		sources = append(sources, iterator.RankedSource[K, V]{
			Src:      batch.Range(lower, upper, ts),
			Priority: i, // larger i == newer (back of deque) == higher priority
		})
	}

	return iterator.NewMerge(sources)
}

// Close stops every shard's worker goroutine, joined via errgroup.
func (m *Manager[K, V]) Close() error {
	var g errgroup.Group
	for _, s := range m.shards {
		s := s
		g.Go(func() error {
			s.w.stop()
			return nil
		})
	}
	return g.Wait()
}
