package lsmvcc

import (
	"sort"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	"github.com/bobboyms/lsmvcc/pkg/iterator"
)

// localEdit is one entry in a transaction's local write buffer.
type localEdit[K codec.Key[K], V codec.Value] struct {
	key   K
	value codec.Option[V]
}

// Transaction holds a read snapshot and a local, key-ordered write
// buffer: a snapshot timestamp plus a back-pointer to its owning Db,
// combined with an ordered K -> Option[V] local buffer instead of a
// flat op list, so a transaction's own later reads see its own
// uncommitted writes without replaying them.
type Transaction[K codec.Key[K], V codec.Value] struct {
	db     *Db[K, V]
	readAt uint64
	local  []localEdit[K, V]
	closed bool
}

func newTransaction[K codec.Key[K], V codec.Value](db *Db[K, V]) *Transaction[K, V] {
	return &Transaction[K, V]{db: db, readAt: db.orc.StartRead()}
}

// ReadAt returns the transaction's snapshot timestamp.
func (tx *Transaction[K, V]) ReadAt() uint64 { return tx.readAt }

func (tx *Transaction[K, V]) search(key K) int {
	return sort.Search(len(tx.local), func(i int) bool {
		return tx.local[i].key.Compare(key) >= 0
	})
}

func (tx *Transaction[K, V]) localGet(key K) (codec.Option[V], bool) {
	i := tx.search(key)
	if i < len(tx.local) && tx.local[i].key.Compare(key) == 0 {
		return tx.local[i].value, true
	}
	return codec.Option[V]{}, false
}

func (tx *Transaction[K, V]) localSet(key K, value codec.Option[V]) {
	i := tx.search(key)
	if i < len(tx.local) && tx.local[i].key.Compare(key) == 0 {
		tx.local[i].value = value
		return
	}
	tx.local = append(tx.local, localEdit[K, V]{})
	copy(tx.local[i+1:], tx.local[i:])
	tx.local[i] = localEdit[K, V]{key: key, value: value}
}

// Get checks the local buffer first; on miss it delegates to the
// engine's snapshot read at ReadAt. found distinguishes "never
// written"/"no version visible" from "present but tombstoned"
// (value.Valid == false with found == true).
func (tx *Transaction[K, V]) Get(key K) (value codec.Option[V], found bool, err error) {
	if v, ok := tx.localGet(key); ok {
		return v, true, nil
	}
	return tx.db.getInner(key, tx.readAt)
}

// GetProjected applies projection to the present value Get returns.
// Kept as a free function (not a method) because Go forbids a generic
// method from introducing its own type parameter.
func GetProjected[K codec.Key[K], V codec.Value, G any](tx *Transaction[K, V], key K, projection func(V) (G, error)) (g G, found bool, err error) {
	v, found, err := tx.Get(key)
	if err != nil || !found || !v.Valid {
		return g, found, err
	}
	g, err = projection(v.Value)
	return g, found, err
}

// Set upserts key -> value into the local buffer. Visible to this
// transaction's own later reads immediately; visible to other
// transactions only after a successful Commit.
func (tx *Transaction[K, V]) Set(key K, value V) {
	tx.localSet(key, codec.Some(value))
}

// Remove buffers a tombstone for key.
func (tx *Transaction[K, V]) Remove(key K) {
	tx.localSet(key, codec.None[V]())
}

// Range merges the transaction's local edits (highest priority) with
// the engine's snapshot at ReadAt.
func (tx *Transaction[K, V]) Range(lower, upper *K) iterator.Source[K, V] {
	var localEntries []iterator.Entry[K, V]
	for _, e := range tx.local {
		if lower != nil && e.key.Compare(*lower) < 0 {
			continue
		}
		if upper != nil && e.key.Compare(*upper) > 0 {
			continue
		}
		localEntries = append(localEntries, iterator.Entry[K, V]{Key: e.key, Value: e.value})
	}

	sources := []iterator.RankedSource[K, V]{
		{Src: iterator.FromSlice(localEntries), Priority: 1},
		{Src: tx.db.Range(lower, upper, tx.readAt), Priority: 0},
	}
	return iterator.NewMerge(sources)
}

// Commit applies the buffered edits atomically. On an empty buffer it
// releases the read timestamp and returns nil. Otherwise it follows a
// four-step protocol: release the read timestamp, obtain a write
// timestamp, validate against concurrent committers, then submit the
// batch. Release uses BeginWriteCommit rather than ReadCommit here: it
// keeps readAt counted toward the oracle's GC watermark until
// EndWriteCommit runs below, so a concurrent transaction's own read
// release can never garbage-collect a committedWrites entry this
// commit's WriteCommit call still needs to scan. A
// *pkg/errors.WriteConflictError means the transaction is aborted; the
// caller may retry with a fresh transaction.
func (tx *Transaction[K, V]) Commit() error {
	if tx.closed {
		return nil
	}
	tx.closed = true

	if len(tx.local) == 0 {
		tx.db.orc.ReadCommit(tx.readAt)
		return nil
	}

	tx.db.orc.BeginWriteCommit(tx.readAt)
	writeAt := tx.db.orc.Tick()

	writeSet := make([]string, len(tx.local))
	edits := make([]edit[K, V], len(tx.local))
	for i, e := range tx.local {
		writeSet[i] = keyID[K](e.key)
		edits[i] = edit[K, V]{Key: e.key, Value: e.value}
	}

	err := tx.db.orc.WriteCommit(tx.readAt, writeAt, writeSet)
	tx.db.orc.EndWriteCommit(tx.readAt)
	if err != nil {
		return err
	}

	return tx.db.submitBatch(writeAt, edits)
}

// Rollback discards the local buffer and releases the read timestamp
// without writing anything (see DESIGN.md).
func (tx *Transaction[K, V]) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.db.orc.ReadCommit(tx.readAt)
}
