// Package lsmvcc is the embedding API surface of an MVCC, log-structured
// key-value engine: open a Db rooted at a wal.Provider, start snapshot
// transactions against it, and issue point and range reads/writes. Db
// is the root struct owning a WAL, an MVCC oracle, and the sharded
// memtable/frozen-batch tier underneath one ordered keyspace.
package lsmvcc

import (
	"bytes"
	"io"
	"sync"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	lerrors "github.com/bobboyms/lsmvcc/pkg/errors"
	"github.com/bobboyms/lsmvcc/pkg/iterator"
	"github.com/bobboyms/lsmvcc/pkg/oracle"
	"github.com/bobboyms/lsmvcc/pkg/shard"
	"github.com/bobboyms/lsmvcc/pkg/wal"
)

// Db is the root embedding handle: one oracle, one sharded memtable
// tier, one WAL manager, and a single active WAL file guarded by its
// own mutex. The WAL is singleton per database instance; every shard's
// writes pass through it regardless of which worker owns the key.
type Db[K codec.Key[K], V codec.Value] struct {
	opt DbOption

	orc    *oracle.Oracle
	shards *shard.Manager[K, V]

	walManager *wal.Manager
	walMu      sync.Mutex
	active     *wal.File

	decodeKey codec.Decoder[K]
	decodeVal codec.Decoder[V]
}

// New constructs a Db over provider and runs recovery across every
// existing WAL file before returning.
func New[K codec.Key[K], V codec.Value](
	provider wal.Provider,
	opt DbOption,
	decodeKey codec.Decoder[K],
	decodeVal codec.Decoder[V],
) (*Db[K, V], error) {
	if opt.WorkerCount <= 0 {
		opt.WorkerCount = DefaultOptions().WorkerCount
	}
	if opt.MaxWALSize <= 0 {
		opt.MaxWALSize = DefaultOptions().MaxWALSize
	}

	manager, err := wal.NewManager(provider, opt.MaxWALSize)
	if err != nil {
		return nil, err
	}

	db := &Db[K, V]{
		opt:        opt,
		orc:        oracle.New(),
		shards:     shard.New[K, V](opt.WorkerCount, decodeKey, decodeVal),
		walManager: manager,
		decodeKey:  decodeKey,
		decodeVal:  decodeVal,
	}

	if err := db.recover(); err != nil {
		return nil, err
	}

	active, err := manager.CreateWALFile()
	if err != nil {
		return nil, err
	}
	db.active = active

	return db, nil
}

// recover replays every existing WAL file in persistence order. Every
// record is applied as a self-contained edit regardless of its original
// Full/First/Middle/Last tag: recovery never needs batch reassembly
// once every record stands alone, which also means a torn batch at the
// tail of a file degrades gracefully to "apply whatever made it to
// disk" instead of a reconstruction failure.
func (db *Db[K, V]) recover() error {
	ids, err := db.walManager.List()
	if err != nil {
		return err
	}

	var maxTs uint64
	for _, id := range ids {
		stream, err := db.walManager.PackWALFile(id)
		if err != nil {
			return err
		}

		for {
			frame, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.Close()
				return &lerrors.IOError{Op: "recover", Err: err}
			}

			rec, decErr := wal.ReadRecord[K, V](frame, db.decodeKey, db.decodeVal)
			if decErr != nil {
				// A decode failure at the recovery boundary is treated
				// as truncation: stop replaying this file.
				break
			}

			shardIdx := db.shards.Owner(rec.Key)
			if err := db.shards.Insert(shardIdx, rec.Key, rec.Ts, rec.Value); err != nil {
				stream.Close()
				return err
			}
			if rec.Ts > maxTs {
				maxTs = rec.Ts
			}
		}

		stream.Close()
	}

	db.orc.Bootstrap(maxTs)
	return nil
}

// NewTxn starts a snapshot transaction reading at the oracle's current
// timestamp.
func (db *Db[K, V]) NewTxn() *Transaction[K, V] {
	return newTransaction(db)
}

// Range is a direct snapshot scan bypassing transactions, merging
// every shard's memtable+immutable tiers at ts. Since jump-consistent
// hashing partitions the keyspace by hash (not by value order), every
// shard must be queried; because a given user key lives in exactly one
// shard, no cross-shard tie-break is needed — the outer merge never
// sees the same key from two sources.
func (db *Db[K, V]) Range(lower, upper *K, ts uint64) iterator.Source[K, V] {
	var sources []iterator.RankedSource[K, V]
	for i := 0; i < db.shards.Count(); i++ {
		sources = append(sources, iterator.RankedSource[K, V]{
			Src:      db.shards.Range(i, lower, upper, ts),
			Priority: 0,
		})
	}
	return iterator.NewMerge(sources)
}

// getInner is the engine-level lookup used by Transaction.Get on a
// local-buffer miss: hash the key to its shard, then read at ts.
func (db *Db[K, V]) getInner(key K, ts uint64) (codec.Option[V], bool, error) {
	shardIdx := db.shards.Owner(key)
	return db.shards.Get(shardIdx, key, ts)
}

// recordTypeFor implements the batch framing rule: n=0 is a caller
// no-op; n=1 is one Full record; n>=2 is First, (n-2) Middle, then
// Last.
func recordTypeFor(i, n int) wal.RecordType {
	if n == 1 {
		return wal.RecordFull
	}
	if i == 0 {
		return wal.RecordFirst
	}
	if i == n-1 {
		return wal.RecordLast
	}
	return wal.RecordMiddle
}

// edit is one pending (key, value-or-tombstone) change a transaction
// buffered locally, ready to be stamped and framed at commit time.
type edit[K codec.Key[K], V codec.Value] struct {
	Key   K
	Value codec.Option[V]
}

// submitBatch frames edits as a contiguous WAL batch stamped at
// writeAt and applies each to its owning shard; this is the final step
// of a transaction's commit.
func (db *Db[K, V]) submitBatch(writeAt uint64, edits []edit[K, V]) error {
	n := len(edits)
	for i, e := range edits {
		rt := recordTypeFor(i, n)
		rec := wal.NewRecord(rt, e.Key, writeAt, e.Value)
		if err := db.appendAndInsert(rec); err != nil {
			return err
		}
	}
	return nil
}

// appendAndInsert performs one WAL append and the matching shard
// insert as one logical critical section under the WAL mutex: a
// concurrent read on the same shard must never observe a memtable
// insert whose WAL append has not returned OK. A MaxSizeExceeded
// append is handled internally by rotating the active WAL file and
// freezing the owning shard's memtable; it is not user-visible for a
// single write, and is only surfaced to the caller if rotation itself
// fails.
func (db *Db[K, V]) appendAndInsert(rec wal.Record[K, V]) error {
	db.walMu.Lock()
	defer db.walMu.Unlock()

	err := wal.WriteRecord(db.active, rec)
	if err == nil {
		shardIdx := db.shards.Owner(rec.Key)
		return db.shards.Insert(shardIdx, rec.Key, rec.Ts, rec.Value)
	}

	if _, ok := err.(*lerrors.MaxSizeExceededError); !ok {
		return err
	}

	if closeErr := db.active.Close(); closeErr != nil {
		return closeErr
	}
	fresh, createErr := db.walManager.CreateWALFile()
	if createErr != nil {
		return createErr
	}
	db.active = fresh

	// Append the pending edit to the fresh file before Freeze inserts it
	// into the fresh memtable, so no read observes it ahead of its WAL
	// append.
	if err := wal.WriteRecord(db.active, rec); err != nil {
		return err
	}

	shardIdx := db.shards.Owner(rec.Key)
	return db.shards.Freeze(shardIdx, rec.Key, rec.Ts, rec.Value, true)
}

// Close stops every shard worker and closes the active WAL file.
func (db *Db[K, V]) Close() error {
	if err := db.shards.Close(); err != nil {
		return err
	}
	return db.active.Close()
}

// keyID renders key as a canonical byte string for the oracle's
// write-set intersection test. The oracle package is kept non-generic
// so it can track transactions across differently-typed Dbs in the
// same process; see DESIGN.md.
func keyID[K codec.Key[K]](key K) string {
	var buf bytes.Buffer
	_, _ = key.Encode(&buf)
	return buf.String()
}
