// Package sstable holds the frozen, read-only materialization of a
// former memtable: a two-column columnar block ({key, value} byte
// arrays) plus an in-memory ordered index from InternalKey to row
// offset.
package sstable

import (
	"bytes"
	"sort"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	"github.com/bobboyms/lsmvcc/pkg/errors"
	"github.com/bobboyms/lsmvcc/pkg/iterator"
	"github.com/bobboyms/lsmvcc/pkg/memtable"
)

// row is one entry in the in-memory primary-key index: an InternalKey
// plus its offset into the columnar block.
type row[K codec.Key[K]] struct {
	key    memtable.InternalKey[K]
	offset int
}

// Batch is a frozen, read-only columnar block. It is safe for
// concurrent reads by construction — nothing ever mutates it again
// once Freeze returns.
type Batch[K codec.Key[K], V codec.Value] struct {
	keyCol   [][]byte
	valueCol []codec.Option[[]byte]
	index    []row[K]

	decodeKey codec.Decoder[K]
	decodeVal codec.Decoder[V]
}

// Freeze walks entries (already in ascending (K, descending T) order,
// as memtable.All produces) and materializes the columnar block plus
// its index. entries is consumed read-only; the caller's memtable is
// untouched.
func Freeze[K codec.Key[K], V codec.Value](
	entries []memtable.FrozenEntry[K, V],
	decodeKey codec.Decoder[K],
	decodeVal codec.Decoder[V],
) (*Batch[K, V], error) {
	b := &Batch[K, V]{
		keyCol:    make([][]byte, len(entries)),
		valueCol:  make([]codec.Option[[]byte], len(entries)),
		index:     make([]row[K], len(entries)),
		decodeKey: decodeKey,
		decodeVal: decodeVal,
	}

	for i, e := range entries {
		keyBytes, err := encodeToBytes(e.Key.UserKey)
		if err != nil {
			return nil, &errors.EncodeError{What: "frozen batch key", Err: err}
		}
		b.keyCol[i] = keyBytes

		if e.Value.Valid {
			valBytes, err := encodeToBytes(e.Value.Value)
			if err != nil {
				return nil, &errors.EncodeError{What: "frozen batch value", Err: err}
			}
			b.valueCol[i] = codec.Some(valBytes)
		}

		b.index[i] = row[K]{key: e.Key, offset: i}
	}

	return b, nil
}

func encodeToBytes(v codec.Value) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, v.Size()))
	if _, err := v.Encode(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Len reports the number of (key, ts) rows in the batch.
func (b *Batch[K, V]) Len() int { return len(b.index) }

// search returns the index of the first row whose key is >= ik,
// mirroring memtable's own binary search.
func (b *Batch[K, V]) search(ik memtable.InternalKey[K]) int {
	return sort.Search(len(b.index), func(i int) bool {
		return b.index[i].key.Compare(ik) >= 0
	})
}

func (b *Batch[K, V]) decodeRow(i int) (codec.Option[V], error) {
	if !b.valueCol[i].Valid {
		return codec.None[V](), nil
	}
	v, err := b.decodeVal(bytes.NewReader(b.valueCol[i].Value))
	if err != nil {
		return codec.Option[V]{}, &errors.DecodeError{What: "frozen batch value", Err: err}
	}
	return codec.Some(v), nil
}

// Find range-queries the index from InternalKey{key, ts} forward,
// stopping at the first entry whose key equals, and returns the
// decoded value (or tombstone) at that row. ok is false if key has no
// version in this batch.
func (b *Batch[K, V]) Find(key K, ts uint64) (value codec.Option[V], ok bool, err error) {
	i := b.search(memtable.InternalKey[K]{UserKey: key, Ts: ts})
	if i >= len(b.index) || b.index[i].key.UserKey.Compare(key) != 0 {
		return codec.Option[V]{}, false, nil
	}
	v, err := b.decodeRow(i)
	if err != nil {
		return codec.Option[V]{}, false, err
	}
	return v, true, nil
}

// Range produces entries for each distinct K in [lower, upper] whose
// newest version with ts' <= ts is the emitted one. Every emitted row
// is decoded when Range is called, before the returned Source is
// pulled.
func (b *Batch[K, V]) Range(lower, upper *K, ts uint64) iterator.Source[K, V] {
	var out []iterator.Entry[K, V]
	var lastKey K
	haveLast := false

	for i, r := range b.index {
		if lower != nil && r.key.UserKey.Compare(*lower) < 0 {
			continue
		}
		if upper != nil && r.key.UserKey.Compare(*upper) > 0 {
			continue
		}
		if r.key.Ts > ts {
			continue
		}
		if haveLast && r.key.UserKey.Compare(lastKey) == 0 {
			continue
		}
		v, err := b.decodeRow(i)
		if err != nil {
			continue
		}
		out = append(out, iterator.Entry[K, V]{Key: r.key.UserKey, Value: v})
		lastKey = r.key.UserKey
		haveLast = true
	}

	return iterator.FromSlice(out)
}
