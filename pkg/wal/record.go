package wal

import (
	"bytes"
	"io"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	"github.com/bobboyms/lsmvcc/pkg/errors"
)

// RecordType encodes batch framing across WAL entries. A single edit
// is Full; a batched commit is First, then zero or more Middle, then
// Last. A batch is written contiguously. Recovery (db.go) applies
// every record as an independent edit and does not check this framing.
type RecordType uint8

const (
	RecordFull RecordType = iota
	RecordFirst
	RecordMiddle
	RecordLast
)

func (t RecordType) String() string {
	switch t {
	case RecordFull:
		return "Full"
	case RecordFirst:
		return "First"
	case RecordMiddle:
		return "Middle"
	case RecordLast:
		return "Last"
	default:
		return "Unknown"
	}
}

// Record is a single tagged WAL edit: {record_type, key, ts, value?}.
// A nil Value (codec.Option.Valid == false) denotes a tombstone.
type Record[K codec.Key[K], V codec.Value] struct {
	Type  RecordType
	Key   K
	Ts    uint64
	Value codec.Option[V]
}

// NewRecord builds a Record; ts and value come from the oracle commit
// timestamp and the caller's edit respectively.
func NewRecord[K codec.Key[K], V codec.Value](t RecordType, key K, ts uint64, value codec.Option[V]) Record[K, V] {
	return Record[K, V]{Type: t, Key: key, Ts: ts, Value: value}
}

// Size pre-computes the framed payload size (excluding the length
// prefix and trailing CRC). File's size check itself measures the
// encoded payload rather than calling Size.
func (r Record[K, V]) Size() int {
	size := 1 + r.Key.Size() + 8 + 1
	if r.Value.Valid {
		size += r.Value.Value.Size()
	}
	return size
}

func (r Record[K, V]) encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(r.Type)}); err != nil {
		return err
	}
	if _, err := r.Key.Encode(w); err != nil {
		return err
	}
	if _, err := codec.Uint64(r.Ts).Encode(w); err != nil {
		return err
	}
	if r.Value.Valid {
		if _, err := w.Write([]byte{1}); err != nil {
			return err
		}
		if _, err := r.Value.Value.Encode(w); err != nil {
			return err
		}
		return nil
	}
	_, err := w.Write([]byte{0})
	return err
}

// WriteRecord frames rec (length prefix + CRC, see RecoverStream) and
// appends it to f. It returns *errors.MaxSizeExceededError, unchanged
// from File.writeFrame, when the append would cross f's size bound —
// nothing is written in that case.
func WriteRecord[K codec.Key[K], V codec.Value](f *File, rec Record[K, V]) error {
	buf := acquireBuffer()
	defer releaseBuffer(buf)

	if err := rec.encode(buf); err != nil {
		return &errors.EncodeError{What: "wal record", Err: err}
	}
	return f.writeFrame(buf.Bytes())
}

// ReadRecord decodes a record from a raw frame payload already
// produced and CRC-validated by RecoverStream.Next.
func ReadRecord[K codec.Key[K], V codec.Value](frame []byte, keyDec codec.Decoder[K], valDec codec.Decoder[V]) (Record[K, V], error) {
	r := bytes.NewReader(frame)

	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return Record[K, V]{}, &errors.DecodeError{What: "record type", Err: err}
	}

	key, err := keyDec(r)
	if err != nil {
		return Record[K, V]{}, &errors.DecodeError{What: "key", Err: err}
	}

	ts, err := codec.DecodeUint64(r)
	if err != nil {
		return Record[K, V]{}, &errors.DecodeError{What: "timestamp", Err: err}
	}

	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return Record[K, V]{}, &errors.DecodeError{What: "value tag", Err: err}
	}

	var value codec.Option[V]
	if tagBuf[0] == 1 {
		v, err := valDec(r)
		if err != nil {
			return Record[K, V]{}, &errors.DecodeError{What: "value", Err: err}
		}
		value = codec.Some(v)
	}

	return Record[K, V]{
		Type:  RecordType(typeBuf[0]),
		Key:   key,
		Ts:    uint64(ts),
		Value: value,
	}, nil
}
