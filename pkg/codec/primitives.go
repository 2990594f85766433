package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Uint64 is a fixed-width 8-byte key/value, little-endian encoded.
type Uint64 uint64

func (u Uint64) Encode(w io.Writer) (int, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(u))
	return w.Write(buf[:])
}

func (u Uint64) Size() int { return 8 }

func (u Uint64) Compare(other Uint64) int {
	switch {
	case u < other:
		return -1
	case u > other:
		return 1
	default:
		return 0
	}
}

func (u Uint64) Hash() uint64 { return uint64(u) }

func (u Uint64) String() string { return fmt.Sprintf("%d", uint64(u)) }

// DecodeUint64 is the Decoder[Uint64] for the type above.
func DecodeUint64(r io.Reader) (Uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Uint64(binary.LittleEndian.Uint64(buf[:])), nil
}

// Bytes is a length-prefixed byte string value. It implements Value
// and Hashable but not Key — it has no Compare method, matching the
// teacher's distinction between indexable key kinds and opaque
// payloads.
type Bytes []byte

func (b Bytes) Encode(w io.Writer) (int, error) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	n, err := w.Write(lenBuf[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(b)
	return n + m, err
}

func (b Bytes) Size() int { return 4 + len(b) }

func (b Bytes) Hash() uint64 { return xxhash.Sum64(b) }

// DecodeBytes is the Decoder[Bytes] for the type above.
func DecodeBytes(r io.Reader) (Bytes, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return Bytes(buf), nil
}

// String is a length-prefixed UTF-8 string key.
type String string

func (s String) Encode(w io.Writer) (int, error) {
	return Bytes(s).Encode(w)
}

func (s String) Size() int { return Bytes(s).Size() }

func (s String) Compare(other String) int {
	switch {
	case s < other:
		return -1
	case s > other:
		return 1
	default:
		return 0
	}
}

func (s String) Hash() uint64 { return xxhash.Sum64String(string(s)) }

func (s String) String() string { return string(s) }

// DecodeString is the Decoder[String] for the type above.
func DecodeString(r io.Reader) (String, error) {
	b, err := DecodeBytes(r)
	if err != nil {
		return "", err
	}
	return String(b), nil
}
