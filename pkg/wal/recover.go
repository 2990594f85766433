package wal

import (
	"encoding/binary"
	"io"
)

// RecoverStream is the lazy, pull-based sequence of raw frame payloads
// read from a Source: length-prefixed framing (see record.go) with
// truncation-tolerant handling where a CRC or framing failure means
// "stop here" rather than a hard error.
type RecoverStream struct {
	src    Source
	id     FileID
	done   bool
	offset int64
}

// NewRecoverStream wraps src (already positioned at the start of the
// file) as a recovery stream for file id.
func NewRecoverStream(id FileID, src Source) *RecoverStream {
	return &RecoverStream{src: src, id: id}
}

// ID returns the file identifier this stream is reading.
func (s *RecoverStream) ID() FileID { return s.id }

// Next returns the next frame payload, io.EOF when the stream is
// exhausted (clean end or the first CRC/framing failure — both are
// treated as truncation, not a caller-visible error), or a non-EOF
// error only for genuine I/O failures on the source.
func (s *RecoverStream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(s.src, lenBuf[:]); err != nil {
		s.done = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(s.src, payload); err != nil {
			s.done = true
			return nil, io.EOF
		}
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(s.src, crcBuf[:]); err != nil {
		s.done = true
		return nil, io.EOF
	}
	crc := binary.LittleEndian.Uint32(crcBuf[:])

	if !ValidateCRC32(payload, crc) {
		s.done = true
		return nil, io.EOF
	}

	s.offset += int64(4 + len(payload) + 4)
	return payload, nil
}

// Close releases the underlying source.
func (s *RecoverStream) Close() error {
	return s.src.Close()
}
