// Package errors collects the engine's error taxonomy as one exported
// struct per failure kind, each with a plain Error() string, covering
// the WAL/MVCC failure kinds.
package errors

import "fmt"

// IOError wraps an underlying byte-source failure, surfaced verbatim.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error during %s: %v", e.Op, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// MaxSizeExceededError means a WAL append would exceed the configured
// size bound. The engine handles this internally by rotating and
// retrying once; it is only surfaced to a caller if rotation itself
// fails.
type MaxSizeExceededError struct {
	Requested int
	Limit     int64
}

func (e *MaxSizeExceededError) Error() string {
	return fmt.Sprintf("wal write of %d bytes would exceed max size %d", e.Requested, e.Limit)
}

// EncodeError means a key, value, or timestamp codec failed on the
// write path.
type EncodeError struct {
	What string
	Err  error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %v", e.What, e.Err) }

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError means a key, value, or timestamp codec failed while
// reading a record back. On recovery this is treated as truncation at
// that record's offset; on direct reads it is surfaced.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.What, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteConflictError means the oracle found an intersecting concurrent
// committer. The transaction is aborted; the caller may retry with a
// fresh read timestamp.
type WriteConflictError struct {
	Keys []string
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict on keys %v", e.Keys)
}

// InternalError marks a protocol violation or an unexpected invariant
// failure. It is fatal. No code path in this module returns it: WAL
// recovery applies records without checking batch framing.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %s", e.Reason) }
