// Package oracle is the MVCC authority: monotonic timestamp
// allocation, active-read tracking, and write-write conflict
// detection. It tracks each committer's write-set so a later commit
// can intersect against it over the open interval of still-live reads.
package oracle

import (
	"sync"

	"github.com/bobboyms/lsmvcc/pkg/errors"
)

// Timestamp is the engine's logical clock: a monotonic, totally
// ordered 64-bit counter.
type Timestamp = uint64

// Oracle is in-process MVCC state guarded by its own lock.
type Oracle struct {
	mu sync.Mutex

	now Timestamp

	// inRead is a multiset of currently active read timestamps,
	// grounded on TransactionRegistry.activeTxns, generalized from a
	// set of *Transaction to a count-keyed multiset since the oracle
	// itself has no transaction identity, only timestamps.
	inRead map[Timestamp]int

	// pendingWrites holds the readAt of every transaction that has
	// released its read but whose WriteCommit call hasn't returned
	// yet. It contributes to the GC watermark exactly like inRead, so
	// a concurrent ReadCommit from another transaction can never GC a
	// committedWrites entry inside this transaction's own (readAt,
	// writeAt] conflict window while its WriteCommit is still scanning
	// it.
	pendingWrites map[Timestamp]int

	// committedWrites maps a write timestamp to the set of keys it
	// wrote, bounded by garbage-collecting entries older than the
	// minimum live read timestamp.
	committedWrites map[Timestamp]map[string]struct{}
}

// New constructs an Oracle starting at logical time 0.
func New() *Oracle {
	return &Oracle{
		inRead:          make(map[Timestamp]int),
		pendingWrites:   make(map[Timestamp]int),
		committedWrites: make(map[Timestamp]map[string]struct{}),
	}
}

// Bootstrap advances the logical clock to at least ts. It exists only
// for WAL recovery (db.go), which must resume timestamp allocation
// past every commit timestamp found on disk before the oracle hands
// out a single new one, so durability holds across a restart.
func (o *Oracle) Bootstrap(ts Timestamp) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ts > o.now {
		o.now = ts
	}
}

// StartRead returns the current timestamp and records it as an active
// read, so later GC of committedWrites never discards a commit still
// needed by an open snapshot.
func (o *Oracle) StartRead() Timestamp {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts := o.now
	o.inRead[ts]++
	return ts
}

// ReadCommit removes one occurrence of ts from the active-read
// multiset and garbage-collects committedWrites entries older than the
// new minimum live read, mirroring TransactionRegistry.Unregister's
// min-recompute-on-removal shape.
func (o *Oracle) ReadCommit(ts Timestamp) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeRead(ts)
	o.gcCommittedLocked()
}

// BeginWriteCommit releases ts as an active read and records it as a
// pending write commit instead, so the GC watermark keeps counting ts
// until EndWriteCommit runs. Call this in place of ReadCommit when a
// WriteCommit(ts, ...) call is about to follow.
func (o *Oracle) BeginWriteCommit(ts Timestamp) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeRead(ts)
	o.pendingWrites[ts]++
}

// EndWriteCommit drops ts from the pending-write set once its
// WriteCommit call has returned, then garbage-collects committedWrites
// entries the new minimum no longer needs. Call regardless of whether
// WriteCommit succeeded or returned a conflict.
func (o *Oracle) EndWriteCommit(ts Timestamp) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removePendingWrite(ts)
	o.gcCommittedLocked()
}

func (o *Oracle) removeRead(ts Timestamp) {
	n, ok := o.inRead[ts]
	if !ok {
		return
	}
	if n <= 1 {
		delete(o.inRead, ts)
		return
	}
	o.inRead[ts] = n - 1
}

func (o *Oracle) removePendingWrite(ts Timestamp) {
	n, ok := o.pendingWrites[ts]
	if !ok {
		return
	}
	if n <= 1 {
		delete(o.pendingWrites, ts)
		return
	}
	o.pendingWrites[ts] = n - 1
}

// minReadLocked returns the minimum timestamp the oracle still needs
// to retain committedWrites for, taken across both active reads and
// in-flight write commits.
func (o *Oracle) minReadLocked() (Timestamp, bool) {
	first := true
	var min Timestamp
	for ts := range o.inRead {
		if first || ts < min {
			min = ts
			first = false
		}
	}
	for ts := range o.pendingWrites {
		if first || ts < min {
			min = ts
			first = false
		}
	}
	return min, !first
}

func (o *Oracle) gcCommittedLocked() {
	min, ok := o.minReadLocked()
	if !ok {
		// No live read or pending commit: every later reader starts at
		// or after now, so no recorded commit can fall inside its
		// (readAt, writeAt] window.
		min = o.now + 1
	}
	for ts := range o.committedWrites {
		if ts < min {
			delete(o.committedWrites, ts)
		}
	}
}

// StartWrite returns the current timestamp; writers share timestamps
// with readers until Tick stamps the actual commit.
func (o *Oracle) StartWrite() Timestamp {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Tick advances the logical clock and returns the new value, used to
// stamp a commit.
func (o *Oracle) Tick() Timestamp {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now++
	return o.now
}

// WriteCommit validates that no committer with a timestamp in the open
// interval (readAt, writeAt] wrote a key this write-set also touches.
// On success it records (writeAt, writeSet). On conflict it returns a
// *errors.WriteConflictError naming every intersecting key.
func (o *Oracle) WriteCommit(readAt, writeAt Timestamp, writeSet []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var conflicting []string
	for ts, keys := range o.committedWrites {
		if ts <= readAt || ts > writeAt {
			continue
		}
		for _, k := range writeSet {
			if _, hit := keys[k]; hit {
				conflicting = append(conflicting, k)
			}
		}
	}
	if len(conflicting) > 0 {
		return &errors.WriteConflictError{Keys: conflicting}
	}

	set := make(map[string]struct{}, len(writeSet))
	for _, k := range writeSet {
		set[k] = struct{}{}
	}
	o.committedWrites[writeAt] = set
	return nil
}
