package oracle

import "testing"

func TestOracle_TickAdvancesMonotonically(t *testing.T) {
	o := New()
	a := o.Tick()
	b := o.Tick()
	if b <= a {
		t.Fatalf("expected tick to advance: a=%d b=%d", a, b)
	}
}

func TestOracle_DisjointWriteSetsBothCommit(t *testing.T) {
	o := New()
	readAt := o.StartRead()

	w0 := o.Tick()
	if err := o.WriteCommit(readAt, w0, []string{"key0"}); err != nil {
		t.Fatalf("first commit should succeed: %v", err)
	}

	w1 := o.Tick()
	if err := o.WriteCommit(readAt, w1, []string{"key1"}); err != nil {
		t.Fatalf("disjoint second commit should succeed: %v", err)
	}
}

func TestOracle_IntersectingWriteSetConflicts(t *testing.T) {
	o := New()
	readAt := o.StartRead()

	w0 := o.Tick()
	if err := o.WriteCommit(readAt, w0, []string{"key0", "key2"}); err != nil {
		t.Fatalf("first commit should succeed: %v", err)
	}

	w1 := o.Tick()
	err := o.WriteCommit(readAt, w1, []string{"key0", "key1"})
	if err == nil {
		t.Fatal("expected a write conflict on key0")
	}
}

func TestOracle_CommitAfterReadAtDoesNotConflict(t *testing.T) {
	o := New()

	w0 := o.Tick()
	if err := o.WriteCommit(0, w0, []string{"key0"}); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	// A reader that starts after w0 should not conflict with it.
	readAt := o.StartRead()
	if readAt < w0 {
		t.Fatalf("expected readAt >= w0, got readAt=%d w0=%d", readAt, w0)
	}

	w1 := o.Tick()
	if err := o.WriteCommit(readAt, w1, []string{"key0"}); err != nil {
		t.Fatalf("commit after readAt should not conflict with earlier committer: %v", err)
	}
}

func TestOracle_ReadCommitGarbageCollectsOldEntries(t *testing.T) {
	o := New()
	readAt := o.StartRead()

	w0 := o.Tick()
	if err := o.WriteCommit(readAt, w0, []string{"key0"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	o.ReadCommit(readAt)
	if _, kept := o.committedWrites[w0]; kept {
		t.Fatalf("committed entry %d should be collected once no reader remains", w0)
	}

	// With no active readers left below w0, a later committer's
	// conflict window no longer needs to remember it, but a fresh
	// reader starting after w0 must still not conflict with it.
	newRead := o.StartRead()
	w1 := o.Tick()
	if err := o.WriteCommit(newRead, w1, []string{"key0"}); err != nil {
		t.Fatalf("unexpected conflict after GC: %v", err)
	}
}

// TestOracle_BeginWriteCommitSurvivesConcurrentReadCommit reproduces the
// ordering a naive ReadCommit-then-WriteCommit sequence gets wrong: a
// committer releases its read, and before its own WriteCommit call
// scans committedWrites, a concurrent reader finishes and calls
// ReadCommit, which raises the GC watermark. If the committer's own
// readAt were no longer counted at that point, GC could purge a
// committedWrites entry still inside its (readAt, writeAt] conflict
// window. BeginWriteCommit keeps readAt counted until EndWriteCommit
// runs, so that entry survives long enough for WriteCommit to see it.
func TestOracle_BeginWriteCommitSurvivesConcurrentReadCommit(t *testing.T) {
	o := New()

	readAt := o.StartRead()

	w0 := o.Tick()
	if err := o.WriteCommit(0, w0, []string{"key0"}); err != nil {
		t.Fatalf("seed commit should succeed: %v", err)
	}
	o.Tick() // advance now past w0 so the next reader's ts exceeds it

	// A reader that stays active for the whole test; once readAt is
	// released, this is the only active read left, so it alone would
	// set the GC watermark above w0 if readAt weren't still counted.
	pinned := o.StartRead()

	o.BeginWriteCommit(readAt)
	writeAt := o.Tick()

	// A concurrent reader finishing here must not GC away w0's entry
	// before the WriteCommit below scans it: readAt is still counted
	// via pendingWrites, so the watermark can't pass it.
	concurrent := o.StartRead()
	o.ReadCommit(concurrent)

	err := o.WriteCommit(readAt, writeAt, []string{"key0"})
	o.EndWriteCommit(readAt)
	if err == nil {
		t.Fatal("expected a write conflict on key0, but the committed entry was garbage-collected early")
	}

	o.ReadCommit(pinned)
}
