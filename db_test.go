package lsmvcc

import (
	"testing"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	lerrors "github.com/bobboyms/lsmvcc/pkg/errors"
	"github.com/bobboyms/lsmvcc/pkg/wal"
)

func newMemDb(t *testing.T, opt DbOption) *Db[codec.String, codec.String] {
	t.Helper()
	db, err := New[codec.String, codec.String](wal.NewMemProvider(), opt, codec.DecodeString, codec.DecodeString)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustGet(t *testing.T, tx *Transaction[codec.String, codec.String], key string) (string, bool) {
	t.Helper()
	v, found, err := tx.Get(codec.String(key))
	if err != nil {
		t.Fatalf("Get(%s): %v", key, err)
	}
	if !found || !v.Valid {
		return "", false
	}
	return string(v.Value), true
}

func TestScenario_ReadCommittedSwap(t *testing.T) {
	db := newMemDb(t, DefaultOptions())

	setup := db.NewTxn()
	setup.Set(codec.String("key0"), codec.String("0"))
	setup.Set(codec.String("key1"), codec.String("1"))
	if err := setup.Commit(); err != nil {
		t.Fatalf("setup commit: %v", err)
	}

	t0 := db.NewTxn()
	t1 := db.NewTxn()

	v1, _ := mustGet(t, t0, "key1")
	t0.Set(codec.String("key0"), codec.String(v1))

	v0, _ := mustGet(t, t1, "key0")
	t1.Set(codec.String("key1"), codec.String(v0))

	if err := t0.Commit(); err != nil {
		t.Fatalf("t0 commit: %v", err)
	}
	if err := t1.Commit(); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	final := db.NewTxn()
	key0, _ := mustGet(t, final, "key0")
	key1, _ := mustGet(t, final, "key1")
	if key0 != "1" || key1 != "0" {
		t.Fatalf("after swap: key0=%s key1=%s, want key0=1 key1=0", key0, key1)
	}
	final.Rollback()
}

func TestScenario_RangeScanAcrossTiers(t *testing.T) {
	db := newMemDb(t, DefaultOptions())

	setup := db.NewTxn()
	for i := 0; i < 4; i++ {
		setup.Set(codec.String(keyN(i)), codec.String(valN(i)))
	}
	if err := setup.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	lower := codec.String("key1")
	upper := codec.String("key2")
	src := db.Range(&lower, &upper, setup.readAt+1)

	var got []string
	for {
		e, ok, err := src.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(e.Key)+"="+string(e.Value.Value))
	}
	if len(got) != 2 || got[0] != "key1=1" || got[1] != "key2=2" {
		t.Fatalf("unexpected range result: %v", got)
	}
}

func keyN(i int) string { return "key" + string(rune('0'+i)) }
func valN(i int) string { return string(rune('0' + i)) }

func TestScenario_WriteConflict(t *testing.T) {
	db := newMemDb(t, DefaultOptions())

	setup := db.NewTxn()
	setup.Set(codec.String("key0"), codec.String("0"))
	setup.Set(codec.String("key1"), codec.String("1"))
	if err := setup.Commit(); err != nil {
		t.Fatalf("setup commit: %v", err)
	}

	t0 := db.NewTxn()
	t1 := db.NewTxn()
	t2 := db.NewTxn()

	t0.Set(codec.String("key0"), codec.String("t0"))
	t1.Set(codec.String("key0"), codec.String("t1"))
	t1.Set(codec.String("key2"), codec.String("t1"))
	t2.Set(codec.String("key2"), codec.String("t2"))

	if err := t0.Commit(); err != nil {
		t.Fatalf("t0 should commit: %v", err)
	}

	err := t1.Commit()
	if err == nil {
		t.Fatal("t1 should fail with a write conflict")
	}
	conflict, ok := err.(*lerrors.WriteConflictError)
	if !ok {
		t.Fatalf("expected *errors.WriteConflictError, got %T: %v", err, err)
	}
	if len(conflict.Keys) == 0 {
		t.Fatal("expected at least one intersecting key named in the conflict")
	}

	if err := t2.Commit(); err != nil {
		t.Fatalf("t2 should commit: %v", err)
	}
}

func TestScenario_TombstoneVisibilityWithForcedRotation(t *testing.T) {
	// Size the WAL so only two records fit per file, forcing rotation
	// partway through this scenario's four writes.
	probe := wal.NewRecord(wal.RecordFull, codec.String("key_1"), 0, codec.Some(codec.String("value_1")))
	frameSize := int64(4 + probe.Size() + 4)

	opt := DefaultOptions()
	opt.MaxWALSize = frameSize*2 + 1
	opt.WorkerCount = 1
	db := newMemDb(t, opt)

	// This exercises the write path directly at literal timestamps,
	// bypassing the oracle's own clock (a full Transaction.Commit
	// always stamps the next tick, which would renumber these) so the
	// forced-rotation boundary lines up with the exact inputs below.
	write := func(key string, ts uint64, val string, tombstone bool) {
		var value codec.Option[codec.String]
		if !tombstone {
			value = codec.Some(codec.String(val))
		}
		if err := db.submitBatch(ts, []edit[codec.String, codec.String]{{Key: codec.String(key), Value: value}}); err != nil {
			t.Fatalf("write %s@%d: %v", key, ts, err)
		}
	}

	write("key_1", 0, "value_1", false)
	write("key_1", 1, "", true)
	write("key_2", 0, "", true)
	write("key_2", 1, "value_2", false)

	check := func(key string, ts uint64, wantFound bool, wantVal string) {
		t.Helper()
		v, found, err := db.getInner(codec.String(key), ts)
		if err != nil {
			t.Fatalf("getInner(%s,%d): %v", key, ts, err)
		}
		if found != wantFound || (wantFound && wantVal != "" && (!v.Valid || string(v.Value) != wantVal)) {
			t.Fatalf("getInner(%s,%d) = found=%v value=%+v, want found=%v value=%s", key, ts, found, v, wantFound, wantVal)
		}
		if wantFound && wantVal == "" && v.Valid {
			t.Fatalf("getInner(%s,%d) expected tombstone, got %v", key, ts, v.Value)
		}
	}

	check("key_1", 0, true, "value_1")
	check("key_1", 1, true, "")
	check("key_2", 0, true, "")
	check("key_2", 1, true, "value_2")
}

func TestScenario_WALRecoveryAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	provider, err := wal.NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	db, err := New[codec.String, codec.String](provider, DefaultOptions(), codec.DecodeString, codec.DecodeString)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tx := db.NewTxn()
	tx.Set(codec.String("key0"), codec.String("value0"))
	tx.Set(codec.String("key1"), codec.String("value1"))
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	preCommitTs := tx.readAt

	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	provider2, err := wal.NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider reopen: %v", err)
	}
	db2, err := New[codec.String, codec.String](provider2, DefaultOptions(), codec.DecodeString, codec.DecodeString)
	if err != nil {
		t.Fatalf("New reopen: %v", err)
	}
	defer db2.Close()

	readTx := db2.NewTxn()
	defer readTx.Rollback()

	v0, found0 := mustGet(t, readTx, "key0")
	v1, found1 := mustGet(t, readTx, "key1")
	if !found0 || v0 != "value0" {
		t.Fatalf("key0 after reopen = found=%v value=%s", found0, v0)
	}
	if !found1 || v1 != "value1" {
		t.Fatalf("key1 after reopen = found=%v value=%s", found1, v1)
	}
	if readTx.ReadAt() <= preCommitTs {
		t.Fatalf("reopened snapshot %d should be past the pre-commit read timestamp %d, proving the oracle resumed after the recovered write", readTx.ReadAt(), preCommitTs)
	}
}
