package wal

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/bobboyms/lsmvcc/pkg/codec"
	"github.com/bobboyms/lsmvcc/pkg/errors"
)

func TestFile_WriteAndRotationBoundary(t *testing.T) {
	provider := NewMemProvider()
	mgr, err := NewManager(provider, 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	rec := NewRecord(RecordFull, codec.String("key0"), 1, codec.Some(codec.String("value0")))
	frameSize := int64(4 + rec.Size() + 4)
	mgr.maxSize = frameSize // exactly one record fits

	f, err := mgr.CreateWALFile()
	if err != nil {
		t.Fatalf("CreateWALFile: %v", err)
	}

	if err := WriteRecord(f, rec); err != nil {
		t.Fatalf("first write should fit: %v", err)
	}

	err = WriteRecord(f, rec)
	if _, ok := err.(*errors.MaxSizeExceededError); !ok {
		t.Fatalf("expected MaxSizeExceededError, got %v (%T)", err, err)
	}
}

func TestRecord_EncodeDecodeRoundTrip(t *testing.T) {
	rec := NewRecord(RecordFull, codec.String("hello"), 42, codec.Some(codec.String("world")))

	provider := NewMemProvider()
	mgr, err := NewManager(provider, 1<<20)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f, err := mgr.CreateWALFile()
	if err != nil {
		t.Fatalf("CreateWALFile: %v", err)
	}
	if err := WriteRecord(f, rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stream, err := mgr.PackWALFile(f.ID())
	if err != nil {
		t.Fatalf("PackWALFile: %v", err)
	}
	defer stream.Close()

	frame, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	got, err := ReadRecord[codec.String, codec.String](frame, codec.DecodeString, codec.DecodeString)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got.Key != rec.Key || got.Ts != rec.Ts || !got.Value.Valid || got.Value.Value != rec.Value.Value {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, rec)
	}

	if _, err := stream.Next(); err != io.EOF {
		t.Fatalf("expected EOF after one record, got %v", err)
	}
}

func TestRecord_TombstoneRoundTrip(t *testing.T) {
	rec := NewRecord(RecordFull, codec.String("deleted"), 7, codec.None[codec.String]())

	provider := NewMemProvider()
	mgr, _ := NewManager(provider, 1<<20)
	f, _ := mgr.CreateWALFile()
	if err := WriteRecord(f, rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	f.Close()

	stream, _ := mgr.PackWALFile(f.ID())
	frame, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	got, err := ReadRecord[codec.String, codec.String](frame, codec.DecodeString, codec.DecodeString)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got.Value.Valid {
		t.Fatalf("expected tombstone, got value %v", got.Value.Value)
	}
}

func TestRecoverStream_TruncatesOnCorruption(t *testing.T) {
	provider := NewMemProvider()
	mgr, _ := NewManager(provider, 1<<20)
	f, _ := mgr.CreateWALFile()

	good := NewRecord(RecordFull, codec.String("a"), 1, codec.Some(codec.String("1")))
	if err := WriteRecord(f, good); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	f.Close()

	// Append a frame whose trailing CRC does not match its payload.
	payload := []byte{0xAB}
	var corrupt [4 + 1 + 4]byte
	binary.LittleEndian.PutUint32(corrupt[0:4], uint32(len(payload)))
	copy(corrupt[4:5], payload)
	binary.LittleEndian.PutUint32(corrupt[5:9], ^CalculateCRC32(payload))
	provider.buffers[f.ID()].Write(corrupt[:])

	stream, _ := mgr.PackWALFile(f.ID())
	if _, err := stream.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := stream.Next(); err != io.EOF {
		t.Fatalf("expected EOF at the corrupted frame, got %v", err)
	}
}

func TestFileProvider_ListOrderAndRecover(t *testing.T) {
	dir := t.TempDir()
	provider, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	mgr, err := NewManager(provider, 1<<20)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	f0, _ := mgr.CreateWALFile()
	rec := NewRecord(RecordFull, codec.String("k"), 1, codec.Some(codec.String("v")))
	if err := WriteRecord(f0, rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	f0.Close()

	f1, _ := mgr.CreateWALFile()
	f1.Close()

	// Reopen against the same directory.
	provider2, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider reopen: %v", err)
	}
	mgr2, err := NewManager(provider2, 1<<20)
	if err != nil {
		t.Fatalf("NewManager reopen: %v", err)
	}

	ids, err := mgr2.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != f0.ID() || ids[1] != f1.ID() {
		t.Fatalf("unexpected file order: %v", ids)
	}

	stream, err := mgr2.PackWALFile(ids[0])
	if err != nil {
		t.Fatalf("PackWALFile: %v", err)
	}
	defer stream.Close()
	frame, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	got, err := ReadRecord[codec.String, codec.String](frame, codec.DecodeString, codec.DecodeString)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got.Key != codec.String("k") {
		t.Fatalf("unexpected key after reopen: %v", got.Key)
	}
}
