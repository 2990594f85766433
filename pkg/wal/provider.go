package wal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bobboyms/lsmvcc/pkg/errors"
)

// Provider is the backing-store capability the WAL manager requires:
// enumerate existing files in persistence order, open a new file by
// id, and open an existing file for recovery. Concrete backings are
// MemProvider and FileProvider below.
type Provider interface {
	List() ([]FileID, error)
	Create(id FileID) (Sink, error)
	Open(id FileID) (Source, error)
}

// memSink/memSource adapt an in-memory byte buffer to Sink/Source.

type memSink struct {
	buf *memBuffer
}

func (s memSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s memSink) Sync() error                 { return nil }
func (s memSink) Close() error                { return nil }

type memBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *memBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

type memSource struct {
	r *bytes.Reader
}

func (s *memSource) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *memSource) Close() error                { return nil }

// MemProvider is a vector-backed provider holding one in-memory buffer
// per created file id, with List yielding each created file once in
// creation order. Files are not merged into a single logical buffer.
type MemProvider struct {
	mu      sync.Mutex
	buffers map[FileID]*memBuffer
	order   []FileID
}

// NewMemProvider constructs an empty in-memory provider.
func NewMemProvider() *MemProvider {
	return &MemProvider{buffers: make(map[FileID]*memBuffer)}
}

func (p *MemProvider) List() ([]FileID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FileID, len(p.order))
	copy(out, p.order)
	return out, nil
}

func (p *MemProvider) Create(id FileID) (Sink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := &memBuffer{}
	p.buffers[id] = b
	p.order = append(p.order, id)
	return memSink{buf: b}, nil
}

func (p *MemProvider) Open(id FileID) (Source, error) {
	p.mu.Lock()
	b, ok := p.buffers[id]
	p.mu.Unlock()
	if !ok {
		return nil, &errors.IOError{Op: "open", Err: fmt.Errorf("no such in-memory wal file %d", id)}
	}
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	return &memSource{r: bytes.NewReader(data)}, nil
}

// FileProvider is a directory of densely, gap-free numbered files, one
// per WAL generation.
type FileProvider struct {
	dir string
}

// NewFileProvider opens (creating if necessary) dir as the WAL root.
func NewFileProvider(dir string) (*FileProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &errors.IOError{Op: "mkdir", Err: err}
	}
	return &FileProvider{dir: dir}, nil
}

func (p *FileProvider) path(id FileID) string {
	return filepath.Join(p.dir, fmt.Sprintf("%020d.wal", uint64(id)))
}

// List enumerates existing *.wal files in creation (generation) order.
func (p *FileProvider) List() ([]FileID, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, &errors.IOError{Op: "readdir", Err: err}
	}
	var ids []FileID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(e.Name(), "%020d.wal", &n); err != nil {
			continue
		}
		ids = append(ids, FileID(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (p *FileProvider) Create(id FileID) (Sink, error) {
	f, err := os.OpenFile(p.path(id), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &errors.IOError{Op: "create wal file", Err: err}
	}
	return f, nil
}

func (p *FileProvider) Open(id FileID) (Source, error) {
	f, err := os.Open(p.path(id))
	if err != nil {
		return nil, &errors.IOError{Op: "open wal file", Err: err}
	}
	return f, nil
}
