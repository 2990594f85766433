package wal

import "sync/atomic"

// Manager owns a Provider and the configured size bound, and hands out
// File/RecoverStream instances over it.
type Manager struct {
	provider Provider
	maxSize  int64
	nextID   uint64
}

// NewManager constructs a manager over provider, seeding its next file
// id past whatever files already exist so ids stay dense and
// gap-free within the process lifetime.
func NewManager(provider Provider, maxSize int64) (*Manager, error) {
	existing, err := provider.List()
	if err != nil {
		return nil, err
	}
	var next uint64
	for _, id := range existing {
		if uint64(id)+1 > next {
			next = uint64(id) + 1
		}
	}
	return &Manager{provider: provider, maxSize: maxSize, nextID: next}, nil
}

// CreateWALFile allocates a new backing file with a fresh identifier
// and returns an open WAL file.
func (m *Manager) CreateWALFile() (*File, error) {
	id := FileID(atomic.AddUint64(&m.nextID, 1) - 1)
	sink, err := m.provider.Create(id)
	if err != nil {
		return nil, err
	}
	return NewFile(id, sink, m.maxSize), nil
}

// List returns existing files in persistence (creation) order,
// consumed at open time during recovery.
func (m *Manager) List() ([]FileID, error) {
	return m.provider.List()
}

// PackWALFile adapts a listed file id into a recoverable stream.
func (m *Manager) PackWALFile(id FileID) (*RecoverStream, error) {
	src, err := m.provider.Open(id)
	if err != nil {
		return nil, err
	}
	return NewRecoverStream(id, src), nil
}

// MaxSize returns the configured size bound every File is constructed
// with.
func (m *Manager) MaxSize() int64 { return m.maxSize }
