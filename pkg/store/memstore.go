package store

import (
	"sync"

	"github.com/saltstream/saltstream/pkg/message"
	"github.com/saltstream/saltstream/pkg/sponge"
)

type memEntry struct {
	inner []byte
	info  Info
}

// MemStore is an in-memory Store, safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	entries map[message.MsgId]memEntry
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[message.MsgId]memEntry)}
}

func (m *MemStore) Lookup(id message.MsgId) (*sponge.Spongos, Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, Info{}, ErrLinkNotFound
	}
	st, err := sponge.FromInner(e.inner)
	if err != nil {
		return nil, Info{}, err
	}
	return st, e.info, nil
}

// Update stores the committed state for id, replacing any previous one.
func (m *MemStore) Update(id message.MsgId, st *sponge.Spongos, info Info) error {
	inner, err := st.Inner()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memEntry{inner: inner, info: info}
	return nil
}

// Len reports the number of stored links.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
