package auth

import (
	"context"
	"sync"
)

// MemoryBackend keeps cache tables in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
}

// NewMemoryBackend provisions the named tables; with no names it provisions
// both token-cache tables.
func NewMemoryBackend(names ...string) *MemoryBackend {
	if len(names) == 0 {
		names = []string{TokensTable, InvalidTokensTable}
	}
	b := &MemoryBackend{tables: make(map[string]*memoryTable, len(names))}
	for _, n := range names {
		b.tables[n] = &memoryTable{data: make(map[string]string)}
	}
	return b
}

func (b *MemoryBackend) Table(name string) Table {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[name]
	if !ok {
		return nil
	}
	return t
}

// Len returns the number of entries in a table, or -1 if it does not exist.
func (b *MemoryBackend) Len(name string) int {
	b.mu.RLock()
	t, ok := b.tables[name]
	b.mu.RUnlock()
	if !ok {
		return -1
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

type memoryTable struct {
	mu   sync.RWMutex
	data map[string]string
}

func (t *memoryTable) Get(_ context.Context, key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok, nil
}

func (t *memoryTable) Put(_ context.Context, key, value string) error {
	t.mu.Lock()
	t.data[key] = value
	t.mu.Unlock()
	return nil
}

func (t *memoryTable) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	delete(t.data, key)
	t.mu.Unlock()
	return nil
}

func (t *memoryTable) Swap(_ context.Context, key, value string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.data[key]
	t.data[key] = value
	return old, ok, nil
}
