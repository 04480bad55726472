package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/starford/pfdl/internal/apperr"
)

// Memory is an in-process Backend, used by tests and by tools that build a
// root from fixtures.
type Memory struct {
	root         string
	contentLimit int64

	mu      sync.RWMutex
	batches map[string]map[string]memEntry
}

type memEntry struct {
	data  []byte
	plain bool
}

// NewMemory creates an empty in-memory root.
func NewMemory(root string) *Memory {
	return &Memory{root: root, contentLimit: DefaultContentLimit, batches: make(map[string]map[string]memEntry)}
}

// WithContentLimit overrides the retained-content threshold.
func (m *Memory) WithContentLimit(limit int64) *Memory {
	m.contentLimit = limit
	return m
}

// Put stores a plain object, creating the batch if needed.
func (m *Memory) Put(batch, name string, data []byte) {
	m.put(batch, name, memEntry{data: slices.Clone(data), plain: true})
}

// PutDir stores a non-plain child (a nested collection) in a batch.
func (m *Memory) PutDir(batch, name string) {
	m.put(batch, name, memEntry{})
}

// Remove deletes an entry.
func (m *Memory) Remove(batch, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.batches[batch], name)
}

func (m *Memory) put(batch, name string, e memEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batch]
	if !ok {
		b = make(map[string]memEntry)
		m.batches[batch] = b
	}
	b[name] = e
}

func (m *Memory) Root() string { return m.root }

func (m *Memory) ListBatches(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.batches)), nil
}

func (m *Memory) ListEntries(_ context.Context, batch string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batch]
	if !ok {
		return nil, fmt.Errorf("storage: batch %s: %w", batch, apperr.ErrNotFound)
	}
	out := make([]Entry, 0, len(b))
	for _, name := range slices.Sorted(maps.Keys(b)) {
		out = append(out, Entry{Name: name, Plain: b[name].plain})
	}
	return out, nil
}

func (m *Memory) ReadBytes(_ context.Context, batch, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.batches[batch][name]
	if !ok || !e.plain {
		return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, apperr.ErrNotFound)
	}
	return slices.Clone(e.data), nil
}

func (m *Memory) Describe(ctx context.Context, batch, name string) (*Object, error) {
	data, err := m.ReadBytes(ctx, batch, name)
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("mem://%s/%s/%s", m.root, batch, name)
	return describeObject(int64(len(data)), uri, m.contentLimit, func() ([]byte, error) { return data, nil })
}
