// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objstore.
//
// go-objstore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package storage

import (
	"sort"
	"sync"
)

// MemoryBackend provides an in-memory storage implementation.
// This is useful for testing and ephemeral storage needs.
// Thread-safe using a read-write mutex.
type MemoryBackend struct {
	data   map[uint32][]byte
	mu     sync.RWMutex
	closed bool
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[uint32][]byte),
	}
}

// NewMemory creates a new in-memory storage backend.
func NewMemory() Backend {
	return NewMemoryBackend()
}

// Get retrieves a range of the blob stored at key.
func (m *MemoryBackend) Get(key uint32, offset, length int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	value, exists := m.data[key]
	if !exists {
		return nil, ErrNotFound
	}

	// Slice returns a copy to prevent modification
	return Slice(value, offset, length)
}

// Set stores the blob for the given key.
func (m *MemoryBackend) Set(key uint32, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Store a copy to prevent modification
	data := make([]byte, len(value))
	copy(data, value)
	m.data[key] = data
	return nil
}

// Remove deletes the blob stored at key.
func (m *MemoryBackend) Remove(key uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if _, exists := m.data[key]; !exists {
		return ErrNotFound
	}

	delete(m.data, key)
	return nil
}

// Keys returns the keys currently stored, in ascending order.
func (m *MemoryBackend) Keys() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]uint32, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Snapshot returns a deep copy of the stored blobs. Together with Restore it
// models an attacker copying and later replaying the whole storage area.
func (m *MemoryBackend) Snapshot() map[uint32][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[uint32][]byte, len(m.data))
	for k, v := range m.data {
		snap[k] = append([]byte(nil), v...)
	}
	return snap
}

// Restore replaces the stored blobs with a deep copy of snap.
func (m *MemoryBackend) Restore(snap map[uint32][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[uint32][]byte, len(snap))
	for k, v := range snap {
		m.data[k] = append([]byte(nil), v...)
	}
}

// Close releases any resources held by the backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.data = nil
	return nil
}
