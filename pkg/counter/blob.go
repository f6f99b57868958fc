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

package counter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

// DefaultKeyBase is the first blob key used by blob-backed counters.
const DefaultKeyBase uint32 = 0xC0C00000

// Blob persists each counter as a 4-byte little-endian blob in a
// storage.Backend. It emulates NV counters on hosts without counter hardware;
// anyone able to rewrite the backend can also rewind the counters, so it must
// live on a different medium than the object store it protects.
type Blob struct {
	mu      sync.Mutex
	backend storage.Backend
	keyBase uint32
}

// NewBlob returns counters stored in backend at keyBase+id.
func NewBlob(backend storage.Backend, keyBase uint32) *Blob {
	return &Blob{backend: backend, keyBase: keyBase}
}

// Read returns the current value of the counter. A counter that was never
// written reads as zero.
func (b *Blob) Read(id ID) (uint32, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(id)
}

// Increment adds one to the counter and returns its new value.
func (b *Blob) Increment(id ID) (uint32, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	v, err := b.read(id)
	if err != nil {
		return 0, err
	}
	if v == MaxValue {
		return v, ErrMaxValueReached
	}
	v++

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if err := b.backend.Set(b.keyBase+uint32(id), buf[:]); err != nil {
		return 0, fmt.Errorf("counter: write %s: %w", id, err)
	}
	return v, nil
}

func (b *Blob) read(id ID) (uint32, error) {
	raw, err := b.backend.Get(b.keyBase+uint32(id), 0, -1)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter: read %s: %w", id, err)
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("counter: read %s: corrupt value (%d bytes)", id, len(raw))
	}
	return binary.LittleEndian.Uint32(raw), nil
}
