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

import "sync"

// Memory is a volatile counter service. It is intended for tests and
// ephemeral stores; values are lost when the process exits.
type Memory struct {
	mu     sync.Mutex
	values [3]uint32
	max    uint32
}

// NewMemory returns counters starting at zero.
func NewMemory() *Memory {
	return &Memory{max: MaxValue}
}

// NewMemoryWithLimit returns counters that refuse to go past limit.
func NewMemoryWithLimit(limit uint32) *Memory {
	return &Memory{max: limit}
}

// Read returns the current value of the counter.
func (m *Memory) Read(id ID) (uint32, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[id-1], nil
}

// Increment adds one to the counter and returns its new value.
func (m *Memory) Increment(id ID) (uint32, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values[id-1] >= m.max {
		return m.values[id-1], ErrMaxValueReached
	}
	m.values[id-1]++
	return m.values[id-1], nil
}

// Set forces a counter to value. Real NV counters cannot move backwards; this
// exists to model service interventions and attacks in tests.
func (m *Memory) Set(id ID, value uint32) error {
	if err := checkID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[id-1] = value
	return nil
}
