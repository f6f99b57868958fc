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

// Package testutil provides fault injection and fixtures for tests.
package testutil

import (
	"errors"
	"sync"

	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

// ErrInjected is returned by every injected fault.
var ErrInjected = errors.New("testutil: injected fault")

// Fault describes what happens to a Set call that is made to fail.
type Fault int

const (
	// FaultNone lets the call through.
	FaultNone Fault = iota

	// FaultDrop fails the call without writing anything, as if power was
	// lost before the write started.
	FaultDrop

	// FaultAfterWrite completes the write and then fails the call, as if
	// power was lost right after the write landed.
	FaultAfterWrite
)

// FaultyBackend wraps a storage.Backend and injects failures.
//
// Example:
//
//	blobs := testutil.NewFaultyBackend(storage.NewMemoryBackend())
//	blobs.FailSet(tableKey, testutil.FaultAfterWrite)
//	err := store.Write(client, uid, 0, data) // table lands, caller sees an error
type FaultyBackend struct {
	storage.Backend

	mu         sync.Mutex
	setFaults  map[uint32]Fault
	nextSet    Fault
	allSets    Fault
	failRemove bool
	getFaults  map[uint32]bool
	onSet      func(key uint32, value []byte)
	sets       int
}

// NewFaultyBackend wraps inner.
func NewFaultyBackend(inner storage.Backend) *FaultyBackend {
	return &FaultyBackend{
		Backend:   inner,
		setFaults: make(map[uint32]Fault),
		getFaults: make(map[uint32]bool),
	}
}

// FailSet makes the next Set of key fail with fault.
func (f *FaultyBackend) FailSet(key uint32, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setFaults[key] = fault
}

// FailNextSet makes the next Set of any key fail with fault.
func (f *FaultyBackend) FailNextSet(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSet = fault
}

// FailAllSets makes every Set fail with fault until Reset.
func (f *FaultyBackend) FailAllSets(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allSets = fault
}

// FailRemoves makes every Remove fail until Reset.
func (f *FaultyBackend) FailRemoves() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemove = true
}

// FailGet makes every Get of key fail until Reset.
func (f *FaultyBackend) FailGet(key uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getFaults[key] = true
}

// OnSet registers a hook called with every value passed to Set.
func (f *FaultyBackend) OnSet(fn func(key uint32, value []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSet = fn
}

// Reset clears all injected faults and the Set hook.
func (f *FaultyBackend) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setFaults = make(map[uint32]Fault)
	f.getFaults = make(map[uint32]bool)
	f.nextSet = FaultNone
	f.allSets = FaultNone
	f.failRemove = false
	f.onSet = nil
}

// SetCount returns the number of Set calls seen, including failed ones.
func (f *FaultyBackend) SetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

// Get reads from the wrapped backend unless a fault is injected for key.
func (f *FaultyBackend) Get(key uint32, offset, length int) ([]byte, error) {
	f.mu.Lock()
	fail := f.getFaults[key]
	f.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}
	return f.Backend.Get(key, offset, length)
}

// Set writes to the wrapped backend, applying any injected fault.
func (f *FaultyBackend) Set(key uint32, value []byte) error {
	f.mu.Lock()
	f.sets++
	fault := f.allSets
	if fault == FaultNone {
		fault = f.nextSet
		f.nextSet = FaultNone
	}
	if fault == FaultNone {
		fault = f.setFaults[key]
		delete(f.setFaults, key)
	}
	hook := f.onSet
	f.mu.Unlock()

	if hook != nil {
		hook(key, value)
	}

	switch fault {
	case FaultDrop:
		return ErrInjected
	case FaultAfterWrite:
		if err := f.Backend.Set(key, value); err != nil {
			return err
		}
		return ErrInjected
	default:
		return f.Backend.Set(key, value)
	}
}

// Remove deletes from the wrapped backend unless removes are failing.
func (f *FaultyBackend) Remove(key uint32) error {
	f.mu.Lock()
	fail := f.failRemove
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	return f.Backend.Remove(key)
}
