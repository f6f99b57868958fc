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

package objstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

// tableManager owns the two table copies and the rollback counters. It
// does no locking; Store serialises access.
type tableManager struct {
	blobs    storage.Backend
	codec    objectCodec
	counters counter.Service
	rollback bool
	keyBase  uint32
	numSlots int
	config   byte
	logger   *slog.Logger

	// table is the committed table, nil until boot or wipe succeeds.
	table     *objectTable
	activeKey uint32

	// strays are tables whose write reported failure but may have landed
	// on the scratch key and could not be removed. Slots they use stay
	// untouched until a save overwrites the scratch key.
	strays []*objectTable
}

func newTableManager(blobs storage.Backend, codec objectCodec, counters counter.Service, opts *Options) *tableManager {
	var config byte
	if opts.Encryption {
		config |= configEncryption
	}
	if opts.RollbackProtection {
		config |= configRollback
	}
	return &tableManager{
		blobs:     blobs,
		codec:     codec,
		counters:  counters,
		rollback:  opts.RollbackProtection,
		keyBase:   opts.KeyBase,
		numSlots:  opts.NumObjects + 1,
		config:    config,
		logger:    opts.Logger,
		activeKey: opts.KeyBase + 1,
	}
}

func (m *tableManager) tableKeyA() uint32 { return m.keyBase }
func (m *tableManager) tableKeyB() uint32 { return m.keyBase + 1 }

func (m *tableManager) objectKey(slot int) uint32 {
	return m.keyBase + 2 + uint32(slot)
}

func (m *tableManager) scratchKey() uint32 {
	if m.activeKey == m.tableKeyA() {
		return m.tableKeyB()
	}
	return m.tableKeyA()
}

func (m *tableManager) tableName(key uint32) string {
	if key == m.tableKeyA() {
		return "A"
	}
	return "B"
}

func (m *tableManager) initialized() bool {
	return m.table != nil
}

// tableCopy is one on-disk copy of the table as seen during boot.
type tableCopy struct {
	name     string
	key      uint32
	present  bool
	blob     []byte
	table    *objectTable
	validC1  bool
	validC3  bool
	mismatch error
}

func (m *tableManager) readCopy(key uint32) *tableCopy {
	c := &tableCopy{name: m.tableName(key), key: key}
	blob, err := m.blobs.Get(key, 0, -1)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.present = true
			m.logger.Warn("object table copy unreadable", "table", c.name, "error", err)
		}
		return c
	}
	c.present = true

	t, err := decodeTable(blob, m.config, m.codec.algorithm(), m.numSlots)
	if errors.Is(err, ErrAlgorithmMismatch) {
		c.mismatch = err
		m.logger.Error("object table copy sealed with another algorithm", "table", c.name, "error", err)
		return c
	}
	if err != nil {
		m.logger.Warn("object table copy malformed", "table", c.name, "error", err)
		return c
	}
	c.blob, c.table = blob, t
	return c
}

// verify authenticates c with nv as the counter value in its associated data.
func (m *tableManager) verify(c *tableCopy, nv uint32) bool {
	blob := append([]byte(nil), c.blob...)
	binary.LittleEndian.PutUint32(blob[4:8], nv)
	if err := m.codec.verifyTable(blob); err != nil {
		m.logger.Debug("object table copy failed verification",
			"table", c.name, "nv_counter", nv, "error", err)
		return false
	}
	return true
}

// boot selects the active table from the two copies, creating a fresh
// table when neither copy has ever been written.
func (m *tableManager) boot() error {
	copies := []*tableCopy{m.readCopy(m.tableKeyA()), m.readCopy(m.tableKeyB())}

	var c1, c3 uint32
	trustC3 := false
	if m.rollback {
		values, err := counter.ReadAll(m.counters)
		if err != nil {
			return fmt.Errorf("%w: read counters: %v", ErrGeneric, err)
		}
		c1, c3 = values[0], values[2]
		trustC3 = values[2] == values[1]
		if !trustC3 {
			m.logger.Info("counter C3 disagrees with C2, not trusted",
				"c1", values[0], "c2", values[1], "c3", values[2])
		}
	}

	for _, c := range copies {
		if c.table == nil {
			continue
		}
		switch {
		case m.verify(c, c1):
			c.validC1 = true
		case trustC3 && c3 != c1 && m.verify(c, c3):
			c.validC3 = true
		}
	}

	active := selectActive(copies[0], copies[1])
	if active == nil {
		for _, c := range copies {
			if c.mismatch != nil {
				return fmt.Errorf("%w: %w: reopen with the recorded algorithm",
					ErrGeneric, c.mismatch)
			}
		}
		if copies[0].present || copies[1].present {
			return fmt.Errorf("%w: no valid object table, store must be wiped", ErrGeneric)
		}
		if m.rollback && c1 != 0 {
			return fmt.Errorf("%w: object tables missing while counter C1 is %d, store must be wiped",
				ErrGeneric, c1)
		}
		m.logger.Info("no object table found, creating empty store")
		return m.save(newObjectTable(m.numSlots))
	}

	m.table, m.activeKey = active.table, active.key
	m.logger.Info("object table selected",
		"table", active.name,
		"swap_count", active.table.swapCount,
		"nv_counter", active.table.nvCounter,
		"via_c3", active.validC3)

	if active.validC3 {
		// The last save incremented C1 but its table never landed.
		m.logger.Info("re-binding object table to counter C1", "table", active.name)
		return m.save(m.table.clone())
	}
	if m.rollback {
		return m.alignCounters()
	}
	return nil
}

// selectActive prefers a copy validated against C1, then one validated
// against C3. Between two equally valid copies the swap counts decide.
func selectActive(a, b *tableCopy) *tableCopy {
	pick := func(aValid, bValid bool) *tableCopy {
		switch {
		case aValid && bValid:
			if swapNewer(a.table.swapCount, b.table.swapCount) {
				return b
			}
			return a
		case aValid:
			return a
		case bValid:
			return b
		}
		return nil
	}
	if c := pick(a.validC1, b.validC1); c != nil {
		return c
	}
	return pick(a.validC3, b.validC3)
}

// alignCounters increments C2 and C3 until they reach C1.
func (m *tableManager) alignCounters() error {
	c1, err := m.counters.Read(counter.ID1)
	if err != nil {
		return counterError("read", counter.ID1, err)
	}
	for _, id := range []counter.ID{counter.ID2, counter.ID3} {
		v, err := m.counters.Read(id)
		if err != nil {
			return counterError("read", id, err)
		}
		if v > c1 {
			m.logger.Warn("counter ahead of C1", "counter", id.String(), "value", v, "c1", c1)
			continue
		}
		for v < c1 {
			if v, err = m.counters.Increment(id); err != nil {
				return counterError("increment", id, err)
			}
		}
	}
	return nil
}

// save persists next to the scratch key and makes it the committed table.
// On failure the committed table is unchanged.
func (m *tableManager) save(next *objectTable) error {
	next.swapCount = 1
	if m.table != nil {
		next.swapCount = m.table.swapCount + 1
	}
	if m.rollback {
		nv, err := m.counters.Increment(counter.ID1)
		if err != nil {
			return counterError("increment", counter.ID1, err)
		}
		next.nvCounter = nv
	}

	blob := next.encode(m.config, m.codec.algorithm())
	if err := m.codec.sealTable(blob); err != nil {
		return err
	}
	scratch := m.scratchKey()
	if err := m.blobs.Set(scratch, blob); err != nil {
		m.discard(scratch, next)
		return fmt.Errorf("%w: write table %s: %v", ErrGeneric, m.tableName(scratch), err)
	}
	m.table, m.activeKey, m.strays = next, scratch, nil

	if m.rollback {
		if err := m.alignCounters(); err != nil {
			m.logger.Warn("counter alignment failed after commit", "error", err)
		}
	}
	return nil
}

// discard removes a table copy whose write failed. The write may have
// landed anyway, and the committed table still lists the copy's new slots
// as free. If the copy cannot be removed it is kept as a stray so those
// slots are not reused before a save replaces it.
func (m *tableManager) discard(scratch uint32, next *objectTable) {
	if err := m.remove(scratch); err != nil {
		m.logger.Warn("failed to remove unsaved object table, holding its slots",
			"table", m.tableName(scratch), "error", err)
		m.strays = append(m.strays, next)
		return
	}
	m.strays = nil
}

// usable returns the slots free in t that no stray table refers to.
func (m *tableManager) usable(t *objectTable) []int {
	var slots []int
next:
	for i, e := range t.entries {
		if !e.free() {
			continue
		}
		for _, stray := range m.strays {
			if !stray.entries[i].free() {
				continue next
			}
		}
		slots = append(slots, i)
	}
	return slots
}

// reserve checks t has at least k usable slots and returns the lowest one,
// removing any blob left there by an interrupted operation.
func (m *tableManager) reserve(t *objectTable, k int) (int, error) {
	free := m.usable(t)
	if len(free) < k {
		return -1, fmt.Errorf("%w: need %d free slots, have %d", ErrInsufficientStorage, k, len(free))
	}
	slot := free[0]
	key := m.objectKey(slot)
	if err := m.remove(key); err != nil {
		return -1, fmt.Errorf("%w: remove stale object key %#x: %v", ErrGeneric, key, err)
	}
	return slot, nil
}

func (m *tableManager) remove(key uint32) error {
	if err := m.blobs.Remove(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// retire removes the blob of a superseded object and the former table copy.
// Failures only leave garbage behind.
func (m *tableManager) retire(slot int) {
	if slot >= 0 {
		if err := m.remove(m.objectKey(slot)); err != nil {
			m.logger.Warn("failed to remove superseded object", "slot", slot, "error", err)
		}
	}
	if err := m.remove(m.scratchKey()); err != nil {
		m.logger.Warn("failed to remove former object table",
			"table", m.tableName(m.scratchKey()), "error", err)
	}
}

// wipe commits an empty table and removes everything else, whatever the
// state of the store.
func (m *tableManager) wipe() error {
	if m.table == nil {
		m.activeKey = m.tableKeyB()
	}
	if err := m.save(newObjectTable(m.numSlots)); err != nil {
		return err
	}
	m.retire(-1)
	for slot := 0; slot < m.numSlots; slot++ {
		if err := m.remove(m.objectKey(slot)); err != nil {
			m.logger.Warn("failed to remove object during wipe", "slot", slot, "error", err)
		}
	}
	m.logger.Info("store wiped", "table", m.tableName(m.activeKey))
	return nil
}

func (m *tableManager) stats() Stats {
	s := Stats{
		Initialized: m.initialized(),
		TotalSlots:  m.numSlots,
		MaxObjects:  m.numSlots - 1,
		Algorithm:   algorithmName(m.codec.algorithm()),
	}
	if m.table == nil {
		return s
	}
	s.FreeSlots = m.table.freeSlots()
	s.UsedSlots = m.numSlots - s.FreeSlots
	s.ActiveTable = m.tableName(m.activeKey)
	s.SwapCount = m.table.swapCount
	s.NVCounter = m.table.nvCounter
	return s
}
