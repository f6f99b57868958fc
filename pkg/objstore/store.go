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

// Package objstore implements a power-fail-safe object store on top of a
// blob store that only guarantees atomic writes of a single key.
//
// Objects are addressed by (ClientID, UID). Each object lives in its own
// blob and is located through an object table kept in two copies, one
// active and one scratch. Every mutation writes the new object to a free
// slot, persists a new table to the scratch copy and only then removes the
// superseded object, so a power loss at any point leaves either the old
// or the new state.
//
// With encryption enabled objects are sealed with an AEAD whose tag is kept
// in the table entry, and the table is itself authenticated. With rollback
// protection enabled every table write is bound to a monotonic NV counter
// so that restoring an older image of the blob store is detected at boot.
package objstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/provider"
	"github.com/jeremyhahn/go-objstore/pkg/metrics"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

// Store is the object store. It is safe for concurrent use; operations are
// serialised.
type Store struct {
	mu       sync.Mutex
	opts     Options
	counters counter.Service
	codec    objectCodec
	tables   *tableManager
	ws       *workspace
	logger   *slog.Logger
	id       string
	closed   bool
}

// New opens a store over blobs and boots it. A nil opts selects
// DefaultOptions. crypto may be nil when encryption is disabled and
// counters may be nil when rollback protection is disabled.
//
// If boot fails because no valid object table exists, New returns the
// store together with an ErrGeneric error. Such a store rejects every
// operation except WipeAll and Close until WipeAll succeeds. If the tables
// were sealed with a different AEAD algorithm than crypto uses the error
// also wraps ErrAlgorithmMismatch and nothing on disk is changed.
//
// The store does not take ownership of blobs, crypto or counters.
func New(blobs storage.Backend, crypto provider.Provider, counters counter.Service, opts *Options) (*Store, error) {
	o := opts.withDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if blobs == nil {
		return nil, fmt.Errorf("%w: blob store is required", ErrInvalidArgument)
	}
	if o.RollbackProtection && counters == nil {
		return nil, fmt.Errorf("%w: rollback protection requires NV counters", ErrInvalidArgument)
	}

	id := uuid.NewString()
	o.Logger = o.Logger.With("component", "objstore", "store_id", id)

	var codec objectCodec
	if o.Encryption {
		c, err := newEncryptedCodec(blobs, crypto, o.MaxObjectSize, o.TrackIVs)
		if err != nil {
			return nil, err
		}
		codec = c
	} else {
		codec = newPlainCodec(blobs, o.MaxObjectSize)
	}

	s := &Store{
		opts:     o,
		counters: counters,
		codec:    codec,
		tables:   newTableManager(blobs, codec, counters, &o),
		ws:       newWorkspace(o.MaxObjectSize),
		logger:   o.Logger,
		id:       id,
	}

	start := time.Now()
	err := s.tables.boot()
	s.record(metrics.OpBoot, start, err)
	if errors.Is(err, ErrAlgorithmMismatch) {
		s.logger.Error("object store sealed with another algorithm", "error", err)
		return s, err
	}
	if err != nil {
		s.logger.Error("object store failed to initialise, wipe required", "error", err)
		return s, err
	}

	s.logger.Info("object store ready",
		"slots", s.tables.numSlots,
		"max_object_size", o.MaxObjectSize,
		"encryption", o.Encryption,
		"rollback_protection", o.RollbackProtection)
	return s, nil
}

// ID returns the store instance id attached to its log records.
func (s *Store) ID() string {
	return s.id
}

// Create creates an empty object with the given maximum size, replacing
// any existing object with the same (client, uid) unless it is write-once.
func (s *Store) Create(client ClientID, uid UID, maxSize uint32, flags CreateFlags) error {
	return s.run(metrics.OpCreate, func(ws *workspace) error {
		return s.create(client, uid, maxSize, flags, nil, ws)
	})
}

// Set creates an object holding data, with a maximum size of len(data),
// replacing any existing object unless it is write-once.
func (s *Store) Set(client ClientID, uid UID, data []byte, flags CreateFlags) error {
	return s.run(metrics.OpSet, func(ws *workspace) error {
		if uint64(len(data)) > uint64(s.opts.MaxObjectSize) {
			return fmt.Errorf("%w: object size %d exceeds maximum %d",
				ErrInvalidArgument, len(data), s.opts.MaxObjectSize)
		}
		return s.create(client, uid, uint32(len(data)), flags, data, ws)
	})
}

// Read copies object data starting at offset into dst and returns the
// number of bytes copied. Reads past the end of the object are truncated.
func (s *Store) Read(client ClientID, uid UID, offset uint32, dst []byte) (int, error) {
	var n int
	err := s.run(metrics.OpRead, func(ws *workspace) error {
		slot, err := s.lookup(client, uid)
		if err != nil {
			return err
		}
		length := uint32(min(uint64(len(dst)), uint64(s.opts.MaxObjectSize)))
		info, data, err := s.load(slot, offset, length, ws)
		if err != nil {
			return err
		}
		if offset > info.Size {
			return fmt.Errorf("%w: offset %d beyond object size %d", ErrInvalidArgument, offset, info.Size)
		}
		n = copy(dst, data)
		return nil
	})
	return n, err
}

// Get returns the whole content of an object.
func (s *Store) Get(client ClientID, uid UID) ([]byte, error) {
	var out []byte
	err := s.run(metrics.OpGet, func(ws *workspace) error {
		slot, err := s.lookup(client, uid)
		if err != nil {
			return err
		}
		_, data, err := s.load(slot, 0, s.opts.MaxObjectSize, ws)
		if err != nil {
			return err
		}
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	return out, err
}

// Write writes data at offset, extending the object if the write reaches
// past its current size. Writes may not leave gaps or exceed the maximum
// size.
func (s *Store) Write(client ClientID, uid UID, offset uint32, data []byte) error {
	return s.run(metrics.OpWrite, func(ws *workspace) error {
		return s.write(client, uid, offset, data, ws)
	})
}

// Delete removes an object.
func (s *Store) Delete(client ClientID, uid UID) error {
	return s.run(metrics.OpDelete, func(ws *workspace) error {
		return s.delete(client, uid, ws)
	})
}

// GetInfo returns the header of an object.
func (s *Store) GetInfo(client ClientID, uid UID) (ObjectInfo, error) {
	var info ObjectInfo
	err := s.run(metrics.OpGetInfo, func(ws *workspace) error {
		slot, err := s.lookup(client, uid)
		if err != nil {
			return err
		}
		info, _, err = s.load(slot, 0, 0, ws)
		return err
	})
	return info, err
}

// WipeAll deletes every object and commits a fresh empty table. It works
// whether or not the store initialised and returns it to service.
func (s *Store) WipeAll() error {
	return s.run(metrics.OpWipeAll, func(ws *workspace) error {
		if err := s.tables.wipe(); err != nil {
			return err
		}
		metrics.RecordTablePersist()
		return nil
	})
}

// Stats returns the state of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables.stats()
}

// Snapshot reports slot usage and the rollback counters for metrics
// collection.
func (s *Store) Snapshot() (metrics.Snapshot, error) {
	stats := s.Stats()
	snap := metrics.Snapshot{
		UsedSlots:  stats.UsedSlots,
		TotalSlots: stats.TotalSlots,
	}
	if s.counters == nil {
		return snap, nil
	}
	values, err := counter.ReadAll(s.counters)
	if err != nil {
		return snap, fmt.Errorf("%w: read counters: %v", ErrGeneric, err)
	}
	snap.Counters = make(map[string]uint32, len(counter.IDs))
	for i, id := range counter.IDs {
		snap.Counters[id.String()] = values[i]
	}
	return snap, nil
}

// Close destroys the storage key and clears the workspace. It does not
// close the blob store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ws.release()
	if err := s.codec.close(); err != nil {
		return fmt.Errorf("%w: close codec: %v", ErrGeneric, err)
	}
	s.logger.Debug("object store closed")
	return nil
}

// run serialises an operation, hands it the workspace and clears the
// workspace afterwards.
func (s *Store) run(op string, fn func(ws *workspace) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.exec(op, fn)
	s.record(op, start, err)
	return err
}

func (s *Store) exec(op string, fn func(ws *workspace) error) error {
	if s.closed {
		return fmt.Errorf("%w: store closed", ErrGeneric)
	}
	if op != metrics.OpWipeAll && !s.tables.initialized() {
		return fmt.Errorf("%w: store not initialised, wipe required", ErrGeneric)
	}
	defer s.ws.release()
	return fn(s.ws)
}

func (s *Store) record(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		metrics.RecordError(op, errorType(err))
		s.logger.Debug("operation failed", "operation", op, "error", err)
	}
	metrics.RecordOperation(op, status, time.Since(start).Seconds())

	if stats := s.tables.stats(); stats.Initialized {
		metrics.SetSlots(stats.UsedSlots, stats.TotalSlots)
	}
}

func (s *Store) lookup(client ClientID, uid UID) (int, error) {
	if uid == 0 {
		return -1, fmt.Errorf("%w: uid 0", ErrInvalidArgument)
	}
	slot := s.tables.table.find(client, uid)
	if slot < 0 {
		return -1, fmt.Errorf("%w: client %d uid %#x", ErrDoesNotExist, client, uint64(uid))
	}
	return slot, nil
}

func (s *Store) load(slot int, offset, length uint32, ws *workspace) (ObjectInfo, []byte, error) {
	return s.codec.load(s.tables.objectKey(slot), s.tables.table.entries[slot], offset, length, ws)
}

func (s *Store) create(client ClientID, uid UID, maxSize uint32, flags CreateFlags, data []byte, ws *workspace) error {
	if uid == 0 {
		return fmt.Errorf("%w: uid 0", ErrInvalidArgument)
	}
	if !flags.Valid() {
		return fmt.Errorf("%w: unsupported flags %s", ErrInvalidArgument, flags)
	}
	if maxSize > s.opts.MaxObjectSize {
		return fmt.Errorf("%w: object size %d exceeds maximum %d",
			ErrInvalidArgument, maxSize, s.opts.MaxObjectSize)
	}

	t := s.tables.table
	old := t.find(client, uid)
	version, need := uint32(1), 2
	if old >= 0 {
		info, _, err := s.load(old, 0, 0, ws)
		if err != nil {
			return err
		}
		if info.Flags.WriteOnce() {
			return fmt.Errorf("%w: object %#x is write-once", ErrNotPermitted, uint64(uid))
		}
		version, need = t.entries[old].version+1, 1
	}

	slot, err := s.tables.reserve(t, need)
	if err != nil {
		return err
	}

	copy(ws.data(), data)
	e := entry{uid: uid, client: client, version: version}
	info := ObjectInfo{Size: uint32(len(data)), MaxSize: maxSize, Flags: flags}
	if err := s.commit(t, old, slot, e, info, ws); err != nil {
		return err
	}
	s.logger.Debug("object created", "client", client, "uid", uint64(uid), "slot", slot, "max_size", maxSize)
	return nil
}

func (s *Store) write(client ClientID, uid UID, offset uint32, data []byte, ws *workspace) error {
	old, err := s.lookup(client, uid)
	if err != nil {
		return err
	}
	info, _, err := s.load(old, 0, s.opts.MaxObjectSize, ws)
	if err != nil {
		return err
	}
	if info.Flags.WriteOnce() {
		return fmt.Errorf("%w: object %#x is write-once", ErrNotPermitted, uint64(uid))
	}
	if offset > info.Size {
		return fmt.Errorf("%w: offset %d beyond object size %d", ErrInvalidArgument, offset, info.Size)
	}
	end := uint64(offset) + uint64(len(data))
	if end > uint64(info.MaxSize) {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds maximum size %d",
			ErrInvalidArgument, len(data), offset, info.MaxSize)
	}

	t := s.tables.table
	slot, err := s.tables.reserve(t, 1)
	if err != nil {
		return err
	}

	copy(ws.data()[offset:], data)
	info.Size = max(info.Size, uint32(end))
	e := entry{uid: uid, client: client, version: t.entries[old].version + 1}
	if err := s.commit(t, old, slot, e, info, ws); err != nil {
		return err
	}
	s.logger.Debug("object written", "client", client, "uid", uint64(uid), "slot", slot, "size", info.Size)
	return nil
}

func (s *Store) delete(client ClientID, uid UID, ws *workspace) error {
	old, err := s.lookup(client, uid)
	if err != nil {
		return err
	}
	info, _, err := s.load(old, 0, 0, ws)
	if err != nil {
		return err
	}
	if info.Flags.WriteOnce() {
		return fmt.Errorf("%w: object %#x is write-once", ErrNotPermitted, uint64(uid))
	}

	next := s.tables.table.clone()
	next.entries[old] = entry{}
	if err := s.tables.save(next); err != nil {
		return err
	}
	metrics.RecordTablePersist()
	s.tables.retire(old)
	s.logger.Debug("object deleted", "client", client, "uid", uint64(uid), "slot", old)
	return nil
}

// commit stores the object in slot and persists a table in which it
// replaces the object in slot old, if any. The superseded object and the
// former table copy are removed only after the table is committed. A
// failed commit leaves the committed table untouched; the blob written to
// slot is garbage and is removed when the slot is next reserved.
func (s *Store) commit(t *objectTable, old, slot int, e entry, info ObjectInfo, ws *workspace) error {
	if err := s.codec.store(s.tables.objectKey(slot), &e, info, ws); err != nil {
		return err
	}

	next := t.clone()
	next.entries[slot] = e
	if old >= 0 {
		next.entries[old] = entry{}
	}
	if err := s.tables.save(next); err != nil {
		return err
	}
	metrics.RecordTablePersist()
	s.tables.retire(old)
	return nil
}

// IsCorruption reports whether err indicates stored data failed
// verification.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrDataCorrupt) || errors.Is(err, ErrInvalidSignature)
}
