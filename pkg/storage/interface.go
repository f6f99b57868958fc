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

// Package storage defines the blob store contract the object store persists
// through. A blob is an opaque byte slice addressed by a 32-bit key. Each
// call is atomic for its single key; there are no multi-key transactions.
package storage

// Backend defines the interface for blob store backends.
// All implementations must be thread-safe.
type Backend interface {
	// Get returns length bytes of the blob stored at key, starting at offset.
	// A negative length reads to the end of the blob.
	// Returns ErrNotFound if the key does not exist and ErrInvalidRange if the
	// requested range lies outside the blob.
	Get(key uint32, offset, length int) ([]byte, error)

	// Set replaces the blob stored at key. A reader observes either the old
	// blob or the new one, never a mix of both.
	Set(key uint32, value []byte) error

	// Remove deletes the blob stored at key.
	// Returns ErrNotFound if the key does not exist.
	Remove(key uint32) error

	// Close releases any resources held by the backend.
	Close() error
}

// Slice applies Get's offset/length rules to an in-memory blob and returns a
// copy of the selected range.
func Slice(blob []byte, offset, length int) ([]byte, error) {
	if offset < 0 || offset > len(blob) {
		return nil, ErrInvalidRange
	}
	if length < 0 {
		length = len(blob) - offset
	}
	if length > len(blob)-offset {
		return nil, ErrInvalidRange
	}
	out := make([]byte, length)
	copy(out, blob[offset:offset+length])
	return out, nil
}
