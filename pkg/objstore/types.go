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
	"fmt"
)

// UID is the caller-chosen logical identifier of an object. Zero is invalid.
type UID uint64

// ClientID identifies the client that owns an object.
type ClientID int32

// CreateFlags are the creation flags recorded in an object header.
type CreateFlags uint32

const (
	// FlagWriteOnce makes an object immutable and undeletable.
	FlagWriteOnce CreateFlags = 1 << iota

	// FlagNoConfidentiality is accepted and recorded. Objects are still
	// encrypted when the store is.
	FlagNoConfidentiality

	// FlagNoReplayProtection is accepted and recorded. Objects still sit
	// under the table's rollback protection when it is enabled.
	FlagNoReplayProtection

	supportedFlags = FlagWriteOnce | FlagNoConfidentiality | FlagNoReplayProtection
)

// Valid reports whether f only contains supported flags.
func (f CreateFlags) Valid() bool {
	return f&^supportedFlags == 0
}

// WriteOnce reports whether FlagWriteOnce is set.
func (f CreateFlags) WriteOnce() bool {
	return f&FlagWriteOnce != 0
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if f&FlagWriteOnce != 0 {
		add("write-once")
	}
	if f&FlagNoConfidentiality != 0 {
		add("no-confidentiality")
	}
	if f&FlagNoReplayProtection != 0 {
		add("no-replay-protection")
	}
	if rest := f &^ supportedFlags; rest != 0 {
		add(fmt.Sprintf("%#x", uint32(rest)))
	}
	return s
}

// ObjectInfo is the object header.
type ObjectInfo struct {
	Size    uint32
	MaxSize uint32
	Flags   CreateFlags
}

// infoSize is the encoded size of ObjectInfo.
const infoSize = 12

func (i ObjectInfo) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], i.Size)
	binary.LittleEndian.PutUint32(b[4:8], i.MaxSize)
	binary.LittleEndian.PutUint32(b[8:12], uint32(i.Flags))
}

func decodeInfo(b []byte) ObjectInfo {
	return ObjectInfo{
		Size:    binary.LittleEndian.Uint32(b[0:4]),
		MaxSize: binary.LittleEndian.Uint32(b[4:8]),
		Flags:   CreateFlags(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// check validates a decoded header against the store limits.
func (i ObjectInfo) check(maxObjectSize uint32) error {
	if i.MaxSize > maxObjectSize || i.Size > i.MaxSize || !i.Flags.Valid() {
		return fmt.Errorf("%w: implausible object header size=%d max=%d flags=%#x",
			ErrDataCorrupt, i.Size, i.MaxSize, uint32(i.Flags))
	}
	return nil
}

// Stats describes the state of a store.
type Stats struct {
	Initialized bool
	TotalSlots  int
	UsedSlots   int
	FreeSlots   int
	MaxObjects  int
	ActiveTable string
	SwapCount   uint8
	NVCounter   uint32

	// Algorithm is the AEAD recorded in the object table, or "none".
	Algorithm string
}
