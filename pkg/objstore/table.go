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

	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
)

// Table layout, little-endian:
//
//	header  fsVersion u8 | swapCount u8 | config u8 | algorithm u8 |
//	        nvCounter u32 | numEntries u32 | crc u32 | iv [12] | tag [16]
//	entry   uid u64 | client i32 | version u32 | tag [16]
//
// The proof fields (crc, iv, tag) are zero while a table is sealed or
// verified.
const (
	fsVersion = 1

	tableHeaderSize  = 44
	tableEntrySize   = 32
	tableProofOffset = 12
	tableCRCOffset   = 12
	tableIVOffset    = 16
	tableTagOffset   = 28

	configEncryption = 1 << 0
	configRollback   = 1 << 1
)

// AEAD algorithm recorded in the table header. Tables written without
// encryption record algNone; a provider that does not report its algorithm
// records algUnknown, which matches anything.
const (
	algNone             byte = 0
	algAES256GCM        byte = 1
	algChaCha20Poly1305 byte = 2
	algUnknown          byte = 0xff
)

func algorithmID(name string) byte {
	switch name {
	case aead.AES256GCM:
		return algAES256GCM
	case aead.ChaCha20Poly1305:
		return algChaCha20Poly1305
	}
	return algUnknown
}

func algorithmName(id byte) string {
	switch id {
	case algNone:
		return "none"
	case algAES256GCM:
		return aead.AES256GCM
	case algChaCha20Poly1305:
		return aead.ChaCha20Poly1305
	}
	return fmt.Sprintf("unknown(%#x)", id)
}

// algorithmMismatch reports whether a table recorded with got cannot be
// read by a codec using want.
func algorithmMismatch(got, want byte) bool {
	if got == want {
		return false
	}
	if got == algNone || want == algNone {
		return true
	}
	return got != algUnknown && want != algUnknown
}

// entry maps a (client, uid) pair to the object in its slot. A slot is
// free when uid is zero.
type entry struct {
	uid     UID
	client  ClientID
	version uint32
	tag     [aead.TagSize]byte
}

func (e entry) free() bool {
	return e.uid == 0
}

// objectTable is an immutable snapshot of the object table. Mutations are
// made on a clone which replaces the committed table once persisted.
type objectTable struct {
	swapCount uint8
	nvCounter uint32
	entries   []entry
}

func newObjectTable(numSlots int) *objectTable {
	return &objectTable{entries: make([]entry, numSlots)}
}

func (t *objectTable) clone() *objectTable {
	c := *t
	c.entries = append([]entry(nil), t.entries...)
	return &c
}

// find returns the slot holding (client, uid), or -1.
func (t *objectTable) find(client ClientID, uid UID) int {
	for i, e := range t.entries {
		if !e.free() && e.uid == uid && e.client == client {
			return i
		}
	}
	return -1
}

// freeSlots returns the number of unused slots.
func (t *objectTable) freeSlots() int {
	n := 0
	for _, e := range t.entries {
		if e.free() {
			n++
		}
	}
	return n
}

// encode serialises t with zeroed proof fields.
func (t *objectTable) encode(config, algorithm byte) []byte {
	blob := make([]byte, tableHeaderSize+len(t.entries)*tableEntrySize)
	blob[0] = fsVersion
	blob[1] = t.swapCount
	blob[2] = config
	blob[3] = algorithm
	binary.LittleEndian.PutUint32(blob[4:8], t.nvCounter)
	binary.LittleEndian.PutUint32(blob[8:12], uint32(len(t.entries)))

	p := blob[tableHeaderSize:]
	for _, e := range t.entries {
		binary.LittleEndian.PutUint64(p[0:8], uint64(e.uid))
		binary.LittleEndian.PutUint32(p[8:12], uint32(e.client))
		binary.LittleEndian.PutUint32(p[12:16], e.version)
		copy(p[16:32], e.tag[:])
		p = p[tableEntrySize:]
	}
	return blob
}

// decodeTable parses an encoded table written with the given configuration
// and algorithm. It does not check the proof fields.
func decodeTable(blob []byte, config, algorithm byte, numSlots int) (*objectTable, error) {
	if len(blob) != tableHeaderSize+numSlots*tableEntrySize {
		return nil, fmt.Errorf("%w: table size %d, want %d",
			ErrDataCorrupt, len(blob), tableHeaderSize+numSlots*tableEntrySize)
	}
	if blob[0] != fsVersion {
		return nil, fmt.Errorf("%w: table version %d, want %d", ErrDataCorrupt, blob[0], fsVersion)
	}
	if blob[2] != config {
		return nil, fmt.Errorf("%w: table config %#x, want %#x", ErrDataCorrupt, blob[2], config)
	}
	if algorithmMismatch(blob[3], algorithm) {
		return nil, fmt.Errorf("%w: table written with %s, provider uses %s",
			ErrAlgorithmMismatch, algorithmName(blob[3]), algorithmName(algorithm))
	}
	if n := binary.LittleEndian.Uint32(blob[8:12]); n != uint32(numSlots) {
		return nil, fmt.Errorf("%w: table has %d slots, want %d", ErrDataCorrupt, n, numSlots)
	}

	t := &objectTable{
		swapCount: blob[1],
		nvCounter: binary.LittleEndian.Uint32(blob[4:8]),
		entries:   make([]entry, numSlots),
	}
	p := blob[tableHeaderSize:]
	for i := range t.entries {
		e := &t.entries[i]
		e.uid = UID(binary.LittleEndian.Uint64(p[0:8]))
		e.client = ClientID(binary.LittleEndian.Uint32(p[8:12]))
		e.version = binary.LittleEndian.Uint32(p[12:16])
		copy(e.tag[:], p[16:32])
		p = p[tableEntrySize:]
	}
	return t, nil
}

// swapNewer reports whether table B, with swap count b, is newer than
// table A, with swap count a. If B's count is 0 and A's is not 1, B is
// newer. Else if A's count is 0 and B's is not 1, A is newer. Otherwise the
// larger count wins and B wins ties, including two zero counts.
func swapNewer(a, b uint8) bool {
	if b == 0 && a != 1 {
		return true
	}
	if a == 0 && b != 1 {
		return false
	}
	return b >= a
}
