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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectTable_EncodeDecode(t *testing.T) {
	tbl := newObjectTable(4)
	tbl.swapCount = 9
	tbl.nvCounter = 1234
	tbl.entries[1] = entry{uid: 0xDEADBEEF, client: -3, version: 5}
	tbl.entries[1].tag[0] = 0xAA
	tbl.entries[3] = entry{uid: 1, client: 1, version: 1}

	config := byte(configEncryption | configRollback)
	blob := tbl.encode(config, algChaCha20Poly1305)
	require.Len(t, blob, tableHeaderSize+4*tableEntrySize)
	assert.Equal(t, byte(fsVersion), blob[0])
	assert.Equal(t, algChaCha20Poly1305, blob[3])
	assert.Equal(t, make([]byte, tableHeaderSize-tableProofOffset), blob[tableProofOffset:tableHeaderSize])

	got, err := decodeTable(blob, config, algChaCha20Poly1305, 4)
	require.NoError(t, err)
	assert.Equal(t, tbl, got)
}

func TestDecodeTable_Rejects(t *testing.T) {
	blob := newObjectTable(3).encode(configEncryption, algAES256GCM)

	tests := []struct {
		name     string
		mutate   func([]byte) []byte
		config   byte
		numSlots int
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }, configEncryption, 3},
		{"wrong version", func(b []byte) []byte { b[0] = 2; return b }, configEncryption, 3},
		{"wrong config", func(b []byte) []byte { return b }, configEncryption | configRollback, 3},
		{"wrong slot count", func(b []byte) []byte { return b }, configEncryption, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), blob...))
			_, err := decodeTable(b, tt.config, algAES256GCM, tt.numSlots)
			assert.ErrorIs(t, err, ErrDataCorrupt)
		})
	}
}

func TestDecodeTable_Algorithm(t *testing.T) {
	tests := []struct {
		name      string
		written   byte
		reader    byte
		wantError bool
	}{
		{"same", algAES256GCM, algAES256GCM, false},
		{"aes read as chacha", algAES256GCM, algChaCha20Poly1305, true},
		{"chacha read as aes", algChaCha20Poly1305, algAES256GCM, true},
		{"unknown writer", algUnknown, algChaCha20Poly1305, false},
		{"unknown reader", algAES256GCM, algUnknown, false},
		{"plain read as encrypted", algNone, algUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := newObjectTable(2).encode(configEncryption, tt.written)
			_, err := decodeTable(blob, configEncryption, tt.reader, 2)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrAlgorithmMismatch)
			assert.Contains(t, err.Error(), algorithmName(tt.written))
		})
	}

	assert.Equal(t, algAES256GCM, algorithmID("aes256-gcm"))
	assert.Equal(t, algChaCha20Poly1305, algorithmID("chacha20-poly1305"))
	assert.Equal(t, algUnknown, algorithmID("rot13"))
}

func TestObjectTable_CloneIsIndependent(t *testing.T) {
	tbl := newObjectTable(2)
	c := tbl.clone()
	c.entries[0].uid = 5
	assert.True(t, tbl.entries[0].free())
	assert.Equal(t, -1, tbl.find(0, 5))
	assert.Equal(t, 0, c.find(0, 5))
}

func TestObjectTable_Slots(t *testing.T) {
	tbl := newObjectTable(3)
	assert.Equal(t, 3, tbl.freeSlots())

	tbl.entries[0] = entry{uid: 1, client: 1}
	tbl.entries[2] = entry{uid: 2, client: 1}
	assert.Equal(t, 1, tbl.freeSlots())
	assert.Equal(t, 2, tbl.find(1, 2))
	assert.Equal(t, -1, tbl.find(2, 2))

	tbl.entries[1] = entry{uid: 3, client: 1}
	assert.Equal(t, 0, tbl.freeSlots())
}

func TestSwapNewer(t *testing.T) {
	tests := []struct {
		a, b   uint8
		bNewer bool
	}{
		{a: 1, b: 2, bNewer: true},
		{a: 2, b: 1, bNewer: false},
		{a: 5, b: 5, bNewer: true},
		{a: 255, b: 0, bNewer: true},
		{a: 0, b: 255, bNewer: false},
		{a: 0, b: 1, bNewer: true},
		{a: 1, b: 0, bNewer: false},
		{a: 0, b: 0, bNewer: true},
		{a: 7, b: 0, bNewer: true},
		{a: 0, b: 7, bNewer: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bNewer, swapNewer(tt.a, tt.b), "a=%d b=%d", tt.a, tt.b)
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		size, offset, length uint32
		start, n             uint32
	}{
		{10, 0, 10, 0, 10},
		{10, 2, 100, 2, 8},
		{10, 10, 5, 10, 0},
		{10, 12, 5, 10, 0},
		{0, 0, 5, 0, 0},
	}
	for _, tt := range tests {
		start, n := clampRange(tt.size, tt.offset, tt.length)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.n, n)
	}
}

func TestCreateFlags(t *testing.T) {
	assert.True(t, CreateFlags(0).Valid())
	assert.True(t, (FlagWriteOnce | FlagNoConfidentiality | FlagNoReplayProtection).Valid())
	assert.False(t, CreateFlags(1<<3).Valid())
	assert.True(t, FlagWriteOnce.WriteOnce())
	assert.Equal(t, "none", CreateFlags(0).String())
	assert.Equal(t, "write-once|no-replay-protection", (FlagWriteOnce | FlagNoReplayProtection).String())
	assert.Equal(t, "write-once|0x10", (FlagWriteOnce | 1<<4).String())
}

func TestOptions_Validate(t *testing.T) {
	valid := DefaultOptions()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no objects", func(o *Options) { o.NumObjects = -1 }},
		{"too many objects", func(o *Options) { o.NumObjects = maxNumObjects + 1 }},
		{"huge objects", func(o *Options) { o.MaxObjectSize = maxMaxObjectSize + 1 }},
		{"rollback without encryption", func(o *Options) { o.Encryption = false }},
		{"key overflow", func(o *Options) { o.KeyBase = 0xFFFFFFF0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidArgument)
		})
	}

	var nilOpts *Options
	filled := nilOpts.withDefaults()
	assert.True(t, filled.Encryption)
	assert.True(t, filled.RollbackProtection)
	assert.NotNil(t, filled.Logger)
}
