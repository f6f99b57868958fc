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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SetGet(t *testing.T) {
	tests := []struct {
		name  string
		key   uint32
		value []byte
	}{
		{name: "simple blob", key: 1, value: []byte("test-value")},
		{name: "empty blob", key: 2, value: []byte{}},
		{name: "binary data", key: 0xFFFFFFFF, value: []byte{0x00, 0x01, 0x02, 0xFF}},
	}

	m := NewMemory()
	defer m.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, m.Set(tt.key, tt.value))

			got, err := m.Get(tt.key, 0, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestMemoryBackend_GetRange(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set(7, []byte("0123456789")))

	tests := []struct {
		name    string
		offset  int
		length  int
		want    []byte
		wantErr error
	}{
		{name: "prefix", offset: 0, length: 4, want: []byte("0123")},
		{name: "middle", offset: 3, length: 3, want: []byte("345")},
		{name: "to end", offset: 8, length: -1, want: []byte("89")},
		{name: "empty at end", offset: 10, length: 0, want: []byte{}},
		{name: "past end", offset: 8, length: 5, wantErr: ErrInvalidRange},
		{name: "offset past end", offset: 11, length: 0, wantErr: ErrInvalidRange},
		{name: "negative offset", offset: -1, length: 1, wantErr: ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Get(7, tt.offset, tt.length)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryBackend_NotFound(t *testing.T) {
	m := NewMemory()

	_, err := m.Get(42, 0, -1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Remove(42), ErrNotFound)
}

func TestMemoryBackend_CopiesData(t *testing.T) {
	m := NewMemory()
	value := []byte("original")
	require.NoError(t, m.Set(1, value))

	value[0] = 'X'
	got, err := m.Get(1, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := m.Get(1, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestMemoryBackend_SnapshotRestore(t *testing.T) {
	m := NewMemoryBackend()
	require.NoError(t, m.Set(1, []byte("v1")))

	snap := m.Snapshot()
	require.NoError(t, m.Set(1, []byte("v2")))
	require.NoError(t, m.Set(2, []byte("other")))

	m.Restore(snap)
	got, err := m.Get(1, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	assert.Equal(t, []uint32{1}, m.Keys())
}

func TestMemoryBackend_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Get(1, 0, -1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(1, nil), ErrClosed)
	assert.ErrorIs(t, m.Remove(1), ErrClosed)
}

func TestMemoryBackend_Concurrent(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(k uint32) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.Set(k, []byte{byte(j)})
				_, _ = m.Get(k, 0, -1)
			}
		}(uint32(i))
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		got, err := m.Get(uint32(i), 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []byte{49}, got)
	}
}

func TestSlice(t *testing.T) {
	out, err := Slice([]byte("abc"), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), out)

	_, err = Slice([]byte("abc"), 2, 2)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
