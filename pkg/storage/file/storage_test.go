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

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-objstore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "blobs")

		store, err := New(dir)
		require.NoError(t, err)
		require.NotNil(t, store)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := New("")
		assert.Error(t, err)
	})

	t.Run("removes interrupted writes", func(t *testing.T) {
		dir := t.TempDir()
		stale := filepath.Join(dir, "00000001.blob.tmp")
		require.NoError(t, os.WriteFile(stale, []byte("partial"), 0600))

		_, err := New(dir)
		require.NoError(t, err)

		_, err = os.Stat(stale)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestSetGet(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(3, []byte("hello world")))

	got, err := store.Get(3, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)

	got, err = store.Get(3, 6, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)

	_, err = store.Get(3, 6, 6)
	assert.ErrorIs(t, err, storage.ErrInvalidRange)

	require.NoError(t, store.Set(3, []byte("replaced")))
	got, err = store.Get(3, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got)
}

func TestPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(0xABCD, []byte{1, 2, 3}))
	require.NoError(t, first.Close())

	second, err := New(dir)
	require.NoError(t, err)
	got, err := second.Get(0xABCD, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	_, err = os.Stat(filepath.Join(dir, "0000abcd.blob"))
	assert.NoError(t, err)
}

func TestRemove(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Remove(9), storage.ErrNotFound)

	require.NoError(t, store.Set(9, []byte("x")))
	require.NoError(t, store.Remove(9))

	_, err = store.Get(9, 0, -1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClosed(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Get(1, 0, -1)
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, store.Set(1, nil), storage.ErrClosed)
	assert.ErrorIs(t, store.Remove(1), storage.ErrClosed)
}
