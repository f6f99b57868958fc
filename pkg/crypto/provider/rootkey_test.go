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

package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateRootKey(t *testing.T) {
	t.Setenv(RootKeyEnv, "")
	path := filepath.Join(t.TempDir(), "keys", "root.key")

	key, generated, err := LoadOrGenerateRootKey(path)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, key, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, generated, err := LoadOrGenerateRootKey(path)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, key, again)
}

func TestLoadOrGenerateRootKey_Env(t *testing.T) {
	t.Setenv(RootKeyEnv, strings.Repeat("ab", 32))

	key, generated, err := LoadOrGenerateRootKey(filepath.Join(t.TempDir(), "unused"))
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, byte(0xab), key[0])
	assert.Len(t, key, 32)
}

func TestLoadOrGenerateRootKey_Invalid(t *testing.T) {
	t.Setenv(RootKeyEnv, "")
	path := filepath.Join(t.TempDir(), "root.key")

	require.NoError(t, os.WriteFile(path, []byte("not-hex"), 0600))
	_, _, err := LoadOrGenerateRootKey(path)
	assert.ErrorIs(t, err, ErrInvalidRootKey)

	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0600))
	_, _, err = LoadOrGenerateRootKey(path)
	assert.ErrorIs(t, err, ErrInvalidRootKey)
}
