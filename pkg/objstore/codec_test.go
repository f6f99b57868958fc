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

	"github.com/jeremyhahn/go-objstore/internal/testutil"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptedCodec(t *testing.T, blobs storage.Backend, trackIVs bool) *encryptedCodec {
	t.Helper()
	c, err := newEncryptedCodec(blobs, testutil.NewProvider(t), 64, trackIVs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.close() })
	return c
}

func storeObject(t *testing.T, c objectCodec, key uint32, e *entry, flags CreateFlags, maxSize uint32, data string) {
	t.Helper()
	ws := newWorkspace(64)
	copy(ws.data(), data)
	info := ObjectInfo{Size: uint32(len(data)), MaxSize: maxSize, Flags: flags}
	require.NoError(t, c.store(key, e, info, ws))
}

func TestEncryptedCodec_RoundTrip(t *testing.T) {
	blobs := storage.NewMemoryBackend()
	c := newTestEncryptedCodec(t, blobs, false)

	e := entry{uid: 42, client: testClient}
	storeObject(t, c, 100, &e, FlagWriteOnce, 32, "hello encrypted world")
	assert.NotEqual(t, [aead.TagSize]byte{}, e.tag)

	blob, err := blobs.Get(100, 0, -1)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "hello")

	ws := newWorkspace(64)
	info, data, err := c.load(100, e, 6, 9, ws)
	require.NoError(t, err)
	assert.Equal(t, ObjectInfo{Size: 21, MaxSize: 32, Flags: FlagWriteOnce}, info)
	assert.Equal(t, "encrypted", string(data))

	_, data, err = c.load(100, e, 18, 100, ws)
	require.NoError(t, err)
	assert.Equal(t, "rld", string(data))
}

func TestEncryptedCodec_BindsOwner(t *testing.T) {
	blobs := storage.NewMemoryBackend()
	c := newTestEncryptedCodec(t, blobs, false)

	e := entry{uid: 1, client: testClient}
	storeObject(t, c, 100, &e, 0, 16, "secret")
	ws := newWorkspace(64)

	other := e
	other.uid = 2
	_, _, err := c.load(100, other, 0, 16, ws)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other = e
	other.client = testClient + 1
	_, _, err = c.load(100, other, 0, 16, ws)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other = e
	other.tag[3] ^= 0xFF
	_, _, err = c.load(100, other, 0, 16, ws)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestEncryptedCodec_Corruption(t *testing.T) {
	blobs := storage.NewMemoryBackend()
	c := newTestEncryptedCodec(t, blobs, false)
	ws := newWorkspace(64)

	e := entry{uid: 1, client: testClient}
	storeObject(t, c, 100, &e, 0, 16, "secret")
	blob, err := blobs.Get(100, 0, -1)
	require.NoError(t, err)

	flipped := append([]byte(nil), blob...)
	flipped[len(flipped)-1] ^= 0x01
	require.NoError(t, blobs.Set(100, flipped))
	_, _, err = c.load(100, e, 0, 16, ws)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	require.NoError(t, blobs.Set(100, blob[:len(blob)-2]))
	_, _, err = c.load(100, e, 0, 16, ws)
	assert.ErrorIs(t, err, ErrDataCorrupt)

	require.NoError(t, blobs.Set(100, blob[:5]))
	_, _, err = c.load(100, e, 0, 16, ws)
	assert.ErrorIs(t, err, ErrDataCorrupt)

	require.NoError(t, blobs.Remove(100))
	_, _, err = c.load(100, e, 0, 16, ws)
	assert.ErrorIs(t, err, ErrDataCorrupt)
}

func TestEncryptedCodec_IVsAreUnique(t *testing.T) {
	blobs := storage.NewMemoryBackend()
	c := newTestEncryptedCodec(t, blobs, true)

	const n = 500
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		e := entry{uid: 9, client: testClient}
		storeObject(t, c, 100, &e, 0, 16, "same plaintext")
		blob, err := blobs.Get(100, 0, aead.NonceSize)
		require.NoError(t, err)
		seen[string(blob)] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, c.nonces.Count())
}

func TestEncryptedCodec_Table(t *testing.T) {
	c := newTestEncryptedCodec(t, storage.NewMemoryBackend(), false)

	tbl := newObjectTable(3)
	tbl.entries[0] = entry{uid: 5, client: 1, version: 1}
	assert.Equal(t, algAES256GCM, c.algorithm())
	blob := tbl.encode(configEncryption, c.algorithm())
	require.NoError(t, c.sealTable(blob))
	require.NoError(t, c.verifyTable(blob))

	tampered := append([]byte(nil), blob...)
	tampered[tableHeaderSize] ^= 0x01
	assert.ErrorIs(t, c.verifyTable(tampered), ErrInvalidSignature)

	tampered = append([]byte(nil), blob...)
	tampered[3] = algChaCha20Poly1305
	assert.ErrorIs(t, c.verifyTable(tampered), ErrInvalidSignature)

	tampered = append([]byte(nil), blob...)
	tampered[tableTagOffset] ^= 0x01
	assert.ErrorIs(t, c.verifyTable(tampered), ErrInvalidSignature)
}

func TestPlainCodec_RoundTrip(t *testing.T) {
	blobs := testutil.NewFaultyBackend(storage.NewMemoryBackend())
	c := newPlainCodec(blobs, 64)

	e := entry{uid: 3, client: testClient, version: 4}
	storeObject(t, c, 200, &e, 0, 32, "plain text object")

	blob, err := blobs.Get(200, 0, -1)
	require.NoError(t, err)
	assert.Contains(t, string(blob), "plain text object")

	ws := newWorkspace(64)
	info, data, err := c.load(200, e, 6, 4, ws)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), info.Size)
	assert.Equal(t, "text", string(data))
	assert.Equal(t, make([]byte, 6), ws.data()[:6], "only the requested range is fetched")
}

func TestPlainCodec_Mismatch(t *testing.T) {
	blobs := storage.NewMemoryBackend()
	c := newPlainCodec(blobs, 64)
	ws := newWorkspace(64)

	e := entry{uid: 3, client: testClient, version: 4}
	storeObject(t, c, 200, &e, 0, 32, "data")

	for _, other := range []entry{
		{uid: 4, client: testClient, version: 4},
		{uid: 3, client: testClient + 1, version: 4},
		{uid: 3, client: testClient, version: 5},
	} {
		_, _, err := c.load(200, other, 0, 4, ws)
		assert.ErrorIs(t, err, ErrDataCorrupt)
	}

	require.NoError(t, blobs.Remove(200))
	_, _, err := c.load(200, e, 0, 4, ws)
	assert.ErrorIs(t, err, ErrDataCorrupt)
}

func TestPlainCodec_Table(t *testing.T) {
	c := newPlainCodec(storage.NewMemoryBackend(), 64)

	assert.Equal(t, algNone, c.algorithm())
	blob := newObjectTable(2).encode(0, c.algorithm())
	require.NoError(t, c.sealTable(blob))
	require.NoError(t, c.verifyTable(blob))

	blob[tableHeaderSize+3] ^= 0x80
	assert.ErrorIs(t, c.verifyTable(blob), ErrDataCorrupt)
}

func TestWorkspace_Release(t *testing.T) {
	ws := newWorkspace(8)
	copy(ws.buf, "plaintext material")
	ws.release()
	assert.Equal(t, make([]byte, infoSize+8), ws.buf)
}
