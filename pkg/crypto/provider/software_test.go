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
	"bytes"
	"testing"

	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRootKey() []byte {
	return bytes.Repeat([]byte{0x5A}, 32)
}

func TestNewSoftware_Validation(t *testing.T) {
	_, err := NewSoftware([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrInvalidRootKey)

	_, err = NewSoftware(testRootKey(), &Config{Algorithm: "rot13"})
	assert.ErrorIs(t, err, aead.ErrUnsupportedAlgorithm)

	p, err := NewSoftware(testRootKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, aead.SelectOptimal(false), p.Algorithm())
}

func TestSoftware_RoundTrip(t *testing.T) {
	for _, algo := range []string{aead.AES256GCM, aead.ChaCha20Poly1305} {
		t.Run(algo, func(t *testing.T) {
			p, err := NewSoftware(testRootKey(), &Config{Algorithm: algo})
			require.NoError(t, err)

			key, err := p.DeriveKey([]byte("storage"))
			require.NoError(t, err)

			iv := make([]byte, aead.NonceSize)
			aad := []byte("object-7")
			plaintext := []byte("secret asset contents")

			ct, tag, err := p.Encrypt(key, iv, aad, plaintext)
			require.NoError(t, err)
			assert.Len(t, ct, len(plaintext))
			assert.Len(t, tag, aead.TagSize)
			assert.NotEqual(t, plaintext, ct)

			got, err := p.Decrypt(key, iv, aad, ct, tag)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestSoftware_AuthFailure(t *testing.T) {
	p, err := NewSoftware(testRootKey(), &Config{Algorithm: aead.AES256GCM})
	require.NoError(t, err)
	key, err := p.DeriveKey([]byte("storage"))
	require.NoError(t, err)

	iv := make([]byte, aead.NonceSize)
	ct, tag, err := p.Encrypt(key, iv, []byte("aad"), []byte("payload"))
	require.NoError(t, err)

	_, err = p.Decrypt(key, iv, []byte("other aad"), ct, tag)
	assert.ErrorIs(t, err, ErrAuthFailure)

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0x01
	_, err = p.Decrypt(key, iv, []byte("aad"), tampered, tag)
	assert.ErrorIs(t, err, ErrAuthFailure)

	_, err = p.Decrypt(key, iv, []byte("aad"), ct, tag[:4])
	assert.ErrorIs(t, err, ErrInvalidTag)

	_, _, err = p.Encrypt(key, iv[:8], nil, nil)
	assert.ErrorIs(t, err, ErrInvalidIV)
}

func TestSoftware_DeriveKeyIsDeterministic(t *testing.T) {
	p1, err := NewSoftware(testRootKey(), &Config{Algorithm: aead.ChaCha20Poly1305})
	require.NoError(t, err)
	p2, err := NewSoftware(testRootKey(), &Config{Algorithm: aead.ChaCha20Poly1305})
	require.NoError(t, err)

	k1, err := p1.DeriveKey([]byte("storage"))
	require.NoError(t, err)
	k2, err := p2.DeriveKey([]byte("storage"))
	require.NoError(t, err)
	other, err := p2.DeriveKey([]byte("different"))
	require.NoError(t, err)

	iv := make([]byte, aead.NonceSize)
	ct, tag, err := p1.Encrypt(k1, iv, nil, []byte("data"))
	require.NoError(t, err)

	got, err := p2.Decrypt(k2, iv, nil, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	_, err = p2.Decrypt(other, iv, nil, ct, tag)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestSoftware_DestroyKey(t *testing.T) {
	p, err := NewSoftware(testRootKey(), nil)
	require.NoError(t, err)
	key, err := p.DeriveKey([]byte("storage"))
	require.NoError(t, err)

	require.NoError(t, p.DestroyKey(key))
	assert.ErrorIs(t, p.DestroyKey(key), ErrInvalidKeyHandle)

	_, _, err = p.Encrypt(key, make([]byte, aead.NonceSize), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidKeyHandle)

	require.NoError(t, p.Close())
	_, err = p.DeriveKey([]byte("storage"))
	assert.ErrorIs(t, err, ErrInvalidRootKey)
}

func TestSoftware_UsageLimit(t *testing.T) {
	p, err := NewSoftware(testRootKey(), &Config{UsageLimit: 10})
	require.NoError(t, err)
	key, err := p.DeriveKey([]byte("storage"))
	require.NoError(t, err)

	iv := make([]byte, aead.NonceSize)
	_, _, err = p.Encrypt(key, iv, nil, make([]byte, 10))
	require.NoError(t, err)
	_, _, err = p.Encrypt(key, iv, nil, make([]byte, 1))
	assert.ErrorIs(t, err, aead.ErrUsageLimit)
}

func TestSoftware_GenerateRandom(t *testing.T) {
	p, err := NewSoftware(testRootKey(), &Config{Random: bytes.NewReader([]byte{1, 2, 3, 4})})
	require.NoError(t, err)

	got, err := p.GenerateRandom(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	_, err = p.GenerateRandom(1)
	assert.Error(t, err)
}
