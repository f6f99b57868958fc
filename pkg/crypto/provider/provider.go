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

// Package provider defines the crypto capability the object store consumes:
// key derivation, AEAD encryption with an explicit IV and a detached tag, and
// random bytes. Keys never leave the provider; callers hold opaque handles.
package provider

import "errors"

// KeyHandle identifies a key held by a Provider.
type KeyHandle uint32

var (
	// ErrAuthFailure is returned when an AEAD tag does not verify.
	ErrAuthFailure = errors.New("provider: authentication failed")

	// ErrInvalidKeyHandle is returned for unknown or destroyed key handles.
	ErrInvalidKeyHandle = errors.New("provider: invalid key handle")

	// ErrInvalidIV is returned when an IV has the wrong length.
	ErrInvalidIV = errors.New("provider: invalid IV length")

	// ErrInvalidTag is returned when a tag has the wrong length.
	ErrInvalidTag = errors.New("provider: invalid tag length")

	// ErrInvalidRootKey is returned when the root key material is unusable.
	ErrInvalidRootKey = errors.New("provider: invalid root key")
)

// Provider is the crypto policy capability.
type Provider interface {
	// DeriveKey derives a storage key bound to label and returns its handle.
	DeriveKey(label []byte) (KeyHandle, error)

	// Encrypt seals plaintext and returns the ciphertext and the detached tag.
	Encrypt(key KeyHandle, iv, aad, plaintext []byte) (ciphertext, tag []byte, err error)

	// Decrypt verifies tag and opens ciphertext.
	// Returns ErrAuthFailure if verification fails.
	Decrypt(key KeyHandle, iv, aad, ciphertext, tag []byte) ([]byte, error)

	// GenerateRandom returns n bytes from the provider's random source.
	GenerateRandom(n int) ([]byte, error)

	// DestroyKey erases the key behind handle.
	DestroyKey(key KeyHandle) error
}
