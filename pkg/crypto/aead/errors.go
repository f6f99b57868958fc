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

package aead

import "errors"

var (
	// ErrNonceReuse is returned when a nonce is reused with the same key.
	// Reusing a GCM nonce leaks the authentication key; reusing a ChaCha20
	// nonce leaks keystream. The encryption must be refused.
	ErrNonceReuse = errors.New("aead: catastrophic nonce reuse detected - encryption rejected for security")

	// ErrUsageLimit is returned once a key has encrypted its allowed volume.
	ErrUsageLimit = errors.New("aead: key usage limit exceeded")

	// ErrUnsupportedAlgorithm is returned for unknown algorithm names.
	ErrUnsupportedAlgorithm = errors.New("aead: unsupported algorithm")

	// ErrInvalidSeed is returned when an IV seed has the wrong length.
	ErrInvalidSeed = errors.New("aead: IV seed must be 12 bytes")
)
