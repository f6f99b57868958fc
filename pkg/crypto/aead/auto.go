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

// Package aead provides the AEAD plumbing shared by the object store's crypto
// provider and codec: algorithm selection based on hardware capabilities,
// a 96-bit IV counter, nonce-reuse detection and per-key usage limits.
//
// Algorithm selection:
//
//   - AES-256-GCM: used when hardware AES instructions are available or when
//     the key lives in hardware (HSM, TPM, secure element).
//   - ChaCha20-Poly1305: used on CPUs without AES acceleration.
//
// Both use 12-byte nonces and 16-byte tags, so stored layouts do not depend on
// the selected algorithm.
package aead

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
)

// Algorithm names
const (
	// AES256GCM is AES-256 in Galois/Counter Mode
	AES256GCM = "aes256-gcm"

	// ChaCha20Poly1305 is ChaCha20-Poly1305 AEAD
	ChaCha20Poly1305 = "chacha20-poly1305"
)

const (
	// KeySize is the key size of every supported algorithm.
	KeySize = 32

	// NonceSize is the nonce (IV) size of every supported algorithm.
	NonceSize = 12

	// TagSize is the authentication tag size of every supported algorithm.
	TagSize = 16
)

// HasAESNI returns true if the CPU has AES-NI (AES New Instructions) support.
//
// Supported architectures:
//   - amd64: Checks X86.HasAES
//   - arm64: Checks ARM64.HasAES
//   - Other architectures return false
func HasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	default:
		return false
	}
}

// SelectOptimal selects the AEAD algorithm for the current platform.
// Hardware-backed keys always use AES-256-GCM.
func SelectOptimal(isHardwareBacked bool) string {
	if isHardwareBacked || HasAESNI() {
		return AES256GCM
	}
	return ChaCha20Poly1305
}

// Validate returns an error if algorithm is not supported.
// The empty string selects automatically and is accepted.
func Validate(algorithm string) error {
	switch algorithm {
	case "", AES256GCM, ChaCha20Poly1305:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}
