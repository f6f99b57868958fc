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

import "sync"

// NonceTracker records every nonce issued under one key and rejects repeats.
//
// The IV counter already guarantees uniqueness by construction; the tracker
// is a second line of defence that turns a counter bug into a refused
// encryption instead of a silent nonce reuse. Memory grows by one entry per
// encryption, so it is meant for tests and bounded-lifetime keys.
//
// Example usage:
//
//	tracker := aead.NewNonceTracker(true)
//	if err := tracker.CheckAndRecordNonce(iv); err != nil {
//	    return err // Nonce was already used!
//	}
type NonceTracker struct {
	enabled bool
	nonces  map[[NonceSize]byte]struct{}
	mu      sync.Mutex
}

// NewNonceTracker creates a new nonce tracker. A disabled tracker accepts
// every nonce and records nothing.
func NewNonceTracker(enabled bool) *NonceTracker {
	return &NonceTracker{
		enabled: enabled,
		nonces:  make(map[[NonceSize]byte]struct{}),
	}
}

// CheckAndRecordNonce records nonce and returns ErrNonceReuse if it had been
// recorded before.
func (nt *NonceTracker) CheckAndRecordNonce(nonce [NonceSize]byte) error {
	if !nt.enabled {
		return nil
	}

	nt.mu.Lock()
	defer nt.mu.Unlock()

	if _, exists := nt.nonces[nonce]; exists {
		return ErrNonceReuse
	}
	nt.nonces[nonce] = struct{}{}
	return nil
}

// Count returns the number of unique nonces tracked.
func (nt *NonceTracker) Count() int {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return len(nt.nonces)
}

// Clear forgets every tracked nonce. Only do this together with a key change.
func (nt *NonceTracker) Clear() {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	nt.nonces = make(map[[NonceSize]byte]struct{})
}

// IsEnabled returns whether nonce tracking is enabled.
func (nt *NonceTracker) IsEnabled() bool {
	return nt.enabled
}
