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

import (
	"encoding/binary"
	"sync"
)

// IVCounter produces 96-bit IVs from a random seed followed by a counter.
//
// The IV is treated as a little-endian 96-bit integer split into a 64-bit
// low word (bytes 0-7) and a 32-bit high word (bytes 8-11). Each call to Next
// adds one, carrying from the low word into the high word, so no IV repeats
// until 2^96 encryptions have been made under the same seed.
type IVCounter struct {
	mu sync.Mutex
	lo uint64
	hi uint32
}

// NewIVCounter seeds a counter. The seed should come from a CSPRNG so that
// counters started after a reboot do not retrace earlier IVs.
func NewIVCounter(seed []byte) (*IVCounter, error) {
	if len(seed) != NonceSize {
		return nil, ErrInvalidSeed
	}
	return &IVCounter{
		lo: binary.LittleEndian.Uint64(seed[0:8]),
		hi: binary.LittleEndian.Uint32(seed[8:12]),
	}, nil
}

// Next increments the counter and returns the new IV.
func (c *IVCounter) Next() [NonceSize]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lo++
	if c.lo == 0 {
		c.hi++
	}

	var iv [NonceSize]byte
	binary.LittleEndian.PutUint64(iv[0:8], c.lo)
	binary.LittleEndian.PutUint32(iv[8:12], c.hi)
	return iv
}
