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
	"fmt"
	"sync/atomic"
)

// DefaultBytesTrackingLimit is the default maximum number of bytes a single
// key may encrypt. 64GB stays well inside the NIST SP 800-38D bounds for
// 96-bit IVs.
const DefaultBytesTrackingLimit = 64 * 1024 * 1024 * 1024

// BytesTracker counts the bytes encrypted under one key and refuses further
// use once the limit is reached.
type BytesTracker struct {
	enabled        bool
	bytesEncrypted atomic.Int64
	limit          int64
}

// NewBytesTracker creates a tracker. A zero limit selects
// DefaultBytesTrackingLimit.
func NewBytesTracker(enabled bool, limit int64) *BytesTracker {
	if limit == 0 {
		limit = DefaultBytesTrackingLimit
	}
	return &BytesTracker{
		enabled: enabled,
		limit:   limit,
	}
}

// CheckAndIncrementBytes accounts for numBytes of new plaintext. On failure
// the count is left unchanged.
func (bt *BytesTracker) CheckAndIncrementBytes(numBytes int64) error {
	if !bt.enabled {
		return nil
	}

	newTotal := bt.bytesEncrypted.Add(numBytes)
	if newTotal > bt.limit {
		bt.bytesEncrypted.Add(-numBytes)
		return fmt.Errorf("%w: encrypted %d bytes, limit %d bytes",
			ErrUsageLimit, newTotal-numBytes, bt.limit)
	}
	return nil
}

// BytesEncrypted returns the number of bytes accounted so far.
func (bt *BytesTracker) BytesEncrypted() int64 {
	return bt.bytesEncrypted.Load()
}

// Remaining returns the bytes left before the limit, or -1 when disabled.
func (bt *BytesTracker) Remaining() int64 {
	if !bt.enabled {
		return -1
	}
	return bt.limit - bt.bytesEncrypted.Load()
}
