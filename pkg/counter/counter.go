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

// Package counter defines the monotonic non-volatile counter service used for
// rollback protection, together with in-memory and blob-backed implementations.
//
// Counters only ever move forward. Increment returns the new value so callers
// never need a separate read after bumping a counter.
package counter

import (
	"errors"
	"fmt"
	"math"
)

// ID names one of the rollback protection counters.
type ID uint8

const (
	// ID1 is incremented on every table write.
	ID1 ID = iota + 1
	// ID2 is aligned to ID1 after a table write lands.
	ID2
	// ID3 is aligned to ID1 after ID2.
	ID3
)

// IDs lists every counter in alignment order.
var IDs = []ID{ID1, ID2, ID3}

// MaxValue is the largest value a counter may hold.
const MaxValue = math.MaxUint32

var (
	// ErrMaxValueReached is returned when a counter cannot be incremented any further.
	ErrMaxValueReached = errors.New("counter: max value reached")

	// ErrInvalidID is returned for a counter id outside ID1..ID3.
	ErrInvalidID = errors.New("counter: invalid id")
)

// Service is a set of monotonic, individually incrementable counters.
type Service interface {
	// Read returns the current value of the counter.
	Read(id ID) (uint32, error)

	// Increment adds one to the counter and returns its new value.
	// Returns ErrMaxValueReached once the counter is exhausted.
	Increment(id ID) (uint32, error)
}

// String returns the counter's name.
func (id ID) String() string {
	switch id {
	case ID1:
		return "nvc1"
	case ID2:
		return "nvc2"
	case ID3:
		return "nvc3"
	default:
		return fmt.Sprintf("nvc(%d)", uint8(id))
	}
}

// Valid reports whether id names a known counter.
func (id ID) Valid() bool {
	return id >= ID1 && id <= ID3
}

func checkID(id ID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidID, uint8(id))
	}
	return nil
}

// ReadAll returns the values of ID1, ID2 and ID3.
func ReadAll(s Service) ([3]uint32, error) {
	var values [3]uint32
	for i, id := range IDs {
		v, err := s.Read(id)
		if err != nil {
			return values, fmt.Errorf("read %s: %w", id, err)
		}
		values[i] = v
	}
	return values, nil
}
