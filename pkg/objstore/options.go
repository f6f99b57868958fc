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
	"fmt"
	"log/slog"
	"math"
)

const (
	// DefaultNumObjects is the default number of live objects a store holds.
	DefaultNumObjects = 10

	// DefaultMaxObjectSize is the default maximum object size in bytes.
	DefaultMaxObjectSize = 2048

	// DefaultKeyBase is the first blob store key used by a store.
	DefaultKeyBase uint32 = 0x0B000000

	maxNumObjects    = 4096
	maxMaxObjectSize = 1 << 20
)

// Options configures a Store.
type Options struct {
	// NumObjects is the number of live objects the store can hold. The
	// table has one extra slot for in-flight updates.
	NumObjects int

	// MaxObjectSize is the largest object size in bytes.
	MaxObjectSize uint32

	// Encryption enables AEAD protection of objects and of the table.
	// When disabled objects carry a version and the table a CRC.
	Encryption bool

	// RollbackProtection binds every table write to the NV counters.
	// Requires Encryption.
	RollbackProtection bool

	// KeyBase is the first blob store key. Table A is at KeyBase,
	// table B at KeyBase+1 and object slot i at KeyBase+2+i.
	KeyBase uint32

	// TrackIVs records every IV used and fails on reuse.
	TrackIVs bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns options with encryption and rollback protection on.
func DefaultOptions() *Options {
	return &Options{
		NumObjects:         DefaultNumObjects,
		MaxObjectSize:      DefaultMaxObjectSize,
		Encryption:         true,
		RollbackProtection: true,
		KeyBase:            DefaultKeyBase,
	}
}

// withDefaults returns a copy of o with zero values filled in.
func (o *Options) withDefaults() Options {
	if o == nil {
		o = DefaultOptions()
	}
	opts := *o
	if opts.NumObjects == 0 {
		opts.NumObjects = DefaultNumObjects
	}
	if opts.MaxObjectSize == 0 {
		opts.MaxObjectSize = DefaultMaxObjectSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	if o.NumObjects < 1 || o.NumObjects > maxNumObjects {
		return fmt.Errorf("%w: num objects must be between 1 and %d, got %d",
			ErrInvalidArgument, maxNumObjects, o.NumObjects)
	}
	if o.MaxObjectSize < 1 || o.MaxObjectSize > maxMaxObjectSize {
		return fmt.Errorf("%w: max object size must be between 1 and %d, got %d",
			ErrInvalidArgument, maxMaxObjectSize, o.MaxObjectSize)
	}
	if o.RollbackProtection && !o.Encryption {
		return fmt.Errorf("%w: rollback protection requires encryption", ErrInvalidArgument)
	}
	last := uint64(o.KeyBase) + 2 + uint64(o.NumObjects)
	if last > math.MaxUint32 {
		return fmt.Errorf("%w: key base %#x leaves no room for %d slots",
			ErrInvalidArgument, o.KeyBase, o.NumObjects+1)
	}
	return nil
}
