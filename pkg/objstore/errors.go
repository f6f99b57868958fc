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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/provider"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

var (
	// ErrInvalidArgument indicates malformed caller input such as an
	// out-of-bounds size or offset, a zero UID or unsupported flags.
	ErrInvalidArgument = errors.New("objstore: invalid argument")

	// ErrDoesNotExist indicates there is no object for the (client, uid) pair.
	ErrDoesNotExist = errors.New("objstore: object does not exist")

	// ErrNotPermitted indicates an attempt to modify or delete a write-once object.
	ErrNotPermitted = errors.New("objstore: not permitted")

	// ErrInsufficientStorage indicates the object table has no free slot left.
	ErrInsufficientStorage = errors.New("objstore: insufficient storage")

	// ErrDataCorrupt indicates a stored object does not match its table entry.
	ErrDataCorrupt = errors.New("objstore: data corrupt")

	// ErrInvalidSignature indicates an object failed AEAD authentication.
	ErrInvalidSignature = errors.New("objstore: invalid signature")

	// ErrAlgorithmMismatch indicates the object table was written with a
	// different AEAD algorithm than the crypto provider uses. It is returned
	// wrapped in ErrGeneric. Reopening with the recorded algorithm recovers
	// the store; wiping it discards every object.
	ErrAlgorithmMismatch = errors.New("objstore: AEAD algorithm mismatch")

	// ErrGeneric covers counter exhaustion, unexpected I/O failures and a
	// store that failed to initialise and must be wiped.
	ErrGeneric = errors.New("objstore: generic error")
)

// storageError maps a blob store failure on a live object to the store's
// error taxonomy.
func storageError(op string, key uint32, err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidRange) {
		return fmt.Errorf("%w: %s key %#x: %v", ErrDataCorrupt, op, key, err)
	}
	return fmt.Errorf("%w: %s key %#x: %v", ErrGeneric, op, key, err)
}

func cryptoError(op string, err error) error {
	if errors.Is(err, provider.ErrAuthFailure) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSignature, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrGeneric, op, err)
}

func counterError(op string, id counter.ID, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrGeneric, op, id, err)
}

// errorType returns a short label for err, used in metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrDoesNotExist):
		return "does_not_exist"
	case errors.Is(err, ErrNotPermitted):
		return "not_permitted"
	case errors.Is(err, ErrInsufficientStorage):
		return "insufficient_storage"
	case errors.Is(err, ErrDataCorrupt):
		return "data_corrupt"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "generic"
	}
}
