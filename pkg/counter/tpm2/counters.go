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

// Package tpm2 implements counter.Service on TPM 2.0 NV counter indices.
//
// Each rollback counter maps to its own NV index of type TPM_NT_COUNTER:
//
//	BaseIndex + 1  ->  counter.ID1
//	BaseIndex + 2  ->  counter.ID2
//	BaseIndex + 3  ->  counter.ID3
//
// The TPM enforces monotonicity; the index cannot be decremented or rewritten
// without undefining it, which requires owner authorization.
package tpm2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/jeremyhahn/go-objstore/pkg/counter"
)

var (
	// ErrNilTPM is returned when no TPM transport is supplied.
	ErrNilTPM = errors.New("tpm2 counter: nil TPM transport")

	// ErrInvalidBaseIndex is returned when the base index is outside NV space.
	ErrInvalidBaseIndex = errors.New("tpm2 counter: invalid NV base index")

	// ErrNotProvisioned is returned when a counter index has not been defined.
	ErrNotProvisioned = errors.New("tpm2 counter: NV index not provisioned")
)

// Config configures TPM NV counters.
type Config struct {
	// BaseIndex is the NV index preceding the first counter.
	// Default: 0x01500020
	BaseIndex uint32

	// OwnerAuth is the owner hierarchy password.
	OwnerAuth []byte
}

// DefaultConfig returns safe defaults for TPM NV counters.
func DefaultConfig() *Config {
	return &Config{
		BaseIndex: 0x01500020,
	}
}

// Counters is a counter.Service backed by TPM NV counter indices.
type Counters struct {
	tpm       transport.TPM
	baseIndex uint32
	ownerAuth []byte
	mu        sync.Mutex
}

// New returns TPM counters using the given transport. Call Provision once
// before first use to define the NV indices.
func New(tpm transport.TPM, config *Config) (*Counters, error) {
	if tpm == nil {
		return nil, ErrNilTPM
	}
	if config == nil {
		config = DefaultConfig()
	}

	// Counter indices must stay inside the NV index range
	if config.BaseIndex < 0x01000000 || config.BaseIndex+uint32(counter.ID3) > 0x01BFFFFF {
		return nil, fmt.Errorf("%w: got %#x", ErrInvalidBaseIndex, config.BaseIndex)
	}

	return &Counters{
		tpm:       tpm,
		baseIndex: config.BaseIndex,
		ownerAuth: config.OwnerAuth,
	}, nil
}

// Provision defines any missing counter indices. Existing indices are kept.
func (c *Counters) Provision() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range counter.IDs {
		index := c.index(id)
		if _, err := c.readPublic(index); err == nil {
			continue
		}

		_, err := tpm2.NVDefineSpace{
			AuthHandle: tpm2.AuthHandle{
				Handle: tpm2.TPMRHOwner,
				Auth:   tpm2.PasswordAuth(c.ownerAuth),
			},
			PublicInfo: tpm2.New2B(tpm2.TPMSNVPublic{
				NVIndex: tpm2.TPMHandle(index),
				NameAlg: tpm2.TPMAlgSHA256,
				Attributes: tpm2.TPMANV{
					NT:         tpm2.TPMNTCounter,
					AuthRead:   true,
					AuthWrite:  true,
					NoDA:       true,
					OwnerRead:  true,
					OwnerWrite: true,
				},
				DataSize: 8,
			}),
		}.Execute(c.tpm)
		if err != nil {
			return fmt.Errorf("tpm2 counter: define %s at %#x: %w", id, index, err)
		}
	}
	return nil
}

// Read returns the current value of the counter. A counter that has never
// been incremented reads as zero.
func (c *Counters) Read(id counter.ID) (uint32, error) {
	if !id.Valid() {
		return 0, counter.ErrInvalidID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(id)
}

// Increment adds one to the counter and returns its new value.
func (c *Counters) Increment(id counter.ID) (uint32, error) {
	if !id.Valid() {
		return 0, counter.ErrInvalidID
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.index(id)
	pub, err := c.readPublic(index)
	if err != nil {
		return 0, err
	}

	_, err = tpm2.NVIncrement{
		AuthHandle: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth(c.ownerAuth),
		},
		NVIndex: tpm2.NamedHandle{
			Handle: tpm2.TPMHandle(index),
			Name:   pub.NVName,
		},
	}.Execute(c.tpm)
	if err != nil {
		return 0, fmt.Errorf("tpm2 counter: increment %s: %w", id, err)
	}

	return c.read(id)
}

func (c *Counters) read(id counter.ID) (uint32, error) {
	index := c.index(id)
	pub, err := c.readPublic(index)
	if err != nil {
		return 0, err
	}

	contents, err := pub.NVPublic.Contents()
	if err != nil {
		return 0, fmt.Errorf("tpm2 counter: NV public for %s: %w", id, err)
	}
	if !contents.Attributes.Written {
		return 0, nil
	}

	resp, err := tpm2.NVRead{
		AuthHandle: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth(c.ownerAuth),
		},
		NVIndex: tpm2.NamedHandle{
			Handle: tpm2.TPMHandle(index),
			Name:   pub.NVName,
		},
		Size:   8,
		Offset: 0,
	}.Execute(c.tpm)
	if err != nil {
		return 0, fmt.Errorf("tpm2 counter: read %s: %w", id, err)
	}
	if len(resp.Data.Buffer) != 8 {
		return 0, fmt.Errorf("tpm2 counter: read %s: unexpected size %d", id, len(resp.Data.Buffer))
	}

	v := binary.BigEndian.Uint64(resp.Data.Buffer)
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s holds %d", counter.ErrMaxValueReached, id, v)
	}
	return uint32(v), nil
}

func (c *Counters) readPublic(index uint32) (*tpm2.NVReadPublicResponse, error) {
	resp, err := tpm2.NVReadPublic{
		NVIndex: tpm2.TPMHandle(index),
	}.Execute(c.tpm)
	if err != nil {
		return nil, fmt.Errorf("%w: %#x: %v", ErrNotProvisioned, index, err)
	}
	return resp, nil
}

func (c *Counters) index(id counter.ID) uint32 {
	return c.baseIndex + uint32(id)
}
