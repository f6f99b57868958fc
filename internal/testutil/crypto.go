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

package testutil

import (
	"bytes"
	"testing"

	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/provider"
)

// RootKey returns a fixed 32-byte root key.
func RootKey() []byte {
	return bytes.Repeat([]byte{0xA5}, 32)
}

// NewProvider returns a software provider over RootKey using AES-256-GCM.
// The provider is closed when the test ends.
func NewProvider(t testing.TB) *provider.Software {
	t.Helper()
	p, err := provider.NewSoftware(RootKey(), &provider.Config{Algorithm: aead.AES256GCM})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}
