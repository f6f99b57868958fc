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
	"io"
	"log/slog"
	"testing"

	"github.com/jeremyhahn/go-objstore/internal/testutil"
	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/provider"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
	"github.com/stretchr/testify/require"
)

const testClient ClientID = 7

// fixture holds the persistent state that survives a reboot.
type fixture struct {
	mem      *storage.MemoryBackend
	blobs    *testutil.FaultyBackend
	crypto   *provider.Software
	counters *counter.Memory
	opts     Options
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts *Options) *fixture {
	t.Helper()
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	o.Logger = quietLogger()

	mem := storage.NewMemoryBackend()
	return &fixture{
		mem:      mem,
		blobs:    testutil.NewFaultyBackend(mem),
		crypto:   testutil.NewProvider(t),
		counters: counter.NewMemory(),
		opts:     o,
	}
}

func plainOptions() *Options {
	return &Options{
		NumObjects:    DefaultNumObjects,
		MaxObjectSize: DefaultMaxObjectSize,
		KeyBase:       DefaultKeyBase,
	}
}

func encryptedOnlyOptions() *Options {
	o := plainOptions()
	o.Encryption = true
	return o
}

// boot opens a store over the fixture's state.
func (f *fixture) boot(t *testing.T) (*Store, error) {
	t.Helper()
	s, err := New(f.blobs, f.crypto, f.counters, &f.opts)
	if s != nil {
		t.Cleanup(func() { _ = s.Close() })
	}
	return s, err
}

// open boots and requires success.
func (f *fixture) open(t *testing.T) *Store {
	t.Helper()
	s, err := f.boot(t)
	require.NoError(t, err)
	return s
}

func (f *fixture) readCounters(t *testing.T) [3]uint32 {
	t.Helper()
	values, err := counter.ReadAll(f.counters)
	require.NoError(t, err)
	return values
}

// objectKey returns the blob key of a live object.
func objectKeyOf(t *testing.T, s *Store, client ClientID, uid UID) uint32 {
	t.Helper()
	slot := s.tables.table.find(client, uid)
	require.GreaterOrEqual(t, slot, 0, "object %d/%d not found", client, uid)
	return s.tables.objectKey(slot)
}
