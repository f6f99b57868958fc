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

package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollect(t *testing.T) {
	Enable()

	err := Collect(func() (Snapshot, error) {
		return Snapshot{
			UsedSlots:  4,
			TotalSlots: 9,
			Counters:   map[string]uint32{"nvc2": 7},
		}, nil
	})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v := testutil.ToFloat64(SlotsUsed); v != 4 {
		t.Errorf("Expected 4 used slots, got %v", v)
	}
	if v := testutil.ToFloat64(NVCounter.WithLabelValues("nvc2")); v != 7 {
		t.Errorf("Expected nvc2 to be 7, got %v", v)
	}
}

func TestCollectError(t *testing.T) {
	Enable()

	want := errors.New("boom")
	if err := Collect(func() (Snapshot, error) { return Snapshot{}, want }); !errors.Is(err, want) {
		t.Errorf("Expected source error, got %v", err)
	}
}

func TestNewStoreCollector(t *testing.T) {
	source := func() (Snapshot, error) { return Snapshot{}, nil }
	collector := NewStoreCollector(context.Background(), time.Second, source)

	if collector == nil {
		t.Fatal("Expected collector to be created")
	}
	if collector.interval != time.Second {
		t.Errorf("Expected interval %v, got %v", time.Second, collector.interval)
	}
	if collector.ctx == nil {
		t.Error("Expected context to be set")
	}

	collector.Stop()
}

func TestStoreCollectorStart(t *testing.T) {
	Enable()

	var calls atomic.Int32
	source := func() (Snapshot, error) {
		calls.Add(1)
		return Snapshot{UsedSlots: 1, TotalSlots: 2}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := StartStoreCollector(ctx, 10*time.Millisecond, source)
	defer collector.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Errorf("Expected at least 2 collections, got %d", calls.Load())
	}
}
