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
	"time"
)

// Snapshot is a point-in-time view of a store's resources.
type Snapshot struct {
	UsedSlots  int
	TotalSlots int

	// Counters maps counter names ("nvc1", ...) to their values.
	Counters map[string]uint32
}

// SnapshotFunc returns the current snapshot of a store.
type SnapshotFunc func() (Snapshot, error)

// StoreCollector periodically updates the slot and counter gauges from a
// SnapshotFunc.
type StoreCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	source   SnapshotFunc
}

// NewStoreCollector creates a collector that polls source at the given
// interval.
//
// Example:
//
//	collector := metrics.NewStoreCollector(ctx, 30*time.Second, store.Snapshot)
//	go collector.Start()
//	defer collector.Stop()
func NewStoreCollector(ctx context.Context, interval time.Duration, source SnapshotFunc) *StoreCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &StoreCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		source:   source,
	}
}

// Start collects immediately and then at every interval until Stop is
// called or the parent context is cancelled. It blocks.
func (sc *StoreCollector) Start() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	_ = Collect(sc.source)

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			_ = Collect(sc.source)
		}
	}
}

// Stop halts the collector.
func (sc *StoreCollector) Stop() {
	sc.cancel()
}

// Collect performs a single collection from source.
func Collect(source SnapshotFunc) error {
	if !IsEnabled() {
		return nil
	}
	snap, err := source()
	if err != nil {
		return err
	}
	SetSlots(snap.UsedSlots, snap.TotalSlots)
	for name, value := range snap.Counters {
		SetNVCounter(name, value)
	}
	return nil
}

// StartStoreCollector creates a collector and runs it in a goroutine.
func StartStoreCollector(ctx context.Context, interval time.Duration, source SnapshotFunc) *StoreCollector {
	collector := NewStoreCollector(ctx, interval, source)
	go collector.Start()
	return collector
}
