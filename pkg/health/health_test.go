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

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/objstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCounters struct{}

func (failingCounters) Read(counter.ID) (uint32, error) { return 0, errors.New("device gone") }

func (failingCounters) Increment(counter.ID) (uint32, error) { return 0, errors.New("device gone") }

func TestChecker_RunOrdersByName(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("zeta", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	c.RegisterCheck("alpha", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded}
	})
	c.RegisterCheck("ignored", nil)

	results := c.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Name)
	assert.Equal(t, "zeta", results[1].Name)
	assert.Equal(t, StatusDegraded, AggregateStatus(results))
}

func TestChecker_CancelledContext(t *testing.T) {
	c := NewChecker()
	called := false
	c.RegisterCheck("store", func(ctx context.Context) CheckResult {
		called = true
		return CheckResult{Status: StatusHealthy}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := c.Run(ctx)
	require.Len(t, results, 1)
	assert.False(t, called)
	assert.Equal(t, StatusUnhealthy, results[0].Status)
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.statuses))
			for i, s := range tt.statuses {
				results[i] = CheckResult{Status: s}
			}
			assert.Equal(t, tt.want, AggregateStatus(results))
		})
	}
}

func TestStoreCheck(t *testing.T) {
	tests := []struct {
		name  string
		stats objstore.Stats
		want  Status
	}{
		{"uninitialised", objstore.Stats{}, StatusUnhealthy},
		{"full", objstore.Stats{Initialized: true, TotalSlots: 3, UsedSlots: 2, FreeSlots: 1, MaxObjects: 2}, StatusDegraded},
		{"room left", objstore.Stats{Initialized: true, TotalSlots: 3, UsedSlots: 1, FreeSlots: 2, MaxObjects: 2, ActiveTable: "A"}, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StoreCheck(func() objstore.Stats { return tt.stats })(context.Background())
			assert.Equal(t, "store", result.Name)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestCountersCheck(t *testing.T) {
	ctx := context.Background()

	aligned := counter.NewMemory()
	for _, id := range counter.IDs {
		require.NoError(t, aligned.Set(id, 5))
	}
	assert.Equal(t, StatusHealthy, CountersCheck(aligned)(ctx).Status)

	skewed := counter.NewMemory()
	require.NoError(t, skewed.Set(counter.ID1, 6))
	result := CountersCheck(skewed)(ctx)
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "not aligned")

	exhausted := counter.NewMemory()
	require.NoError(t, exhausted.Set(counter.ID1, counter.MaxValue-10))
	result = CountersCheck(exhausted)(ctx)
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "nearly exhausted")

	result = CountersCheck(failingCounters{})(ctx)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "device gone", result.Error)
}
