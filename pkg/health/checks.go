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
	"fmt"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/objstore"
)

// CounterHeadroom is the number of increments left below which the
// counter check reports degraded.
const CounterHeadroom = 1 << 16

// StatsFunc returns the current state of a store.
type StatsFunc func() objstore.Stats

// StoreCheck reports unhealthy while the store has no valid object table
// and degraded once there is no room left for a new object.
func StoreCheck(stats StatsFunc) CheckFunc {
	return func(ctx context.Context) CheckResult {
		s := stats()
		switch {
		case !s.Initialized:
			return CheckResult{
				Name:    "store",
				Status:  StatusUnhealthy,
				Message: "no valid object table, wipe required",
			}
		case s.FreeSlots < 2:
			return CheckResult{
				Name:    "store",
				Status:  StatusDegraded,
				Message: fmt.Sprintf("store full: %d of %d objects", s.UsedSlots, s.MaxObjects),
			}
		default:
			return CheckResult{
				Name:    "store",
				Status:  StatusHealthy,
				Message: fmt.Sprintf("%d of %d objects, table %s", s.UsedSlots, s.MaxObjects, s.ActiveTable),
			}
		}
	}
}

// CountersCheck reads the rollback counters. It reports degraded when the
// counters disagree or the first one is close to exhaustion.
func CountersCheck(counters counter.Service) CheckFunc {
	return func(ctx context.Context) CheckResult {
		values, err := counter.ReadAll(counters)
		if err != nil {
			return CheckResult{
				Name:   "counters",
				Status: StatusUnhealthy,
				Error:  err.Error(),
			}
		}
		c1, c2, c3 := values[0], values[1], values[2]
		switch {
		case counter.MaxValue-c1 < CounterHeadroom:
			return CheckResult{
				Name:    "counters",
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%s nearly exhausted: %d", counter.ID1, c1),
			}
		case c2 != c1 || c3 != c1:
			return CheckResult{
				Name:    "counters",
				Status:  StatusDegraded,
				Message: fmt.Sprintf("counters not aligned: %d/%d/%d", c1, c2, c3),
			}
		default:
			return CheckResult{
				Name:    "counters",
				Status:  StatusHealthy,
				Message: fmt.Sprintf("%s=%d", counter.ID1, c1),
			}
		}
	}
}
