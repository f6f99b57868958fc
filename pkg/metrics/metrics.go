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

// Package metrics provides Prometheus instrumentation for go-objstore.
// It exposes operation counters, latency histograms, error counters and
// gauges describing slot usage and the NV counters.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all object store metrics
	Namespace = "objstore"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelCounter   = "counter"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpBoot    = "boot"
	OpCreate  = "create"
	OpSet     = "set"
	OpRead    = "read"
	OpGet     = "get"
	OpWrite   = "write"
	OpDelete  = "delete"
	OpGetInfo = "get_info"
	OpWipeAll = "wipe_all"
)

var (
	// OperationsTotal tracks the total number of store operations by type and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of object store operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of store operations in seconds.
	// Buckets cover blob store I/O on flash through to a TPM round trip.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of object store operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal tracks the total number of errors by operation and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// TablePersistsTotal counts successful object table writes.
	TablePersistsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "table_persists_total",
			Help:      "Total number of object table writes",
		},
	)

	// SlotsUsed is the number of object table slots holding an object.
	SlotsUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "slots_used",
			Help:      "Number of object table slots in use",
		},
	)

	// SlotsTotal is the number of object table slots.
	SlotsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "slots_total",
			Help:      "Number of object table slots",
		},
	)

	// NVCounter is the last observed value of each rollback counter.
	NVCounter = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "nv_counter",
			Help:      "Last observed value of each rollback protection counter",
		},
		[]string{LabelCounter},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a store operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	err := store.Write(client, uid, 0, data)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpWrite, status, time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an error event. Error types are short identifiers
// such as "does_not_exist" or "invalid_signature".
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordTablePersist counts one object table write.
func RecordTablePersist() {
	if !enabled.Load() {
		return
	}
	TablePersistsTotal.Inc()
}

// SetSlots sets the slot usage gauges.
func SetSlots(used, total int) {
	if !enabled.Load() {
		return
	}
	SlotsUsed.Set(float64(used))
	SlotsTotal.Set(float64(total))
}

// SetNVCounter sets the gauge for one rollback counter.
func SetNVCounter(counter string, value uint32) {
	if !enabled.Load() {
		return
	}
	NVCounter.WithLabelValues(counter).Set(float64(value))
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
