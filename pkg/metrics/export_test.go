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
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWriteText(t *testing.T) {
	Enable()
	SetSlots(3, 11)
	SetNVCounter("nvc1", 42)

	var buf bytes.Buffer
	if err := WriteText(&buf); err != nil {
		t.Fatalf("WriteText() failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"objstore_slots_used 3",
		"objstore_slots_total 11",
		`objstore_nv_counter{counter="nvc1"} 42`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "go_goroutines") {
		t.Error("Expected runtime metrics to be filtered out")
	}
}

func TestWriteText_ForeignRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "unrelated"})
	reg.MustRegister(other)
	other.Inc()

	var buf bytes.Buffer
	if err := writeText(&buf, reg); err != nil {
		t.Fatalf("writeText() failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no output for foreign metrics, got %q", buf.String())
	}
}
