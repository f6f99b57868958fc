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
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteText writes the object store metric families from the default
// registry in the Prometheus text exposition format.
func WriteText(w io.Writer) error {
	return writeText(w, prometheus.DefaultGatherer)
}

func writeText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), Namespace+"_") {
			continue
		}
		if err := encoder.Encode(family); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", family.GetName(), err)
		}
	}
	return nil
}
