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

package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/health"
	"github.com/jeremyhahn/go-objstore/pkg/objstore"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer. An empty format selects text.
func NewPrinter(format string, writer io.Writer) *Printer {
	if format == "" {
		format = string(OutputFormatText)
	}
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintObjectInfo prints an object header
func (p *Printer) PrintObjectInfo(uid objstore.UID, info objstore.ObjectInfo) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"uid":      uint64(uid),
			"size":     info.Size,
			"max_size": info.MaxSize,
			"flags":    info.Flags.String(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Object %d:\n", uid)
		fmt.Fprintf(p.writer, "  Size:     %d\n", info.Size)
		fmt.Fprintf(p.writer, "  Max Size: %d\n", info.MaxSize)
		fmt.Fprintf(p.writer, "  Flags:    %s\n", info.Flags)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintData prints object content. Text output writes the raw bytes.
func (p *Printer) PrintData(uid objstore.UID, offset uint32, data []byte) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"uid":    uint64(uid),
			"offset": offset,
			"length": len(data),
			"data":   base64.StdEncoding.EncodeToString(data),
		})
	case OutputFormatText:
		_, err := p.writer.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintStats prints the state of the store with the given instance id
func (p *Printer) PrintStats(id string, stats objstore.Stats) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"store_id":     id,
			"algorithm":    stats.Algorithm,
			"initialized":  stats.Initialized,
			"total_slots":  stats.TotalSlots,
			"used_slots":   stats.UsedSlots,
			"free_slots":   stats.FreeSlots,
			"max_objects":  stats.MaxObjects,
			"active_table": stats.ActiveTable,
			"swap_count":   stats.SwapCount,
			"nv_counter":   stats.NVCounter,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, "Store:")
		fmt.Fprintf(p.writer, "  ID:           %s\n", id)
		fmt.Fprintf(p.writer, "  Initialized:  %t\n", stats.Initialized)
		fmt.Fprintf(p.writer, "  Algorithm:    %s\n", stats.Algorithm)
		fmt.Fprintf(p.writer, "  Objects:      %d / %d\n", stats.UsedSlots, stats.MaxObjects)
		fmt.Fprintf(p.writer, "  Slots:        %d used, %d free, %d total\n",
			stats.UsedSlots, stats.FreeSlots, stats.TotalSlots)
		fmt.Fprintf(p.writer, "  Active Table: %s\n", stats.ActiveTable)
		fmt.Fprintf(p.writer, "  Swap Count:   %d\n", stats.SwapCount)
		fmt.Fprintf(p.writer, "  NV Counter:   %d\n", stats.NVCounter)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCounters prints the three rollback counters
func (p *Printer) PrintCounters(values [3]uint32) error {
	switch p.format {
	case OutputFormatJSON:
		out := make(map[string]uint32, len(counter.IDs))
		for i, id := range counter.IDs {
			out[id.String()] = values[i]
		}
		return p.printJSON(map[string]interface{}{
			"counters": out,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, "NV Counters:")
		for i, id := range counter.IDs {
			fmt.Fprintf(p.writer, "  %s: %d\n", id, values[i])
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHealth prints health check results
func (p *Printer) PrintHealth(status health.Status, results []health.CheckResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": status,
			"checks": results,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Status: %s\n", status)
		for _, r := range results {
			detail := r.Message
			if r.Error != "" {
				detail = r.Error
			}
			fmt.Fprintf(p.writer, "  %-10s %-10s %s\n", r.Name, r.Status, detail)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

func (p *Printer) printJSON(v interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
