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
	"context"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/health"
	"github.com/jeremyhahn/go-objstore/pkg/metrics"
	"github.com/spf13/cobra"
)

func newWipeCmd(c *Config) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every object and reset the object tables",
		Long: `Delete every object and write a fresh, empty object table. This is
the only way to recover a store whose tables no longer verify, for example
after the blob store was restored from an old image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !confirm {
				return fmt.Errorf("refusing to wipe without --yes")
			}
			s, err := c.OpenSession()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); err == nil {
					err = cerr
				}
			}()
			if bootErr := s.BootError(); bootErr != nil {
				c.printVerbose(cmd.ErrOrStderr(), "store failed to boot: %v", bootErr)
			}
			if err := s.Store.WipeAll(); err != nil {
				return fmt.Errorf("failed to wipe store: %w", err)
			}
			return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).PrintSuccess("Store wiped")
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion of every object")
	return cmd
}

func newStatsCmd(c *Config) *cobra.Command {
	var prometheusText bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show slot usage and table state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(c, func(s *Session) error {
				if !prometheusText {
					return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).PrintStats(s.Store.ID(), s.Store.Stats())
				}
				if !metrics.IsEnabled() {
					return fmt.Errorf("metrics are disabled in the configuration")
				}
				if err := metrics.Collect(s.Store.Snapshot); err != nil {
					return fmt.Errorf("failed to collect metrics: %w", err)
				}
				return metrics.WriteText(cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&prometheusText, "prometheus", false, "print metrics in Prometheus text format")
	return cmd
}

func newCountersCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Show the rollback protection NV counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(c, func(s *Session) error {
				values, err := counter.ReadAll(s.Counters)
				if err != nil {
					return fmt.Errorf("failed to read counters: %w", err)
				}
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).PrintCounters(values)
			})
		},
	}
}

func newConfigCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.Store.Marshal()
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newHealthCmd(c *Config) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the store tables and rollback counters",
		Long: `Boot the store and report whether its object table verifies, whether
there is room for new objects and whether the NV counters are aligned.
Exits non-zero when any check is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := c.OpenSession()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); err == nil {
					err = cerr
				}
			}()

			checker := health.NewChecker()
			checker.RegisterCheck("store", health.StoreCheck(s.Store.Stats))
			if c.Store.Store.RollbackProtection {
				checker.RegisterCheck("counters", health.CountersCheck(s.Counters))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			results := checker.Run(ctx)
			status := health.AggregateStatus(results)
			if err := NewPrinter(c.OutputFormat, cmd.OutOrStdout()).PrintHealth(status, results); err != nil {
				return err
			}
			if status == health.StatusUnhealthy {
				return fmt.Errorf("store is unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time limit for all checks")
	return cmd
}
