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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the root command and prints any error in the selected
// output format
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		format, _ := rootCmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err) // Error printing to stderr is best-effort
		return err
	}
	return nil
}

// NewRootCommand builds the command tree with its own flag and
// environment bindings.
func NewRootCommand() *cobra.Command {
	globals := NewConfig()
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "objstore",
		Short: "go-objstore CLI - Encrypted, rollback-protected object store",
		Long: `objstore manages objects in a power-fail-safe object store.

Objects are addressed by a numeric UID and owned by a client id. Every
mutation is committed through a pair of authenticated object tables and,
with rollback protection, bound to monotonic NV counters.

Storage backends:
  - file:   one file per blob under a directory
  - sqlite: a single SQLite database
  - memory: volatile, for experiments

Counter backends:
  - blob:   counters persisted next to the blobs (development only)
  - tpm2:   TPM 2.0 NV counter indices
  - memory: volatile, for experiments`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return globals.bind(v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globals.ConfigFile, "config", "",
		"config file (default: built-in defaults and OBJSTORE_* environment)")
	flags.String("data-dir", "", "data directory for blobs and the root key")
	flags.String("storage", "", "storage backend (file, sqlite, memory)")
	flags.String("storage-path", "", "storage directory or database file")
	flags.String("counters", "", "counter backend (blob, tpm2, memory)")
	flags.String("root-key-file", "", "root key file (generated when missing)")
	flags.Int32("client", 0, "client id owning the objects")
	flags.StringP("output", "o", "text", "output format (text, json)")
	flags.BoolP("verbose", "v", false, "verbose output")

	for _, name := range []string{
		"data-dir", "storage", "storage-path", "counters",
		"root-key-file", "client", "output", "verbose",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix("OBJSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newCreateCmd(globals),
		newSetCmd(globals),
		newReadCmd(globals),
		newWriteCmd(globals),
		newDeleteCmd(globals),
		newInfoCmd(globals),
		newWipeCmd(globals),
		newStatsCmd(globals),
		newCountersCmd(globals),
		newHealthCmd(globals),
		newConfigCmd(globals),
		newVersionCmd(globals),
	)
	return rootCmd
}

// printVerbose prints a message if verbose mode is enabled
func (c *Config) printVerbose(w io.Writer, format string, args ...interface{}) {
	if c.Verbose {
		fmt.Fprintf(w, "[VERBOSE] "+format+"\n", args...)
	}
}
