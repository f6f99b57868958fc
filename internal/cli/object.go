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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jeremyhahn/go-objstore/pkg/objstore"
	"github.com/spf13/cobra"
)

// flagNames maps --flag values to creation flags
var flagNames = map[string]objstore.CreateFlags{
	"write-once":           objstore.FlagWriteOnce,
	"no-confidentiality":   objstore.FlagNoConfidentiality,
	"no-replay-protection": objstore.FlagNoReplayProtection,
}

func parseUID(s string) (objstore.UID, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid uid %q: must be non-zero", s)
	}
	return objstore.UID(v), nil
}

func parseCreateFlags(names []string) (objstore.CreateFlags, error) {
	var flags objstore.CreateFlags
	for _, name := range names {
		f, ok := flagNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown flag %q (must be write-once, no-confidentiality, or no-replay-protection)", name)
		}
		flags |= f
	}
	return flags, nil
}

// readInput returns --data, the contents of --file, or stdin when --file is "-"
func readInput(cmd *cobra.Command, data, file string) ([]byte, error) {
	switch {
	case data != "" && file != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case data != "":
		return []byte(data), nil
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case file != "":
		// #nosec G304 - Input path is provided by the user
		return os.ReadFile(file)
	default:
		return nil, fmt.Errorf("one of --data or --file is required")
	}
}

// withStore opens a session, refuses to continue on a store that needs a
// wipe, and closes the session when fn returns.
func withStore(c *Config, fn func(s *Session) error) (err error) {
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
		if errors.Is(bootErr, objstore.ErrAlgorithmMismatch) {
			return fmt.Errorf("store was sealed with another algorithm, set crypto.algorithm to match: %w", bootErr)
		}
		return fmt.Errorf("store is not initialised, run 'objstore wipe' to reset it: %w", bootErr)
	}
	if err := fn(s); err != nil {
		if objstore.IsCorruption(err) {
			// The store id ties the failure to the store's log records.
			return fmt.Errorf("store %s: stored data failed verification: %w", s.Store.ID(), err)
		}
		return err
	}
	return nil
}

func newCreateCmd(c *Config) *cobra.Command {
	var (
		maxSize uint32
		flags   []string
	)
	cmd := &cobra.Command{
		Use:   "create <uid>",
		Short: "Create an empty object",
		Long:  `Create an empty object that can hold up to --max-size bytes.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			createFlags, err := parseCreateFlags(flags)
			if err != nil {
				return err
			}
			return withStore(c, func(s *Session) error {
				if err := s.Store.Create(c.Client, uid, maxSize, createFlags); err != nil {
					return fmt.Errorf("failed to create object: %w", err)
				}
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).
					PrintSuccess(fmt.Sprintf("Object %d created", uid))
			})
		},
	}
	cmd.Flags().Uint32Var(&maxSize, "max-size", 0, "maximum object size in bytes (required)")
	cmd.Flags().StringSliceVar(&flags, "flag", nil, "creation flag (write-once, no-confidentiality, no-replay-protection)")
	_ = cmd.MarkFlagRequired("max-size")
	return cmd
}

func newSetCmd(c *Config) *cobra.Command {
	var (
		data  string
		file  string
		flags []string
	)
	cmd := &cobra.Command{
		Use:   "set <uid>",
		Short: "Create or replace an object with the given content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			createFlags, err := parseCreateFlags(flags)
			if err != nil {
				return err
			}
			content, err := readInput(cmd, data, file)
			if err != nil {
				return err
			}
			return withStore(c, func(s *Session) error {
				if err := s.Store.Set(c.Client, uid, content, createFlags); err != nil {
					return fmt.Errorf("failed to set object: %w", err)
				}
				c.printVerbose(cmd.ErrOrStderr(), "stored %d bytes", len(content))
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).
					PrintSuccess(fmt.Sprintf("Object %d stored", uid))
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "object content")
	cmd.Flags().StringVar(&file, "file", "", "read object content from a file, - for stdin")
	cmd.Flags().StringSliceVar(&flags, "flag", nil, "creation flag (write-once, no-confidentiality, no-replay-protection)")
	return cmd
}

func newReadCmd(c *Config) *cobra.Command {
	var (
		offset uint32
		length uint32
	)
	cmd := &cobra.Command{
		Use:   "read <uid>",
		Short: "Read object content",
		Long: `Read object content starting at --offset. Without --length the
rest of the object is returned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			return withStore(c, func(s *Session) error {
				n := length
				if !cmd.Flags().Changed("length") {
					info, err := s.Store.GetInfo(c.Client, uid)
					if err != nil {
						return fmt.Errorf("failed to read object: %w", err)
					}
					if offset > info.Size {
						return fmt.Errorf("failed to read object: offset %d beyond size %d: %w",
							offset, info.Size, objstore.ErrInvalidArgument)
					}
					n = info.Size - offset
				}
				buf := make([]byte, n)
				read, err := s.Store.Read(c.Client, uid, offset, buf)
				if err != nil {
					return fmt.Errorf("failed to read object: %w", err)
				}
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).PrintData(uid, offset, buf[:read])
			})
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "byte offset to start reading at")
	cmd.Flags().Uint32Var(&length, "length", 0, "number of bytes to read")
	return cmd
}

func newWriteCmd(c *Config) *cobra.Command {
	var (
		offset uint32
		data   string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "write <uid>",
		Short: "Write into an existing object",
		Long: `Write into an existing object at --offset. The offset may not be
past the current size and the result may not exceed the object's max size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			content, err := readInput(cmd, data, file)
			if err != nil {
				return err
			}
			return withStore(c, func(s *Session) error {
				if err := s.Store.Write(c.Client, uid, offset, content); err != nil {
					return fmt.Errorf("failed to write object: %w", err)
				}
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).
					PrintSuccess(fmt.Sprintf("Wrote %d bytes to object %d at offset %d", len(content), uid, offset))
			})
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "byte offset to write at")
	cmd.Flags().StringVar(&data, "data", "", "content to write")
	cmd.Flags().StringVar(&file, "file", "", "read content from a file, - for stdin")
	return cmd
}

func newDeleteCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			return withStore(c, func(s *Session) error {
				if err := s.Store.Delete(c.Client, uid); err != nil {
					return fmt.Errorf("failed to delete object: %w", err)
				}
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).
					PrintSuccess(fmt.Sprintf("Object %d deleted", uid))
			})
		},
	}
}

func newInfoCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "info <uid>",
		Short: "Show an object's header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			return withStore(c, func(s *Session) error {
				info, err := s.Store.GetInfo(c.Client, uid)
				if err != nil {
					return fmt.Errorf("failed to get object info: %w", err)
				}
				return NewPrinter(c.OutputFormat, cmd.OutOrStdout()).PrintObjectInfo(uid, info)
			})
		},
	}
}
