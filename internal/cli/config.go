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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/go-tpm/tpm2/transport"
	"github.com/jeremyhahn/go-objstore/internal/config"
	"github.com/jeremyhahn/go-objstore/pkg/counter"
	tpmcounter "github.com/jeremyhahn/go-objstore/pkg/counter/tpm2"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/provider"
	"github.com/jeremyhahn/go-objstore/pkg/logging"
	"github.com/jeremyhahn/go-objstore/pkg/metrics"
	"github.com/jeremyhahn/go-objstore/pkg/objstore"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
	"github.com/jeremyhahn/go-objstore/pkg/storage/file"
	"github.com/jeremyhahn/go-objstore/pkg/storage/sqlite"
	"github.com/spf13/viper"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// Client is the client id owning the objects
	Client objstore.ClientID

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool

	// Store is the resolved store configuration
	Store *config.Config
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Store:        config.Default(),
	}
}

// bind resolves the store configuration: the config file or the defaults
// with OBJSTORE_* overrides first, then any flag or variable known to v.
func (c *Config) bind(v *viper.Viper) error {
	var (
		cfg *config.Config
		err error
	)
	if c.ConfigFile != "" {
		cfg, err = config.Load(c.ConfigFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}

	if dir := v.GetString("data-dir"); v.IsSet("data-dir") && dir != "" {
		cfg.Storage.Path = filepath.Join(dir, "blobs")
		cfg.Crypto.RootKeyFile = filepath.Join(dir, "root.key")
		cfg.Counters.Path = filepath.Join(dir, "counters")
	}
	if v.IsSet("storage") {
		cfg.Storage.Backend = v.GetString("storage")
	}
	if v.IsSet("storage-path") {
		cfg.Storage.Path = v.GetString("storage-path")
	}
	if v.IsSet("counters") {
		cfg.Counters.Backend = v.GetString("counters")
	}
	if v.IsSet("root-key-file") {
		cfg.Crypto.RootKeyFile = v.GetString("root-key-file")
	}
	if v.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.Store = cfg
	c.Client = objstore.ClientID(v.GetInt32("client"))
	c.OutputFormat = v.GetString("output")
	c.Verbose = v.GetBool("verbose")
	return nil
}

// Session is an open store together with the collaborators it was built on
type Session struct {
	Store    *objstore.Store
	Blobs    storage.Backend
	Counters counter.Service
	Logger   *slog.Logger

	closers []func() error
	bootErr error
}

// Close closes the store and its collaborators in reverse order
func (s *Session) Close() error {
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// BootError returns the error the store reported while booting, if any
func (s *Session) BootError() error {
	return s.bootErr
}

// OpenSession builds the storage, crypto and counter backends described by
// the configuration and boots a store over them. A store that booted
// without a valid table is still returned; callers that cannot proceed
// check BootError.
func (c *Config) OpenSession() (*Session, error) {
	cfg := c.Store
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}

	s := &Session{Logger: logger}
	fail := func(err error) (*Session, error) {
		_ = s.Close()
		return nil, err
	}

	blobs, err := openStorage(cfg.Storage)
	if err != nil {
		return fail(err)
	}
	s.Blobs = blobs
	s.closers = append(s.closers, blobs.Close)

	var crypto provider.Provider
	if cfg.Store.Encryption {
		soft, err := openProvider(cfg.Crypto, logger)
		if err != nil {
			return fail(err)
		}
		crypto = soft
		s.closers = append(s.closers, soft.Close)
	}

	counters, closer, err := openCounters(cfg.Counters, blobs)
	if err != nil {
		return fail(err)
	}
	s.Counters = counters
	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	store, err := objstore.New(blobs, crypto, counters, cfg.StoreOptions(logger))
	if store == nil {
		return fail(fmt.Errorf("failed to open store: %w", err))
	}
	s.Store = store
	s.bootErr = err
	return s, nil
}

// openStorage creates the blob store backend
func openStorage(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return storage.NewMemory(), nil
	case config.StorageFile:
		backend, err := file.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage backend: %w", err)
		}
		return backend, nil
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		backend, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// openProvider loads or generates the root key and creates the software
// crypto provider
func openProvider(cfg config.CryptoConfig, logger *slog.Logger) (*provider.Software, error) {
	rootKey, generated, err := provider.LoadOrGenerateRootKey(cfg.RootKeyFile)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Info("generated new root key", "path", cfg.RootKeyFile)
	}
	soft, err := provider.NewSoftware(rootKey, &provider.Config{
		Algorithm:  cfg.Algorithm,
		UsageLimit: cfg.UsageLimit,
	})
	clear(rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create crypto provider: %w", err)
	}
	return soft, nil
}

// openCounters creates the NV counter service. The returned closer may be nil.
func openCounters(cfg config.CountersConfig, blobs storage.Backend) (counter.Service, func() error, error) {
	switch cfg.Backend {
	case config.CountersMemory:
		return counter.NewMemory(), nil, nil
	case config.CountersBlob:
		if cfg.Path == "" {
			return counter.NewBlob(blobs, cfg.KeyBase), nil, nil
		}
		backend, err := file.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create counter storage: %w", err)
		}
		return counter.NewBlob(backend, cfg.KeyBase), backend.Close, nil
	case config.CountersTPM2:
		tpm, err := transport.OpenTPM(cfg.TPM2.DevicePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open TPM %s: %w", cfg.TPM2.DevicePath, err)
		}
		counters, err := tpmcounter.New(tpm, &tpmcounter.Config{
			BaseIndex: cfg.TPM2.BaseIndex,
			OwnerAuth: []byte(cfg.TPM2.OwnerAuth),
		})
		if err == nil {
			err = counters.Provision()
		}
		if err != nil {
			_ = tpm.Close()
			return nil, nil, fmt.Errorf("failed to prepare TPM counters: %w", err)
		}
		return counters, tpm.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown counter backend: %s", cfg.Backend)
	}
}
