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

package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-objstore/pkg/counter"
	"github.com/jeremyhahn/go-objstore/pkg/counter/tpm2"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
	"github.com/jeremyhahn/go-objstore/pkg/objstore"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Counter backends
const (
	CountersMemory = "memory"
	CountersBlob   = "blob"
	CountersTPM2   = "tpm2"
)

// Config represents the complete object store configuration
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Storage  StorageConfig  `yaml:"storage"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Counters CountersConfig `yaml:"counters"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StoreConfig contains object store settings
type StoreConfig struct {
	NumObjects         int    `yaml:"num_objects"`
	MaxObjectSize      uint32 `yaml:"max_object_size"`
	Encryption         bool   `yaml:"encryption"`
	RollbackProtection bool   `yaml:"rollback_protection"`
	KeyBase            uint32 `yaml:"key_base"`
	TrackIVs           bool   `yaml:"track_ivs"`
}

// StorageConfig selects the blob store
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, file, sqlite
	Path    string `yaml:"path"`    // directory for file, database file for sqlite
}

// CryptoConfig contains the software crypto provider settings
type CryptoConfig struct {
	Algorithm   string `yaml:"algorithm"` // empty selects by host CPU
	RootKeyFile string `yaml:"root_key_file"`
	UsageLimit  int64  `yaml:"usage_limit"`
}

// CountersConfig selects the NV counter service
type CountersConfig struct {
	Backend string     `yaml:"backend"`  // memory, blob, tpm2
	Path    string     `yaml:"path"`     // blob counters directory, empty shares the blob store
	KeyBase uint32     `yaml:"key_base"` // blob counters only
	TPM2    TPM2Config `yaml:"tpm2"`
}

// TPM2Config contains TPM NV counter settings
type TPM2Config struct {
	DevicePath string `yaml:"device_path"`
	BaseIndex  uint32 `yaml:"base_index"`
	OwnerAuth  string `yaml:"owner_auth"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultDataDir is the data directory used when none is configured.
const DefaultDataDir = "/var/lib/objstore"

// Default returns a configuration with encryption and rollback protection
// on, storing blobs and counters in files under DefaultDataDir.
func Default() *Config {
	return defaultWithDataDir(DefaultDataDir)
}

func defaultWithDataDir(dataDir string) *Config {
	return &Config{
		Store: StoreConfig{
			NumObjects:         objstore.DefaultNumObjects,
			MaxObjectSize:      objstore.DefaultMaxObjectSize,
			Encryption:         true,
			RollbackProtection: true,
			KeyBase:            objstore.DefaultKeyBase,
		},
		Storage: StorageConfig{
			Backend: StorageFile,
			Path:    filepath.Join(dataDir, "blobs"),
		},
		Crypto: CryptoConfig{
			Algorithm:   aead.AES256GCM,
			RootKeyFile: filepath.Join(dataDir, "root.key"),
		},
		Counters: CountersConfig{
			Backend: CountersBlob,
			Path:    filepath.Join(dataDir, "counters"),
			KeyBase: counter.DefaultKeyBase,
			TPM2: TPM2Config{
				DevicePath: "/dev/tpmrm0",
				BaseIndex:  tpm2.DefaultConfig().BaseIndex,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults and
// applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment variable overrides applied
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Data directory moves every path that has not been set explicitly
	if dataDir := os.Getenv("OBJSTORE_DATA_DIR"); dataDir != "" {
		def := Default()
		moved := defaultWithDataDir(dataDir)
		if cfg.Storage.Path == def.Storage.Path {
			cfg.Storage.Path = moved.Storage.Path
		}
		if cfg.Crypto.RootKeyFile == def.Crypto.RootKeyFile {
			cfg.Crypto.RootKeyFile = moved.Crypto.RootKeyFile
		}
		if cfg.Counters.Path == def.Counters.Path {
			cfg.Counters.Path = moved.Counters.Path
		}
	}

	// Storage
	if backend := os.Getenv("OBJSTORE_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("OBJSTORE_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	// Store
	if v := os.Getenv("OBJSTORE_NUM_OBJECTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: invalid OBJSTORE_NUM_OBJECTS value %q, using %d: %v",
				v, cfg.Store.NumObjects, err)
		} else {
			cfg.Store.NumObjects = n
		}
	}
	if v := os.Getenv("OBJSTORE_MAX_OBJECT_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			log.Printf("Warning: invalid OBJSTORE_MAX_OBJECT_SIZE value %q, using %d: %v",
				v, cfg.Store.MaxObjectSize, err)
		} else {
			cfg.Store.MaxObjectSize = uint32(n)
		}
	}
	if v := os.Getenv("OBJSTORE_ROLLBACK_PROTECTION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Warning: invalid OBJSTORE_ROLLBACK_PROTECTION value %q, using %t: %v",
				v, cfg.Store.RollbackProtection, err)
		} else {
			cfg.Store.RollbackProtection = b
		}
	}

	// Crypto
	if keyFile := os.Getenv("OBJSTORE_ROOT_KEY_FILE"); keyFile != "" {
		cfg.Crypto.RootKeyFile = keyFile
	}
	if algorithm := os.Getenv("OBJSTORE_ALGORITHM"); algorithm != "" {
		cfg.Crypto.Algorithm = algorithm
	}

	// Counters
	if backend := os.Getenv("OBJSTORE_COUNTERS_BACKEND"); backend != "" {
		cfg.Counters.Backend = backend
	}
	if path := os.Getenv("OBJSTORE_COUNTERS_PATH"); path != "" {
		cfg.Counters.Path = path
	}
	if tpmPath := os.Getenv("TPM_DEVICE_PATH"); tpmPath != "" {
		cfg.Counters.TPM2.DevicePath = tpmPath
	}

	// Logging
	if level := os.Getenv("OBJSTORE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("OBJSTORE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := c.StoreOptions(nil).Validate(); err != nil {
		return fmt.Errorf("invalid store settings: %w", err)
	}

	// Validate storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile, StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("invalid storage backend: %q (must be memory, file, or sqlite)", c.Storage.Backend)
	}

	// Validate crypto
	if c.Store.Encryption {
		if err := aead.Validate(c.Crypto.Algorithm); err != nil {
			return err
		}
		if c.Crypto.RootKeyFile == "" {
			return fmt.Errorf("crypto root_key_file is required when encryption is enabled")
		}
	}

	// Validate counters
	switch c.Counters.Backend {
	case CountersMemory, CountersBlob:
	case CountersTPM2:
		if c.Counters.TPM2.DevicePath == "" {
			return fmt.Errorf("TPM2 device_path is required for the tpm2 counter backend")
		}
	default:
		return fmt.Errorf("invalid counter backend: %q (must be memory, blob, or tpm2)", c.Counters.Backend)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// StoreOptions converts the store settings into objstore options
func (c *Config) StoreOptions(logger *slog.Logger) *objstore.Options {
	return &objstore.Options{
		NumObjects:         c.Store.NumObjects,
		MaxObjectSize:      c.Store.MaxObjectSize,
		Encryption:         c.Store.Encryption,
		RollbackProtection: c.Store.RollbackProtection,
		KeyBase:            c.Store.KeyBase,
		TrackIVs:           c.Store.TrackIVs,
		Logger:             logger,
	}
}
