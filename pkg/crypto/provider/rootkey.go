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

package provider

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RootKeyEnv overrides the root key file when set. The value is hex encoded.
const RootKeyEnv = "OBJSTORE_ROOT_KEY"

// LoadOrGenerateRootKey returns the root key stored hex encoded at path,
// creating a new random 32-byte key there if the file does not exist.
// The second return value reports whether a key was generated.
func LoadOrGenerateRootKey(path string) ([]byte, bool, error) {
	if s := os.Getenv(RootKeyEnv); s != "" {
		key, err := decodeRootKey(s)
		return key, false, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		key, err := decodeRootKey(string(data))
		return key, false, err
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("provider: read root key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, false, fmt.Errorf("provider: generate root key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, false, fmt.Errorf("provider: create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("provider: write root key: %w", err)
	}
	return key, true, nil
}

func decodeRootKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootKey, err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("%w: need at least 32 bytes, got %d", ErrInvalidRootKey, len(key))
	}
	return key, nil
}
