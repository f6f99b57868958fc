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

// Package file provides a file-based implementation of the storage.Backend interface.
// Each blob lives in its own file named after its key. Writes go to a temporary
// file that is synced and renamed over the target, so a reader sees either the
// previous blob or the new one after a power loss.
package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Blob file permissions (owner rw only)
	defaultPerms = 0600

	blobSuffix = ".blob"
	tempSuffix = ".tmp"
)

// FileStorage is a file-based implementation of storage.Backend.
type FileStorage struct {
	mu      sync.RWMutex
	rootDir string
	closed  bool
}

// New creates a new FileStorage instance with the specified root directory.
// The root directory is created with 0700 permissions if it doesn't exist.
// Temporary files left behind by an interrupted write are removed.
func New(rootDir string) (storage.Backend, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	if err := os.MkdirAll(rootDir, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to resolve root directory: %w", err)
	}

	f := &FileStorage{rootDir: abs}
	if err := f.removeTempFiles(); err != nil {
		return nil, err
	}
	return f, nil
}

// Get retrieves a range of the blob stored at key.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Get(key uint32, offset, length int) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, storage.ErrClosed
	}

	file, err := os.Open(f.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to open key %#x: %w", key, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to stat key %#x: %w", key, err)
	}

	size := int(info.Size())
	if offset < 0 || offset > size {
		return nil, storage.ErrInvalidRange
	}
	if length < 0 {
		length = size - offset
	}
	if length > size-offset {
		return nil, storage.ErrInvalidRange
	}

	buf := make([]byte, length)
	if _, err := file.ReadAt(buf, int64(offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("file storage: failed to read key %#x: %w", key, err)
	}
	return buf, nil
}

// Set replaces the blob stored at key. The new content is written to a
// temporary file, flushed and renamed over the old file.
func (f *FileStorage) Set(key uint32, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}

	target := f.keyToPath(key)
	tmp := target + tempSuffix

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultPerms)
	if err != nil {
		return fmt.Errorf("file storage: failed to create key %#x: %w", key, err)
	}

	if _, err := file.Write(value); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("file storage: failed to write key %#x: %w", key, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("file storage: failed to sync key %#x: %w", key, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file storage: failed to close key %#x: %w", key, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file storage: failed to commit key %#x: %w", key, err)
	}

	return f.syncDir()
}

// Remove deletes the blob stored at key.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Remove(key uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}

	if err := os.Remove(f.keyToPath(key)); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to delete key %#x: %w", key, err)
	}

	return f.syncDir()
}

// Close releases any resources held by the backend.
func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// keyToPath converts a blob key to a file path.
func (f *FileStorage) keyToPath(key uint32) string {
	return filepath.Join(f.rootDir, fmt.Sprintf("%08x%s", key, blobSuffix))
}

// syncDir flushes the directory entry so a completed rename survives power loss.
func (f *FileStorage) syncDir() error {
	dir, err := os.Open(f.rootDir)
	if err != nil {
		return fmt.Errorf("file storage: failed to open root directory: %w", err)
	}
	defer dir.Close()

	// Some platforms (notably Windows) do not support syncing directories.
	_ = dir.Sync()
	return nil
}

// removeTempFiles deletes leftovers of writes interrupted before their rename.
func (f *FileStorage) removeTempFiles() error {
	matches, err := filepath.Glob(filepath.Join(f.rootDir, "*"+blobSuffix+tempSuffix))
	if err != nil {
		return fmt.Errorf("file storage: failed to scan root directory: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file storage: failed to remove %s: %w", filepath.Base(m), err)
		}
	}
	return nil
}
