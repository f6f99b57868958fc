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

// Package sqlite provides a storage.Backend backed by a single SQLite
// database file. Each blob is one row; SQLite's transactional writes give
// the per-key atomicity the object store requires.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeremyhahn/go-objstore/pkg/storage"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	key   INTEGER PRIMARY KEY,
	value BLOB NOT NULL
)`

// Storage is a SQLite implementation of storage.Backend.
type Storage struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open opens (creating if needed) the database at path.
func Open(path string) (storage.Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite storage: path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("sqlite storage: failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: failed to open database: %w", err)
	}

	// One connection keeps the store's writes strictly ordered.
	db.SetMaxOpenConns(1)

	// FULL synchronous mode: a committed row survives power loss.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite storage: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite storage: failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Get retrieves a range of the blob stored at key.
func (s *Storage) Get(key uint32, offset, length int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	var size int
	err := s.db.QueryRow(`SELECT length(value) FROM blobs WHERE key = ?`, int64(key)).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: failed to read key %#x: %w", key, err)
	}

	if offset < 0 || offset > size {
		return nil, storage.ErrInvalidRange
	}
	if length < 0 {
		length = size - offset
	}
	if length > size-offset {
		return nil, storage.ErrInvalidRange
	}
	if length == 0 {
		return []byte{}, nil
	}

	var value []byte
	err = s.db.QueryRow(`SELECT substr(value, ?, ?) FROM blobs WHERE key = ?`,
		offset+1, length, int64(key)).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: failed to read key %#x: %w", key, err)
	}
	return value, nil
}

// Set replaces the blob stored at key.
func (s *Storage) Set(key uint32, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO blobs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, int64(key), value)
	if err != nil {
		return fmt.Errorf("sqlite storage: failed to write key %#x: %w", key, err)
	}
	return nil
}

// Remove deletes the blob stored at key.
func (s *Storage) Remove(key uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	res, err := s.db.Exec(`DELETE FROM blobs WHERE key = ?`, int64(key))
	if err != nil {
		return fmt.Errorf("sqlite storage: failed to delete key %#x: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite storage: failed to delete key %#x: %w", key, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
