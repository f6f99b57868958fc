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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// hkdfSalt separates keys derived here from any other use of the root key.
var hkdfSalt = []byte("go-objstore/provider/v1")

// Config configures the software provider.
type Config struct {
	// Algorithm is aead.AES256GCM or aead.ChaCha20Poly1305.
	// Empty selects automatically with aead.SelectOptimal.
	Algorithm string

	// UsageLimit caps the plaintext bytes each derived key may encrypt.
	// Zero selects aead.DefaultBytesTrackingLimit; negative disables the cap.
	UsageLimit int64

	// Random is the entropy source. Defaults to crypto/rand.Reader.
	Random io.Reader
}

type softwareKey struct {
	aead  cipher.AEAD
	usage *aead.BytesTracker
}

// Software is a Provider that derives keys from a root key held in memory.
// It stands in for a secure element's hardware unique key.
type Software struct {
	mu        sync.Mutex
	rootKey   []byte
	algorithm string
	limit     int64
	random    io.Reader
	keys      map[KeyHandle]*softwareKey
	next      KeyHandle
}

// NewSoftware creates a software provider. rootKey must be at least 32 bytes.
func NewSoftware(rootKey []byte, config *Config) (*Software, error) {
	if len(rootKey) < aead.KeySize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrInvalidRootKey, aead.KeySize, len(rootKey))
	}
	if config == nil {
		config = &Config{}
	}
	if err := aead.Validate(config.Algorithm); err != nil {
		return nil, err
	}

	algorithm := config.Algorithm
	if algorithm == "" {
		algorithm = aead.SelectOptimal(false)
	}
	random := config.Random
	if random == nil {
		random = rand.Reader
	}

	return &Software{
		rootKey:   append([]byte(nil), rootKey...),
		algorithm: algorithm,
		limit:     config.UsageLimit,
		random:    random,
		keys:      make(map[KeyHandle]*softwareKey),
	}, nil
}

// Algorithm returns the AEAD algorithm in use.
func (s *Software) Algorithm() string {
	return s.algorithm
}

// DeriveKey derives a key from the root key with HKDF-SHA256, using label as
// the HKDF info. The same label always yields the same key.
func (s *Software) DeriveKey(label []byte) (KeyHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rootKey == nil {
		return 0, ErrInvalidRootKey
	}

	material := make([]byte, aead.KeySize)
	defer zero(material)

	kdf := hkdf.New(sha256.New, s.rootKey, hkdfSalt, label)
	if _, err := io.ReadFull(kdf, material); err != nil {
		return 0, fmt.Errorf("provider: derive key: %w", err)
	}

	c, err := newCipher(s.algorithm, material)
	if err != nil {
		return 0, err
	}

	s.next++
	s.keys[s.next] = &softwareKey{
		aead:  c,
		usage: aead.NewBytesTracker(s.limit >= 0, s.limit),
	}
	return s.next, nil
}

// Encrypt seals plaintext and splits off the tag.
func (s *Software) Encrypt(key KeyHandle, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, nil, err
	}
	if len(iv) != k.aead.NonceSize() {
		return nil, nil, ErrInvalidIV
	}
	if err := k.usage.CheckAndIncrementBytes(int64(len(plaintext))); err != nil {
		return nil, nil, err
	}

	sealed := k.aead.Seal(nil, iv, plaintext, aad)
	n := len(sealed) - k.aead.Overhead()
	return sealed[:n:n], sealed[n:], nil
}

// Decrypt verifies the detached tag and opens the ciphertext.
func (s *Software) Decrypt(key KeyHandle, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != k.aead.NonceSize() {
		return nil, ErrInvalidIV
	}
	if len(tag) != k.aead.Overhead() {
		return nil, ErrInvalidTag
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := k.aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// GenerateRandom returns n random bytes.
func (s *Software) GenerateRandom(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return nil, fmt.Errorf("provider: random: %w", err)
	}
	return buf, nil
}

// DestroyKey forgets the key behind handle.
func (s *Software) DestroyKey(key KeyHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; !ok {
		return ErrInvalidKeyHandle
	}
	delete(s.keys, key)
	return nil
}

// Close destroys every derived key and erases the root key.
func (s *Software) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zero(s.rootKey)
	s.rootKey = nil
	s.keys = make(map[KeyHandle]*softwareKey)
	return nil
}

func (s *Software) key(handle KeyHandle) (*softwareKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[handle]
	if !ok {
		return nil, ErrInvalidKeyHandle
	}
	return k, nil
}

func newCipher(algorithm string, key []byte) (cipher.AEAD, error) {
	switch algorithm {
	case aead.AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("provider: create AES cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case aead.ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", aead.ErrUnsupportedAlgorithm, algorithm)
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
