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

package objstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/jeremyhahn/go-objstore/pkg/crypto/aead"
	"github.com/jeremyhahn/go-objstore/pkg/crypto/provider"
	"github.com/jeremyhahn/go-objstore/pkg/storage"
)

var (
	storageKeyLabel = []byte("objstore/storage-key/v1")
	objectAADLabel  = []byte("objstore/object/v1")
	tableAADLabel   = []byte("objstore/table/v1")
)

// objectCodec turns objects into blobs and back, and protects encoded
// tables. There are two variants: encryptedCodec keeps the object's AEAD
// tag in its table entry, plainCodec keeps a version number in both the
// entry and the blob.
type objectCodec interface {
	// algorithm identifies the AEAD recorded in the table header.
	algorithm() byte

	// store encodes info and the first info.Size bytes of ws.data(), writes
	// the result to key and records the object proof in e.
	store(key uint32, e *entry, info ObjectInfo, ws *workspace) error

	// load reads the object at key, verifies it against e and returns its
	// header and the data in [offset, offset+length) clamped to its size.
	// The returned slice aliases ws.
	load(key uint32, e entry, offset, length uint32, ws *workspace) (ObjectInfo, []byte, error)

	// sealTable fills in the proof fields of an encoded table.
	sealTable(blob []byte) error

	// verifyTable checks the proof fields of an encoded table.
	verifyTable(blob []byte) error

	close() error
}

// clampRange limits [offset, offset+length) to an object of the given size.
func clampRange(size, offset, length uint32) (start, n uint32) {
	start = min(offset, size)
	n = min(length, size-start)
	return start, n
}

// encryptedCodec stores iv ‖ ctLen ‖ ciphertext. The plaintext is the
// encoded header followed by the data and the AAD binds it to the owner.
type encryptedCodec struct {
	blobs         storage.Backend
	crypto        provider.Provider
	key           provider.KeyHandle
	ivs           *aead.IVCounter
	nonces        *aead.NonceTracker
	maxObjectSize uint32
	alg           byte
}

const encryptedBlobHeaderSize = aead.NonceSize + 4

func newEncryptedCodec(blobs storage.Backend, crypto provider.Provider, maxObjectSize uint32, trackIVs bool) (*encryptedCodec, error) {
	if crypto == nil {
		return nil, fmt.Errorf("%w: encryption requires a crypto provider", ErrInvalidArgument)
	}
	key, err := crypto.DeriveKey(storageKeyLabel)
	if err != nil {
		return nil, fmt.Errorf("%w: derive storage key: %v", ErrGeneric, err)
	}
	seed, err := crypto.GenerateRandom(aead.NonceSize)
	if err != nil {
		_ = crypto.DestroyKey(key)
		return nil, fmt.Errorf("%w: seed IV counter: %v", ErrGeneric, err)
	}
	ivs, err := aead.NewIVCounter(seed)
	if err != nil {
		_ = crypto.DestroyKey(key)
		return nil, fmt.Errorf("%w: seed IV counter: %v", ErrGeneric, err)
	}
	return &encryptedCodec{
		blobs:         blobs,
		crypto:        crypto,
		key:           key,
		ivs:           ivs,
		nonces:        aead.NewNonceTracker(trackIVs),
		maxObjectSize: maxObjectSize,
		alg:           providerAlgorithm(crypto),
	}, nil
}

// providerAlgorithm returns the AEAD the provider seals with, or algUnknown
// if it does not say.
func providerAlgorithm(crypto provider.Provider) byte {
	if r, ok := crypto.(interface{ Algorithm() string }); ok {
		return algorithmID(r.Algorithm())
	}
	return algUnknown
}

func (c *encryptedCodec) algorithm() byte { return c.alg }

func (c *encryptedCodec) nextIV() ([aead.NonceSize]byte, error) {
	iv := c.ivs.Next()
	if err := c.nonces.CheckAndRecordNonce(iv); err != nil {
		return iv, fmt.Errorf("%w: %v", ErrGeneric, err)
	}
	return iv, nil
}

func objectAAD(uid UID, client ClientID) []byte {
	aad := make([]byte, 0, len(objectAADLabel)+12)
	aad = append(aad, objectAADLabel...)
	aad = binary.LittleEndian.AppendUint64(aad, uint64(uid))
	aad = binary.LittleEndian.AppendUint32(aad, uint32(client))
	return aad
}

func (c *encryptedCodec) store(key uint32, e *entry, info ObjectInfo, ws *workspace) error {
	info.encode(ws.header())

	iv, err := c.nextIV()
	if err != nil {
		return err
	}
	ct, tag, err := c.crypto.Encrypt(c.key, iv[:], objectAAD(e.uid, e.client), ws.plaintext(info.Size))
	if err != nil {
		return cryptoError("encrypt object", err)
	}
	if len(tag) != aead.TagSize {
		return fmt.Errorf("%w: unexpected tag length %d", ErrGeneric, len(tag))
	}

	blob := make([]byte, encryptedBlobHeaderSize+len(ct))
	copy(blob, iv[:])
	binary.LittleEndian.PutUint32(blob[aead.NonceSize:], uint32(len(ct)))
	copy(blob[encryptedBlobHeaderSize:], ct)

	if err := c.blobs.Set(key, blob); err != nil {
		return fmt.Errorf("%w: write object key %#x: %v", ErrGeneric, key, err)
	}
	copy(e.tag[:], tag)
	return nil
}

func (c *encryptedCodec) load(key uint32, e entry, offset, length uint32, ws *workspace) (ObjectInfo, []byte, error) {
	blob, err := c.blobs.Get(key, 0, -1)
	if err != nil {
		return ObjectInfo{}, nil, storageError("read object", key, err)
	}
	if len(blob) < encryptedBlobHeaderSize {
		return ObjectInfo{}, nil, fmt.Errorf("%w: object key %#x truncated", ErrDataCorrupt, key)
	}
	ctLen := binary.LittleEndian.Uint32(blob[aead.NonceSize:])
	if uint64(ctLen) != uint64(len(blob)-encryptedBlobHeaderSize) ||
		ctLen < infoSize || ctLen > infoSize+c.maxObjectSize {
		return ObjectInfo{}, nil, fmt.Errorf("%w: object key %#x has bad length %d", ErrDataCorrupt, key, ctLen)
	}

	plaintext, err := c.crypto.Decrypt(c.key, blob[:aead.NonceSize], objectAAD(e.uid, e.client),
		blob[encryptedBlobHeaderSize:], e.tag[:])
	if err != nil {
		return ObjectInfo{}, nil, cryptoError("decrypt object", err)
	}
	defer clear(plaintext)

	info := decodeInfo(plaintext)
	if err := info.check(c.maxObjectSize); err != nil {
		return ObjectInfo{}, nil, err
	}
	if len(plaintext) != infoSize+int(info.Size) {
		return ObjectInfo{}, nil, fmt.Errorf("%w: object key %#x size mismatch", ErrDataCorrupt, key)
	}
	copy(ws.buf, plaintext)

	start, n := clampRange(info.Size, offset, length)
	return info, ws.data()[start : start+n], nil
}

func tableAAD(blob []byte) []byte {
	aad := make([]byte, 0, len(tableAADLabel)+len(blob))
	aad = append(aad, tableAADLabel...)
	aad = append(aad, blob...)
	clear(aad[len(tableAADLabel)+tableProofOffset : len(tableAADLabel)+tableHeaderSize])
	return aad
}

func (c *encryptedCodec) sealTable(blob []byte) error {
	iv, err := c.nextIV()
	if err != nil {
		return err
	}
	_, tag, err := c.crypto.Encrypt(c.key, iv[:], tableAAD(blob), nil)
	if err != nil {
		return cryptoError("seal table", err)
	}
	if len(tag) != aead.TagSize {
		return fmt.Errorf("%w: unexpected tag length %d", ErrGeneric, len(tag))
	}
	clear(blob[tableProofOffset:tableHeaderSize])
	copy(blob[tableIVOffset:], iv[:])
	copy(blob[tableTagOffset:], tag)
	return nil
}

func (c *encryptedCodec) verifyTable(blob []byte) error {
	iv := blob[tableIVOffset : tableIVOffset+aead.NonceSize]
	tag := blob[tableTagOffset : tableTagOffset+aead.TagSize]
	if _, err := c.crypto.Decrypt(c.key, iv, tableAAD(blob), nil, tag); err != nil {
		return cryptoError("verify table", err)
	}
	return nil
}

func (c *encryptedCodec) close() error {
	return c.crypto.DestroyKey(c.key)
}

// plainCodec stores uid ‖ client ‖ version ‖ header ‖ data and protects
// tables with a CRC.
type plainCodec struct {
	blobs         storage.Backend
	maxObjectSize uint32
}

const plainBlobHeaderSize = 16 + infoSize

func newPlainCodec(blobs storage.Backend, maxObjectSize uint32) *plainCodec {
	return &plainCodec{blobs: blobs, maxObjectSize: maxObjectSize}
}

func (c *plainCodec) algorithm() byte { return algNone }

func (c *plainCodec) store(key uint32, e *entry, info ObjectInfo, ws *workspace) error {
	blob := make([]byte, plainBlobHeaderSize+int(info.Size))
	binary.LittleEndian.PutUint64(blob[0:8], uint64(e.uid))
	binary.LittleEndian.PutUint32(blob[8:12], uint32(e.client))
	binary.LittleEndian.PutUint32(blob[12:16], e.version)
	info.encode(blob[16:plainBlobHeaderSize])
	copy(blob[plainBlobHeaderSize:], ws.data()[:info.Size])

	if err := c.blobs.Set(key, blob); err != nil {
		return fmt.Errorf("%w: write object key %#x: %v", ErrGeneric, key, err)
	}
	return nil
}

func (c *plainCodec) load(key uint32, e entry, offset, length uint32, ws *workspace) (ObjectInfo, []byte, error) {
	hdr, err := c.blobs.Get(key, 0, plainBlobHeaderSize)
	if err != nil {
		return ObjectInfo{}, nil, storageError("read object header", key, err)
	}
	uid := UID(binary.LittleEndian.Uint64(hdr[0:8]))
	client := ClientID(binary.LittleEndian.Uint32(hdr[8:12]))
	version := binary.LittleEndian.Uint32(hdr[12:16])
	if uid != e.uid || client != e.client || version != e.version {
		return ObjectInfo{}, nil, fmt.Errorf("%w: object key %#x does not match its table entry", ErrDataCorrupt, key)
	}

	info := decodeInfo(hdr[16:plainBlobHeaderSize])
	if err := info.check(c.maxObjectSize); err != nil {
		return ObjectInfo{}, nil, err
	}
	info.encode(ws.header())

	start, n := clampRange(info.Size, offset, length)
	if n > 0 {
		data, err := c.blobs.Get(key, plainBlobHeaderSize+int(start), int(n))
		if err != nil {
			return ObjectInfo{}, nil, storageError("read object data", key, err)
		}
		copy(ws.data()[start:], data)
	}
	return info, ws.data()[start : start+n], nil
}

func (c *plainCodec) sealTable(blob []byte) error {
	clear(blob[tableProofOffset:tableHeaderSize])
	binary.LittleEndian.PutUint32(blob[tableCRCOffset:], crc32.ChecksumIEEE(blob))
	return nil
}

func (c *plainCodec) verifyTable(blob []byte) error {
	want := binary.LittleEndian.Uint32(blob[tableCRCOffset:])
	check := append([]byte(nil), blob...)
	clear(check[tableProofOffset:tableHeaderSize])
	if got := crc32.ChecksumIEEE(check); got != want {
		return fmt.Errorf("%w: table checksum %#08x, want %#08x", ErrDataCorrupt, got, want)
	}
	return nil
}

func (c *plainCodec) close() error { return nil }
