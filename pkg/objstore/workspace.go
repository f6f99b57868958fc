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

// workspace is the buffer holding the object under operation. It holds the
// encoded header followed by up to MaxObjectSize bytes of data and is cleared
// when the operation ends.
type workspace struct {
	buf []byte
}

func newWorkspace(maxObjectSize uint32) *workspace {
	return &workspace{buf: make([]byte, infoSize+int(maxObjectSize))}
}

// header returns the encoded object header area.
func (w *workspace) header() []byte {
	return w.buf[:infoSize]
}

// data returns the object data area.
func (w *workspace) data() []byte {
	return w.buf[infoSize:]
}

// plaintext returns the encoded header followed by size bytes of data.
func (w *workspace) plaintext(size uint32) []byte {
	return w.buf[:infoSize+int(size)]
}

func (w *workspace) release() {
	clear(w.buf)
}
