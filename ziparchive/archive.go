/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package ziparchive

import (
	"archive/zip"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	liberr "github.com/nabbar/parazip/errors"
)

// privateExtraFieldID tags an entry written by this engine's own AES
// encryption wrapper (see aes.go). It is not the WinZip AE-x field
// (0x9901): entries marked this way are opaque to third-party unzip
// tools and are only ever read back by this package's own extractor.
const privateExtraFieldID = 0xA5A5

// Archive is a single-writer, pluggable container over stdlib archive/zip.
// Traversal registers entries during compression and the worker-pool
// writer commits them via Close; no other goroutine touches the handle
// while a write is in flight (spec §5: "the archive handle is single-
// writer").
type Archive struct {
	path     string
	password string

	mu sync.Mutex
	f  *os.File
	zw *zip.Writer

	names map[string]bool
}

// Create opens path with CREATE semantics (truncating any existing file)
// ready to receive entries.
func Create(path, password string) (*Archive, liberr.Error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ErrorOpenArchive.ErrorParent(err)
	}
	return &Archive{
		path:     path,
		password: password,
		f:        f,
		zw:       zip.NewWriter(f),
		names:    make(map[string]bool),
	}, nil
}

// Close commits the archive: central directory is written and the
// underlying file descriptor closed.
func (a *Archive) Close() liberr.Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.zw != nil {
		if err := a.zw.Close(); err != nil {
			_ = a.f.Close()
			return ErrorCloseArchive.ErrorParent(err)
		}
	}
	if err := a.f.Close(); err != nil {
		return ErrorCloseArchive.ErrorParent(err)
	}
	return nil
}

// Discard abandons the archive: the partially-written file is removed
// rather than committed.
func (a *Archive) Discard() liberr.Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_ = a.f.Close()
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return ErrorIO.ErrorParent(err)
	}
	return nil
}

// SetDefaultPassword sets the password applied to every non-empty file
// entry written from this point on (directories and zero-size files are
// stored unencrypted), unless a later call changes it again (spec §6's
// supplemented "default entry password" behavior, ported from the
// original's setDefaultPassword).
func (a *Archive) SetDefaultPassword(password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.password = password
}

func (a *Archive) register(name string) liberr.Error {
	if a.names[name] {
		return ErrorEntryExists.Error(nil)
	}
	a.names[name] = true
	return nil
}

// AddDir registers a directory entry, erroring if the same name was
// already registered.
func (a *Archive) AddDir(relPath string, mtime time.Time) liberr.Error {
	if err := rejectMalicious(relPath); err != nil {
		return err
	}
	name := strings.TrimSuffix(relPath, "/") + "/"

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.register(name); err != nil {
		return err
	}

	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	hdr.Modified = mtime
	if _, err := a.zw.CreateHeader(hdr); err != nil {
		return ErrorIO.ErrorParent(err)
	}
	return nil
}

// AddEmptyFile registers a zero-size file with no compressed content,
// per spec §4.7's "plain file-source without any blocks".
func (a *Archive) AddEmptyFile(relPath string, mtime time.Time) liberr.Error {
	if err := rejectMalicious(relPath); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.register(relPath); err != nil {
		return err
	}

	hdr := &zip.FileHeader{Name: relPath, Method: zip.Store}
	hdr.Modified = mtime
	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return ErrorIO.ErrorParent(err)
	}
	_ = w
	return nil
}

// extTimeExtra encodes mtime as an extended-timestamp (0x5455) extra field.
// CreateRaw, unlike CreateHeader, does not derive one from Modified.
func extTimeExtra(mtime time.Time) []byte {
	var b [9]byte
	binary.LittleEndian.PutUint16(b[0:2], 0x5455)
	binary.LittleEndian.PutUint16(b[2:4], 5)
	b[4] = 1
	binary.LittleEndian.PutUint32(b[5:9], uint32(mtime.Unix()))
	return b[:]
}

// addDeflatedFile streams an already-compressed raw DEFLATE payload into
// the archive via CreateRaw, bypassing the container's own compressor:
// the caller (the block pipeline) already produced the final bytes and
// CRC, so there is nothing left for the container to do but place them.
func (a *Archive) addDeflatedFile(relPath string, mtime time.Time, crc uint32, compressed io.Reader, compSize, uncompSize int64) liberr.Error {
	if err := rejectMalicious(relPath); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.register(relPath); err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:               relPath,
		Method:             zip.Deflate,
		CRC32:              crc,
		CompressedSize64:   uint64(compSize),
		UncompressedSize64: uint64(uncompSize),
	}
	hdr.Modified = mtime
	hdr.Extra = extTimeExtra(mtime)

	w, err := a.zw.CreateRaw(hdr)
	if err != nil {
		return ErrorIO.ErrorParent(err)
	}
	if _, cerr := io.Copy(w, compressed); cerr != nil {
		return ErrorIO.ErrorParent(cerr)
	}
	return nil
}

// addEncryptedFile stores a password-wrapped payload (see aes.go) as an
// opaque stored entry, tagged with privateExtraFieldID so this engine's
// own extractor knows to decrypt it before inflating.
func (a *Archive) addEncryptedFile(relPath string, mtime time.Time, payload []byte) liberr.Error {
	if err := rejectMalicious(relPath); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.register(relPath); err != nil {
		return err
	}

	var extra [4]byte
	binary.LittleEndian.PutUint16(extra[0:2], privateExtraFieldID)
	binary.LittleEndian.PutUint16(extra[2:4], 0)

	hdr := &zip.FileHeader{
		Name:               relPath,
		Method:             zip.Store,
		CRC32:              crc32Of(payload),
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: uint64(len(payload)),
		Extra:              extra[:],
	}
	hdr.Modified = mtime
	hdr.Extra = append(hdr.Extra, extTimeExtra(mtime)...)

	w, err := a.zw.CreateRaw(hdr)
	if err != nil {
		return ErrorIO.ErrorParent(err)
	}
	if _, cerr := w.Write(payload); cerr != nil {
		return ErrorIO.ErrorParent(cerr)
	}
	return nil
}

func isEntryEncrypted(hdr *zip.FileHeader) bool {
	b := hdr.Extra
	for len(b) >= 4 {
		id := binary.LittleEndian.Uint16(b[0:2])
		size := binary.LittleEndian.Uint16(b[2:4])
		if int(size) > len(b)-4 {
			break
		}
		if id == privateExtraFieldID {
			return true
		}
		b = b[4+int(size):]
	}
	return false
}
