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

package tarstream

import (
	"fmt"
	"io"
	"strconv"

	liberr "github.com/nabbar/parazip/errors"
)

// Writer emits a ustar stream: WriteHeader starts an entry, Write streams
// its content, and Close pads the last entry and appends the two trailing
// zero blocks that terminate the archive.
type Writer struct {
	w         io.Writer
	curSize   int64
	haveEntry bool
}

// NewWriter wraps w as a tar stream sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader finishes padding the previous entry (if any), then writes
// whatever extension headers the entry's name/size require followed by the
// regular ustar header. Directories carry Typeflag '5' and no content;
// regular files carry '0' and must be followed by exactly Size bytes
// written through Write.
func (tw *Writer) WriteHeader(h Header) liberr.Error {
	if err := tw.pad(); err != nil {
		return err
	}
	if err := rejectMalicious(h.Name); err != nil {
		return err
	}

	short, prefix, fits := splitPath(h.Name)
	sizeOverflow := h.Typeflag != TypeDir && h.Size > maxOctal11

	if !fits {
		if err := writeLongName(tw.w, h.Name); err != nil {
			return err
		}
	}

	// The original compressor forces a PAX header unconditionally, so any
	// entry whose path didn't fit the legacy fields also carries its path
	// (and, if needed, its true size) as PAX records in addition to the
	// GNU long-name header above.
	if !fits || sizeOverflow {
		kv := make(map[string]string, 2)
		if !fits {
			kv["path"] = h.Name
		}
		if sizeOverflow {
			kv["size"] = strconv.FormatInt(h.Size, 10)
		}
		if err := writePaxHeader(tw.w, kv); err != nil {
			return err
		}
	}

	block := make([]byte, blockSize)
	putString(block[0:100], short)
	copy(block[100:108], "0000644\x00")
	if h.Typeflag != TypeDir && !sizeOverflow {
		putOctal(block[124:136], h.Size)
	}
	putOctal(block[136:148], h.ModTime.Unix())
	block[156] = h.Typeflag
	copy(block[257:263], "ustar\x00")
	copy(block[263:265], "00")
	putString(block[345:500], prefix)
	putOctal(block[148:156], checksum(block))

	if _, err := tw.w.Write(block); err != nil {
		return ErrorWrite.ErrorParent(err)
	}

	tw.curSize = h.Size
	tw.haveEntry = h.Typeflag != TypeDir
	return nil
}

// Write streams entry content through to the underlying writer. The caller
// must write exactly the Size passed to the preceding WriteHeader.
func (tw *Writer) Write(p []byte) (int, error) {
	n, err := tw.w.Write(p)
	if err != nil {
		return n, ErrorWrite.ErrorParent(err)
	}
	return n, nil
}

// Close pads the final entry to a block boundary and writes the two
// trailing zero blocks that mark the end of the archive.
func (tw *Writer) Close() liberr.Error {
	if err := tw.pad(); err != nil {
		return err
	}
	if _, err := tw.w.Write(make([]byte, blockSize*2)); err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	return nil
}

func (tw *Writer) pad() liberr.Error {
	if !tw.haveEntry {
		return nil
	}
	tw.haveEntry = false
	pad := paddingFor(tw.curSize)
	tw.curSize = 0
	if pad == 0 {
		return nil
	}
	if _, err := tw.w.Write(make([]byte, pad)); err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	return nil
}

func writeLongName(w io.Writer, name string) liberr.Error {
	payload := append([]byte(name), 0)

	block := make([]byte, blockSize)
	putString(block[0:100], "././@LongLink")
	putOctal(block[124:136], int64(len(payload)))
	block[156] = TypeGNULongName
	copy(block[257:263], "ustar\x00")
	copy(block[263:265], "00")
	putOctal(block[148:156], checksum(block))

	if _, err := w.Write(block); err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	if _, err := w.Write(payload); err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	if pad := paddingFor(int64(len(payload))); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return ErrorWrite.ErrorParent(err)
		}
	}
	return nil
}

func writePaxHeader(w io.Writer, kv map[string]string) liberr.Error {
	var payload []byte
	if v, ok := kv["path"]; ok {
		payload = append(payload, paxRecord("path", v)...)
	}
	if v, ok := kv["size"]; ok {
		payload = append(payload, paxRecord("size", v)...)
	}

	block := make([]byte, blockSize)
	putOctal(block[124:136], int64(len(payload)))
	block[156] = TypeXHeader
	copy(block[257:263], "ustar\x00")
	copy(block[263:265], "00")
	putOctal(block[148:156], checksum(block))

	if _, err := w.Write(block); err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	if _, err := w.Write(payload); err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	if pad := paddingFor(int64(len(payload))); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return ErrorWrite.ErrorParent(err)
		}
	}
	return nil
}

// paxRecord builds one "<len> key=value\n" line whose declared length
// includes the length field's own digits, per POSIX.1-2001.
func paxRecord(key, value string) string {
	base := len(key) + len(value) + 3 // ' ' + '=' + '\n'
	l := base + len(strconv.Itoa(base))
	for {
		next := base + len(strconv.Itoa(l))
		if next == l {
			break
		}
		l = next
	}
	return fmt.Sprintf("%d %s=%s\n", l, key, value)
}
