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

// Package tarstream is a from-scratch POSIX ustar reader/writer with PAX
// ('x') extended headers and GNU 'L'/'K' long-name/long-linkname headers,
// sharing the traversal/streaming contract used by the ZIP engine.
package tarstream

import (
	"strconv"
	"time"

	liberr "github.com/nabbar/parazip/errors"
)

func init() {
	if liberr.ExistInMapMessage(ErrorWrite) {
		panic("error code collision parazip/tarstream")
	}
	liberr.RegisterIdFctMessage(ErrorWrite, getMessage)
	liberr.RegisterNativeMapper(ErrorWrite, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorRead, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorBadChecksum, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorMalformedPax, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorMaliciousPath, liberr.NativeMaliciousPath)
	liberr.RegisterNativeMapper(ErrorMkdir, liberr.NativeMkdir)
}

const (
	ErrorWrite liberr.CodeError = iota + liberr.MinPkgTar
	ErrorRead
	ErrorBadChecksum
	ErrorMalformedPax
	ErrorMaliciousPath
	ErrorMkdir
)

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorWrite:
		return "tar stream write failed"
	case ErrorRead:
		return "tar stream read failed"
	case ErrorBadChecksum:
		return "tar header checksum mismatch"
	case ErrorMalformedPax:
		return "malformed pax extended header record"
	case ErrorMaliciousPath:
		return "tar entry path is malicious (absolute or contains '..')"
	case ErrorMkdir:
		return "cannot create directory during untar"
	}
	return liberr.NullMessage
}

const (
	blockSize   = 512
	nameSize    = 100
	prefixSize  = 155
	maxOctal11  = 1<<33 - 1 // largest value representable in an 11-digit octal field
)

// Typeflag values this package produces or understands.
const (
	TypeReg           byte = '0'
	TypeDir           byte = '5'
	TypeGNULongName   byte = 'L'
	TypeGNULongLink   byte = 'K'
	TypeXHeader       byte = 'x'
	TypeXGlobalHeader byte = 'g'
)

// Header describes one archive member. Name is the archive-relative path
// using '/' as separator, never starting with '/' and never containing a
// ".." segment.
type Header struct {
	Name     string
	Size     int64
	ModTime  time.Time
	Typeflag byte
}

func roundUp512(n int64) int64 {
	r := n % blockSize
	if r == 0 {
		return n
	}
	return n + (blockSize - r)
}

func paddingFor(n int64) int64 {
	r := n % blockSize
	if r == 0 {
		return 0
	}
	return blockSize - r
}

func putString(b []byte, s string) {
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// putOctal writes v as zero-padded octal ASCII terminated by a NUL into b.
// The caller must ensure v fits in len(b)-1 octal digits.
func putOctal(b []byte, v int64) {
	s := strconv.FormatInt(v, 8)
	digits := len(b) - 1
	if len(s) > digits {
		s = s[len(s)-digits:]
	}
	pad := digits - len(s)
	for i := 0; i < pad; i++ {
		b[i] = '0'
	}
	copy(b[pad:], s)
	b[len(b)-1] = 0
}

// readOctal parses zero-padded octal ASCII, stopping at the first byte that
// is not an octal digit (NUL, space, or a trailing terminator).
func readOctal(b []byte) int64 {
	var v int64
	for _, c := range b {
		if c < '0' || c > '7' {
			break
		}
		v = v<<3 | int64(c-'0')
	}
	return v
}

// checksum is the ustar header checksum: the sum of every header byte with
// the 8-byte chksum field itself treated as all spaces.
func checksum(b []byte) int64 {
	var sum int64
	for i := 0; i < 148; i++ {
		sum += int64(b[i])
	}
	sum += int64(' ') * 8
	for i := 156; i < blockSize; i++ {
		sum += int64(b[i])
	}
	return sum
}

// splitPath decides whether name fits in the ustar name/prefix fields as-is
// or split at a '/' boundary. Splitting later in the path shrinks the
// suffix (destined for the 100-byte name field) and grows the prefix
// (destined for the 155-byte prefix field), so every slash is a candidate:
// this tries them from the rightmost down, since the rightmost split
// satisfying both field limits keeps the suffix as short as possible.
// fits is false when no slash works and a long-name extension is required.
func splitPath(name string) (short, prefix string, fits bool) {
	if len(name) < nameSize {
		return name, "", true
	}

	for i := len(name) - 1; i >= 0; i-- {
		if name[i] != '/' {
			continue
		}
		p := name[:i]
		s := name[i+1:]
		if len(p) < prefixSize && len(s) < nameSize {
			return s, p, true
		}
	}

	return "", "", false
}

func rejectMalicious(name string) liberr.Error {
	if len(name) > 0 && name[0] == '/' {
		return ErrorMaliciousPath.Error(nil)
	}
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '/' {
			if name[start:i] == ".." {
				return ErrorMaliciousPath.Error(nil)
			}
			start = i + 1
		}
	}
	return nil
}
