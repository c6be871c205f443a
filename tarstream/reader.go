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
	"bytes"
	"io"
	"strconv"
	"time"

	liberr "github.com/nabbar/parazip/errors"
)

// Reader consumes a ustar stream, transparently folding GNU 'L'/'K' and PAX
// 'x'/'g' extension headers into the Header returned for the entry that
// follows them.
type Reader struct {
	r         io.Reader
	remaining int64
	pad       int64
	globalKV  map[string]string
}

// NewReader wraps r as a tar stream source.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next advances to the next entry, returning (nil, nil) at the end of the
// archive (the two trailing zero blocks).
func (tr *Reader) Next() (*Header, liberr.Error) {
	if err := tr.skipToNextHeader(); err != nil {
		return nil, err
	}

	var longName, longLink string
	var kv map[string]string

	for {
		block := make([]byte, blockSize)
		if _, err := io.ReadFull(tr.r, block); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, ErrorRead.ErrorParent(err)
		}

		if isZeroBlock(block) {
			return nil, nil
		}

		if checksum(block) != readOctal(block[148:156]) {
			return nil, ErrorBadChecksum.Error(nil)
		}

		typeflag := block[156]
		size := readOctal(block[124:136])

		switch typeflag {
		case TypeGNULongName:
			s, rerr := readLongString(tr.r, size)
			if rerr != nil {
				return nil, rerr
			}
			longName = s
			continue
		case TypeGNULongLink:
			s, rerr := readLongString(tr.r, size)
			if rerr != nil {
				return nil, rerr
			}
			longLink = s
			continue
		case TypeXHeader:
			values, rerr := readPaxValues(tr.r, size)
			if rerr != nil {
				return nil, rerr
			}
			if kv == nil {
				kv = make(map[string]string, len(values))
			}
			for k, v := range values {
				kv[k] = v
			}
			continue
		case TypeXGlobalHeader:
			values, rerr := readPaxValues(tr.r, size)
			if rerr != nil {
				return nil, rerr
			}
			tr.globalKV = values
			continue
		}

		name := joinNamePrefix(block)
		if longName != "" {
			name = longName
		} else if v, ok := kv["path"]; ok {
			name = v
		} else if v, ok := tr.globalKV["path"]; ok {
			name = v
		}

		if v, ok := kv["size"]; ok {
			if sz, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				size = sz
			}
		}

		if err := rejectMalicious(name); err != nil {
			return nil, err
		}

		h := &Header{
			Name:     name,
			Size:     size,
			ModTime:  time.Unix(readOctal(block[136:148]), 0),
			Typeflag: typeflag,
		}
		_ = longLink // linkname extension reserved; no symlink entries are produced by this engine

		if typeflag != TypeDir {
			tr.remaining = size
			tr.pad = paddingFor(size)
		}
		return h, nil
	}
}

// Read streams the current entry's content. It returns io.EOF once Size
// bytes have been delivered.
func (tr *Reader) Read(p []byte) (int, error) {
	if tr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > tr.remaining {
		p = p[:tr.remaining]
	}
	n, err := tr.r.Read(p)
	tr.remaining -= int64(n)
	return n, err
}

func (tr *Reader) skipToNextHeader() liberr.Error {
	total := tr.remaining + tr.pad
	tr.remaining, tr.pad = 0, 0
	if total == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, tr.r, total); err != nil {
		return ErrorRead.ErrorParent(err)
	}
	return nil
}

func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func joinNamePrefix(block []byte) string {
	name := cstr(block[0:100])
	prefix := cstr(block[345:500])
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func readLongString(r io.Reader, size int64) (string, liberr.Error) {
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, roundUp512(size))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", ErrorRead.ErrorParent(err)
	}
	return cstr(buf[:size]), nil
}

// readPaxValues parses "<len> key=value\n" records. A malformed record
// aborts parsing of this header immediately rather than attempting to
// resynchronize on the next line.
func readPaxValues(r io.Reader, size int64) (map[string]string, liberr.Error) {
	kv := make(map[string]string)
	if size == 0 {
		return kv, nil
	}

	buf := make([]byte, roundUp512(size))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrorRead.ErrorParent(err)
	}
	content := buf[:size]

	for len(content) > 0 {
		sp := bytes.IndexByte(content, ' ')
		if sp < 0 {
			return nil, ErrorMalformedPax.Error(nil)
		}

		lineLen, err := strconv.Atoi(string(content[:sp]))
		if err != nil || lineLen <= 0 || lineLen > len(content) {
			return nil, ErrorMalformedPax.Error(nil)
		}

		record := content[:lineLen]
		rest := record[sp+1:]

		eq := bytes.IndexByte(rest, '=')
		if eq < 0 {
			return nil, ErrorMalformedPax.Error(nil)
		}

		key := string(rest[:eq])
		value := bytes.TrimSuffix(rest[eq+1:], []byte("\n"))
		kv[key] = string(value)

		content = content[lineLen:]
	}

	return kv, nil
}
