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
	"strings"
	"time"

	liberr "github.com/nabbar/parazip/errors"
)

// EntryStat mirrors spec §3's "Entry stat" record: everything a caller can
// learn about one archive member without opening its stream.
type EntryStat struct {
	Index    int
	Name     string
	Size     int64
	CompSize int64
	MTime    time.Time
	IsDir    bool
}

// Reader is a read-only handle over an existing archive, used by
// list_entries and by the mutation helpers' existence checks. Unlike
// Archive (single-writer, used during compression), a Reader never
// mutates; callers may open as many concurrently as they like. The
// extractor does not use Reader: it opens its own zip.ReadCloser.
type Reader struct {
	zr *zip.ReadCloser
}

// OpenReader opens path read-only.
func OpenReader(path string) (*Reader, liberr.Error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, ErrorOpenArchive.ErrorParent(err)
	}
	return &Reader{zr: zr}, nil
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() liberr.Error {
	if err := r.zr.Close(); err != nil {
		return ErrorCloseArchive.ErrorParent(err)
	}
	return nil
}

// NumEntries reports the archive's total entry count.
func (r *Reader) NumEntries() int {
	return len(r.zr.File)
}

// StatAt returns the entry at index, in central-directory order.
func (r *Reader) StatAt(index int) (EntryStat, liberr.Error) {
	if index < 0 || index >= len(r.zr.File) {
		return EntryStat{}, ErrorEntryNotFound.Error(nil)
	}
	return statOf(index, r.zr.File[index]), nil
}

// Locate returns the entry named name, or ErrorEntryNotFound.
func (r *Reader) Locate(name string) (EntryStat, liberr.Error) {
	for i, f := range r.zr.File {
		if f.Name == name {
			return statOf(i, f), nil
		}
	}
	return EntryStat{}, ErrorEntryNotFound.Error(nil)
}

// ListEntries returns every entry whose name begins with prefix. When
// recursive is false, only the immediate children of prefix are returned
// (directories one level down collapse to their own entry, their
// descendants are skipped) — spec §6's list_entries(prefix, recursive).
func (r *Reader) ListEntries(prefix string, recursive bool) []EntryStat {
	var out []EntryStat
	for i, f := range r.zr.File {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		rest := f.Name[len(prefix):]
		if rest == "" {
			continue
		}
		if !recursive {
			if idx := strings.IndexByte(strings.TrimSuffix(rest, "/"), '/'); idx >= 0 {
				continue
			}
		}
		out = append(out, statOf(i, f))
	}
	return out
}

func statOf(index int, f *zip.File) EntryStat {
	return EntryStat{
		Index:    index,
		Name:     f.Name,
		Size:     int64(f.UncompressedSize64),
		CompSize: int64(f.CompressedSize64),
		MTime:    f.Modified,
		IsDir:    isDirEntryPath(f.Name),
	}
}
