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
	"io"
	"os"
	"path/filepath"

	liberr "github.com/nabbar/parazip/errors"
	"github.com/nabbar/parazip/fswalk"
)

// TarDir walks root and writes it as a ustar stream to w. When
// skipTopLevel is true, root's own directory entry is omitted and its
// children become the top of the archive.
func TarDir(w io.Writer, root string, skipTopLevel bool) liberr.Error {
	tw := NewWriter(w)

	werr := fswalk.Walk(root, "", skipTopLevel, func(absPath, archivePath string, st fswalk.Stat) error {
		if st.IsDir {
			return tw.WriteHeader(Header{
				Name:     archivePath,
				Typeflag: TypeDir,
				ModTime:  st.MTime,
			})
		}

		if err := tw.WriteHeader(Header{
			Name:     archivePath,
			Size:     st.Size,
			Typeflag: TypeReg,
			ModTime:  st.MTime,
		}); err != nil {
			return err
		}

		f, oerr := os.Open(absPath)
		if oerr != nil {
			return ErrorRead.ErrorParent(oerr)
		}
		defer func() { _ = f.Close() }()

		if _, cerr := io.Copy(tw, f); cerr != nil {
			return ErrorRead.ErrorParent(cerr)
		}
		return nil
	})
	if werr != nil {
		return werr
	}

	return tw.Close()
}

// UntarToDir reads a ustar stream and materializes it under dir. Entries
// whose path is absolute or contains a ".." segment are rejected before
// anything is written, per the malicious-path gate shared with the ZIP
// engine.
func UntarToDir(r io.Reader, dir string) liberr.Error {
	tr := NewReader(r)

	for {
		h, herr := tr.Next()
		if herr != nil {
			return herr
		}
		if h == nil {
			return nil
		}

		target := filepath.Join(dir, filepath.FromSlash(h.Name))

		switch h.Typeflag {
		case TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return ErrorMkdir.ErrorParent(err)
			}
		case TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return ErrorMkdir.ErrorParent(err)
			}
			if err := writeRegularFile(target, tr); err != nil {
				return err
			}
		}
	}
}

func writeRegularFile(target string, r io.Reader) liberr.Error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ErrorWrite.ErrorParent(err)
	}
	defer func() { _ = f.Close() }()

	if _, cerr := io.Copy(f, r); cerr != nil {
		return ErrorWrite.ErrorParent(cerr)
	}
	return nil
}
