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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/sirupsen/logrus"

	"github.com/nabbar/parazip/concurrent/queue"

	liberr "github.com/nabbar/parazip/errors"
)

// flateReader inflates the raw DEFLATE stream recovered from a decrypted
// entry payload, reusing the same codec the compress pipeline writes with.
func flateReader(r io.Reader) io.Reader {
	return flate.NewReader(r)
}

// extractChunkSize bounds a single streaming copy, keeping any one
// worker's transient buffer small regardless of entry size (spec §4.8).
const extractChunkSize = 16 * 1024

// ExtractOptions configures a single extract task.
type ExtractOptions struct {
	ArchivePath string
	DestDir     string
	Password    string
	ThreadCount int
}

func (o *ExtractOptions) applyDefaults() {
	if o.ThreadCount <= 0 {
		o.ThreadCount = 1
	}
}

// dirMTime remembers a directory entry's declared modification time so it
// can be reapplied after every file beneath it has been written (phase 3,
// spec §4.8: extracting files into a directory updates that directory's
// mtime, so directory timestamps must be fixed up last).
type dirMTime struct {
	path  string
	mtime time.Time
}

// ExtractTask drives the parallel extractor: phase 1 enumerates entries
// and creates the directory tree on the calling goroutine, phase 2 runs N
// workers that all open entries through one shared zip.ReadCloser (its
// per-entry Open is safe for concurrent use), and phase 3 reapplies
// directory mtimes once every file write has completed.
type ExtractTask struct {
	Progress Progress

	opts ExtractOptions

	cancelled int32
	errOnce   sync.Once
	err       liberr.Error

	log *logrus.Entry
}

// NewExtractTask builds a task that reads ArchivePath and populates DestDir.
func NewExtractTask(opts ExtractOptions, log *logrus.Entry) *ExtractTask {
	opts.applyDefaults()
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &ExtractTask{opts: opts, log: log.WithField("component", "ziparchive.extract")}
}

func (t *ExtractTask) Cancel() {
	atomic.StoreInt32(&t.cancelled, 1)
}

func (t *ExtractTask) isCancelled() bool {
	return atomic.LoadInt32(&t.cancelled) != 0
}

func (t *ExtractTask) setErr(e liberr.Error) {
	t.errOnce.Do(func() {
		t.err = e
		atomic.StoreInt32(&t.cancelled, 1)
	})
}

// Run executes the full extract pipeline synchronously.
func (t *ExtractTask) Run() liberr.Error {
	zr, err := zip.OpenReader(t.opts.ArchivePath)
	if err != nil {
		return ErrorOpenArchive.ErrorParent(err)
	}
	defer func() { _ = zr.Close() }()

	entryQueue := queue.New()
	defer entryQueue.Destroy(nil)

	var dirs []dirMTime
	var totalSize int64

	for _, f := range zr.File {
		if err := rejectMalicious(f.Name); err != nil {
			return err
		}
		if isDirEntryPath(f.Name) {
			dest := filepath.Join(t.opts.DestDir, filepath.FromSlash(f.Name))
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return ErrorMkdir.ErrorParent(err)
			}
			dirs = append(dirs, dirMTime{path: dest, mtime: f.Modified})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(filepath.Join(t.opts.DestDir, filepath.FromSlash(f.Name))), 0o755); err != nil {
			return ErrorMkdir.ErrorParent(err)
		}
		totalSize += int64(f.UncompressedSize64)
		entryQueue.Push(f)
	}
	t.Progress.addTotal(totalSize)

	for i := 0; i < t.opts.ThreadCount; i++ {
		entryQueue.Push(nil)
	}

	var wg sync.WaitGroup
	wg.Add(t.opts.ThreadCount)
	for i := 0; i < t.opts.ThreadCount; i++ {
		go func() {
			defer wg.Done()
			t.workerLoop(entryQueue)
		}()
	}
	wg.Wait()

	if t.isCancelled() {
		if t.err == nil {
			t.err = ErrorCancelled.Error(nil)
		}
		return t.err
	}

	// Phase 3: every file is on disk, now fix up directory mtimes so that
	// later file writes underneath them (already finished) don't leave
	// stale timestamps.
	for _, d := range dirs {
		_ = os.Chtimes(d.path, d.mtime, d.mtime)
	}

	return nil
}

func (t *ExtractTask) workerLoop(entryQueue *queue.Queue) {
	for {
		item, ok := entryQueue.Pop()
		if !ok || item == nil {
			return
		}
		if t.isCancelled() {
			return
		}
		f := item.(*zip.File)
		if err := t.extractOne(f); err != nil {
			t.setErr(err)
			return
		}
	}
}

func (t *ExtractTask) extractOne(f *zip.File) liberr.Error {
	dest := filepath.Join(t.opts.DestDir, filepath.FromSlash(f.Name))

	out, oerr := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode().Perm()|0o600)
	if oerr != nil {
		return ErrorIO.ErrorParent(oerr)
	}
	defer func() { _ = out.Close() }()

	t.Progress.SetCurrentFilePath(f.Name)

	var src io.Reader
	if isEntryEncrypted(&f.FileHeader) {
		if t.opts.Password == "" {
			return ErrorInvalidArgument.Error(nil)
		}
		raw, rerr := f.OpenRaw()
		if rerr != nil {
			return ErrorIO.ErrorParent(rerr)
		}
		payload, rerr := io.ReadAll(raw)
		if rerr != nil {
			return ErrorIO.ErrorParent(rerr)
		}
		_, deflated, derr := decryptEntry(t.opts.Password, payload)
		if derr != nil {
			return derr
		}
		src = flateReader(bytes.NewReader(deflated))
	} else {
		r, rerr := f.Open()
		if rerr != nil {
			return ErrorIO.ErrorParent(rerr)
		}
		defer func() { _ = r.Close() }()
		src = r
	}

	buf := make([]byte, extractChunkSize)
	var written int64
	for {
		if t.isCancelled() {
			return ErrorCancelled.Error(nil)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return ErrorIO.ErrorParent(werr)
			}
			written += int64(n)
			t.Progress.addProcessed(int64(n), 0)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ErrorIO.ErrorParent(rerr)
		}
	}

	if !f.Modified.IsZero() {
		_ = os.Chtimes(dest, f.Modified, f.Modified)
	}
	return nil
}
