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
	"bytes"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nabbar/parazip/concurrent/counter"
	"github.com/nabbar/parazip/concurrent/queue"
	"github.com/nabbar/parazip/deflate"
	"github.com/nabbar/parazip/fswalk"

	liberr "github.com/nabbar/parazip/errors"
)

const (
	// DefaultMaxBlockSize is the block size a CompressOptions falls back to
	// when unset (spec §4.7's worked examples use 8 MiB blocks).
	DefaultMaxBlockSize int64 = 8 * 1024 * 1024
	// DefaultMaxMemory bounds the aggregate in-flight uncompressed bytes
	// admitted across the whole pipeline when CompressOptions leaves it
	// unset.
	DefaultMaxMemory int64 = 128 * 1024 * 1024
)

// CompressOptions configures a single compress task. See config.go for the
// viper-bindable wire form.
type CompressOptions struct {
	Roots        []string
	EntryBase    string
	Level        int
	Password     string
	SkipTopLevel bool
	ThreadCount  int
	MaxBlockSize int64
	MaxMemory    int64
}

func (o *CompressOptions) applyDefaults() {
	if o.MaxBlockSize <= 0 {
		o.MaxBlockSize = DefaultMaxBlockSize
	}
	if o.MaxMemory <= 0 {
		o.MaxMemory = DefaultMaxMemory
	}
	if o.ThreadCount <= 0 {
		o.ThreadCount = 1
	}
}

// blockJob is one unit of work handed to a compression worker: a byte range
// of a single source file.
type blockJob struct {
	file   *fileJob
	index  int
	offset int64
	size   int64
	last   bool
}

// fileJob accumulates the per-block compressed results of one source file
// until every block has landed, at which point it is handed to the single
// archive-writer goroutine.
type fileJob struct {
	relPath string
	f       *os.File
	size    int64
	mtime   time.Time

	numBlocks int
	sizes     []int64
	mu        sync.Mutex
	remaining int32
	results   [][]byte
	crcs      []uint32
}

// CompressTask drives the parallel block-compression pipeline against one
// Archive: traversal on the calling goroutine, N compression workers, and a
// single writer goroutine that commits finished files in whatever order
// they complete (spec §4.7: entry order in the resulting archive is
// unspecified).
type CompressTask struct {
	Progress Progress

	archive *Archive
	opts    CompressOptions

	cancelled int32
	errOnce   sync.Once
	err       liberr.Error

	memCounter   *counter.Counter
	blockCounter *counter.Counter

	log *logrus.Entry
}

// CompressDirs builds and runs a compress task over every root in one
// call, matching the original's `zipDir_async` `dirCount`/`dirList`
// parameter pair (spec §6.2): each root is walked in sequence within the
// same traversal phase, contributing entries to a single output archive.
func CompressDirs(roots []string, archive *Archive, opts CompressOptions, log *logrus.Entry) (*Progress, liberr.Error) {
	opts.Roots = roots
	t := NewCompressTask(archive, opts, log)
	err := t.Run()
	return &t.Progress, err
}

// NewCompressTask builds a task around an already-created Archive.
func NewCompressTask(archive *Archive, opts CompressOptions, log *logrus.Entry) *CompressTask {
	opts.applyDefaults()
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &CompressTask{
		archive:      archive,
		opts:         opts,
		memCounter:   counter.New(0, opts.MaxMemory),
		blockCounter: counter.New(0, math.MaxInt64),
		log:          log.WithField("component", "ziparchive.compress"),
	}
}

// Cancel requests cooperative shutdown: in-flight Add calls on the memory
// counter are released immediately and workers/writer drain without
// processing further work.
func (t *CompressTask) Cancel() {
	atomic.StoreInt32(&t.cancelled, 1)
	t.memCounter.Invalidate()
}

func (t *CompressTask) isCancelled() bool {
	return atomic.LoadInt32(&t.cancelled) != 0
}

func (t *CompressTask) setErr(e liberr.Error) {
	t.errOnce.Do(func() {
		t.err = e
		atomic.StoreInt32(&t.cancelled, 1)
		t.memCounter.Invalidate()
	})
}

// Run executes the full compress pipeline synchronously: traversal,
// parallel block compression, serialized archive writes, and final
// Close/Discard of the underlying archive. Callers that need async
// semantics wrap this in the task package (spec §4.10).
func (t *CompressTask) Run() liberr.Error {
	if err := validateEntryBase(t.opts.EntryBase); err != nil {
		return err
	}
	for _, root := range t.opts.Roots {
		if err := validateRoot(root); err != nil {
			return err
		}
	}
	if t.opts.Password != "" {
		t.archive.SetDefaultPassword(t.opts.Password)
	}

	blockQueue := queue.New()
	readyFiles := queue.New()

	t.traverse(blockQueue)

	for i := 0; i < t.opts.ThreadCount+1; i++ {
		blockQueue.Push(nil)
	}

	var wg sync.WaitGroup
	wg.Add(t.opts.ThreadCount)
	for i := 0; i < t.opts.ThreadCount; i++ {
		go func() {
			defer wg.Done()
			t.blockWorkerLoop(blockQueue, readyFiles)
		}()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writerLoop(readyFiles)
	}()

	wg.Wait()
	readyFiles.Push(nil)
	<-writerDone

	if t.isCancelled() {
		if t.err == nil {
			t.err = ErrorCancelled.Error(nil)
		}
		_ = t.archive.Discard()
	} else if err := t.archive.Close(); err != nil {
		t.setErr(err)
		_ = t.archive.Discard()
	}

	blockQueue.Destroy(nil)
	readyFiles.Destroy(nil)
	t.memCounter.Destroy()
	t.blockCounter.Destroy()

	if m, b := t.memCounter.Get(), t.blockCounter.Get(); m != 0 || b != 0 {
		t.log.WithFields(logrus.Fields{"mem": m, "blocks": b}).
			Warn("compress task ended with non-zero in-flight counters")
	}

	return t.err
}

// traverse walks every root on the calling goroutine, registering
// directories and zero-size files directly and chaining every regular
// file's blocks onto blockQueue.
func (t *CompressTask) traverse(blockQueue *queue.Queue) {
	for _, root := range t.opts.Roots {
		if t.isCancelled() {
			return
		}
		werr := fswalk.Walk(root, t.opts.EntryBase, t.opts.SkipTopLevel, func(absPath, archivePath string, st fswalk.Stat) error {
			if t.isCancelled() {
				return ErrorCancelled.Error(nil)
			}
			if st.IsDir {
				return t.archive.AddDir(archivePath, st.MTime)
			}
			if st.Size == 0 {
				if err := t.archive.AddEmptyFile(archivePath, st.MTime); err != nil {
					return err
				}
				return nil
			}

			f, oerr := os.Open(absPath)
			if oerr != nil {
				return ErrorIO.ErrorParent(oerr)
			}

			fj := &fileJob{relPath: archivePath, f: f, size: st.Size, mtime: st.MTime}
			fj.numBlocks = int((st.Size + t.opts.MaxBlockSize - 1) / t.opts.MaxBlockSize)
			fj.sizes = make([]int64, fj.numBlocks)
			fj.remaining = int32(fj.numBlocks)
			fj.results = make([][]byte, fj.numBlocks)
			fj.crcs = make([]uint32, fj.numBlocks)

			for i := 0; i < fj.numBlocks; i++ {
				off := int64(i) * t.opts.MaxBlockSize
				sz := t.opts.MaxBlockSize
				if off+sz > st.Size {
					sz = st.Size - off
				}
				fj.sizes[i] = sz
				blockQueue.Push(&blockJob{file: fj, index: i, offset: off, size: sz, last: i == fj.numBlocks-1})
			}

			t.Progress.addTotal(st.Size)
			return nil
		})
		if werr != nil {
			t.setErr(werr)
			return
		}
	}
}

func (t *CompressTask) blockWorkerLoop(blockQueue, readyFiles *queue.Queue) {
	for {
		item, ok := blockQueue.Pop()
		if !ok || item == nil {
			return
		}
		bj := item.(*blockJob)

		t.memCounter.Add(bj.size)
		if t.isCancelled() {
			t.memCounter.Sub(bj.size)
			return
		}

		compressed, crc, err := compressBlock(bj, t.opts.Level)
		if err != nil {
			t.setErr(err)
			t.memCounter.Sub(bj.size)
			return
		}

		// The raw bytes this block reserved memCounter space for are fully
		// consumed once compression finishes; only the (much smaller)
		// compressed payload is kept around until the file is written, and
		// that is tracked separately by blockCounter. Releasing here, not
		// at end-of-file in releaseFile, is what keeps admission bounded by
		// MaxMemory regardless of how many blocks a single file spans.
		t.memCounter.Sub(bj.size)
		t.blockCounter.Add(1)

		bj.file.mu.Lock()
		bj.file.results[bj.index] = compressed
		bj.file.crcs[bj.index] = crc
		bj.file.mu.Unlock()

		if atomic.AddInt32(&bj.file.remaining, -1) == 0 {
			readyFiles.Push(bj.file)
		}
	}
}

func compressBlock(bj *blockJob, level int) ([]byte, uint32, liberr.Error) {
	buf := make([]byte, bj.size)
	if _, err := bj.file.f.ReadAt(buf, bj.offset); err != nil {
		return nil, 0, ErrorIO.ErrorParent(err)
	}

	blk, berr := deflate.NewBlock(level)
	if berr != nil {
		return nil, 0, berr
	}

	flush := deflate.BlockFlush
	if bj.last {
		flush = deflate.Finish
	}

	compressed, cerr := blk.Compress(buf, flush)
	if cerr != nil {
		return nil, 0, cerr
	}

	return compressed, deflate.CRC32(buf), nil
}

func (t *CompressTask) writerLoop(readyFiles *queue.Queue) {
	for {
		item, ok := readyFiles.Pop()
		if !ok || item == nil {
			return
		}
		fj := item.(*fileJob)

		if t.isCancelled() {
			t.releaseFile(fj)
			continue
		}
		if err := t.writeFile(fj); err != nil {
			t.setErr(err)
		}
	}
}

func (t *CompressTask) writeFile(fj *fileJob) liberr.Error {
	defer t.releaseFile(fj)

	var buf bytes.Buffer
	var crc uint32
	for i := 0; i < fj.numBlocks; i++ {
		buf.Write(fj.results[i])
		if i == 0 {
			crc = fj.crcs[0]
		} else {
			crc = deflate.Combine(crc, fj.crcs[i], fj.sizes[i])
		}
	}

	t.Progress.SetCurrentFilePath(fj.relPath)

	var werr liberr.Error
	if t.archive.password != "" {
		payload, eerr := encryptEntry(t.archive.password, crc, buf.Bytes())
		if eerr != nil {
			return eerr
		}
		werr = t.archive.addEncryptedFile(fj.relPath, fj.mtime, payload)
	} else {
		werr = t.archive.addDeflatedFile(fj.relPath, fj.mtime, crc, bytes.NewReader(buf.Bytes()), int64(buf.Len()), fj.size)
	}
	if werr != nil {
		return werr
	}

	t.Progress.addProcessed(fj.size, int64(buf.Len()))
	return nil
}

func (t *CompressTask) releaseFile(fj *fileJob) {
	_ = fj.f.Close()
	t.blockCounter.Sub(int64(fj.numBlocks))
}
