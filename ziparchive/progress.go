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
	"sync/atomic"
)

// Progress is the shared counter set a compress or extract task exposes to
// its host. TotalFileSize and ProcessedFileSize/ProcessedCompressSize are
// updated with atomic adds; CurrentFilePath is published through an
// atomic.Pointer so every read is a safe snapshot, a strictly stronger
// guarantee than spec §5's "borrowed string, copy before use" contract
// while preserving its calling convention (see SPEC_FULL.md open question
// decisions).
type Progress struct {
	TotalFileSize         int64
	ProcessedFileSize     int64
	ProcessedCompressSize int64

	currentFilePath atomic.Pointer[string]
}

func (p *Progress) addTotal(n int64) {
	atomic.AddInt64(&p.TotalFileSize, n)
}

func (p *Progress) addProcessed(fileN, compressN int64) {
	atomic.AddInt64(&p.ProcessedFileSize, fileN)
	atomic.AddInt64(&p.ProcessedCompressSize, compressN)
}

// SetCurrentFilePath publishes the file currently being materialized.
func (p *Progress) SetCurrentFilePath(path string) {
	p.currentFilePath.Store(&path)
}

// CurrentFilePath snapshots the file currently being materialized.
func (p *Progress) CurrentFilePath() string {
	if v := p.currentFilePath.Load(); v != nil {
		return *v
	}
	return ""
}

// Snapshot returns the current totals without the live path.
func (p *Progress) Snapshot() (total, processedFile, processedCompress int64) {
	return atomic.LoadInt64(&p.TotalFileSize),
		atomic.LoadInt64(&p.ProcessedFileSize),
		atomic.LoadInt64(&p.ProcessedCompressSize)
}
