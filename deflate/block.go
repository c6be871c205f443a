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

// Package deflate implements the per-block raw DEFLATE compressor that
// feeds the ZIP engine's parallel pipeline: each block is compressed
// through a fresh stream and terminated with either a sync flush (interior
// blocks) or a full finish (the last block of a file), so that the
// concatenation of every block's output is itself a single valid DEFLATE
// stream.
package deflate

import (
	"bytes"
	"hash/crc32"

	"github.com/klauspost/compress/flate"

	liberr "github.com/nabbar/parazip/errors"
)

func init() {
	if liberr.ExistInMapMessage(ErrorStreamOpen) {
		panic("error code collision parazip/deflate")
	}
	liberr.RegisterIdFctMessage(ErrorStreamOpen, getMessage)
	liberr.RegisterNativeMapper(ErrorStreamOpen, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorStreamWrite, liberr.NativeInternalError)
}

const (
	ErrorStreamOpen liberr.CodeError = iota + liberr.MinPkgDeflate
	ErrorStreamWrite
)

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorStreamOpen:
		return "cannot open deflate stream"
	case ErrorStreamWrite:
		return "deflate stream write failed"
	}
	return liberr.NullMessage
}

// Flush selects how a block's compressed output is terminated.
type Flush int

const (
	// NoFlush keeps the stream open with no block boundary marker.
	NoFlush Flush = iota
	// BlockFlush emits a sync-flush: an empty stored block that leaves
	// the stream open, used for every interior block of a file.
	BlockFlush
	// Finish seals the stream, used for the last block of a file.
	Finish
)

// Block is a single fresh per-block DEFLATE stream, created anew for each
// block (spec §4.5: "a fresh deflate stream per block").
type Block struct {
	buf *bytes.Buffer
	w   *flate.Writer
}

// NewBlock opens a new raw-DEFLATE stream at the given compression level
// (1-9, or flate.DefaultCompression).
func NewBlock(level int) (*Block, liberr.Error) {
	buf := &bytes.Buffer{}
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, ErrorStreamOpen.ErrorParent(err)
	}
	return &Block{buf: buf, w: w}, nil
}

// Compress drains the entire input through the stream and terminates it per
// flush, returning the compressed output produced by this call. The caller
// is expected to size its own buffers via DeflateBound if needed; this
// implementation returns a freshly allocated slice instead of requiring a
// pre-sized one, which is safe and idiomatic in Go.
func (b *Block) Compress(in []byte, flush Flush) ([]byte, liberr.Error) {
	if len(in) > 0 {
		if _, err := b.w.Write(in); err != nil {
			return nil, ErrorStreamWrite.ErrorParent(err)
		}
	}

	switch flush {
	case BlockFlush:
		if err := b.w.Flush(); err != nil {
			return nil, ErrorStreamWrite.ErrorParent(err)
		}
	case Finish:
		if err := b.w.Close(); err != nil {
			return nil, ErrorStreamWrite.ErrorParent(err)
		}
	}

	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	b.buf.Reset()
	return out, nil
}

// DeflateBound returns a safe upper bound on the compressed size of
// sourceLen uncompressed bytes, enough to size a caller-owned buffer for a
// single Compress call with headroom for stored-block fallback.
func DeflateBound(sourceLen int64) int64 {
	return sourceLen + (sourceLen/16000+1)*5 + 64
}

// CRC32 is a simple running CRC-32 (IEEE) accumulator over uncompressed
// bytes, one per block, later stitched together by Combine.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Combine is the GF(2) polynomial CRC-32 combine: given crc(A), crc(B), and
// len(B), it returns crc(A||B) in O(log(len(B))) time without re-reading A
// or B. This is the classic zlib crc32_combine algorithm, reimplemented
// directly on hash/crc32's IEEE polynomial since no dependency in this
// module's stack exposes it (see DESIGN.md).
func Combine(crc1, crc2 uint32, len2 int64) uint32 {
	if len2 == 0 {
		return crc1
	}

	var even, odd [32]uint32

	// operator for one zero bit
	odd[0] = 0xEDB88320 // CRC-32 (IEEE) polynomial, reflected
	row := uint32(1)
	for n := 1; n < 32; n++ {
		odd[n] = row
		row <<= 1
	}

	gf2MatrixSquare(&even, &odd) // operator for two zero bits
	gf2MatrixSquare(&odd, &even) // operator for four zero bits

	n := len2
	for {
		gf2MatrixSquare(&even, &odd)
		if n&1 != 0 {
			crc1 = gf2MatrixTimes(&even, crc1)
		}
		n >>= 1
		if n == 0 {
			break
		}

		gf2MatrixSquare(&odd, &even)
		if n&1 != 0 {
			crc1 = gf2MatrixTimes(&odd, crc1)
		}
		n >>= 1
		if n == 0 {
			break
		}
	}

	return crc1 ^ crc2
}

func gf2MatrixTimes(mat *[32]uint32, vec uint32) uint32 {
	var sum uint32
	i := 0
	for vec != 0 {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
		i++
	}
	return sum
}

func gf2MatrixSquare(square, mat *[32]uint32) {
	for n := 0; n < 32; n++ {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}
