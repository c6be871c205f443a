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

package tarstream_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/parazip/tarstream"
)

func TestTarstream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "tarstream Suite")
}

var _ = Describe("Writer/Reader round trip", func() {
	It("reconstructs a small tree bit-exact", func() {
		var buf bytes.Buffer
		tw := tarstream.NewWriter(&buf)

		Expect(tw.WriteHeader(tarstream.Header{
			Name: "a/", Typeflag: tarstream.TypeDir, ModTime: time.Unix(1000, 0),
		})).To(BeNil())

		content := []byte("hello world")
		Expect(tw.WriteHeader(tarstream.Header{
			Name: "a/b.txt", Size: int64(len(content)), Typeflag: tarstream.TypeReg, ModTime: time.Unix(1000, 0),
		})).To(BeNil())
		_, werr := tw.Write(content)
		Expect(werr).To(BeNil())

		Expect(tw.Close()).To(BeNil())

		tr := tarstream.NewReader(&buf)

		h, herr := tr.Next()
		Expect(herr).To(BeNil())
		Expect(h.Name).To(Equal("a/"))
		Expect(h.Typeflag).To(Equal(tarstream.TypeDir))

		h, herr = tr.Next()
		Expect(herr).To(BeNil())
		Expect(h.Name).To(Equal("a/b.txt"))
		Expect(h.Size).To(Equal(int64(len(content))))

		got := make([]byte, h.Size)
		n := 0
		for n < len(got) {
			m, rerr := tr.Read(got[n:])
			Expect(rerr).To(BeNil())
			n += m
		}
		Expect(got).To(Equal(content))

		h, herr = tr.Next()
		Expect(herr).To(BeNil())
		Expect(h).To(BeNil())
	})

	It("forces a GNU long-name header followed by a PAX header for a path over 100 bytes, and reconstructs it bit-exact", func() {
		longName := strings.Repeat("segment-without-slash-", 8) + "tail.bin"
		Expect(len(longName)).To(BeNumerically(">", 100))

		var buf bytes.Buffer
		tw := tarstream.NewWriter(&buf)

		content := []byte("payload")
		Expect(tw.WriteHeader(tarstream.Header{
			Name: longName, Size: int64(len(content)), Typeflag: tarstream.TypeReg, ModTime: time.Unix(2000, 0),
		})).To(BeNil())
		_, werr := tw.Write(content)
		Expect(werr).To(BeNil())
		Expect(tw.Close()).To(BeNil())

		raw := buf.Bytes()
		var typeflags []byte
		off := 0
		for off+512 <= len(raw) {
			block := raw[off : off+512]
			isZero := true
			for _, b := range block {
				if b != 0 {
					isZero = false
					break
				}
			}
			if isZero {
				break
			}

			typeflags = append(typeflags, block[156])

			size := 0
			for _, c := range block[124:136] {
				if c < '0' || c > '7' {
					break
				}
				size = size<<3 | int(c-'0')
			}
			padded := size
			if r := padded % 512; r != 0 {
				padded += 512 - r
			}
			off += 512 + padded
		}
		Expect(typeflags).To(Equal([]byte{'L', 'x', '0'}), "GNU long-name header precedes the PAX header which precedes the regular entry")

		tr := tarstream.NewReader(bytes.NewReader(raw))
		h, herr := tr.Next()
		Expect(herr).To(BeNil())
		Expect(h.Name).To(Equal(longName))
		Expect(h.Size).To(Equal(int64(len(content))))
	})
})

var _ = Describe("TarDir/UntarToDir", func() {
	It("round-trips a directory tree including a 180-byte relative path", func() {
		src, _ := os.MkdirTemp("", "tarsrc-*")
		defer os.RemoveAll(src)

		Expect(os.MkdirAll(filepath.Join(src, "nested"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(src, "nested", "short.txt"), []byte("abc"), 0o644)).To(Succeed())

		longComponent := strings.Repeat("x", 180)
		Expect(os.WriteFile(filepath.Join(src, longComponent), []byte("long-path-content"), 0o644)).To(Succeed())

		var buf bytes.Buffer
		Expect(tarstream.TarDir(&buf, src, true)).To(BeNil())

		dst, _ := os.MkdirTemp("", "tardst-*")
		defer os.RemoveAll(dst)

		Expect(tarstream.UntarToDir(bytes.NewReader(buf.Bytes()), dst)).To(BeNil())

		got, err := os.ReadFile(filepath.Join(dst, "nested", "short.txt"))
		Expect(err).To(BeNil())
		Expect(got).To(Equal([]byte("abc")))

		got, err = os.ReadFile(filepath.Join(dst, longComponent))
		Expect(err).To(BeNil())
		Expect(got).To(Equal([]byte("long-path-content")))
	})
})

var _ = Describe("Malicious path rejection", func() {
	It("refuses a header whose name escapes the root via '..'", func() {
		var buf bytes.Buffer
		tw := tarstream.NewWriter(&buf)
		err := tw.WriteHeader(tarstream.Header{Name: "../escape.txt", Typeflag: tarstream.TypeReg})
		Expect(err).NotTo(BeNil())
	})
})

var _ = Describe("PAX record length encoding", func() {
	It("round trips arbitrary path lengths across the digit-count boundaries", func() {
		for _, n := range []int{90, 99, 100, 101, 150, 254, 997, 1024} {
			name := fmt.Sprintf("p%0*d", n-1, 0)
			Expect(len(name)).To(Equal(n))

			var buf bytes.Buffer
			tw := tarstream.NewWriter(&buf)
			Expect(tw.WriteHeader(tarstream.Header{Name: name, Typeflag: tarstream.TypeReg, Size: 0})).To(BeNil())
			Expect(tw.Close()).To(BeNil())

			tr := tarstream.NewReader(bytes.NewReader(buf.Bytes()))
			h, herr := tr.Next()
			Expect(herr).To(BeNil())
			Expect(h.Name).To(Equal(name), "length %d", n)
		}
	})
})
