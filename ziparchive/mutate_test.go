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

package ziparchive_test

import (
	"archive/zip"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/parazip/ziparchive"
)

func buildFixtureArchive(path string) {
	f, err := os.Create(path)
	Expect(err).To(BeNil())
	zw := zip.NewWriter(f)

	for _, name := range []string{"dir/", "dir/a.txt", "dir/sub/", "dir/sub/b.txt", "top.txt", "top.txt.bak"} {
		w, werr := zw.Create(name)
		Expect(werr).To(BeNil())
		if name[len(name)-1] != '/' {
			_, _ = w.Write([]byte(name))
		}
	}

	Expect(zw.Close()).To(BeNil())
	Expect(f.Close()).To(BeNil())
}

func namesOf(path string) map[string]bool {
	zr, err := zip.OpenReader(path)
	Expect(err).To(BeNil())
	defer func() { _ = zr.Close() }()

	out := make(map[string]bool)
	for _, f := range zr.File {
		out[f.Name] = true
	}
	return out
}

var _ = Describe("archive mutation operations", func() {
	var archivePath string

	BeforeEach(func() {
		archivePath = filepath.Join(GinkgoT().TempDir(), "fixture.zip")
		buildFixtureArchive(archivePath)
	})

	It("deletes a single file entry", func() {
		n, err := ziparchive.Delete(archivePath, "top.txt")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(1))
		Expect(namesOf(archivePath)).ToNot(HaveKey("top.txt"))
	})

	It("deletes a single file entry without touching another entry that shares its name as a literal prefix", func() {
		n, err := ziparchive.Delete(archivePath, "top.txt")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(1))

		names := namesOf(archivePath)
		Expect(names).ToNot(HaveKey("top.txt"))
		Expect(names).To(HaveKey("top.txt.bak"))
	})

	It("renames a single file entry without touching another entry that shares its name as a literal prefix", func() {
		n, err := ziparchive.Rename(archivePath, "top.txt", "renamed.txt")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(1))

		names := namesOf(archivePath)
		Expect(names).To(HaveKey("renamed.txt"))
		Expect(names).ToNot(HaveKey("top.txt"))
		Expect(names).To(HaveKey("top.txt.bak"))
	})

	It("bulk-deletes a directory prefix and everything beneath it", func() {
		n, err := ziparchive.Delete(archivePath, "dir/")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(4))

		names := namesOf(archivePath)
		Expect(names).ToNot(HaveKey("dir/"))
		Expect(names).ToNot(HaveKey("dir/a.txt"))
		Expect(names).ToNot(HaveKey("dir/sub/"))
		Expect(names).ToNot(HaveKey("dir/sub/b.txt"))
		Expect(names).To(HaveKey("top.txt"))
	})

	It("fails with entry-not-found for an absent entry and leaves the archive untouched", func() {
		before := namesOf(archivePath)
		_, err := ziparchive.Delete(archivePath, "nope.txt")
		Expect(err).ToNot(BeNil())
		Expect(namesOf(archivePath)).To(Equal(before))
	})

	It("renames a directory prefix, moving every descendant", func() {
		n, err := ziparchive.Rename(archivePath, "dir/", "renamed/")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(4))

		names := namesOf(archivePath)
		Expect(names).To(HaveKey("renamed/"))
		Expect(names).To(HaveKey("renamed/a.txt"))
		Expect(names).To(HaveKey("renamed/sub/"))
		Expect(names).To(HaveKey("renamed/sub/b.txt"))
		Expect(names).ToNot(HaveKey("dir/"))
	})

	It("treats renaming an entry to itself as a no-op success", func() {
		n, err := ziparchive.Rename(archivePath, "top.txt", "top.txt")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(0))
		Expect(namesOf(archivePath)).To(HaveKey("top.txt"))
	})

	It("moves entries under a new base by basename", func() {
		n, err := ziparchive.MoveEntries(archivePath, []string{"top.txt"}, "dir/sub/")
		Expect(err).To(BeNil())
		Expect(n).To(Equal(1))

		names := namesOf(archivePath)
		Expect(names).To(HaveKey("dir/sub/top.txt"))
		Expect(names).ToNot(HaveKey("top.txt"))
	})

	It("rejects a malformed move target base", func() {
		_, err := ziparchive.MoveEntries(archivePath, []string{"top.txt"}, "noslash")
		Expect(err).ToNot(BeNil())
	})

	It("bulk-removes several entries in one pass", func() {
		n, err := ziparchive.RemoveEntries(archivePath, []string{"top.txt", "dir/a.txt"})
		Expect(err).To(BeNil())
		Expect(n).To(Equal(2))

		names := namesOf(archivePath)
		Expect(names).ToNot(HaveKey("top.txt"))
		Expect(names).ToNot(HaveKey("dir/a.txt"))
		Expect(names).To(HaveKey("dir/sub/b.txt"))
	})

	It("lists entries non-recursively under a prefix", func() {
		r, err := ziparchive.OpenReader(archivePath)
		Expect(err).To(BeNil())
		defer func() { _ = r.Close() }()

		entries := r.ListEntries("dir/", false)
		names := make(map[string]bool, len(entries))
		for _, e := range entries {
			names[e.Name] = true
		}
		Expect(names).To(HaveKey("dir/a.txt"))
		Expect(names).To(HaveKey("dir/sub/"))
		Expect(names).ToNot(HaveKey("dir/sub/b.txt"))
	})

	It("lists entries recursively under a prefix", func() {
		r, err := ziparchive.OpenReader(archivePath)
		Expect(err).To(BeNil())
		defer func() { _ = r.Close() }()

		entries := r.ListEntries("dir/", true)
		Expect(entries).To(HaveLen(3))
	})

	It("locates an entry by name and rejects an absent one", func() {
		r, err := ziparchive.OpenReader(archivePath)
		Expect(err).To(BeNil())
		defer func() { _ = r.Close() }()

		st, lerr := r.Locate("top.txt")
		Expect(lerr).To(BeNil())
		Expect(st.Name).To(Equal("top.txt"))

		_, lerr2 := r.Locate("missing.txt")
		Expect(lerr2).ToNot(BeNil())
	})

	It("drives rename through the async task surface", func() {
		mt := ziparchive.NewRenameTask(archivePath, "top.txt", "renamed.txt")
		Expect(mt.Run()).To(BeNil())
		Expect(mt.Affected).To(Equal(1))
		Expect(namesOf(archivePath)).To(HaveKey("renamed.txt"))
	})

	It("skips a child left with an empty name when renaming a prefix to the archive root and warns about it", func() {
		n, err := ziparchive.Rename(archivePath, "dir/", "")
		Expect(err).To(BeNil())

		names := namesOf(archivePath)
		Expect(names).To(HaveKey("dir/"))
		Expect(names).To(HaveKey("a.txt"))
		Expect(names).To(HaveKey("sub/"))
		Expect(names).To(HaveKey("sub/b.txt"))
		Expect(n).To(Equal(3))

		mt := ziparchive.NewRenameTask(archivePath, "top.txt", "")
		Expect(mt.Run()).To(BeNil())
		Expect(mt.Warnings()).To(HaveLen(1))
	})
})
