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
	"os"
	"strings"

	liberr "github.com/nabbar/parazip/errors"
)

// isMaliciousPath reports whether an archive-relative path is absolute or
// contains a ".." segment.
func isMaliciousPath(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '/' {
			if name[start:i] == ".." {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func rejectMalicious(name string) liberr.Error {
	if isMaliciousPath(name) {
		return ErrorMaliciousPath.Error(nil)
	}
	return nil
}

// validateEntryBase enforces entry_base ∈ {"", "*/"}: empty, or ending in
// '/', and never malicious.
func validateEntryBase(base string) liberr.Error {
	if base == "" {
		return nil
	}
	if !strings.HasSuffix(base, "/") {
		return ErrorMalformedBase.Error(nil)
	}
	return rejectMalicious(base)
}

// validateRoot rejects a traversal root whose last character is the OS
// path separator.
func validateRoot(root string) liberr.Error {
	if root == "" {
		return ErrorInvalidRoot.Error(nil)
	}
	if root[len(root)-1] == os.PathSeparator {
		return ErrorInvalidRoot.Error(nil)
	}
	return nil
}

// isDirEntryPath reports whether an entryPath names a directory prefix:
// empty (archive root) or ending with '/'.
func isDirEntryPath(entryPath string) bool {
	return entryPath == "" || strings.HasSuffix(entryPath, "/")
}
