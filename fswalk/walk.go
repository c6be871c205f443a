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

// Package fswalk provides the directory traversal shared by the ZIP and TAR
// writers: a deterministic pre-order walk that yields archive-relative
// paths and skips symlinks, "." and "..".
package fswalk

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	liberr "github.com/nabbar/parazip/errors"
)

func init() {
	if liberr.ExistInMapMessage(ErrorWalkRoot) {
		panic("error code collision parazip/fswalk")
	}
	liberr.RegisterIdFctMessage(ErrorWalkRoot, getMessage)
	liberr.RegisterNativeMapper(ErrorWalkRoot, liberr.NativeFileNotFound)
	liberr.RegisterNativeMapper(ErrorMaliciousPath, liberr.NativeMaliciousPath)
}

const (
	ErrorWalkRoot liberr.CodeError = iota + liberr.MinPkgWalk
	ErrorWalkStat
	ErrorMaliciousPath
)

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorWalkRoot:
		return "cannot walk root directory"
	case ErrorWalkStat:
		return "cannot stat entry during walk"
	case ErrorMaliciousPath:
		return "path is malicious (absolute or contains '..')"
	}
	return liberr.NullMessage
}

// Stat is the platform-neutral file info yielded by Walk.
type Stat struct {
	IsDir     bool
	IsRegular bool
	IsSymlink bool
	Size      int64
	MTime     time.Time
}

// Callback is invoked once per directory or regular file discovered by
// Walk, with the absolute filesystem path, the archive-relative path
// (always using '/'), and the platform-neutral stat.
type Callback func(absPath, archivePath string, stat Stat) error

// Walk traverses root in deterministic pre-order, yielding every directory
// (archive-relative path ending in '/') and every regular file underneath.
// Symlinks are ignored. "." and ".." are never yielded.
//
// When skipTopLevel is true, the children of root become the top of the
// archive, prefixed by archiveBase. Otherwise root's own final path
// component is the top-level archive directory.
func Walk(root, archiveBase string, skipTopLevel bool, cb Callback) liberr.Error {
	root = filepath.Clean(root)

	info, err := os.Lstat(root)
	if err != nil {
		return ErrorWalkRoot.ErrorParent(err)
	}

	var topName string
	if !skipTopLevel {
		topName = filepath.Base(root)
	}

	return walkDir(root, topName, archiveBase, info, cb)
}

func walkDir(absPath, relPrefix, archiveBase string, info fs.FileInfo, cb Callback) liberr.Error {
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	if info.IsDir() {
		archivePath := joinArchivePath(archiveBase, relPrefix) + "/"
		if relPrefix != "" {
			if err := rejectMalicious(archivePath); err != nil {
				return err
			}
			if err := cb(absPath, archivePath, Stat{IsDir: true, MTime: info.ModTime()}); err != nil {
				return wrapCallback(err)
			}
		}

		entries, rerr := os.ReadDir(absPath)
		if rerr != nil {
			return ErrorWalkStat.ErrorParent(rerr)
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			name := e.Name()
			if name == "." || name == ".." {
				continue
			}

			childAbs := filepath.Join(absPath, name)
			childRel := name
			if relPrefix != "" {
				childRel = relPrefix + "/" + name
			}

			childInfo, serr := e.Info()
			if serr != nil {
				return ErrorWalkStat.ErrorParent(serr)
			}

			if err := walkDir(childAbs, childRel, archiveBase, childInfo, cb); err != nil {
				return err
			}
		}

		return nil
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	archivePath := joinArchivePath(archiveBase, relPrefix)
	if err := rejectMalicious(archivePath); err != nil {
		return err
	}

	return wrapCallback(cb(absPath, archivePath, Stat{
		IsRegular: true,
		Size:      info.Size(),
		MTime:     info.ModTime(),
	}))
}

func joinArchivePath(base, rel string) string {
	p := filepath.ToSlash(rel)
	if base == "" {
		return p
	}
	return strings.TrimSuffix(base, "/") + "/" + p
}

func rejectMalicious(archivePath string) liberr.Error {
	if strings.HasPrefix(archivePath, "/") {
		return ErrorMaliciousPath.Error(nil)
	}
	for _, seg := range strings.Split(archivePath, "/") {
		if seg == ".." {
			return ErrorMaliciousPath.Error(nil)
		}
	}
	return nil
}

func wrapCallback(err error) liberr.Error {
	if err == nil {
		return nil
	}
	if le := liberr.Get(err); le != nil {
		return le
	}
	return liberr.New(ErrorWalkStat, err)
}
