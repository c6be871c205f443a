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

// Package ziparchive is the parallel streaming ZIP compress/extract engine:
// a thin container over stdlib archive/zip that drives the concurrent
// block-compression pipeline, the parallel extractor, and the bulk
// rename/move/delete mutation operations.
package ziparchive

import (
	liberr "github.com/nabbar/parazip/errors"
)

func init() {
	if liberr.ExistInMapMessage(ErrorOpenArchive) {
		panic("error code collision parazip/ziparchive")
	}
	liberr.RegisterIdFctMessage(ErrorOpenArchive, getMessage)
	liberr.RegisterNativeMapper(ErrorOpenArchive, liberr.NativeFileNotFound)
	liberr.RegisterNativeMapper(ErrorCloseArchive, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorMaliciousPath, liberr.NativeMaliciousPath)
	liberr.RegisterNativeMapper(ErrorMalformedBase, liberr.NativeInvalidPath)
	liberr.RegisterNativeMapper(ErrorEntryNotFound, liberr.NativeEntryNotFound)
	liberr.RegisterNativeMapper(ErrorEntryExists, liberr.NativeEntryAlreadyExists)
	liberr.RegisterNativeMapper(ErrorInvalidRoot, liberr.NativeInvalidPath)
	liberr.RegisterNativeMapper(ErrorMkdir, liberr.NativeMkdir)
	liberr.RegisterNativeMapper(ErrorIO, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorCodec, liberr.NativeInternalError)
	liberr.RegisterNativeMapper(ErrorCancelled, liberr.NativeCancelled)
	liberr.RegisterNativeMapper(ErrorInvalidArgument, liberr.NativeInvalidArgument)
	liberr.RegisterNativeMapper(ErrorFileExists, liberr.NativeFileAlreadyExists)
}

const (
	ErrorOpenArchive liberr.CodeError = iota + liberr.MinPkgZip
	ErrorCloseArchive
	ErrorMaliciousPath
	ErrorMalformedBase
	ErrorEntryNotFound
	ErrorEntryExists
	ErrorInvalidRoot
	ErrorMkdir
	ErrorIO
	ErrorCodec
	ErrorCancelled
	ErrorInvalidArgument
	ErrorFileExists
)

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorOpenArchive:
		return "cannot open zip archive"
	case ErrorCloseArchive:
		return "cannot close zip archive"
	case ErrorMaliciousPath:
		return "entry path is malicious (absolute or contains '..')"
	case ErrorMalformedBase:
		return "entry_base is malformed"
	case ErrorEntryNotFound:
		return "entry not found"
	case ErrorEntryExists:
		return "entry already exists"
	case ErrorInvalidRoot:
		return "root path ends with the OS separator"
	case ErrorMkdir:
		return "cannot create destination directory"
	case ErrorIO:
		return "archive I/O failure"
	case ErrorCodec:
		return "deflate/inflate codec failure"
	case ErrorCancelled:
		return "task was cancelled"
	case ErrorInvalidArgument:
		return "invalid argument"
	case ErrorFileExists:
		return "destination file already exists"
	}
	return liberr.NullMessage
}
