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

package errors

// NativeCode is the stable, negative-numbered error code range exposed to
// the host event sink (spec §6), independent of the internal per-package
// CodeError used for Go-level diagnostics.
type NativeCode int

const (
	NativeOK NativeCode = 0

	NativeCancelled NativeCode = -10000 - iota
	NativeFileNotFound
	NativeNoMoreFile
	NativePathTooLong
	NativeInvalidArgument
	NativeInvalidPath
	NativeMaliciousPath
	NativeInternalError
	NativeMkdir
	NativeEntryNotFound
	NativeEntryAlreadyExists
	NativeFileAlreadyExists
)

// nativeMappers maps a package CodeError to the stable NativeCode the host sees.
// Each package registers its own mapping via RegisterNativeMapper.
var nativeMappers = make(map[CodeError]NativeCode)

// RegisterNativeMapper associates a CodeError with the stable NativeCode
// reported through the task/event surface.
func RegisterNativeMapper(code CodeError, native NativeCode) {
	nativeMappers[code] = native
}

// NativeOf resolves the stable NativeCode for an error produced by this
// package, defaulting to NativeInternalError for unmapped or foreign errors.
func NativeOf(err error) NativeCode {
	if err == nil {
		return NativeOK
	}
	e := Get(err)
	if e == nil {
		return NativeInternalError
	}
	if n, ok := nativeMappers[e.Code()]; ok {
		return n
	}
	for _, p := range e.Unwrap() {
		if n := NativeOf(p); n != NativeInternalError {
			return n
		}
	}
	return NativeInternalError
}
