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

// Package errors provides the archive engine's error classification: a
// numeric CodeError similar to the spec's negative error-code range,
// parent-chaining for wrapped causes, and compatibility with errors.Is/As.
package errors

import (
	stderr "errors"
	"fmt"
)

// CodeError is a numeric classification of an engine error.
type CodeError uint16

const (
	UnknownError CodeError = 0
	NullMessage            = ""
)

var idMsgFct = make(map[CodeError]Message)

// Message generates the textual description for a CodeError.
type Message func(code CodeError) string

// ExistInMapMessage reports whether a code already has a registered message
// function, used by each package's init() to detect code-range collisions.
func ExistInMapMessage(code CodeError) bool {
	_, ok := idMsgFct[code]
	return ok
}

// RegisterIdFctMessage registers the message function for a package's code range.
func RegisterIdFctMessage(code CodeError, fct Message) {
	idMsgFct[code] = fct
}

func messageFor(code CodeError) string {
	if fct, ok := idMsgFct[code]; ok && fct != nil {
		if m := fct(code); m != NullMessage {
			return m
		}
	}
	return UnknownMessage
}

const UnknownMessage = "unknown error"

// Error is the error interface returned by every engine operation.
type Error interface {
	error

	Code() CodeError
	IsCode(code CodeError) bool
	HasCode(code CodeError) bool

	HasParent() bool
	AddParent(parent ...error)
	Unwrap() []error
}

type ers struct {
	code CodeError
	msg  string
	par  []error
}

func (e *ers) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return messageFor(e.code)
}

func (e *ers) Code() CodeError {
	return e.code
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.par {
		var pe Error
		if stderr.As(p, &pe) && pe.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) HasParent() bool {
	return len(e.par) > 0
}

func (e *ers) AddParent(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.par = append(e.par, p)
		}
	}
}

func (e *ers) Unwrap() []error {
	return e.par
}

// New creates a new Error with the given code, default message, and optional parents.
func New(code CodeError, parent ...error) Error {
	e := &ers{code: code, msg: messageFor(code)}
	e.AddParent(parent...)
	return e
}

// Error builds an Error for this code, chaining an optional existing parent error.
func (c CodeError) Error(parent error) Error {
	return New(c, parent)
}

// ErrorParent builds an Error for this code wrapping a raw (non-Error) cause.
func (c CodeError) ErrorParent(parent error) Error {
	return New(c, parent)
}

// Newf creates a new Error with a formatted message overriding the registered one.
func Newf(code CodeError, pattern string, args ...any) Error {
	return &ers{code: code, msg: fmt.Sprintf(pattern, args...)}
}

// Is reports whether e (or any parent) is an Error of type Error.
func Is(e error) bool {
	var err Error
	return stderr.As(e, &err)
}

// Get returns e as an Error if it is one.
func Get(e error) Error {
	var err Error
	if stderr.As(e, &err) {
		return err
	}
	return nil
}
