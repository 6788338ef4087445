/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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
 *
 *
 */

// Package errors wraps sentinel errors with an optional cause and call-site
// trace, so a caller can both match on a package-level sentinel with
// errors.Is and still see what underlying syscall or condition triggered it.
package errors

import (
	"fmt"
	"runtime"
)

// Error pairs a package sentinel with the error that triggered it and,
// optionally, the frame of the call that constructed it.
type Error struct {
	sentinel error
	cause    error
	frame    runtime.Frame
	traced   bool
}

// New wraps sentinel with cause. cause may be nil.
func New(sentinel error, cause error) *Error {
	return &Error{sentinel: sentinel, cause: cause}
}

// Trace is New, plus the caller's runtime.Frame captured for diagnostics.
func Trace(sentinel error, cause error) *Error {
	e := New(sentinel, cause)
	e.frame = getFrame()
	e.traced = true
	return e
}

func (e *Error) Error() string {
	if e == nil || e.sentinel == nil {
		return ""
	}
	if e.cause == nil {
		return e.sentinel.Error()
	}
	return fmt.Sprintf("%s: %s", e.sentinel.Error(), e.cause.Error())
}

// Is reports whether target is the sentinel this error was built from,
// satisfying the standard errors.Is contract.
func (e *Error) Is(target error) bool {
	if e == nil || e.sentinel == nil {
		return false
	}
	return e.sentinel == target
}

// Unwrap exposes the triggering cause to errors.Unwrap / errors.As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Sentinel returns the package-level error this value was constructed from.
func (e *Error) Sentinel() error {
	if e == nil {
		return nil
	}
	return e.sentinel
}

// Frame returns the captured call site and whether one was captured at all.
func (e *Error) Frame() (runtime.Frame, bool) {
	if e == nil {
		return runtime.Frame{}, false
	}
	return e.frame, e.traced
}

func getFrame() runtime.Frame {
	var pc [1]uintptr
	n := runtime.Callers(3, pc[:])
	if n == 0 {
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pc[:n]).Next()
	return frame
}
