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

package errors_test

import (
	stderrors "errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/sabouaram/reactor/errors"
)

var (
	sentinelA = stderrors.New("sentinel a")
	sentinelB = stderrors.New("sentinel b")
)

var _ = Describe("Error", func() {
	Describe("New", func() {
		It("renders just the sentinel when there is no cause", func() {
			err := New(sentinelA, nil)
			Expect(err.Error()).To(Equal("sentinel a"))
		})

		It("renders sentinel and cause together", func() {
			cause := stderrors.New("epoll_wait: interrupted")
			err := New(sentinelA, cause)
			Expect(err.Error()).To(Equal("sentinel a: epoll_wait: interrupted"))
		})
	})

	Describe("Is", func() {
		It("matches its own sentinel", func() {
			err := New(sentinelA, nil)
			Expect(stderrors.Is(err, sentinelA)).To(BeTrue())
		})

		It("does not match a different sentinel", func() {
			err := New(sentinelA, nil)
			Expect(stderrors.Is(err, sentinelB)).To(BeFalse())
		})
	})

	Describe("Unwrap", func() {
		It("exposes the cause to errors.Unwrap", func() {
			cause := stderrors.New("underlying")
			err := New(sentinelA, cause)
			Expect(stderrors.Unwrap(err)).To(Equal(cause))
		})

		It("chains errors.Is through the cause", func() {
			err := New(sentinelA, sentinelB)
			Expect(stderrors.Is(err, sentinelB)).To(BeTrue())
		})
	})

	Describe("Trace", func() {
		It("captures a call frame", func() {
			err := Trace(sentinelA, nil)
			frame, ok := err.Frame()
			Expect(ok).To(BeTrue())
			Expect(frame.Function).To(ContainSubstring("errors_test"))
		})

		It("New does not capture a frame", func() {
			err := New(sentinelA, nil)
			_, ok := err.Frame()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("nil receiver", func() {
		It("is safe to call methods on", func() {
			var err *Error
			Expect(err.Error()).To(Equal(""))
			Expect(err.Is(sentinelA)).To(BeFalse())
			Expect(err.Unwrap()).To(BeNil())
			Expect(err.Sentinel()).To(BeNil())
		})
	})
})
