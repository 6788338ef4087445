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

package logger_test

import (
	"bytes"

	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/sabouaram/reactor/logger"
)

var _ = Describe("Entry", func() {
	Describe("Discard", func() {
		It("is not valid and never panics", func() {
			e := Discard()
			Expect(e.Valid()).To(BeFalse())
			e.Infof("hello %s", "world")
			e.WithField("fd", 3).Errorf("boom")
		})
	})

	Describe("New", func() {
		It("writes through to the wrapped logger", func() {
			buf := &bytes.Buffer{}
			log := logrus.New()
			log.SetOutput(buf)
			log.SetLevel(logrus.DebugLevel)
			log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

			e := New(log)
			Expect(e.Valid()).To(BeTrue())
			e.WithField("fd", 7).Infof("accepted connection")

			Expect(buf.String()).To(ContainSubstring("accepted connection"))
			Expect(buf.String()).To(ContainSubstring("fd=7"))
		})

		It("treats a nil logger as Discard", func() {
			e := New(nil)
			Expect(e.Valid()).To(BeFalse())
		})
	})
})
