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

package loopthread_test

import (
	"sync"

	"github.com/sabouaram/reactor/eventloop"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/sabouaram/reactor/loopthread"
	"github.com/sabouaram/reactor/logger"
)

var _ = Describe("Thread", func() {
	It("returns a running loop from Start", func() {
		th := New(logger.Discard(), nil)
		l := th.Start()
		Expect(l).NotTo(BeNil())
		Expect(l.IsRunning()).To(BeTrue())
		th.Stop()
		Expect(l.IsRunning()).To(BeFalse())
	})

	It("runs beforeStart on the new goroutine before the loop starts polling", func() {
		var seen *eventloop.EventLoop
		th := New(logger.Discard(), func(l *eventloop.EventLoop) { seen = l })
		l := th.Start()
		Expect(seen).To(BeIdenticalTo(l))
		th.Stop()
	})
})

var _ = Describe("Pool", func() {
	It("falls back to the base loop when started with zero sub-loops", func() {
		base, err := eventloop.New(logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		p := New(base, logger.Discard())
		p.Start(0, nil)
		Expect(p.NextLoop()).To(BeIdenticalTo(base))
		Expect(p.NextLoop()).To(BeIdenticalTo(base))
		p.Stop()
	})

	It("distributes NextLoop calls round-robin across its sub-loops", func() {
		base, err := eventloop.New(logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		p := New(base, logger.Discard())
		p.Start(3, nil)
		defer p.Stop()

		first := p.NextLoop()
		second := p.NextLoop()
		third := p.NextLoop()
		fourth := p.NextLoop()

		Expect(first).NotTo(BeIdenticalTo(second))
		Expect(second).NotTo(BeIdenticalTo(third))
		Expect(fourth).To(BeIdenticalTo(first))
	})

	It("invokes initCB once per sub-loop it spawns", func() {
		base, err := eventloop.New(logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		var mu sync.Mutex
		var seen []*eventloop.EventLoop

		p := New(base, logger.Discard())
		p.Start(3, func(l *eventloop.EventLoop) {
			mu.Lock()
			seen = append(seen, l)
			mu.Unlock()
		})
		defer p.Stop()

		Expect(seen).To(ConsistOf(p.AllLoops()[0], p.AllLoops()[1], p.AllLoops()[2]))
	})

	It("invokes initCB once on the base loop for a zero-sized pool", func() {
		base, err := eventloop.New(logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		var seen *eventloop.EventLoop
		p := New(base, logger.Discard())
		p.Start(0, func(l *eventloop.EventLoop) { seen = l })
		defer p.Stop()

		Expect(seen).To(BeIdenticalTo(base))
	})
})
