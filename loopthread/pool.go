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

package loopthread

import (
	"github.com/sabouaram/reactor/eventloop"
	"github.com/sabouaram/reactor/logger"
)

// Pool owns a fixed number of sub-loops and hands callers the next one
// in round-robin order. A pool of size zero is valid and always returns
// the base loop passed to New, letting a Server run single-threaded
// without a special case at the call site.
type Pool struct {
	base    *eventloop.EventLoop
	threads []*Thread
	loops   []*eventloop.EventLoop
	next    int
	log     logger.Entry
}

// New creates a Pool that falls back to base when size is zero.
func New(base *eventloop.EventLoop, log logger.Entry) *Pool {
	return &Pool{base: base, log: log}
}

// Start spawns numThreads sub-loops, each on its own goroutine, and
// blocks until every one of them is running. If initCB is non-nil, it
// runs once per spawned sub-loop (on that loop's own goroutine, before
// the loop starts polling); for a zero-sized pool it instead runs once
// on the base loop, so callers never need a special case for either.
func (p *Pool) Start(numThreads int, initCB func(*eventloop.EventLoop)) {
	if numThreads == 0 {
		if initCB != nil {
			initCB(p.base)
		}
		return
	}

	for i := 0; i < numThreads; i++ {
		t := New(p.log, initCB)
		l := t.Start()
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, l)
	}
}

// NextLoop returns the next sub-loop in round-robin order, or the base
// loop if the pool has no sub-loops.
func (p *Pool) NextLoop() *eventloop.EventLoop {
	if len(p.loops) == 0 {
		return p.base
	}
	l := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return l
}

// AllLoops returns every sub-loop the pool owns, or just the base loop
// for an unstarted or zero-sized pool. Useful for broadcasting shutdown.
func (p *Pool) AllLoops() []*eventloop.EventLoop {
	if len(p.loops) == 0 {
		return []*eventloop.EventLoop{p.base}
	}
	return append([]*eventloop.EventLoop(nil), p.loops...)
}

// Stop quits and joins every sub-loop thread the pool spawned.
func (p *Pool) Stop() {
	for _, t := range p.threads {
		t.Stop()
	}
}
