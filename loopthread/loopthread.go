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

// Package loopthread spawns one EventLoop per goroutine and publishes it
// back to the caller only once it's actually running, plus a round-robin
// pool of such loops for a Server to hand accepted connections to.
package loopthread

import (
	"sync"

	"github.com/sabouaram/reactor/eventloop"
	"github.com/sabouaram/reactor/logger"
)

// Thread owns one goroutine running exactly one EventLoop. Start blocks
// until the loop has constructed itself and is ready to accept work,
// mirroring the condition-variable handshake the source thread wrapper
// used to publish its EventLoop pointer before returning.
type Thread struct {
	loop *eventloop.EventLoop
	wg   sync.WaitGroup
	log  logger.Entry

	beforeStart func(*eventloop.EventLoop)
}

// New returns a Thread that hasn't started yet. beforeStart, if non-nil,
// runs on the new goroutine after the loop is constructed but before
// Run() is called — e.g. to register a callback that depends on the loop.
func New(log logger.Entry, beforeStart func(*eventloop.EventLoop)) *Thread {
	return &Thread{log: log, beforeStart: beforeStart}
}

// Start spawns the goroutine and blocks until its EventLoop is
// constructed and ready, then returns it. Calling Start twice on the
// same Thread is a programming error.
func (t *Thread) Start() *eventloop.EventLoop {
	ready := make(chan *eventloop.EventLoop, 1)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		l, err := eventloop.New(t.log)
		if err != nil {
			t.log.Errorf("loopthread: failed to create event loop: %v", err)
			close(ready)
			return
		}
		if t.beforeStart != nil {
			t.beforeStart(l)
		}
		l.QueueInLoop(func() { ready <- l })
		l.Run()
	}()

	t.loop = <-ready
	return t.loop
}

// Loop returns the running EventLoop, or nil if Start hasn't completed
// (or failed).
func (t *Thread) Loop() *eventloop.EventLoop {
	return t.loop
}

// Stop asks the owned loop to quit and waits for its goroutine to exit,
// the Go stand-in for the source thread wrapper's join-on-destroy.
func (t *Thread) Stop() {
	if t.loop != nil {
		t.loop.Quit()
	}
	t.wg.Wait()
	if t.loop != nil {
		if err := t.loop.Close(); err != nil {
			t.log.Errorf("loopthread: close error: %v", err)
		}
	}
}
