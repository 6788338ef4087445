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

// Package eventloop implements the one-goroutine-one-loop reactor core:
// block in epoll_wait, dispatch whichever channels came back ready, then
// drain whatever functors other goroutines queued while this loop was
// blocked. Exactly one EventLoop may run per pinned OS thread; a second
// Run call on an already-running loop's thread is a programming error.
package eventloop

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sabouaram/reactor/channel"
	"github.com/sabouaram/reactor/errors"
	"github.com/sabouaram/reactor/internal/ctid"
	"github.com/sabouaram/reactor/logger"
	"github.com/sabouaram/reactor/poller"
	"github.com/sabouaram/reactor/wakeup"
)

// pollTimeoutMs bounds how long a single epoll_wait blocks before the
// loop gets a chance to notice quit() or stale pending functors.
const pollTimeoutMs = 10000

// ErrThreadAlreadyOwned is the sentinel behind the panic Run raises when
// the calling OS thread already runs another EventLoop. A thread may own
// at most one loop for its entire life.
var ErrThreadAlreadyOwned = fmt.Errorf("eventloop: OS thread already owns a running EventLoop")

// loopThreads tracks, process-wide, which EventLoop currently owns each
// OS thread id. Run registers its thread here for the duration of the
// loop and panics if it finds another loop already holds it.
var loopThreads sync.Map // map[int]*EventLoop

// Functor is a unit of work queued onto an EventLoop from any goroutine.
type Functor func()

// EventLoop owns one Poller and runs on exactly one goroutine for its
// entire life. Everything that touches its Channels must either run on
// that goroutine already or be submitted through RunInLoop/QueueInLoop.
type EventLoop struct {
	looping atomic.Bool
	quit    atomic.Bool

	tid   ctid.Cache
	tidOK atomic.Bool // true once Run has cached this loop's thread id

	poller       poller.Poller
	wakeupFD     *wakeup.FD
	wakeupChan   *channel.Channel
	active       []*channel.Channel
	callingTasks atomic.Bool

	mu      sync.Mutex
	pending []Functor

	log logger.Entry
}

// New constructs an EventLoop with its own epoll instance and wakeup fd.
// It does not start running until Run is called.
func New(log logger.Entry) (*EventLoop, error) {
	p, err := poller.New(log)
	if err != nil {
		return nil, fmt.Errorf("eventloop: %w", err)
	}
	w, err := wakeup.New()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("eventloop: %w", err)
	}

	l := &EventLoop{
		poller:   p,
		wakeupFD: w,
		log:      log,
	}
	l.wakeupChan = channel.New(l, w.Fd())
	l.wakeupChan.SetReadCallback(func(int64) { l.handleWakeupRead() })
	return l, nil
}

func (l *EventLoop) handleWakeupRead() {
	if err := l.wakeupFD.Drain(); err != nil {
		l.log.Errorf("eventloop wakeup drain error: %v", err)
	}
}

// Run pins the calling goroutine to its OS thread and blocks, looping
// until Quit is called. It must be invoked from a fresh goroutine that
// will run nothing else for this EventLoop's lifetime.
func (l *EventLoop) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.tid.Tid() // cache this goroutine's OS thread id before anything else runs
	l.tidOK.Store(true)

	tid := l.tid.Tid()
	if prev, loaded := loopThreads.LoadOrStore(tid, l); loaded && prev != l {
		panic(errors.Trace(ErrThreadAlreadyOwned, fmt.Errorf("thread %d already runs loop %p, cannot also run loop %p", tid, prev, l)))
	}
	defer loopThreads.Delete(tid)

	l.wakeupChan.EnableReading()

	l.looping.Store(true)
	l.quit.Store(false)
	l.log.Debugf("eventloop starting")

	for !l.quit.Load() {
		active, ts, err := l.poller.Poll(pollTimeoutMs)
		if err != nil {
			l.log.Errorf("eventloop poll error: %v", err)
			continue
		}
		l.active = active
		for _, c := range l.active {
			c.HandleEvent(ts)
		}
		l.active = nil
		l.doPendingFunctors()
	}

	l.looping.Store(false)
	l.log.Debugf("eventloop stopped")
}

// Quit asks the loop to stop after its current iteration. Safe to call
// from any goroutine; if called from elsewhere it wakes the loop so it
// doesn't sit blocked in epoll_wait until the 10s timeout.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopGoroutine() {
		if err := l.wakeupFD.Signal(); err != nil {
			l.log.Errorf("eventloop quit wakeup error: %v", err)
		}
	}
}

// IsRunning reports whether Run's loop is currently executing.
func (l *EventLoop) IsRunning() bool {
	return l.looping.Load()
}

// IsInLoopGoroutine reports whether the caller is running on this loop's
// own goroutine. Before Run has cached a thread id, nothing can be "in"
// the loop yet, so this reports false.
func (l *EventLoop) IsInLoopGoroutine() bool {
	if !l.tidOK.Load() {
		return false
	}
	return l.tid.Tid() == ctid.CurrentTid()
}

// AssertInLoopGoroutine panics if the caller is not running on this
// loop's own goroutine; Channel bookkeeping relies on this invariant and
// would otherwise race silently.
func (l *EventLoop) AssertInLoopGoroutine() {
	if !l.IsInLoopGoroutine() {
		panic("eventloop: called from outside its owning goroutine")
	}
}

// RunInLoop executes cb immediately if called from this loop's own
// goroutine, otherwise queues it to run on the next iteration.
func (l *EventLoop) RunInLoop(cb Functor) {
	if l.IsInLoopGoroutine() {
		cb()
	} else {
		l.QueueInLoop(cb)
	}
}

// QueueInLoop appends cb to the pending queue and wakes the loop if
// needed: either because the caller isn't the loop goroutine, or
// because the loop goroutine is itself mid-way through draining pending
// functors and cb was just queued underneath it (queued this way, cb
// runs on the *next* iteration, not the one in progress).
func (l *EventLoop) QueueInLoop(cb Functor) {
	l.mu.Lock()
	l.pending = append(l.pending, cb)
	l.mu.Unlock()

	if !l.IsInLoopGoroutine() || l.callingTasks.Load() {
		if err := l.wakeupFD.Signal(); err != nil {
			l.log.Errorf("eventloop queueInLoop wakeup error: %v", err)
		}
	}
}

// doPendingFunctors swaps the pending queue out under lock, releases the
// lock, and only then runs what was queued — so a functor that calls
// QueueInLoop doesn't deadlock on the same mutex, and so functors queued
// while this batch is running are deferred to the next iteration instead
// of running twice or not at all.
func (l *EventLoop) doPendingFunctors() {
	l.callingTasks.Store(true)
	defer l.callingTasks.Store(false)

	l.mu.Lock()
	functors := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, f := range functors {
		f()
	}
}

// UpdateChannel registers c's current interest set with the poller.
func (l *EventLoop) UpdateChannel(c *channel.Channel) {
	l.poller.UpdateChannel(c)
}

// RemoveChannel unregisters c from the poller entirely.
func (l *EventLoop) RemoveChannel(c *channel.Channel) {
	l.poller.RemoveChannel(c)
}

// HasChannel reports whether c is currently registered with this loop's poller.
func (l *EventLoop) HasChannel(c *channel.Channel) bool {
	return l.poller.HasChannel(c)
}

// Close releases the loop's poller and wakeup fd. Run must have returned
// first.
func (l *EventLoop) Close() error {
	l.wakeupChan.DisableAll()
	l.wakeupChan.Remove()
	if err := l.wakeupFD.Close(); err != nil {
		return err
	}
	return l.poller.Close()
}
