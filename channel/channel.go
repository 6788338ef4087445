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

// Package channel implements the per-fd event registration that an
// EventLoop dispatches readiness against. A Channel owns no socket; it
// only remembers which events a fd is interested in, the poller's cache
// slot for that fd, and the callbacks to run when the poller reports
// activity.
package channel

import "golang.org/x/sys/unix"

// Interest bits, aliases of the epoll event constants so callers never
// import golang.org/x/sys/unix just to express "I want to read".
const (
	EventNone  = 0
	EventRead  = unix.EPOLLIN | unix.EPOLLPRI
	EventWrite = unix.EPOLLOUT
)

// Updater is the subset of EventLoop a Channel needs: re-registering
// itself with the poller when its interest set changes, and removing
// itself entirely when its owning connection tears down.
type Updater interface {
	UpdateChannel(c *Channel)
	RemoveChannel(c *Channel)
	AssertInLoopGoroutine()
}

// ReadCallback receives the poll timestamp so handlers can measure
// queuing delay between readiness and dispatch.
type ReadCallback func(receiveTimeNano int64)
type EventCallback func()

// Channel binds one fd to the callbacks that should run for each kind of
// readiness the poller reports on it. It is owned by exactly one
// EventLoop for its entire lifetime (one loop per thread), so it carries
// no internal locking.
type Channel struct {
	loop Updater
	fd   int

	events  uint32 // interest bits this Channel has registered
	revents uint32 // bits the poller last reported ready
	index   int    // poller-private bookkeeping slot; New, Added or Deleted

	tied  bool
	alive func() bool // nil, or reports whether the owner is still live

	readCallback  ReadCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback
}

// New returns a Channel for fd, registered with no interest bits set.
func New(loop Updater, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: -1}
}

func (c *Channel) Fd() int              { return c.fd }
func (c *Channel) Events() uint32       { return c.events }
func (c *Channel) SetRevents(r uint32)  { c.revents = r }
func (c *Channel) Index() int           { return c.index }
func (c *Channel) SetIndex(i int)       { c.index = i }

func (c *Channel) SetReadCallback(cb ReadCallback)   { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb EventCallback) { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb EventCallback) { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb EventCallback) { c.errorCallback = cb }

// Tie binds the channel to its owning connection's liveness check. Go has
// no manual frees to race against, but the ordering hazard the original
// weak_ptr guarded against still exists here: a readiness event can be
// queued for dispatch in the same loop iteration that begins tearing the
// connection down. Tie makes handleEvent re-check alive() immediately
// before running any callback, so a connection that started closing
// this tick never has its callbacks invoked after the fact.
func (c *Channel) Tie(alive func() bool) {
	c.alive = alive
	c.tied = true
}

func (c *Channel) EnableReading() {
	c.events |= EventRead
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= EventRead
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= EventWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

func (c *Channel) IsReading() bool   { return c.events&EventRead != 0 }
func (c *Channel) IsWriting() bool   { return c.events&EventWrite != 0 }
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

// Remove unregisters the channel from its owning loop's poller entirely.
func (c *Channel) Remove() {
	c.loop.RemoveChannel(c)
}

func (c *Channel) update() {
	c.loop.UpdateChannel(c)
}

// HandleEvent dispatches the readiness last recorded in revents. It must
// only be called from the owning EventLoop's goroutine.
func (c *Channel) HandleEvent(receiveTimeNano int64) {
	if c.tied {
		if c.alive == nil || !c.alive() {
			return
		}
	}
	c.handleEventWithGuard(receiveTimeNano)
}

func (c *Channel) handleEventWithGuard(receiveTimeNano int64) {
	if c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents&unix.EPOLLERR != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTimeNano)
		}
	}
	if c.revents&unix.EPOLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
