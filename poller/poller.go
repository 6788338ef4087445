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

// Package poller wraps epoll behind the small interface an EventLoop needs:
// register interest for a fd, wait for readiness, hand back the channels
// that became active. Only the epoll backend is implemented; the
// interface exists so a loop under test can swap in a fake.
package poller

import (
	"fmt"

	"github.com/sabouaram/reactor/channel"
)

// channel index states, mirroring the poller-private bookkeeping each
// Channel carries so update() only issues the epoll_ctl op that applies.
const (
	StateNew     = -1
	StateAdded   = 1
	StateDeleted = 2
)

// ErrClosed is returned by Poll once Close has been called.
var ErrClosed = fmt.Errorf("poller: closed")

// Poller is the interface an EventLoop drives. Poll blocks up to
// timeoutMs and returns the channels that became ready along with the
// wall-clock Unix-nanosecond timestamp at which they were observed ready.
type Poller interface {
	Poll(timeoutMs int) (active []*channel.Channel, timestampNano int64, err error)
	UpdateChannel(c *channel.Channel)
	RemoveChannel(c *channel.Channel)
	HasChannel(c *channel.Channel) bool
	Close() error
}
