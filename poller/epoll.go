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

package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/reactor/channel"
	rerrors "github.com/sabouaram/reactor/errors"
	"github.com/sabouaram/reactor/logger"
)

const initEventListSize = 16

// epollPoller is the only Poller implementation: a thin wrapper around
// epoll_create1/epoll_ctl/epoll_wait plus the fd-to-Channel bookkeeping
// epoll itself doesn't carry for us.
type epollPoller struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*channel.Channel
	closed   bool
	log      logger.Entry
}

// New creates the epoll instance. The returned Poller owns epfd and must
// be Closed when the owning EventLoop shuts down.
func New(log logger.Entry) (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*channel.Channel),
		log:      log,
	}, nil
}

func (p *epollPoller) Close() error {
	p.closed = true
	return unix.Close(p.epfd)
}

func (p *epollPoller) HasChannel(c *channel.Channel) bool {
	found, ok := p.channels[c.Fd()]
	return ok && found == c
}

// Poll blocks for up to timeoutMs and returns every channel whose
// registered fd became ready, plus the wall-clock time (time.Now().UnixNano(),
// not a monotonic reading) taken as epoll_wait returns. An EINTR is swallowed and reported as zero events ready,
// matching level-triggered epoll's own retry-friendly contract; any other
// error is returned to the caller.
func (p *epollPoller) Poll(timeoutMs int) ([]*channel.Channel, int64, error) {
	if p.closed {
		return nil, 0, rerrors.New(ErrClosed, nil)
	}

	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := time.Now().UnixNano()
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, now, nil
		}
		return nil, 0, fmt.Errorf("epoll_wait: %w", err)
	}

	active := p.fillActiveChannels(n)

	if n == len(p.events) {
		grown := make([]unix.EpollEvent, len(p.events)*2)
		copy(grown, p.events)
		p.events = grown
	}
	return active, now, nil
}

func (p *epollPoller) fillActiveChannels(numEvents int) []*channel.Channel {
	active := make([]*channel.Channel, 0, numEvents)
	for i := 0; i < numEvents; i++ {
		c := p.channels[int(p.events[i].Fd)]
		if c == nil {
			continue
		}
		c.SetRevents(p.events[i].Events)
		active = append(active, c)
	}
	return active
}

// UpdateChannel registers c's current interest set with epoll, choosing
// ADD, MOD or DEL based on its prior index and current events.
func (p *epollPoller) UpdateChannel(c *channel.Channel) {
	index := c.Index()
	p.log.Debugf("poller update fd=%d events=%d index=%d", c.Fd(), c.Events(), index)

	if index == StateNew || index == StateDeleted {
		if index == StateNew {
			p.channels[c.Fd()] = c
		}
		c.SetIndex(StateAdded)
		p.ctl(unix.EPOLL_CTL_ADD, c)
		return
	}

	if c.IsNoneEvent() {
		p.ctl(unix.EPOLL_CTL_DEL, c)
		c.SetIndex(StateDeleted)
	} else {
		p.ctl(unix.EPOLL_CTL_MOD, c)
	}
}

// RemoveChannel drops c from the poller entirely; c must have no
// registered interest left (callers disable all events first).
func (p *epollPoller) RemoveChannel(c *channel.Channel) {
	delete(p.channels, c.Fd())
	p.log.Debugf("poller remove fd=%d", c.Fd())

	if c.Index() == StateAdded {
		p.ctl(unix.EPOLL_CTL_DEL, c)
	}
	c.SetIndex(StateNew)
}

func (p *epollPoller) ctl(op int, c *channel.Channel) {
	event := unix.EpollEvent{
		Events: c.Events(),
		Fd:     int32(c.Fd()),
	}
	if err := unix.EpollCtl(p.epfd, op, c.Fd(), &event); err != nil {
		p.log.Errorf("epoll_ctl op=%d fd=%d error: %v", op, c.Fd(), err)
	}
}
