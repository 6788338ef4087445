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

package connection_test

import (
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/reactor/buffer"
	. "github.com/sabouaram/reactor/connection"
	"github.com/sabouaram/reactor/eventloop"
	"github.com/sabouaram/reactor/logger"
)

func newRunningLoop() (*eventloop.EventLoop, func()) {
	l, err := eventloop.New(logger.Discard())
	Expect(err).NotTo(HaveOccurred())

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run()
	}()
	Eventually(l.IsRunning).Should(BeTrue())

	return l, func() {
		l.Quit()
		<-done
		Expect(l.Close()).To(Succeed())
	}
}

func newSocketpair() (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	Expect(err).NotTo(HaveOccurred())
	return fds[0], fds[1]
}

func newEstablished(loop *eventloop.EventLoop, fd int) *Connection {
	c := New(loop, "test", fd, nil, nil, logger.Discard())
	loop.RunInLoop(func() { c.ConnectEstablished() })
	Eventually(c.Connected).Should(BeTrue())
	return c
}

var _ = Describe("Connection", func() {
	It("delivers data the peer writes to the message callback", func() {
		loop, stop := newRunningLoop()
		defer stop()

		ours, peer := newSocketpair()
		defer unix.Close(peer)

		c := newEstablished(loop, ours)

		received := make(chan string, 1)
		c.SetMessageCallback(func(_ *Connection, in *buffer.Buffer, _ int64) {
			received <- in.RetrieveAllAsString()
		})

		_, err := unix.Write(peer, []byte("hello reactor"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(received).Should(Receive(Equal("hello reactor")))
	})

	It("fires the close callback once the peer closes its side", func() {
		loop, stop := newRunningLoop()
		defer stop()

		ours, peer := newSocketpair()
		defer unix.Close(ours)

		c := newEstablished(loop, ours)

		closed := make(chan struct{})
		c.SetCloseCallback(func(_ *Connection) { close(closed) })

		Expect(unix.Close(peer)).To(Succeed())

		Eventually(closed).Should(BeClosed())
		Eventually(c.State).Should(Equal(StateDisconnected))
	})

	It("writes via the fast path and delivers data to the peer", func() {
		loop, stop := newRunningLoop()
		defer stop()

		ours, peer := newSocketpair()
		defer unix.Close(peer)
		defer unix.Close(ours)

		c := newEstablished(loop, ours)
		c.Send([]byte("payload"))

		buf := make([]byte, 64)
		Eventually(func() (int, error) {
			return unix.Read(peer, buf)
		}).Should(BeNumerically(">", 0))
	})

	It("fires the high water mark callback once queued output crosses the threshold", func() {
		loop, stop := newRunningLoop()
		defer stop()

		ours, peer := newSocketpair()
		defer unix.Close(peer)
		defer unix.Close(ours)

		Expect(unix.SetsockoptInt(ours, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)).To(Succeed())

		c := newEstablished(loop, ours)
		c.SetHighWaterMarkCallback(func(_ *Connection, queued int) {
			highWater <- queued
		}, 1024)

		payload := make([]byte, 256*1024)
		c.Send(payload)

		Eventually(highWater, "2s").Should(Receive(BeNumerically(">=", 1024)))

		drained := make([]byte, 4096)
		Eventually(func() error {
			_, err := unix.Read(peer, drained)
			return err
		}, "2s").ShouldNot(HaveOccurred())
	})

	It("half-closes the write side once Shutdown's queued data has drained", func() {
		loop, stop := newRunningLoop()
		defer stop()

		ours, peer := newSocketpair()
		defer unix.Close(peer)
		defer unix.Close(ours)

		c := newEstablished(loop, ours)
		c.Send([]byte("bye"))
		c.Shutdown()

		Eventually(c.State).Should(Or(Equal(StateDisconnecting), Equal(StateDisconnected)))

		buf := make([]byte, 16)
		Eventually(func() (int, error) {
			return unix.Read(peer, buf)
		}).Should(BeNumerically(">", 0))

		Eventually(func() error {
			n, err := unix.Read(peer, buf)
			if err == nil && n == 0 {
				return nil
			}
			if err != nil {
				return err
			}
			return errNotYetEOF
		}, "2s").Should(Succeed())
	})

	It("returns ErrAlreadyDisconnected from Send, SendFile, Shutdown and ForceClose once disconnected", func() {
		loop, stop := newRunningLoop()
		defer stop()

		ours, peer := newSocketpair()
		defer unix.Close(peer)

		c := newEstablished(loop, ours)
		closed := make(chan struct{})
		c.SetCloseCallback(func(_ *Connection) { close(closed) })

		Expect(unix.Close(peer)).To(Succeed())
		Eventually(closed).Should(BeClosed())
		Eventually(c.State).Should(Equal(StateDisconnected))

		Expect(c.Send([]byte("x"))).To(MatchError(ErrAlreadyDisconnected))
		Expect(c.SendFile(-1, 0, 1)).To(MatchError(ErrAlreadyDisconnected))
		Expect(c.Shutdown()).To(MatchError(ErrAlreadyDisconnected))
		Expect(c.ForceClose()).To(MatchError(ErrAlreadyDisconnected))
	})
})

var highWater = make(chan int, 1)

var errNotYetEOF = &notYetEOF{}

type notYetEOF struct{}

func (*notYetEOF) Error() string { return "not yet at EOF" }
