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

// Package acceptor runs the listening socket on the main EventLoop: it
// never reads or writes connection data, it only accepts and hands the
// resulting fd off to whatever callback the Server registered.
package acceptor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/reactor/channel"
	"github.com/sabouaram/reactor/errors"
	"github.com/sabouaram/reactor/internal/netutil"
	"github.com/sabouaram/reactor/logger"
)

// ErrAlreadyListening is returned by Listen when called on an Acceptor
// that is already listening.
var ErrAlreadyListening = fmt.Errorf("acceptor: already listening")

// Loop is the subset of EventLoop the acceptor's Channel needs.
type Loop interface {
	channel.Updater
}

// NewConnectionCallback receives the accepted connection's fd and its
// peer address. The callback owns fd from this point on: Acceptor never
// reads from it and closes it only if no callback is registered.
type NewConnectionCallback func(fd int, peer unix.Sockaddr)

// Acceptor owns the listening socket and its Channel. It must run on the
// main EventLoop only; newly accepted connections are hand-off targets
// for a LoopThreadPool, not this loop.
type Acceptor struct {
	loop       Loop
	socket     *netutil.Socket
	ch         *channel.Channel
	listening  bool
	onNewConn  NewConnectionCallback
	log        logger.Entry
	reservedFd int // EMFILE fallback, see handleRead
}

// New creates a nonblocking listening socket bound to addr and its Channel
// on loop; the Channel reaches the poller only when Listen enables reading.
func New(loop Loop, family int, addr unix.Sockaddr, reusePort bool, log logger.Entry) (*Acceptor, error) {
	sock, err := netutil.NewListenSocket(family)
	if err != nil {
		return nil, fmt.Errorf("acceptor: create socket: %w", err)
	}
	if err := sock.SetReuseAddr(true); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("acceptor: SO_REUSEADDR: %w", err)
	}
	if err := sock.SetReusePort(reusePort); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("acceptor: SO_REUSEPORT: %w", err)
	}
	if err := sock.Bind(addr); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("acceptor: bind: %w", err)
	}

	// Reserve one spare fd ahead of time so handleRead can free it and
	// immediately close the next accepted connection when the process is
	// out of file descriptors, instead of spinning on EMFILE with the
	// listening socket still readable.
	reserved, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	if err != nil {
		reserved = -1
	}

	a := &Acceptor{
		loop:       loop,
		socket:     sock,
		log:        log,
		reservedFd: reserved,
	}
	a.ch = channel.New(loop, sock.Fd())
	a.ch.SetReadCallback(func(int64) { a.handleRead() })
	return a, nil
}

func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.onNewConn = cb
}

func (a *Acceptor) Listening() bool { return a.listening }

// Fd returns the listening socket's file descriptor.
func (a *Acceptor) Fd() int { return a.socket.Fd() }

// Listen starts listening and registers read interest so new connections
// start flowing through handleRead.
func (a *Acceptor) Listen(backlog int) error {
	if a.listening {
		return errors.New(ErrAlreadyListening, nil)
	}
	a.listening = true
	if err := a.socket.Listen(backlog); err != nil {
		return fmt.Errorf("acceptor: listen: %w", err)
	}
	a.ch.EnableReading()
	return nil
}

// Close stops listening and releases the listening socket and its
// reserved spare fd.
func (a *Acceptor) Close() error {
	a.ch.DisableAll()
	a.ch.Remove()
	if a.reservedFd >= 0 {
		_ = unix.Close(a.reservedFd)
	}
	return a.socket.Close()
}

func (a *Acceptor) handleRead() {
	fd, peer, err := a.socket.Accept()
	if err == nil {
		if a.onNewConn != nil {
			a.onNewConn(fd, peer)
		} else {
			_ = unix.Close(fd)
		}
		return
	}

	if err == unix.EAGAIN {
		return
	}

	a.log.Errorf("acceptor accept error: %v", err)
	if err == unix.EMFILE && a.reservedFd >= 0 {
		_ = unix.Close(a.reservedFd)
		fd, _, acceptErr := a.socket.Accept()
		if acceptErr == nil {
			_ = unix.Close(fd)
		}
		a.reservedFd, _ = unix.Open("/dev/null", unix.O_RDONLY, 0)
	}
}
