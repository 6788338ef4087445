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

// Package netutil wraps the raw socket syscalls the acceptor and
// connection layers need straight from golang.org/x/sys/unix: creating a
// nonblocking listening socket, accept4, and the handful of setsockopt
// toggles the reactor core cares about. net.Listener hides exactly this
// layer, which is why the reactor core can't use it directly — it needs
// the bare fd to hand to its own epoll-backed Channel.
package netutil

import "golang.org/x/sys/unix"

// Socket owns one fd for its lifetime: no copying, only an explicit
// Close. This stands in for the original's noncopyable base class — Go
// has no copy constructors to delete, so the discipline is "pass by
// pointer, never by value" instead, same as every other type in this
// module that owns a fd.
type Socket struct {
	fd int
}

// NewListenSocket creates a nonblocking, close-on-exec TCP socket for the
// given address family (unix.AF_INET or unix.AF_INET6).
func NewListenSocket(family int) (*Socket, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	return &Socket{fd: fd}, nil
}

// Wrap adopts an already-open fd (e.g. one returned by Accept) into a Socket.
func Wrap(fd int) *Socket {
	return &Socket{fd: fd}
}

func (s *Socket) Fd() int { return s.fd }

func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

func (s *Socket) SetReuseAddr(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

func (s *Socket) SetReusePort(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

func (s *Socket) SetKeepAlive(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func (s *Socket) SetTCPNoDelay(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// SoError reads and clears the socket's pending SO_ERROR, the same check
// TcpConnection's error handler makes after EPOLLERR.
func (s *Socket) SoError() (int, error) {
	return unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

// ShutdownWrite half-closes the write side, used once the output buffer
// has fully drained on a connection that's shutting down.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

func (s *Socket) Bind(sa unix.Sockaddr) error {
	return unix.Bind(s.fd, sa)
}

func (s *Socket) Listen(backlog int) error {
	return unix.Listen(s.fd, backlog)
}

// Accept accepts one pending connection as a nonblocking, close-on-exec fd.
func (s *Socket) Accept() (int, unix.Sockaddr, error) {
	return unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
