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

// Package wakeup provides the eventfd-backed cross-thread doorbell an
// EventLoop listens on so another goroutine can pull it out of a blocking
// epoll_wait. Writing any non-zero uint64 to it makes the fd readable;
// reading drains the counter back to zero and re-arms it.
package wakeup

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// FD wraps one eventfd, non-blocking and close-on-exec like every other
// fd the reactor core opens itself.
type FD struct {
	fd int
}

// New creates a fresh eventfd starting at counter value 0.
func New() (*FD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &FD{fd: fd}, nil
}

// Fd returns the underlying file descriptor, for registering with a Poller.
func (w *FD) Fd() int {
	return w.fd
}

// Signal wakes up whatever is blocked in epoll_wait on this fd.
func (w *FD) Signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	return err
}

// Drain consumes the pending wakeup counter so the fd goes back to
// not-ready until the next Signal.
func (w *FD) Drain() error {
	var buf [8]byte
	_, err := unix.Read(w.fd, buf[:])
	return err
}

// Close releases the eventfd.
func (w *FD) Close() error {
	return unix.Close(w.fd)
}
