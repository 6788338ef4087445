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

package buffer

import "golang.org/x/sys/unix"

// ReadFd reads once from fd straight into the buffer. The poller runs
// level-triggered, so the caller doesn't know in advance how much is
// pending; ReadFd scatters the read across the current writable tail and a
// 64KB stack-resident scratch region via readv, then only grows the buffer
// by however much overflowed into the scratch region. This bounds the
// buffer to what was actually needed instead of pre-sizing for the worst
// case on every read.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extra [extraBufSize]byte

	writable := b.WritableBytes()
	var iov []unix.Iovec
	if writable > 0 {
		v := unix.Iovec{Base: &b.buf[b.writer]}
		v.SetLen(writable)
		iov = append(iov, v)
	}
	if writable < extraBufSize {
		v := unix.Iovec{Base: &extra[0]}
		v.SetLen(extraBufSize)
		iov = append(iov, v)
	}

	n, err := unix.Readv(fd, iov)
	if err != nil {
		return 0, err
	}

	switch {
	case n <= 0:
		// n == 0: peer closed. Leave cursors untouched, caller checks n.
	case n <= writable:
		b.writer += n
	default:
		b.writer = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region to fd in a single syscall. It does
// not retry on a short write or EAGAIN; the caller (TcpConnection) owns
// the retry/backpressure policy and consults ReadableBytes afterward.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	return n, nil
}
