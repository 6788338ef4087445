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

// Package buffer implements the growable read/write byte buffer that backs
// every TcpConnection's input and output side. It keeps a small prepend
// region ahead of the readable data so length-prefix framing can be written
// in place without a second allocation, and it grows by compacting already-
// read space before it resizes.
package buffer

// cheapPrepend is the fixed prepend region reserved ahead of the readable
// bytes, big enough for callers to stamp a 4 or 8 byte length header in
// place instead of prepending via a second copy.
const cheapPrepend = 8

// InitialSize is the default capacity of a freshly constructed Buffer,
// excluding the prepend region.
const InitialSize = 1024

// extraBufSize is the stack-resident scratch space readFd borrows to absorb
// a read larger than the current writable region, so the syscall can still
// be satisfied in one call without growing the buffer for every burst.
const extraBufSize = 65536

// Buffer is a growable byte buffer split into three regions:
// prependable | readable | writable. It is not safe for concurrent use;
// callers confine it to a single EventLoop goroutine.
type Buffer struct {
	buf    []byte
	reader int // start of the readable region
	writer int // start of the writable region
}

// New returns a Buffer with the given initial writable capacity.
func New(initialSize int) *Buffer {
	if initialSize < 0 {
		initialSize = InitialSize
	}
	return &Buffer{
		buf:    make([]byte, cheapPrepend+initialSize),
		reader: cheapPrepend,
		writer: cheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int {
	return b.writer - b.reader
}

// WritableBytes returns the number of bytes that can be appended before
// the buffer needs to grow.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writer
}

// PrependableBytes returns the size of the unused region ahead of the
// readable data, including the fixed cheap-prepend reservation.
func (b *Buffer) PrependableBytes() int {
	return b.reader
}

// Peek returns the readable region without consuming it. The returned
// slice aliases the buffer and is invalidated by the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.reader:b.writer]
}

// Retrieve consumes len bytes from the front of the readable region.
// A len at or beyond ReadableBytes is equivalent to RetrieveAll.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.reader += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll resets both cursors to the start of the readable region,
// discarding any unread data.
func (b *Buffer) RetrieveAll() {
	b.reader = cheapPrepend
	b.writer = cheapPrepend
}

// RetrieveAllAsString drains every readable byte and returns it as a string.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// RetrieveAsString drains n readable bytes and returns them as a string.
func (b *Buffer) RetrieveAsString(n int) string {
	s := string(b.buf[b.reader : b.reader+n])
	b.Retrieve(n)
	return s
}

// EnsureWritable grows the buffer, compacting first, so at least n bytes
// can be appended without a further resize.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// Append copies data onto the end of the readable region, growing the
// buffer first if there isn't enough writable space.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	b.writer += copy(b.buf[b.writer:], data)
}

// AppendString is Append for a string, avoiding a caller-side conversion.
func (b *Buffer) AppendString(data string) {
	b.EnsureWritable(len(data))
	b.writer += copy(b.buf[b.writer:], data)
}

// BeginWrite returns the writable region as a slice callers can fill
// directly before advancing the writer cursor with CommitWrite.
func (b *Buffer) BeginWrite() []byte {
	return b.buf[b.writer:]
}

// CommitWrite advances the writer cursor after data has been written
// directly into the slice returned by BeginWrite.
func (b *Buffer) CommitWrite(n int) {
	b.writer += n
}

// makeSpace reclaims the already-read prefix before growing the
// underlying slice, mirroring the source buffer's prependable | readable |
// writable layout:
//
//	| cheapPrepend | read-but-gone | unread | writable |
//	becomes
//	| cheapPrepend | unread | writable (bigger) |
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+cheapPrepend {
		grown := make([]byte, b.writer+n)
		copy(grown, b.buf[:b.writer])
		b.buf = grown
		return
	}

	readable := b.ReadableBytes()
	copy(b.buf[cheapPrepend:], b.buf[b.reader:b.writer])
	b.reader = cheapPrepend
	b.writer = b.reader + readable
}
