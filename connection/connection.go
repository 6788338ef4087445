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

// Package connection implements the per-socket state machine that owns a
// connection's input/output buffers and drives its Channel's callbacks.
// A Connection is always handed to its callbacks as a pointer; Go's GC
// makes the original's shared_ptr/weak_ptr dance unnecessary for
// lifetime, but the same ordering hazard it guarded against —a readiness
// event dispatched after teardown has begun— still applies, so Connection
// ties its Channel to its own liveness check just like the source does.
package connection

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/reactor/buffer"
	"github.com/sabouaram/reactor/channel"
	"github.com/sabouaram/reactor/errors"
	"github.com/sabouaram/reactor/eventloop"
	"github.com/sabouaram/reactor/internal/netutil"
	"github.com/sabouaram/reactor/logger"
)

// ErrAlreadyDisconnected is returned by Send, SendFile and Shutdown when
// called on a Connection that isn't in the Connected state.
var ErrAlreadyDisconnected = fmt.Errorf("connection: already disconnected")

// State is a Connection's position in its Connecting -> Connected ->
// Disconnecting -> Disconnected lifecycle. Transitions only ever move
// forward; a Connection never returns to an earlier state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// DefaultHighWaterMark is the output-buffer size, in bytes, at which a
// Connection without an explicit override starts warning callers that a
// consumer isn't keeping up.
const DefaultHighWaterMark = 64 * 1024 * 1024 // 64MiB

type (
	ConnectionCallback     func(c *Connection)
	MessageCallback        func(c *Connection, in *buffer.Buffer, receiveTimeNano int64)
	WriteCompleteCallback  func(c *Connection)
	HighWaterMarkCallback  func(c *Connection, queuedBytes int)
	CloseCallback          func(c *Connection)
)

// Connection is one accepted TCP connection, running entirely on the
// goroutine of the EventLoop it was assigned to. Only Send, SendFile and
// Shutdown are meant to be called from other goroutines; everything else
// assumes the loop's own goroutine.
type Connection struct {
	loop *eventloop.EventLoop
	name string

	state atomic.Int32

	socket *netutil.Socket
	ch     *channel.Channel

	localAddr, peerAddr unix.Sockaddr

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
	highWaterMark         int

	inputBuffer  *buffer.Buffer
	outputBuffer *buffer.Buffer

	// onBytesSent, if set, is called on the loop goroutine with the number
	// of bytes actually handed to the kernel, from both the sendInLoop fast
	// path and handleWrite's drain of the buffered slow path. Used by
	// server/metrics.go to track reactor_bytes_out_total without the
	// connection package depending on prometheus itself.
	onBytesSent func(n int)

	log logger.Entry
}

// New wraps an already-accepted, nonblocking fd. The caller must still
// call ConnectEstablished on the owning loop before any data flows.
func New(loop *eventloop.EventLoop, name string, fd int, local, peer unix.Sockaddr, log logger.Entry) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		socket:        netutil.Wrap(fd),
		localAddr:     local,
		peerAddr:      peer,
		highWaterMark: DefaultHighWaterMark,
		inputBuffer:   buffer.New(buffer.InitialSize),
		outputBuffer:  buffer.New(buffer.InitialSize),
		log:           log,
	}
	c.state.Store(int32(StateConnecting))

	c.ch = channel.New(loop, fd)
	c.ch.SetReadCallback(func(ts int64) { c.handleRead(ts) })
	c.ch.SetWriteCallback(func() { c.handleWrite() })
	c.ch.SetCloseCallback(func() { c.handleClose() })
	c.ch.SetErrorCallback(func() { c.handleError() })

	_ = c.socket.SetKeepAlive(true)
	return c
}

func (c *Connection) Loop() *eventloop.EventLoop { return c.loop }
func (c *Connection) Name() string               { return c.name }
func (c *Connection) LocalAddr() unix.Sockaddr    { return c.localAddr }
func (c *Connection) PeerAddr() unix.Sockaddr     { return c.peerAddr }
func (c *Connection) Fd() int                     { return c.socket.Fd() }

func (c *Connection) State() State { return State(c.state.Load()) }
func (c *Connection) Connected() bool {
	return c.State() == StateConnected
}
func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

func (c *Connection) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCallback = cb }
func (c *Connection) SetMessageCallback(cb MessageCallback)             { c.messageCallback = cb }
func (c *Connection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCallback = cb }
func (c *Connection) SetCloseCallback(cb CloseCallback)                 { c.closeCallback = cb }

// SetBytesSentHook registers a callback invoked on the loop goroutine with
// the number of bytes actually written to the socket. Intended for metrics
// collection; nil by default.
func (c *Connection) SetBytesSentHook(cb func(n int)) { c.onBytesSent = cb }

// SetHighWaterMarkCallback registers cb and overrides the default
// high-water mark threshold that triggers it.
func (c *Connection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}

// ConnectEstablished ties the Channel to this connection's liveness,
// enables read interest, and fires the connection callback. Must run on
// the owning loop's goroutine — the pool hands off a brand-new
// connection by queuing this as the first functor on its assigned loop.
func (c *Connection) ConnectEstablished() {
	c.loop.AssertInLoopGoroutine()
	c.setState(StateConnected)
	c.ch.Tie(func() bool { return c.State() != StateDisconnected })
	c.ch.EnableReading()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed unregisters the Channel entirely. Called once, either
// from handleClose's close callback chain or by the Server when it's
// force-closing a connection during shutdown.
func (c *Connection) ConnectDestroyed() {
	c.loop.AssertInLoopGoroutine()
	if c.State() == StateConnected {
		c.setState(StateDisconnected)
		c.ch.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.ch.Remove()
	if err := c.socket.Close(); err != nil {
		c.log.Errorf("connection %s: close error: %v", c.name, err)
	}
}

// Send queues data for delivery, writing it directly if called from the
// loop goroutine with nothing already pending, or handing it off via
// RunInLoop otherwise. Safe to call from any goroutine.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return errors.New(ErrAlreadyDisconnected, nil)
	}
	if c.loop.IsInLoopGoroutine() {
		c.sendInLoop(data)
	} else {
		// Copy: data may be reused by the caller before the loop goroutine
		// gets around to running this functor.
		cp := append([]byte(nil), data...)
		c.loop.RunInLoop(func() { c.sendInLoop(cp) })
	}
	return nil
}

// SendString is Send for a string, avoiding a caller-side []byte conversion.
func (c *Connection) SendString(data string) error {
	return c.Send([]byte(data))
}

// SendFile queues offset..offset+count of file for zero-copy delivery via
// sendfile(2), after anything already queued on the output buffer drains.
// Safe to call from any goroutine.
func (c *Connection) SendFile(fileFd int, offset, count int64) error {
	if c.State() != StateConnected {
		return errors.New(ErrAlreadyDisconnected, nil)
	}
	if c.loop.IsInLoopGoroutine() {
		c.sendFileInLoop(fileFd, offset, count)
	} else {
		c.loop.RunInLoop(func() { c.sendFileInLoop(fileFd, offset, count) })
	}
	return nil
}

// Shutdown half-closes the connection's write side once any queued output
// has drained. Safe to call from any goroutine.
func (c *Connection) Shutdown() error {
	if c.State() != StateConnected {
		return errors.New(ErrAlreadyDisconnected, nil)
	}
	c.setState(StateDisconnecting)
	c.loop.RunInLoop(func() { c.shutdownInLoop() })
	return nil
}

// ForceClose tears the connection down immediately, as if the peer had
// closed it, regardless of anything still queued to write.
func (c *Connection) ForceClose() error {
	if c.State() != StateConnected && c.State() != StateDisconnecting {
		return errors.New(ErrAlreadyDisconnected, nil)
	}
	c.setState(StateDisconnecting)
	c.loop.RunInLoop(func() { c.handleClose() })
	return nil
}

func (c *Connection) handleRead(receiveTimeNano int64) {
	c.loop.AssertInLoopGoroutine()

	n, err := c.inputBuffer.ReadFd(c.socket.Fd())
	switch {
	case err != nil:
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		c.handleError()
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTimeNano)
		}
	case n == 0:
		c.handleClose()
	}
}

func (c *Connection) handleWrite() {
	c.loop.AssertInLoopGoroutine()

	if !c.ch.IsWriting() {
		c.log.Debugf("connection %s: spurious write event, nothing queued", c.name)
		return
	}

	n, err := c.outputBuffer.WriteFd(c.socket.Fd())
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		c.log.Errorf("connection %s: write error: %v", c.name, err)
		return
	}

	c.outputBuffer.Retrieve(n)
	if c.onBytesSent != nil {
		c.onBytesSent(n)
	}
	if c.outputBuffer.ReadableBytes() == 0 {
		c.ch.DisableWriting()
		if c.writeCompleteCallback != nil {
			c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
		}
		if c.State() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *Connection) handleClose() {
	c.loop.AssertInLoopGoroutine()

	if c.State() == StateDisconnected {
		return
	}
	c.setState(StateDisconnected)
	c.ch.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *Connection) handleError() {
	errno, err := c.socket.SoError()
	if err != nil {
		c.log.Errorf("connection %s: SO_ERROR lookup failed: %v", c.name, err)
		return
	}
	c.log.Errorf("connection %s: socket error: %v", c.name, unix.Errno(errno))
}

// sendInLoop is the fast path: write directly when nothing is already
// queued, and only fall back to buffering the remainder. Must run on the
// loop goroutine.
func (c *Connection) sendInLoop(data []byte) {
	c.loop.AssertInLoopGoroutine()

	if c.State() == StateDisconnected {
		c.log.Debugf("connection %s: send on a disconnected connection, dropped", c.name)
		return
	}

	var (
		written   int
		faulted   bool
	)

	if !c.ch.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.socket.Fd(), data)
		switch {
		case err == nil:
			written = n
			if c.onBytesSent != nil && written > 0 {
				c.onBytesSent(written)
			}
			if written == len(data) && c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			written = 0
		case err == unix.EPIPE || err == unix.ECONNRESET:
			faulted = true
			c.log.Errorf("connection %s: write fault: %v", c.name, err)
		default:
			written = 0
			c.log.Errorf("connection %s: write error: %v", c.name, err)
		}
	}

	if faulted {
		return
	}

	remaining := data[written:]
	if len(remaining) == 0 {
		return
	}

	oldLen := c.outputBuffer.ReadableBytes()
	if c.highWaterMarkCallback != nil && oldLen < c.highWaterMark && oldLen+len(remaining) >= c.highWaterMark {
		c.loop.QueueInLoop(func() { c.highWaterMarkCallback(c, oldLen+len(remaining)) })
	}
	c.outputBuffer.Append(remaining)
	if !c.ch.IsWriting() {
		c.ch.EnableWriting()
	}
}

// shutdownInLoop half-closes the write side only once outputBuffer has
// fully drained; if writing is still pending, handleWrite re-checks
// StateDisconnecting once that drain finishes and calls this again.
func (c *Connection) shutdownInLoop() {
	c.loop.AssertInLoopGoroutine()

	if !c.ch.IsWriting() {
		if err := c.socket.ShutdownWrite(); err != nil {
			c.log.Errorf("connection %s: shutdown write error: %v", c.name, err)
		}
	}
}

// sendFileInLoop sends count bytes of fileFd starting at offset via
// sendfile(2), requeuing itself on the loop for whatever remains on a
// short send until the transfer completes or a write fault ends it.
func (c *Connection) sendFileInLoop(fileFd int, offset, count int64) {
	c.loop.AssertInLoopGoroutine()

	if c.State() == StateDisconnected {
		return
	}

	if c.ch.IsWriting() || c.outputBuffer.ReadableBytes() > 0 {
		// Something is already queued ahead of this transfer; requeue
		// until the output buffer has drained.
		c.loop.QueueInLoop(func() { c.sendFileInLoop(fileFd, offset, count) })
		return
	}

	off := offset
	n, err := unix.Sendfile(c.socket.Fd(), fileFd, &off, int(count))
	switch {
	case err == nil:
		remaining := count - int64(n)
		if remaining <= 0 {
			if c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
			return
		}
		c.loop.QueueInLoop(func() { c.sendFileInLoop(fileFd, off, remaining) })
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		c.loop.QueueInLoop(func() { c.sendFileInLoop(fileFd, off, count) })
	case err == unix.EPIPE || err == unix.ECONNRESET:
		c.log.Errorf("connection %s: sendfile fault: %v", c.name, err)
	default:
		c.log.Errorf("connection %s: sendfile error: %v", c.name, err)
	}
}
