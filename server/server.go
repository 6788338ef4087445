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

// Package server wires an Acceptor running on a base EventLoop to a
// LoopThreadPool of worker loops, handing each newly accepted connection
// to the next worker round-robin and tracking every live connection in a
// name-keyed map for shutdown.
package server

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/reactor/acceptor"
	"github.com/sabouaram/reactor/buffer"
	"github.com/sabouaram/reactor/connection"
	"github.com/sabouaram/reactor/errors"
	"github.com/sabouaram/reactor/eventloop"
	"github.com/sabouaram/reactor/loopthread"
	"github.com/sabouaram/reactor/logger"
	"github.com/sabouaram/reactor/network/protocol"
)

var (
	ErrInvalidAddress   = fmt.Errorf("server: invalid address")
	ErrAlreadyListening = fmt.Errorf("server: already listening")
)

type (
	ConnectionCallback    = connection.ConnectionCallback
	MessageCallback       = connection.MessageCallback
	WriteCompleteCallback = connection.WriteCompleteCallback
	HighWaterMarkCallback = connection.HighWaterMarkCallback
)

// Server owns the acceptor (on its own base loop) and a pool of worker
// loops that accepted connections are dispatched to. It is the facade an
// application constructs once per listening address.
type Server struct {
	cfg  Config
	log  logger.Entry
	base *eventloop.EventLoop
	acc  *acceptor.Acceptor
	pool *loopthread.Pool

	metrics *metrics

	started atomic.Bool

	mu          sync.Mutex
	connections map[string]*connection.Connection
	nextSeq     atomic.Int64

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	threadInitCallback    func(*eventloop.EventLoop)
}

// New resolves cfg.Addr, builds the base loop and acceptor, and creates
// its metrics collectors; they are registered only by RegisterMetrics.
// Listening doesn't start until Start is called.
func New(cfg Config, log logger.Entry) (*Server, error) {
	if cfg.Protocol == protocol.NetworkEmpty {
		cfg.Protocol = protocol.NetworkTCP
	}
	if !cfg.Protocol.IsTCP() {
		return nil, errors.New(ErrInvalidAddress, fmt.Errorf("protocol %q is not a TCP flavor", cfg.Protocol.Code()))
	}

	sa, family, err := resolveAddr(cfg.Addr)
	if err != nil {
		return nil, errors.New(ErrInvalidAddress, err)
	}
	if cfg.Family == 0 {
		cfg.Family = family
	}

	log.Infof("server: binding %s as %s", cfg.Addr, cfg.Protocol.String())

	base, err := eventloop.New(log)
	if err != nil {
		return nil, fmt.Errorf("server: base loop: %w", err)
	}

	acc, err := acceptor.New(base, cfg.family(), sa, cfg.ReusePort, log)
	if err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("server: acceptor: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		base:        base,
		acc:         acc,
		pool:        loopthread.New(base, log),
		metrics:     newMetrics(cfg.Name),
		connections: make(map[string]*connection.Connection),
	}
	acc.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

func (s *Server) SetConnectionCallback(cb ConnectionCallback)       { s.connectionCallback = cb }
func (s *Server) SetMessageCallback(cb MessageCallback)             { s.messageCallback = cb }
func (s *Server) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCallback = cb }
func (s *Server) SetHighWaterMarkCallback(cb HighWaterMarkCallback) { s.highWaterMarkCallback = cb }

// SetThreadInitCallback registers a hook run once per worker loop, on
// that loop's own goroutine, before it starts polling. For a
// single-threaded server (cfg.Workers == 0) it instead runs once on the
// base loop, so the hook always fires exactly once per loop Start spawns.
func (s *Server) SetThreadInitCallback(cb func(*eventloop.EventLoop)) { s.threadInitCallback = cb }

// RegisterMetrics registers the server's Prometheus collectors
// (reactor_open_connections, reactor_accepted_total, reactor_closed_total,
// reactor_bytes_{in,out}_total) with reg. Optional — a Server that never
// calls this simply doesn't expose metrics.
func (s *Server) RegisterMetrics(reg prometheus.Registerer) error {
	return s.metrics.Register(reg)
}

// BaseLoop returns the loop the acceptor runs on.
func (s *Server) BaseLoop() *eventloop.EventLoop { return s.base }

// ListenAddr returns the listening socket's bound address, useful when
// Config.Addr requested an ephemeral port (":0").
func (s *Server) ListenAddr() (unix.Sockaddr, error) {
	return unix.Getsockname(s.acc.Fd())
}

// Start spawns cfg.Workers sub-loops, the base loop's own goroutine, and
// begins listening. Calling Start twice on the same Server is an error.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New(ErrAlreadyListening, nil)
	}

	s.pool.Start(s.cfg.Workers, s.threadInitCallback)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.base.Run()
	}()

	backlog := s.cfg.Backlog
	if backlog <= 0 {
		backlog = 1024
	}
	if err := s.acc.Listen(backlog); err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Stop posts connectDestroyed for every live connection, clears the
// connection map, and stops and joins every worker loop. The base loop is
// only asked to quit: Stop does not wait for its goroutine to return.
func (s *Server) Stop() {
	s.mu.Lock()
	conns := make([]*connection.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connections = make(map[string]*connection.Connection)
	s.mu.Unlock()

	for _, c := range conns {
		c := c
		c.Loop().RunInLoop(func() { c.ConnectDestroyed() })
	}

	s.pool.Stop()
	_ = s.acc.Close()
	s.base.Quit()
}

// newConnection runs on the base loop (the Acceptor's Channel callback).
// It picks the next worker, builds the connection's name, wires the
// server's own callbacks plus the application's, and posts
// connectEstablished onto the worker loop.
func (s *Server) newConnection(fd int, peer unix.Sockaddr) {
	loop := s.pool.NextLoop()
	seq := s.nextSeq.Add(1)
	name := fmt.Sprintf("%s-%s#%d", s.cfg.Name, s.cfg.Addr, seq)

	conn := connection.New(loop, name, fd, nil, peer, s.log)
	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.SetBytesSentHook(func(n int) { s.metrics.bytesOutTotal.Add(float64(n)) })
	userMessage := s.messageCallback
	conn.SetMessageCallback(func(c *connection.Connection, in *buffer.Buffer, ts int64) {
		s.metrics.bytesInTotal.Add(float64(in.ReadableBytes()))
		if userMessage != nil {
			userMessage(c, in, ts)
		}
	})
	if s.highWaterMarkCallback != nil {
		mark := s.cfg.HighWaterMark
		if mark <= 0 {
			mark = connection.DefaultHighWaterMark
		}
		conn.SetHighWaterMarkCallback(s.highWaterMarkCallback, mark)
	}
	conn.SetCloseCallback(s.removeConnection)

	s.mu.Lock()
	s.connections[name] = conn
	s.mu.Unlock()
	s.metrics.acceptedTotal.Inc()
	s.metrics.openConnections.Inc()

	loop.RunInLoop(func() { conn.ConnectEstablished() })
}

// removeConnection is the connection's own close callback, invoked on its
// worker loop. It hops back to the base loop to mutate the shared map,
// mirroring the source's loop_->runInLoop(removeConnectionInLoop) handoff.
func (s *Server) removeConnection(conn *connection.Connection) {
	s.base.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *Server) removeConnectionInLoop(conn *connection.Connection) {
	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()

	s.metrics.closedTotal.Inc()
	s.metrics.openConnections.Dec()

	conn.Loop().QueueInLoop(func() { conn.ConnectDestroyed() })
}

func resolveAddr(addr string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	if host == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, 0, fmt.Errorf("cannot resolve host %q", host)
		}
		ip = ips[0]
	}

	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, unix.AF_INET, nil
	}

	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6, nil
}
