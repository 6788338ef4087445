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

// Command reactor-echo is a minimal demonstration binary: it starts a
// Server that echoes every message back to its sender, and logs each
// connection lifecycle transition.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sabouaram/reactor/buffer"
	"github.com/sabouaram/reactor/connection"
	"github.com/sabouaram/reactor/logger"
	"github.com/sabouaram/reactor/server"
)

func main() {
	var (
		addr      string
		workers   int
		reusePort bool
	)

	cmd := &cobra.Command{
		Use:   "reactor-echo",
		Short: "run a reactor echo server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(addr, workers, reusePort)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9000", "address to listen on")
	cmd.Flags().IntVar(&workers, "workers", 4, "number of worker loops in the pool (0 = single-threaded)")
	cmd.Flags().BoolVar(&reusePort, "reuseport", false, "set SO_REUSEPORT on the listening socket")

	if err := cmd.Execute(); err != nil {
		color.Red("reactor-echo: %v", err)
		os.Exit(1)
	}
}

func run(addr string, workers int, reusePort bool) error {
	base := logrus.New()
	log := logger.New(base)

	cfg := server.Config{
		Name:      "echo",
		Addr:      addr,
		Workers:   workers,
		ReusePort: reusePort,
		Backlog:   1024,
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	srv.SetConnectionCallback(func(c *connection.Connection) {
		if c.Connected() {
			color.Green("+ connection established: %s (%s)", c.Name(), c.PeerAddr())
		} else {
			color.Yellow("- connection closed: %s", c.Name())
		}
	})
	srv.SetMessageCallback(func(c *connection.Connection, in *buffer.Buffer, _ int64) {
		c.Send(in.Peek())
		in.RetrieveAll()
	})

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	color.Cyan("reactor-echo listening on %s (workers=%d, reuseport=%v)", addr, workers, reusePort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	color.Cyan("shutting down")
	srv.Stop()
	return nil
}
