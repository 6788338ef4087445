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

package server

import (
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/sabouaram/reactor/duration"
	"github.com/sabouaram/reactor/network/protocol"
)

// Config describes how a Server binds and fans work out across its worker
// pool. The duration fields are decoded and kept, but Server does not read
// them.
type Config struct {
	Name string `yaml:"name" json:"name"`

	// Addr is the bind address, e.g. "0.0.0.0:9000" or "[::]:9000".
	Addr string `yaml:"addr" json:"addr"`

	// Protocol names the socket family/flavor for logging and validation;
	// the reactor core only ever speaks TCP (spec §6), so anything but
	// NetworkEmpty, NetworkTCP, NetworkTCP4 or NetworkTCP6 is rejected by
	// New. NetworkEmpty defaults to NetworkTCP.
	Protocol protocol.NetworkProtocol `yaml:"protocol" json:"protocol"`

	// Family selects unix.AF_INET or unix.AF_INET6; when left zero, New
	// sets it to the family of the resolved Addr.
	Family int `yaml:"-" json:"-"`

	// Workers is the size of the loop-thread pool accepted connections
	// are distributed across, round-robin. Zero means single-threaded:
	// the acceptor's own loop also serves every connection.
	Workers int `yaml:"workers" json:"workers"`

	// ReusePort sets SO_REUSEPORT on the listening socket so multiple
	// processes can share one port.
	ReusePort bool `yaml:"reuse_port" json:"reuse_port"`

	// Backlog is the listen(2) backlog.
	Backlog int `yaml:"backlog" json:"backlog"`

	// HighWaterMark is the per-connection output-buffer size, in bytes,
	// that triggers HighWaterMarkCallback. Zero uses connection.DefaultHighWaterMark.
	HighWaterMark int `yaml:"high_water_mark" json:"high_water_mark"`

	// IdleTimeout is carried in the configuration only: Server does not
	// disconnect idle peers.
	IdleTimeout duration.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// ShutdownGrace is carried in the configuration only: Stop destroys
	// every connection at once and does not wait for queued writes to drain.
	ShutdownGrace duration.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// family returns c.Family, defaulting to AF_INET.
func (c Config) family() int {
	if c.Family != 0 {
		return c.Family
	}
	return unix.AF_INET
}

// LoadConfigYAML decodes a Config from YAML, e.g. a file read by the caller.
func LoadConfigYAML(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
