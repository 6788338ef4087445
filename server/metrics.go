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

import "github.com/prometheus/client_golang/prometheus"

// metrics groups the Prometheus collectors a Server exposes about its own
// connection lifecycle. Each Server registers its own instance so two
// Servers in one process don't collide on label values.
type metrics struct {
	openConnections prometheus.Gauge
	acceptedTotal   prometheus.Counter
	closedTotal     prometheus.Counter
	bytesInTotal    prometheus.Counter
	bytesOutTotal   prometheus.Counter
}

func newMetrics(name string) *metrics {
	labels := prometheus.Labels{"server": name}
	return &metrics{
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "reactor_open_connections",
			Help:        "Number of currently open TCP connections.",
			ConstLabels: labels,
		}),
		acceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "reactor_accepted_total",
			Help:        "Total number of connections accepted.",
			ConstLabels: labels,
		}),
		closedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "reactor_closed_total",
			Help:        "Total number of connections closed.",
			ConstLabels: labels,
		}),
		bytesInTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "reactor_bytes_in_total",
			Help:        "Total bytes read from peers.",
			ConstLabels: labels,
		}),
		bytesOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "reactor_bytes_out_total",
			Help:        "Total bytes written to peers.",
			ConstLabels: labels,
		}),
	}
}

// Register adds every collector to reg, so the caller decides whether
// that's the global prometheus.DefaultRegisterer or a scoped one built for
// tests.
func (m *metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.openConnections, m.acceptedTotal, m.closedTotal, m.bytesInTotal, m.bytesOutTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
