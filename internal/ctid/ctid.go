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

// Package ctid caches the calling goroutine's OS thread id, the same way
// the reactor this module is modeled on caches gettid() per-thread.
// Go goroutines float across OS threads by default, so a cached id is
// only meaningful for a goroutine that has pinned itself with
// runtime.LockOSThread first — which is exactly what every EventLoop's
// run goroutine does before it caches anything here.
package ctid

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Cache holds one OS thread id, read with unix.Gettid and stored by a
// per-Cache sync.Once the first time Tid is called. The cache is only valid for the
// life of a goroutine pinned with runtime.LockOSThread; an unpinned
// goroutine may be rescheduled onto a different OS thread between reads,
// making a cached value stale. EventLoop is the only intended caller and
// always pins itself first.
type Cache struct {
	once sync.Once
	tid  int
}

// Tid returns and caches the OS thread id for the goroutine that first
// calls it on this Cache.
func (c *Cache) Tid() int {
	c.once.Do(func() {
		c.tid = unix.Gettid()
	})
	return c.tid
}

// CurrentTid returns the calling thread's id uncached, for one-off
// comparisons that don't own a Cache (e.g. tests).
func CurrentTid() int {
	return unix.Gettid()
}
