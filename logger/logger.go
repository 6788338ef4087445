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

// Package logger wraps logrus with the field vocabulary the reactor core
// attaches to every message it emits: loop name, fd, remote peer. Every
// internal package takes an Entry instead of a bare *logrus.Logger so a
// caller that never configures logging still gets a safe, silent zero value.
package logger

import "github.com/sirupsen/logrus"

// Entry is the logging handle passed down through EventLoop, Poller,
// Acceptor and TcpConnection. Its zero value is Discard: every method is a
// no-op, so components never need a nil check before logging.
type Entry struct {
	log *logrus.Entry
}

// New wraps an existing *logrus.Logger. A nil logger behaves like Discard().
func New(log *logrus.Logger) Entry {
	if log == nil {
		return Entry{}
	}
	return Entry{log: logrus.NewEntry(log)}
}

// Discard returns the zero-value Entry: every call on it is dropped.
func Discard() Entry {
	return Entry{}
}

// WithField returns a derived Entry carrying one extra structured field.
func (e Entry) WithField(key string, value interface{}) Entry {
	if e.log == nil {
		return e
	}
	return Entry{log: e.log.WithField(key, value)}
}

// WithFields returns a derived Entry carrying several extra structured fields.
func (e Entry) WithFields(fields map[string]interface{}) Entry {
	if e.log == nil {
		return e
	}
	return Entry{log: e.log.WithFields(fields)}
}

func (e Entry) Debugf(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Debugf(format, args...)
	}
}

func (e Entry) Infof(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Infof(format, args...)
	}
}

func (e Entry) Warnf(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Warnf(format, args...)
	}
}

func (e Entry) Errorf(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Errorf(format, args...)
	}
}

// Valid reports whether this Entry writes anywhere, as opposed to Discard.
func (e Entry) Valid() bool {
	return e.log != nil
}
