/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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
 */

// Package counter implements a size-valued cell with an upper admission
// limit, used to gate aggregate in-flight bytes across a worker pool and,
// with an unbounded limit, as a leak-detecting allocation tracker.
package counter

import "sync"

// Counter is a bounded, thread-safe accumulator. Add blocks while adding n
// would push the value past the limit; Sub and Set wake waiters; Invalidate
// releases every waiter unconditionally for the remainder of the Counter's
// life.
type Counter struct {
	mu        sync.Mutex
	cond      *sync.Cond
	value     int64
	limit     int64
	invalid   bool
	destroyed bool
}

// New creates a Counter starting at start with an admission limit of limit.
// A non-positive limit means unbounded (Add never blocks).
func New(start, limit int64) *Counter {
	c := &Counter{value: start, limit: limit}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Add blocks while !invalid && value+n > limit (when limit > 0), then adds n
// and returns. It returns immediately, without adding, if the counter has
// been invalidated or destroyed.
func (c *Counter) Add(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.invalid && !c.destroyed && c.limit > 0 && c.value+n > c.limit {
		c.cond.Wait()
	}

	if c.invalid || c.destroyed {
		return
	}

	c.value += n
}

// Sub decrements the counter by n and wakes all waiters.
func (c *Counter) Sub(n int64) {
	c.mu.Lock()
	c.value -= n
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set overwrites the current value and wakes all waiters.
func (c *Counter) Set(v int64) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Invalidate makes every blocked and future Add call return immediately
// without enforcing the limit, for the remaining lifetime of the Counter.
func (c *Counter) Invalidate() {
	c.mu.Lock()
	c.invalid = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Destroy marks the counter unusable and releases any waiters. Safe to call
// more than once.
func (c *Counter) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}
