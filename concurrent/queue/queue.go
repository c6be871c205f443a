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

// Package queue implements a closable FIFO message queue: push/pop with an
// optional timeout, and a Close that wakes every current and future waiter.
package queue

import (
	"container/list"
	"sync"
	"time"
)

// Queue is a thread-safe FIFO of opaque items.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

// New creates an empty, open Queue.
func New() *Queue {
	q := &Queue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to the queue and wakes one waiter. It returns false if
// the queue is closed; the item is not accepted in that case.
func (q *Queue) Push(item any) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.PushBack(item)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed. The second
// return value is false ("no item") once the queue is closed and drained.
func (q *Queue) Pop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.items.Len() == 0 {
		return nil, false
	}

	e := q.items.Front()
	q.items.Remove(e)
	return e.Value, true
}

// PopTimeout blocks until an item is available, the queue is closed, or
// timeout elapses, whichever happens first. On timeout it returns
// (nil, false) without marking the queue closed.
func (q *Queue) PopTimeout(timeout time.Duration) (any, bool) {
	deadline := time.Now().Add(timeout)

	// A dedicated timer goroutine broadcasts once the deadline passes so
	// the cond.Wait loop below can re-check and bail out on expiry; it is
	// a no-op broadcast if Pop already returned an item by then.
	expired := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(expired)
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		select {
		case <-expired:
			return nil, false
		default:
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		q.cond.Wait()
	}

	if q.items.Len() == 0 {
		return nil, false
	}

	e := q.items.Front()
	q.items.Remove(e)
	return e.Value, true
}

// Close marks the queue closed: no further Push is accepted and every
// current and future waiter's Pop returns "no item" once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Destroy closes the queue and drains any remaining items through freeFn.
func (q *Queue) Destroy(freeFn func(any)) {
	q.Close()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() > 0 {
		e := q.items.Front()
		q.items.Remove(e)
		if freeFn != nil {
			freeFn(e.Value)
		}
	}
}

// Len returns the current number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
