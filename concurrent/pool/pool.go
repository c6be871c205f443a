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

// Package pool provides two worker-pool flavors used by the archive
// engine: a simple pool that launches N workers all running the same
// function, and a job pool with an internal job queue and submit/wait_all.
package pool

import "sync"

// Simple launches n identical goroutines running fn, joining them on
// Wait/Destroy. Used for the ZIP compression workers, where every worker
// runs the same "drain, compress, mark done" loop against shared state.
type Simple struct {
	wg sync.WaitGroup
}

// NewSimple starts n goroutines each running fn and returns the pool handle.
func NewSimple(n int, fn func(workerIndex int)) *Simple {
	p := &Simple{}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer p.wg.Done()
			fn(idx)
		}(i)
	}
	return p
}

// Wait blocks until every worker has returned.
func (p *Simple) Wait() {
	p.wg.Wait()
}

// Destroy is an alias for Wait, matching the spec's destroy-joins-all contract.
func (p *Simple) Destroy() {
	p.Wait()
}

type job struct {
	fn  func()
	nxt *job
}

// Job is a bounded work queue pool: Submit enqueues a function, a fixed
// number of workers drain it, and WaitAll blocks until the queue is empty
// and no worker is mid-job.
type Job struct {
	mu           sync.Mutex
	jobAvail     *sync.Cond
	jobDone      *sync.Cond
	head         *job
	tail         *job
	jobCount     int
	workingCount int
	maxQueue     int
	shutdown     bool
	workers      sync.WaitGroup
}

// NewJob creates a Job pool with nWorkers goroutines. maxQueueSize <= 0
// means unbounded.
func NewJob(nWorkers, maxQueueSize int) *Job {
	p := &Job{maxQueue: maxQueueSize}
	p.jobAvail = sync.NewCond(&p.mu)
	p.jobDone = sync.NewCond(&p.mu)

	p.workers.Add(nWorkers)
	for i := 0; i < nWorkers; i++ {
		go p.workerLoop()
	}
	return p
}

func (p *Job) workerLoop() {
	defer p.workers.Done()

	for {
		p.mu.Lock()
		for !p.shutdown && p.head == nil {
			p.jobAvail.Wait()
		}

		if p.head == nil && p.shutdown {
			p.mu.Unlock()
			return
		}

		j := p.head
		p.head = j.nxt
		if p.head == nil {
			p.tail = nil
		}
		p.jobCount--
		p.workingCount++
		p.mu.Unlock()

		j.fn()

		p.mu.Lock()
		p.workingCount--
		if p.jobCount == 0 && p.workingCount == 0 {
			p.jobDone.Broadcast()
		}
		p.mu.Unlock()
	}
}

// Submit appends fn to the job queue and wakes one worker. It returns false
// if the pool is shut down, or the queue is at maxQueueSize capacity.
func (p *Job) Submit(fn func()) bool {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return false
	}
	if p.maxQueue > 0 && p.jobCount >= p.maxQueue {
		p.mu.Unlock()
		return false
	}

	j := &job{fn: fn}
	if p.tail == nil {
		p.head = j
	} else {
		p.tail.nxt = j
	}
	p.tail = j
	p.jobCount++
	p.mu.Unlock()

	p.jobAvail.Signal()
	return true
}

// WaitAll blocks while there is a queued or in-flight job.
func (p *Job) WaitAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.jobCount > 0 || p.workingCount > 0 {
		p.jobDone.Wait()
	}
}

// Shutdown stops accepting new jobs, wakes every worker, joins them, and
// drops any jobs still queued.
func (p *Job) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.head = nil
	p.tail = nil
	p.jobCount = 0
	p.mu.Unlock()

	p.jobAvail.Broadcast()
	p.workers.Wait()
}
