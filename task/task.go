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

// Package task turns a synchronous engine run (ziparchive's CompressTask,
// ExtractTask, or a Rebuild-based mutation) into a detached async
// invocation: a monotonic task ID, a background goroutine, and exactly one
// terminal FINISH or ERROR event delivered through an EventSink, with
// optional WARNING/LOG messages along the way.
package task

import (
	"sync/atomic"
	"time"

	"github.com/nabbar/parazip/concurrent/queue"
	liberr "github.com/nabbar/parazip/errors"
)

// firstID - 1: the first call to NextID returns firstID.
const firstID int64 = 888

var idCounter = int64(firstID - 1)

// NextID returns the next monotonic task identifier, starting at 888.
func NextID() int64 {
	return atomic.AddInt64(&idCounter, 1)
}

// Action classifies an Event.
type Action int

const (
	ActionFinish Action = iota
	ActionWarning
	ActionError
	ActionLog
)

func (a Action) String() string {
	switch a {
	case ActionFinish:
		return "FINISH"
	case ActionWarning:
		return "WARNING"
	case ActionError:
		return "ERROR"
	case ActionLog:
		return "LOG"
	}
	return "UNKNOWN"
}

// Event is the message a task delivers to the host through an EventSink.
type Event struct {
	TaskID  int64
	Action  Action
	ErrCode liberr.NativeCode
	ErrMsg  string
}

// EventSink receives every event a running Task emits.
type EventSink interface {
	Emit(Event)
}

// Runnable is anything a Task can drive to completion: ziparchive's
// CompressTask and ExtractTask both already satisfy this shape.
type Runnable interface {
	Run() liberr.Error
	Cancel()
}

// Warner is an optional extension a Runnable may satisfy to surface
// non-fatal notes collected during a successful Run, each delivered as
// its own WARNING event ahead of the terminal FINISH (ziparchive's
// MutationTask uses this to report a rename-to-root child left under its
// original name).
type Warner interface {
	Warnings() []string
}

// Task is one detached async invocation.
type Task struct {
	ID       int64
	sink     EventSink
	runnable Runnable
	done     chan struct{}
}

// Start launches runnable on a new goroutine and returns immediately,
// per spec §4.10: "an async invocation starts a detached worker thread
// and immediately returns the task object to the caller."
func Start(sink EventSink, runnable Runnable) *Task {
	t := &Task{
		ID:       NextID(),
		sink:     sink,
		runnable: runnable,
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Task) run() {
	defer close(t.done)

	err := t.runnable.Run()
	if err != nil {
		t.sink.Emit(Event{
			TaskID:  t.ID,
			Action:  ActionError,
			ErrCode: liberr.NativeOf(err),
			ErrMsg:  err.Error(),
		})
		return
	}
	if w, ok := t.runnable.(Warner); ok {
		for _, msg := range w.Warnings() {
			t.sink.Emit(Event{TaskID: t.ID, Action: ActionWarning, ErrMsg: msg})
		}
	}
	t.sink.Emit(Event{TaskID: t.ID, Action: ActionFinish})
}

// Cancel requests cooperative shutdown of the underlying runnable.
func (t *Task) Cancel() {
	t.runnable.Cancel()
}

// Wait blocks until the task's terminal event has been emitted.
func (t *Task) Wait() {
	<-t.done
}

// Warn and Log let a caller holding a Task surface non-terminal progress
// notes through the same sink the terminal event uses.
func (t *Task) Warn(msg string) {
	t.sink.Emit(Event{TaskID: t.ID, Action: ActionWarning, ErrMsg: msg})
}

func (t *Task) Log(msg string) {
	t.sink.Emit(Event{TaskID: t.ID, Action: ActionLog, ErrMsg: msg})
}

// QueueSink is the default EventSink: a bounded, closable FIFO polled with
// a 1-second timeout so the foreign host is never blocked indefinitely
// (spec §4.10).
type QueueSink struct {
	q *queue.Queue
}

// NewQueueSink creates an empty, open QueueSink.
func NewQueueSink() *QueueSink {
	return &QueueSink{q: queue.New()}
}

func (s *QueueSink) Emit(e Event) {
	s.q.Push(e)
}

// PollEvent waits up to one second for the next event; ok is false on
// timeout, which never closes or invalidates the queue.
func (s *QueueSink) PollEvent() (Event, bool) {
	item, ok := s.q.PopTimeout(time.Second)
	if !ok {
		return Event{}, false
	}
	return item.(Event), true
}

// Close releases any goroutine blocked in PollEvent.
func (s *QueueSink) Close() {
	s.q.Close()
}
