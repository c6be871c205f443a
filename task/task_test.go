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

package task_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	liberr "github.com/nabbar/parazip/errors"
	"github.com/nabbar/parazip/task"
)

func TestTask(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "task Suite")
}

type fakeRunnable struct {
	err       liberr.Error
	warnings  []string
	cancelled chan struct{}
	block     bool
}

func (f *fakeRunnable) Run() liberr.Error {
	if f.block {
		<-f.cancelled
	}
	return f.err
}

func (f *fakeRunnable) Cancel() {
	if f.cancelled != nil {
		close(f.cancelled)
	}
}

func (f *fakeRunnable) Warnings() []string {
	return f.warnings
}

var _ = Describe("Task", func() {
	It("assigns monotonically increasing IDs starting at 888", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		a := task.Start(sink, &fakeRunnable{})
		a.Wait()
		b := task.Start(sink, &fakeRunnable{})
		b.Wait()

		Expect(a.ID).To(BeNumerically(">=", 888))
		Expect(b.ID).To(Equal(a.ID + 1))

		_, _ = sink.PollEvent()
		_, _ = sink.PollEvent()
	})

	It("emits a single FINISH event on success", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		tk := task.Start(sink, &fakeRunnable{})
		tk.Wait()

		ev, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev.Action).To(Equal(task.ActionFinish))
		Expect(ev.TaskID).To(Equal(tk.ID))

		_, ok = sink.PollEvent()
		Expect(ok).To(BeFalse())
	})

	It("emits an ERROR event instead of FINISH when Run fails", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		rerr := liberr.CodeError(900).Error(errors.New("boom"))
		tk := task.Start(sink, &fakeRunnable{err: rerr})
		tk.Wait()

		ev, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev.Action).To(Equal(task.ActionError))

		_, ok = sink.PollEvent()
		Expect(ok).To(BeFalse())
	})

	It("surfaces a Runnable's Warnings as WARNING events ahead of FINISH", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		tk := task.Start(sink, &fakeRunnable{warnings: []string{"first", "second"}})
		tk.Wait()

		ev1, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev1.Action).To(Equal(task.ActionWarning))
		Expect(ev1.ErrMsg).To(Equal("first"))

		ev2, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev2.Action).To(Equal(task.ActionWarning))
		Expect(ev2.ErrMsg).To(Equal("second"))

		ev3, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev3.Action).To(Equal(task.ActionFinish))
	})

	It("emits no WARNING event when the Runnable reports no warnings", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		tk := task.Start(sink, &fakeRunnable{})
		tk.Wait()

		ev, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev.Action).To(Equal(task.ActionFinish))
	})

	It("routes Cancel through to the underlying Runnable", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		r := &fakeRunnable{block: true, cancelled: make(chan struct{})}
		tk := task.Start(sink, r)
		tk.Cancel()
		tk.Wait()

		ev, ok := sink.PollEvent()
		Expect(ok).To(BeTrue())
		Expect(ev.Action).To(Equal(task.ActionFinish))
	})

	It("lets a caller holding a Task emit its own WARNING and LOG notes", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		r := &fakeRunnable{block: true, cancelled: make(chan struct{})}
		tk := task.Start(sink, r)
		tk.Warn("halfway")
		tk.Log("still going")
		tk.Cancel()
		tk.Wait()

		ev1, _ := sink.PollEvent()
		Expect(ev1.Action).To(Equal(task.ActionWarning))
		Expect(ev1.ErrMsg).To(Equal("halfway"))

		ev2, _ := sink.PollEvent()
		Expect(ev2.Action).To(Equal(task.ActionLog))
		Expect(ev2.ErrMsg).To(Equal("still going"))

		ev3, _ := sink.PollEvent()
		Expect(ev3.Action).To(Equal(task.ActionFinish))
	})

	It("PollEvent times out without closing the sink when nothing has been emitted", func() {
		sink := task.NewQueueSink()
		defer sink.Close()

		start := time.Now()
		_, ok := sink.PollEvent()
		Expect(ok).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically(">=", time.Second))
	})
})
