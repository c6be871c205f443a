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

package queue_test

import (
	"testing"
	"time"

	"github.com/nabbar/parazip/concurrent/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestQueue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "queue Suite")
}

var _ = Describe("Queue", func() {
	It("pushes and pops in FIFO order", func() {
		q := queue.New()
		Expect(q.Push(1)).To(BeTrue())
		Expect(q.Push(2)).To(BeTrue())

		v, ok := q.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		v, ok = q.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2))
	})

	It("unblocks a waiting Pop once an item is pushed", func() {
		q := queue.New()
		result := make(chan any, 1)

		go func() {
			v, _ := q.Pop()
			result <- v
		}()

		time.Sleep(50 * time.Millisecond)
		q.Push("hello")

		Eventually(result, time.Second).Should(Receive(Equal("hello")))
	})

	It("wakes every waiter with no-item on Close", func() {
		q := queue.New()
		done := make(chan bool, 3)

		for i := 0; i < 3; i++ {
			go func() {
				_, ok := q.Pop()
				done <- ok
			}()
		}

		time.Sleep(50 * time.Millisecond)
		q.Close()

		for i := 0; i < 3; i++ {
			Eventually(done, time.Second).Should(Receive(BeFalse()))
		}
	})

	It("rejects Push after Close", func() {
		q := queue.New()
		q.Close()
		Expect(q.Push(1)).To(BeFalse())
	})

	It("PopTimeout returns no-item on expiry without closing the queue", func() {
		q := queue.New()
		_, ok := q.PopTimeout(50 * time.Millisecond)
		Expect(ok).To(BeFalse())

		Expect(q.Push(42)).To(BeTrue())
		v, ok := q.PopTimeout(time.Second)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(42))
	})

	It("Destroy drains remaining items through the free function", func() {
		q := queue.New()
		q.Push(1)
		q.Push(2)

		var freed []any
		q.Destroy(func(v any) { freed = append(freed, v) })

		Expect(freed).To(Equal([]any{1, 2}))
		Expect(q.Push(3)).To(BeFalse())
	})
})
