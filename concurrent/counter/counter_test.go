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

package counter_test

import (
	"testing"
	"time"

	"github.com/nabbar/parazip/concurrent/counter"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCounter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "counter Suite")
}

var _ = Describe("Counter", func() {
	It("allows adding under the limit", func() {
		c := counter.New(0, 100)
		c.Add(50)
		Expect(c.Get()).To(Equal(int64(50)))
	})

	It("blocks Add until Sub frees room, then proceeds", func() {
		c := counter.New(0, 10)
		c.Add(10)

		done := make(chan struct{})
		go func() {
			c.Add(5)
			close(done)
		}()

		Consistently(done, 100*time.Millisecond).ShouldNot(BeClosed())

		c.Sub(5)
		Eventually(done, time.Second).Should(BeClosed())
		Expect(c.Get()).To(Equal(int64(10)))
	})

	It("releases all waiters on Invalidate without enforcing the limit", func() {
		c := counter.New(0, 1)
		released := make(chan struct{}, 3)

		for i := 0; i < 3; i++ {
			go func() {
				c.Add(1000)
				released <- struct{}{}
			}()
		}

		time.Sleep(50 * time.Millisecond)
		c.Invalidate()

		for i := 0; i < 3; i++ {
			Eventually(released, time.Second).Should(Receive())
		}
	})
})
