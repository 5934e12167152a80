package events

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buffer", func() {
	push := func(b *buffer, data ...string) {
		for _, d := range data {
			b.PushBack(&message{Kind: PhaseMessageKind, Data: []byte(d)})
		}
	}

	It("keeps messages in order", func() {
		b := newBuffer(0)
		push(b, "msg1", "msg2", "msg3")
		Expect(b.Size()).To(Equal(3))
		Expect(b.head.Data).To(Equal([]byte("msg1")))
		Expect(b.tail.Data).To(Equal([]byte("msg3")))

		for _, want := range []string{"msg1", "msg2", "msg3"} {
			m := b.Pop()
			Expect(m).NotTo(BeNil())
			Expect(string(m.Data)).To(Equal(want))
		}
		Expect(b.Size()).To(Equal(0))
		Expect(b.head).To(BeNil())
		Expect(b.tail).To(BeNil())
		Expect(b.Pop()).To(BeNil())
	})

	It("drops the oldest message when full", func() {
		b := newBuffer(2)
		push(b, "msg1", "msg2", "msg3")
		Expect(b.Size()).To(Equal(2))
		Expect(b.Dropped()).To(Equal(1))
		Expect(string(b.Pop().Data)).To(Equal("msg2"))
		Expect(string(b.Pop().Data)).To(Equal("msg3"))
	})
})
