package writebuffer_test

import (
	"github.com/sarchlab/iobcache/cache/internal/writebuffer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Buffer", func() {
	var b *writebuffer.Buffer

	BeforeEach(func() {
		b = writebuffer.New(2)
	})

	It("should start empty", func() {
		Expect(b.IsEmpty()).To(BeTrue())
		Expect(b.IsFull()).To(BeFalse())
		Expect(b.Capacity()).To(Equal(2))

		_, ok := b.Peek()
		Expect(ok).To(BeFalse())
		_, ok = b.Pop()
		Expect(ok).To(BeFalse())
	})

	It("should keep FIFO order", func() {
		Expect(b.Enqueue(writebuffer.Entry{Address: 0x10, Data: []byte{1}})).To(Succeed())
		Expect(b.Enqueue(writebuffer.Entry{Address: 0x20, Data: []byte{2}})).To(Succeed())
		Expect(b.IsFull()).To(BeTrue())

		e, ok := b.Peek()
		Expect(ok).To(BeTrue())
		Expect(e.Address).To(Equal(uint64(0x10)))
		Expect(b.Len()).To(Equal(2))

		e, _ = b.Pop()
		Expect(e.Address).To(Equal(uint64(0x10)))
		e, _ = b.Pop()
		Expect(e.Address).To(Equal(uint64(0x20)))
		Expect(b.IsEmpty()).To(BeTrue())
	})

	It("should refuse entries when full", func() {
		Expect(b.Enqueue(writebuffer.Entry{Address: 0x10, Data: []byte{1}})).To(Succeed())
		Expect(b.Enqueue(writebuffer.Entry{Address: 0x20, Data: []byte{2}})).To(Succeed())
		Expect(b.Enqueue(writebuffer.Entry{Address: 0x30, Data: []byte{3}})).
			To(MatchError(writebuffer.ErrFull))
		Expect(b.Len()).To(Equal(2))
	})

	It("should detect overlap with a line", func() {
		Expect(b.Enqueue(writebuffer.Entry{
			Address: 0x44,
			Data:    make([]byte, 4),
		})).To(Succeed())

		Expect(b.OverlapsLine(0x40, 16)).To(BeTrue())
		Expect(b.OverlapsLine(0x48, 8)).To(BeFalse())
		Expect(b.OverlapsLine(0x30, 16)).To(BeFalse())
	})

	It("should reset", func() {
		Expect(b.Enqueue(writebuffer.Entry{Address: 0x10, Data: []byte{1}})).To(Succeed())
		b.Reset()
		Expect(b.IsEmpty()).To(BeTrue())
	})

	It("should panic on zero capacity", func() {
		Expect(func() { writebuffer.New(0) }).To(Panic())
	})
})
