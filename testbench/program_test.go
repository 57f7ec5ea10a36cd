package testbench

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/iobcache/cache"
)

var _ = Describe("Programs", func() {
	var cfg cache.Config

	BeforeEach(func() {
		cfg = cache.DefaultConfig()
	})

	It("should write three times the address and read it back", func() {
		p := SimpleTest(cfg, 3)

		Expect(p.Ops).To(HaveLen(6))
		Expect(p.Ops[1]).To(Equal(WriteOp(4, 12, 4)))
		Expect(p.Ops[5].Check).To(BeTrue())
		Expect(p.Ops[5].Addr).To(Equal(uint64(8)))
		Expect(p.Ops[5].Want).To(Equal(uint64(24)))
	})

	It("should write all-one words", func() {
		p := DataTest(cfg)

		Expect(p.Ops[1].Data).To(Equal(uint64(0xffffffff)))
		Expect(p.Ops[1].Strb).To(Equal(uint8(0xf)))
		Expect(p.Ops[4].Want).To(Equal(uint64(0xffffffff)))
	})

	It("should reach the last word address", func() {
		p := AddressTest(cfg)

		Expect(p.Ops[1].Addr).To(Equal(uint64(1<<24 - 4)))
		Expect(p.Ops[2].Addr % 4).To(BeZero())
	})

	It("should check the counters only under LRU", func() {
		Expect(LRUTest(cfg).Ops).To(HaveLen(2*8 + 1 + 2))

		cfg.ReplacementPolicy = cache.PLRUTree
		Expect(LRUTest(cfg).Ops).To(HaveLen(2*8 + 1))
	})

	It("should step over the sets", func() {
		p := LRUTest(cfg)

		Expect(p.Ops[1].Addr).To(Equal(uint64(128 * 16)))
	})

	It("should select the lane of a register", func() {
		op := CounterCheck(cache.RegVersion, cache.Version, 8)

		Expect(op.Addr).To(Equal(uint64(32)))
		Expect(op.extract(0x0010_0000_0001)).To(Equal(uint64(0x10)))

		op = CounterCheck(cache.RegWTBFull, 1, 4)
		Expect(op.Addr).To(BeZero())
		Expect(op.extract(0x0101)).To(Equal(uint64(1)))
		Expect(op.extract(0x0001)).To(BeZero())
	})

	It("should strobe the lane of a pulse register", func() {
		op := CtrlWriteOp(cache.RegRstCntrs, 8)

		Expect(op.Addr).To(Equal(uint64(24)))
		Expect(op.Strb).To(Equal(uint8(1 << 4)))
		Expect(op.Data).To(Equal(uint64(1) << 32))
	})

	It("should only read addresses that were written", func() {
		p := RandomTest(cfg, 3, 500, 0x400)
		known := make(map[uint64]uint64)

		for _, op := range p.Ops {
			Expect(op.Addr).To(BeNumerically("<", 0x400))
			Expect(op.Addr % 4).To(BeZero())

			switch op.Kind {
			case OpWrite:
				known[op.Addr] = op.Data
			case OpRead:
				Expect(known).To(HaveKeyWithValue(op.Addr, op.Want))
			}
		}
	})

	It("should keep the random range in the address space", func() {
		cfg.AddressWidth = 14
		Expect(randomRange(cfg)).To(Equal(uint64(1 << 14)))
	})
})

var _ = Describe("ProgramByName", func() {
	It("should find every standard program", func() {
		cfg := cache.DefaultConfig()

		for _, name := range ProgramNames {
			p, err := ProgramByName(name, cfg, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name).To(Equal(name))
			Expect(p.Ops).NotTo(BeEmpty())
		}
	})

	It("should reject unknown names", func() {
		_, err := ProgramByName("fuzz", cache.DefaultConfig(), 1)
		Expect(err).To(MatchError(ContainSubstring("fuzz")))
	})
})
