// Package testbench drives a cache with test programs and checks the results.
package testbench

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/iobcache/cache"
)

// OpKind is the kind of a front-end access.
type OpKind int

// The kinds of accesses.
const (
	OpRead OpKind = iota
	OpWrite
	OpCtrlRead
	OpCtrlWrite
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpCtrlRead:
		return "ctrl_read"
	case OpCtrlWrite:
		return "ctrl_write"
	}

	return fmt.Sprintf("OpKind(%d)", int(k))
}

// An Op is one access of a program. For control accesses, Addr is the offset
// in the control register space.
type Op struct {
	Kind OpKind
	Addr uint64
	Data uint64
	Strb uint8

	// When Check is set, the read value, shifted right by Shift bits and
	// masked by Mask, must equal Want.
	Check bool
	Want  uint64
	Shift uint
	Mask  uint64
}

// IsRead checks if the op returns data.
func (o Op) IsRead() bool {
	return o.Kind == OpRead || o.Kind == OpCtrlRead
}

// IsCtrl checks if the op targets the control registers.
func (o Op) IsCtrl() bool {
	return o.Kind == OpCtrlRead || o.Kind == OpCtrlWrite
}

func (o Op) extract(v uint64) uint64 {
	v >>= o.Shift
	if o.Mask != 0 {
		v &= o.Mask
	}

	return v
}

func (o Op) String() string {
	if o.Kind == OpWrite || o.Kind == OpCtrlWrite {
		return fmt.Sprintf("%s 0x%x <- 0x%x/%04b", o.Kind, o.Addr, o.Data, o.Strb)
	}

	return fmt.Sprintf("%s 0x%x", o.Kind, o.Addr)
}

// A Program is a named list of ops.
type Program struct {
	Name string
	Ops  []Op
}

func wordMask(wordSize int) uint64 {
	if wordSize >= 8 {
		return ^uint64(0)
	}

	return 1<<(8*uint(wordSize)) - 1
}

func fullStrb(wordSize int) uint8 {
	return uint8(1<<uint(wordSize) - 1)
}

// ReadOp reads a word without checking it.
func ReadOp(addr uint64) Op {
	return Op{Kind: OpRead, Addr: addr}
}

// CheckedReadOp reads a word that must equal want.
func CheckedReadOp(addr uint64, want uint64) Op {
	return Op{Kind: OpRead, Addr: addr, Check: true, Want: want}
}

// WriteOp writes a full word.
func WriteOp(addr uint64, data uint64, wordSize int) Op {
	return Op{
		Kind: OpWrite,
		Addr: addr,
		Data: data & wordMask(wordSize),
		Strb: fullStrb(wordSize),
	}
}

// CtrlWriteOp pulses a write-pulse register.
func CtrlWriteOp(reg cache.RegID, wordSize int) Op {
	r := cache.Registers()[reg]
	aligned := r.Offset &^ uint64(wordSize-1)
	lane := r.Offset - aligned

	return Op{
		Kind: OpCtrlWrite,
		Addr: aligned,
		Data: 1 << (8 * lane),
		Strb: 1 << lane,
	}
}

// CounterCheck reads a control register, which must hold want.
func CounterCheck(reg cache.RegID, want uint32, wordSize int) Op {
	r := cache.Registers()[reg]
	aligned := r.Offset &^ uint64(wordSize-1)

	return Op{
		Kind:  OpCtrlRead,
		Addr:  aligned,
		Check: true,
		Want:  uint64(want),
		Shift: uint(8 * (r.Offset - aligned)),
		Mask:  1<<(8*r.Bytes) - 1,
	}
}

// SimpleTest writes 3*a at every word address a of the first n words and
// reads them back.
func SimpleTest(cfg cache.Config, n int) Program {
	p := Program{Name: "simple"}
	w := uint64(cfg.WordSize)

	for i := uint64(0); i < uint64(n); i++ {
		p.Ops = append(p.Ops, WriteOp(i*w, 3*i*w, cfg.WordSize))
	}

	for i := uint64(0); i < uint64(n); i++ {
		p.Ops = append(p.Ops,
			CheckedReadOp(i*w, (3*i*w)&wordMask(cfg.WordSize)))
	}

	return p
}

// DataTest writes all-zero and all-one words next to each other.
func DataTest(cfg cache.Config) Program {
	p := Program{Name: "data"}
	w := uint64(cfg.WordSize)
	values := []uint64{0, wordMask(cfg.WordSize), 0}

	for i, v := range values {
		p.Ops = append(p.Ops, WriteOp(uint64(i)*w, v, cfg.WordSize))
	}

	for i, v := range values {
		p.Ops = append(p.Ops, CheckedReadOp(uint64(i)*w, v))
	}

	return p
}

// AddressTest accesses the lowest, the highest and a middle word address.
func AddressTest(cfg cache.Config) Program {
	p := Program{Name: "address"}
	w := uint64(cfg.WordSize)
	last := cfg.AddressMask() &^ (w - 1)

	addrs := []uint64{0, last, (last / 2) &^ (w - 1)}
	values := []uint64{0x0f, 0x10, 0x11}

	for i, a := range addrs {
		p.Ops = append(p.Ops, WriteOp(a, values[i], cfg.WordSize))
	}

	for i, a := range addrs {
		p.Ops = append(p.Ops, CheckedReadOp(a, values[i]))
	}

	return p
}

// LRUTest reads 2*ways lines of one set twice. Under LRU, every access of the
// second pass misses.
func LRUTest(cfg cache.Config) Program {
	p := Program{Name: "lru"}
	step := uint64(cfg.NumLines) * uint64(cfg.LineSize)
	n := 2 * cfg.NumWays

	for i := 0; i < n; i++ {
		p.Ops = append(p.Ops, ReadOp(uint64(i)*step))
	}

	p.Ops = append(p.Ops, CtrlWriteOp(cache.RegRstCntrs, cfg.WordSize))

	for i := 0; i < n; i++ {
		p.Ops = append(p.Ops, ReadOp(uint64(i)*step))
	}

	if cfg.UseCtrlCnt && cfg.ReplacementPolicy == cache.LRU {
		p.Ops = append(p.Ops,
			CounterCheck(cache.RegReadHit, 0, cfg.WordSize),
			CounterCheck(cache.RegReadMiss, uint32(n), cfg.WordSize),
		)
	}

	return p
}

// CtrlTest checks the version register, the counters and invalidation.
func CtrlTest(cfg cache.Config) Program {
	p := Program{Name: "ctrl"}
	w := cfg.WordSize
	addr := uint64(cfg.LineSize)

	p.Ops = append(p.Ops,
		CounterCheck(cache.RegVersion, cache.Version, w),
		ReadOp(addr),
		CtrlWriteOp(cache.RegRstCntrs, w),
		ReadOp(addr),
		CtrlWriteOp(cache.RegInvalidate, w),
		ReadOp(addr),
	)

	if cfg.UseCtrlCnt {
		p.Ops = append(p.Ops,
			CounterCheck(cache.RegReadHit, 1, w),
			CounterCheck(cache.RegReadMiss, 1, w),
			CounterCheck(cache.RegRWHit, 1, w),
			CounterCheck(cache.RegRWMiss, 1, w),
			CounterCheck(cache.RegWriteHit, 0, w),
		)
	}

	return p
}

// RandomTest mixes n random word writes and reads over [0, maxAddr). Reads
// only go to addresses that the program wrote, and must return the last value
// written.
func RandomTest(cfg cache.Config, seed int64, n int, maxAddr uint64) Program {
	p := Program{Name: "random"}
	rng := rand.New(rand.NewSource(seed))
	w := uint64(cfg.WordSize)
	numWords := maxAddr / w

	if numWords == 0 {
		numWords = 1
	}

	known := make(map[uint64]uint64)
	var written []uint64

	for i := 0; i < n; i++ {
		if len(written) > 0 && rng.Intn(2) == 0 {
			addr := written[rng.Intn(len(written))]
			p.Ops = append(p.Ops, CheckedReadOp(addr, known[addr]))

			continue
		}

		addr := uint64(rng.Int63n(int64(numWords))) * w
		v := rng.Uint64() & wordMask(cfg.WordSize)

		if _, found := known[addr]; !found {
			written = append(written, addr)
		}

		known[addr] = v
		p.Ops = append(p.Ops, WriteOp(addr, v, cfg.WordSize))
	}

	return p
}

// ProgramNames lists the standard programs in the order they run.
var ProgramNames = []string{"simple", "data", "address", "lru", "ctrl", "random"}

// ProgramByName returns a standard program for the cache.
func ProgramByName(name string, cfg cache.Config, seed int64) (Program, error) {
	switch name {
	case "simple":
		return SimpleTest(cfg, 5), nil
	case "data":
		return DataTest(cfg), nil
	case "address":
		return AddressTest(cfg), nil
	case "lru":
		return LRUTest(cfg), nil
	case "ctrl":
		return CtrlTest(cfg), nil
	case "random":
		return RandomTest(cfg, seed, 1000, randomRange(cfg)), nil
	}

	return Program{}, fmt.Errorf("unknown program %q", name)
}

// AllTests returns the standard programs in order.
func AllTests(cfg cache.Config, seed int64) []Program {
	programs := make([]Program, 0, len(ProgramNames))

	for _, name := range ProgramNames {
		p, err := ProgramByName(name, cfg, seed)
		if err != nil {
			panic(err)
		}

		programs = append(programs, p)
	}

	return programs
}

func randomRange(cfg cache.Config) uint64 {
	r := 4 * cfg.ByteSize()
	if r > cfg.AddressMask()+1 {
		r = cfg.AddressMask() + 1
	}

	return r
}
