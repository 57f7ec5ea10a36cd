package cache

import (
	"fmt"
	"math/bits"
)

// WritePolicy decides when written data reaches the backing memory.
type WritePolicy string

// The supported write policies.
const (
	WriteBack    WritePolicy = "write_back"
	WriteThrough WritePolicy = "write_through"
)

// ReplacementPolicy selects the victim finder of the cache.
type ReplacementPolicy string

// The supported replacement policies.
const (
	LRU      ReplacementPolicy = "lru"
	PLRUMRU  ReplacementPolicy = "plru_mru"
	PLRUTree ReplacementPolicy = "plru_tree"
)

// FrontEndKind selects how requests enter the cache.
type FrontEndKind string

// The supported front ends.
const (
	// FrontEndIOb exposes the valid/ready signal bundle.
	FrontEndIOb FrontEndKind = "iob"

	// FrontEndPort accepts memory requests on the Top port.
	FrontEndPort FrontEndKind = "port"
)

// Config is the fixed geometry and behavior of a cache.
type Config struct {
	NumWays  int
	NumLines int

	// LineSize and WordSize are in bytes.
	LineSize int
	WordSize int

	// AddressWidth is the number of byte address bits of the front end.
	AddressWidth int

	WriteBufferDepth  int
	WritePolicy       WritePolicy
	ReplacementPolicy ReplacementPolicy

	// UseCtrl maps the control registers into the front-end address space,
	// at addresses with bit AddressWidth set.
	UseCtrl bool

	// UseCtrlCnt enables the hit and miss counters.
	UseCtrlCnt bool

	FrontEnd FrontEndKind
}

// DefaultConfig returns a 4-way, 128-line cache with 16-byte lines.
func DefaultConfig() Config {
	return Config{
		NumWays:           4,
		NumLines:          128,
		LineSize:          16,
		WordSize:          4,
		AddressWidth:      24,
		WriteBufferDepth:  16,
		WritePolicy:       WriteBack,
		ReplacementPolicy: LRU,
		UseCtrl:           true,
		UseCtrlCnt:        true,
		FrontEnd:          FrontEndIOb,
	}
}

// Validate checks if the configuration describes a cache that can be built.
func (c Config) Validate() error {
	switch {
	case c.NumWays < 1:
		return fmt.Errorf("number of ways must be positive, got %d", c.NumWays)
	case !isPowerOf2(c.NumLines):
		return fmt.Errorf("number of lines must be a power of 2, got %d",
			c.NumLines)
	case c.WordSize != 4 && c.WordSize != 8:
		return fmt.Errorf("word size must be 4 or 8 bytes, got %d", c.WordSize)
	case !isPowerOf2(c.LineSize) || c.LineSize < c.WordSize:
		return fmt.Errorf(
			"line size must be a power of 2 of at least one word, got %d",
			c.LineSize)
	case c.WriteBufferDepth < 1:
		return fmt.Errorf("write buffer depth must be positive, got %d",
			c.WriteBufferDepth)
	case c.AddressWidth <= bits.TrailingZeros(uint(c.LineSize*c.NumLines)) ||
		c.AddressWidth > 48:
		return fmt.Errorf("address width %d does not fit the cache geometry",
			c.AddressWidth)
	}

	switch c.WritePolicy {
	case WriteBack, WriteThrough:
	default:
		return fmt.Errorf("unknown write policy %q", c.WritePolicy)
	}

	switch c.ReplacementPolicy {
	case LRU, PLRUMRU:
	case PLRUTree:
		if !isPowerOf2(c.NumWays) {
			return fmt.Errorf(
				"tree pseudo-LRU needs a power-of-2 number of ways, got %d",
				c.NumWays)
		}
	default:
		return fmt.Errorf("unknown replacement policy %q", c.ReplacementPolicy)
	}

	switch c.FrontEnd {
	case FrontEndIOb, FrontEndPort:
	default:
		return fmt.Errorf("unknown front end %q", c.FrontEnd)
	}

	return nil
}

// ValidateLower checks that lower can serve as the next level below a cache
// with this configuration. Every line fill or eviction must fit in one lower
// line and every address must be in the lower cache's range.
func (c Config) ValidateLower(lower Config) error {
	switch {
	case c.LineSize > lower.LineSize:
		return fmt.Errorf(
			"line size %d is larger than the lower cache line size %d",
			c.LineSize, lower.LineSize)
	case c.AddressWidth > lower.AddressWidth:
		return fmt.Errorf(
			"address width %d is wider than the lower cache address width %d",
			c.AddressWidth, lower.AddressWidth)
	}

	return nil
}

// ByteSize returns the data capacity of the cache.
func (c Config) ByteSize() uint64 {
	return uint64(c.NumWays) * uint64(c.NumLines) * uint64(c.LineSize)
}

// AddressMask returns the mask applied to every front-end memory address.
func (c Config) AddressMask() uint64 {
	return 1<<uint(c.AddressWidth) - 1
}

// CtrlBit returns the front-end address bit that selects the control
// registers.
func (c Config) CtrlBit() uint64 {
	return 1 << uint(c.AddressWidth)
}

func isPowerOf2(n int) bool {
	return n > 0 && n&(n-1) == 0
}
