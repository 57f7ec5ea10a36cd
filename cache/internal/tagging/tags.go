// Package tagging keeps the tags, the valid and dirty bits, and the
// replacement state of a set-associative cache.
package tagging

import (
	"log"
	"math/bits"
)

// A Block of a cache is the information that is associated with a cache line.
type Block struct {
	Tag          uint64
	SetID        int
	WayID        int
	CacheAddress uint64
	IsValid      bool
	IsDirty      bool
}

// A Set is a list of blocks where a certain piece of memory can be stored.
type Set struct {
	Blocks []Block

	// LRUQueue lists the way IDs from the least to the most recently used.
	LRUQueue []int

	// PLRUBits is the state of the pseudo-LRU policies.
	PLRUBits []bool
}

// Tags is the tag array of a cache.
type Tags interface {
	NumSets() int
	NumWays() int
	BlockSize() int

	// Lookup returns the valid block that holds the address.
	Lookup(addr uint64) (Block, bool)

	// Matches returns all the valid blocks that hold the address. A healthy
	// array never returns more than one.
	Matches(addr uint64) []Block

	GetSet(addr uint64) (set *Set, setID int)
	Update(block Block)
	Visit(block Block)
	FindVictim(addr uint64) Block

	TagOf(addr uint64) uint64
	SetIDOf(addr uint64) int
	BlockAddress(block Block) uint64

	// InvalidateAll clears every valid and dirty bit and resets the
	// replacement state.
	InvalidateAll()
	Reset()
}

// NewTags creates a tag array. The number of sets and the block size must be
// powers of two.
func NewTags(
	numSets, numWays, blockSize int,
	victimFinder VictimFinder,
) Tags {
	if !isPowerOf2(numSets) || !isPowerOf2(blockSize) || numWays < 1 {
		log.Panicf("invalid tag array geometry: %d sets, %d ways, %d bytes",
			numSets, numWays, blockSize)
	}

	t := &tagArray{
		numSets:      numSets,
		numWays:      numWays,
		blockSize:    blockSize,
		offsetBits:   bits.TrailingZeros(uint(blockSize)),
		indexBits:    bits.TrailingZeros(uint(numSets)),
		victimFinder: victimFinder,
	}

	t.Reset()

	return t
}

func isPowerOf2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

type tagArray struct {
	numSets    int
	numWays    int
	blockSize  int
	offsetBits int
	indexBits  int

	sets         []Set
	victimFinder VictimFinder
}

func (t *tagArray) NumSets() int {
	return t.numSets
}

func (t *tagArray) NumWays() int {
	return t.numWays
}

func (t *tagArray) BlockSize() int {
	return t.blockSize
}

// TagOf returns the tag bits of an address.
func (t *tagArray) TagOf(addr uint64) uint64 {
	return addr >> (t.offsetBits + t.indexBits)
}

// SetIDOf returns the index of the set that an address maps to.
func (t *tagArray) SetIDOf(addr uint64) int {
	return int((addr >> t.offsetBits) & uint64(t.numSets-1))
}

// BlockAddress rebuilds the line-aligned address that a block holds.
func (t *tagArray) BlockAddress(block Block) uint64 {
	return block.Tag<<(t.offsetBits+t.indexBits) |
		uint64(block.SetID)<<t.offsetBits
}

func (t *tagArray) GetSet(addr uint64) (set *Set, setID int) {
	setID = t.SetIDOf(addr)
	set = &t.sets[setID]

	return
}

func (t *tagArray) Lookup(addr uint64) (Block, bool) {
	set, _ := t.GetSet(addr)
	tag := t.TagOf(addr)

	for _, block := range set.Blocks {
		if block.IsValid && block.Tag == tag {
			return block, true
		}
	}

	return Block{}, false
}

func (t *tagArray) Matches(addr uint64) []Block {
	set, _ := t.GetSet(addr)
	tag := t.TagOf(addr)

	var matches []Block
	for _, block := range set.Blocks {
		if block.IsValid && block.Tag == tag {
			matches = append(matches, block)
		}
	}

	return matches
}

func (t *tagArray) Update(block Block) {
	t.sets[block.SetID].Blocks[block.WayID] = block
}

// Visit marks the block as the most recently used one of its set.
func (t *tagArray) Visit(block Block) {
	set := &t.sets[block.SetID]

	newLRUQueue := make([]int, 0, len(set.LRUQueue))
	for _, w := range set.LRUQueue {
		if w != block.WayID {
			newLRUQueue = append(newLRUQueue, w)
		}
	}
	set.LRUQueue = append(newLRUQueue, block.WayID)

	t.victimFinder.Touch(set, block.WayID)
}

func (t *tagArray) FindVictim(addr uint64) Block {
	set, _ := t.GetSet(addr)

	return set.Blocks[t.victimFinder.FindVictim(set)]
}

func (t *tagArray) InvalidateAll() {
	for i := range t.sets {
		set := &t.sets[i]
		for j := range set.Blocks {
			set.Blocks[j].IsValid = false
			set.Blocks[j].IsDirty = false
		}

		t.resetReplacementState(set)
	}
}

// Reset marks all the blocks invalid and clears their tags.
func (t *tagArray) Reset() {
	t.sets = make([]Set, t.numSets)

	for i := 0; i < t.numSets; i++ {
		set := &t.sets[i]
		for j := 0; j < t.numWays; j++ {
			set.Blocks = append(set.Blocks, Block{
				SetID:        i,
				WayID:        j,
				CacheAddress: uint64(i*t.numWays+j) * uint64(t.blockSize),
			})
		}

		t.resetReplacementState(set)
	}
}

func (t *tagArray) resetReplacementState(set *Set) {
	set.LRUQueue = set.LRUQueue[:0]
	for j := 0; j < t.numWays; j++ {
		set.LRUQueue = append(set.LRUQueue, j)
	}

	t.victimFinder.Reset(set, t.numWays)
}
