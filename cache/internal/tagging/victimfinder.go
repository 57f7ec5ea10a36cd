package tagging

import "log"

// A VictimFinder decides which block of a set should be replaced. Every
// finder picks an invalid block before any valid one.
type VictimFinder interface {
	// Reset sets the replacement state of a newly created or invalidated set.
	Reset(set *Set, numWays int)

	// Touch updates the replacement state after a way is used.
	Touch(set *Set, wayID int)

	// FindVictim returns the way ID to replace.
	FindVictim(set *Set) int
}

// NewVictimFinder creates the victim finder of a policy name: "lru",
// "plru_mru" or "plru_tree".
func NewVictimFinder(policy string) VictimFinder {
	switch policy {
	case "lru":
		return NewLRUVictimFinder()
	case "plru_mru":
		return NewPLRUMRUVictimFinder()
	case "plru_tree":
		return NewPLRUTreeVictimFinder()
	}

	log.Panicf("unknown replacement policy %q", policy)

	return nil
}

func firstInvalid(set *Set, order []int) (int, bool) {
	if order == nil {
		for i, block := range set.Blocks {
			if !block.IsValid {
				return i, true
			}
		}

		return 0, false
	}

	for _, w := range order {
		if !set.Blocks[w].IsValid {
			return w, true
		}
	}

	return 0, false
}

// LRUVictimFinder evicts the least recently used block.
type LRUVictimFinder struct{}

// NewLRUVictimFinder returns a newly constructed LRU victim finder.
func NewLRUVictimFinder() *LRUVictimFinder {
	return new(LRUVictimFinder)
}

// Reset does nothing, the LRU queue is kept by the tag array.
func (e *LRUVictimFinder) Reset(_ *Set, _ int) {}

// Touch does nothing, the LRU queue is kept by the tag array.
func (e *LRUVictimFinder) Touch(_ *Set, _ int) {}

// FindVictim returns the least recently used way of the set.
func (e *LRUVictimFinder) FindVictim(set *Set) int {
	if w, found := firstInvalid(set, set.LRUQueue); found {
		return w
	}

	return set.LRUQueue[0]
}

// PLRUMRUVictimFinder keeps one most-recently-used bit per way. The victim is
// the lowest way whose bit is clear.
type PLRUMRUVictimFinder struct{}

// NewPLRUMRUVictimFinder returns a newly constructed MRU-bit victim finder.
func NewPLRUMRUVictimFinder() *PLRUMRUVictimFinder {
	return new(PLRUMRUVictimFinder)
}

// Reset clears all the MRU bits.
func (e *PLRUMRUVictimFinder) Reset(set *Set, numWays int) {
	set.PLRUBits = make([]bool, numWays)
}

// Touch sets the bit of the way. When all the bits would be set, the others
// are cleared.
func (e *PLRUMRUVictimFinder) Touch(set *Set, wayID int) {
	set.PLRUBits[wayID] = true

	for _, b := range set.PLRUBits {
		if !b {
			return
		}
	}

	for i := range set.PLRUBits {
		set.PLRUBits[i] = i == wayID
	}
}

// FindVictim returns the lowest invalid way, or the lowest way not recently
// used.
func (e *PLRUMRUVictimFinder) FindVictim(set *Set) int {
	if w, found := firstInvalid(set, nil); found {
		return w
	}

	for i, b := range set.PLRUBits {
		if !b {
			return i
		}
	}

	return 0
}

// PLRUTreeVictimFinder keeps a binary tree of numWays-1 bits, stored in heap
// order. Each bit points to the half that holds the victim, false for the
// lower half. The number of ways must be a power of two.
type PLRUTreeVictimFinder struct{}

// NewPLRUTreeVictimFinder returns a newly constructed tree victim finder.
func NewPLRUTreeVictimFinder() *PLRUTreeVictimFinder {
	return new(PLRUTreeVictimFinder)
}

// Reset points every node to its lower half.
func (e *PLRUTreeVictimFinder) Reset(set *Set, numWays int) {
	if !isPowerOf2(numWays) {
		log.Panicf("tree pseudo-LRU needs a power-of-two way count, got %d",
			numWays)
	}

	set.PLRUBits = make([]bool, numWays-1)
}

// Touch points every node on the path of the way away from it.
func (e *PLRUTreeVictimFinder) Touch(set *Set, wayID int) {
	node, lo, hi := 0, 0, len(set.Blocks)

	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if wayID < mid {
			set.PLRUBits[node] = true
			node, hi = 2*node+1, mid
		} else {
			set.PLRUBits[node] = false
			node, lo = 2*node+2, mid
		}
	}
}

// FindVictim returns the lowest invalid way, or follows the tree.
func (e *PLRUTreeVictimFinder) FindVictim(set *Set) int {
	if w, found := firstInvalid(set, nil); found {
		return w
	}

	node, lo, hi := 0, 0, len(set.Blocks)

	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if set.PLRUBits[node] {
			node, lo = 2*node+2, mid
		} else {
			node, hi = 2*node+1, mid
		}
	}

	return lo
}
