package mem

// For capacity
const (
	_       = iota
	KB uint64 = 1 << (10 * iota)
	MB
	GB
)
