// Package writebuffer holds the writes that wait to be sent to the backing
// memory.
package writebuffer

import (
	"errors"
	"log"
)

// ErrFull is returned when enqueueing into a full buffer.
var ErrFull = errors.New("write buffer is full")

// An Entry is a write to the backing memory. A nil Mask writes all the bytes.
type Entry struct {
	Address uint64
	Data    []byte
	Mask    []bool
}

// Overlaps checks if the entry touches any byte in [addr, addr+size).
func (e Entry) Overlaps(addr uint64, size uint64) bool {
	end := e.Address + uint64(len(e.Data))

	return e.Address < addr+size && addr < end
}

// Buffer is a bounded FIFO of entries.
type Buffer struct {
	capacity int
	entries  []Entry
}

// New creates a buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		log.Panicf("write buffer capacity must be positive, got %d", capacity)
	}

	return &Buffer{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Capacity returns the maximum number of entries.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// IsEmpty checks if there is no entry.
func (b *Buffer) IsEmpty() bool {
	return len(b.entries) == 0
}

// IsFull checks if the buffer cannot take another entry.
func (b *Buffer) IsFull() bool {
	return len(b.entries) >= b.capacity
}

// Enqueue appends an entry at the tail.
func (b *Buffer) Enqueue(e Entry) error {
	if b.IsFull() {
		return ErrFull
	}

	b.entries = append(b.entries, e)

	return nil
}

// Peek returns the entry at the head.
func (b *Buffer) Peek() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}

	return b.entries[0], true
}

// Pop removes the entry at the head.
func (b *Buffer) Pop() (Entry, bool) {
	e, ok := b.Peek()
	if !ok {
		return e, false
	}

	copy(b.entries, b.entries[1:])
	b.entries[len(b.entries)-1] = Entry{}
	b.entries = b.entries[:len(b.entries)-1]

	return e, true
}

// OverlapsLine checks if any entry writes into the line.
func (b *Buffer) OverlapsLine(lineAddr uint64, lineSize uint64) bool {
	for _, e := range b.entries {
		if e.Overlaps(lineAddr, lineSize) {
			return true
		}
	}

	return false
}

// Reset drops all the entries.
func (b *Buffer) Reset() {
	b.entries = b.entries[:0]
}
