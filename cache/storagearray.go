package cache

import (
	"log"

	"github.com/sarchlab/iobcache/cache/internal/tagging"
	"github.com/sarchlab/iobcache/mem"
)

// storageArray owns the line slots of the cache: the tags in the tag array and
// the data in a local storage indexed by the cache address of each block.
type storageArray struct {
	tags      tagging.Tags
	data      *mem.Storage
	lineSize  uint64
	writeBack bool
}

func newStorageArray(c Config) *storageArray {
	finder := tagging.NewVictimFinder(string(c.ReplacementPolicy))

	return &storageArray{
		tags:      tagging.NewTags(c.NumLines, c.NumWays, c.LineSize, finder),
		data:      mem.NewStorage(c.ByteSize()),
		lineSize:  uint64(c.LineSize),
		writeBack: c.WritePolicy == WriteBack,
	}
}

func (s *storageArray) lineAddr(addr uint64) uint64 {
	return addr &^ (s.lineSize - 1)
}

func (s *storageArray) offset(addr uint64) uint64 {
	return addr & (s.lineSize - 1)
}

func (s *storageArray) lookup(addr uint64) (tagging.Block, bool) {
	matches := s.tags.Matches(addr)

	switch len(matches) {
	case 0:
		return tagging.Block{}, false
	case 1:
		return matches[0], true
	}

	panicConsistency(ErrKindDuplicateTag,
		"address 0x%x matches %d ways of set %d",
		addr, len(matches), matches[0].SetID)

	return tagging.Block{}, false
}

func (s *storageArray) read(block tagging.Block, offset, size uint64) []byte {
	data, err := s.data.Read(block.CacheAddress+offset, size)
	if err != nil {
		log.Panic(err)
	}

	return data
}

func (s *storageArray) readLine(block tagging.Block) []byte {
	return s.read(block, 0, s.lineSize)
}

// write applies the masked bytes to a valid line. Under write-back the line
// becomes dirty.
func (s *storageArray) write(
	block tagging.Block,
	offset uint64,
	data []byte,
	mask []bool,
) {
	err := s.data.WriteWithMask(block.CacheAddress+offset, data, mask)
	if err != nil {
		log.Panic(err)
	}

	if s.writeBack {
		block.IsDirty = true
		s.tags.Update(block)
	}
}

// install puts a full line of fetched data into the slot of the block and
// marks it valid and clean.
func (s *storageArray) install(
	block tagging.Block,
	lineAddr uint64,
	data []byte,
) tagging.Block {
	if block.IsValid && block.IsDirty {
		panicConsistency(ErrKindUnflushedInstall,
			"installing 0x%x over dirty data at set %d way %d",
			lineAddr, block.SetID, block.WayID)
	}

	if other, found := s.tags.Lookup(lineAddr); found &&
		other.WayID != block.WayID {
		panicConsistency(ErrKindDuplicateTag,
			"installing 0x%x at way %d while way %d holds it",
			lineAddr, block.WayID, other.WayID)
	}

	err := s.data.Write(block.CacheAddress, data)
	if err != nil {
		log.Panic(err)
	}

	block.Tag = s.tags.TagOf(lineAddr)
	block.IsValid = true
	block.IsDirty = false
	s.tags.Update(block)
	s.tags.Visit(block)

	return block
}

func (s *storageArray) invalidateAll() {
	s.tags.InvalidateAll()
}

func (s *storageArray) reset() {
	s.tags.Reset()
}
