package cache

import (
	"fmt"
	"sync"
)

// Version is the value of the VERSION register.
const Version uint32 = 0x0010

// RegID identifies a control register.
type RegID int

// The control registers.
const (
	RegWTBEmpty RegID = iota
	RegWTBFull
	RegRWHit
	RegRWMiss
	RegReadHit
	RegReadMiss
	RegWriteHit
	RegWriteMiss
	RegRstCntrs
	RegInvalidate
	RegVersion
	numRegs
)

// A Register describes where a control register lives in the control address
// space.
type Register struct {
	ID     RegID
	Name   string
	Offset uint64
	Bytes  uint64

	// Writable registers are write pulses that trigger a command.
	Writable bool
}

var registers = [numRegs]Register{
	{RegWTBEmpty, "WTB_EMPTY", 0, 1, false},
	{RegWTBFull, "WTB_FULL", 1, 1, false},
	{RegRWHit, "RW_HIT", 4, 4, false},
	{RegRWMiss, "RW_MISS", 8, 4, false},
	{RegReadHit, "READ_HIT", 12, 4, false},
	{RegReadMiss, "READ_MISS", 16, 4, false},
	{RegWriteHit, "WRITE_HIT", 20, 4, false},
	{RegWriteMiss, "WRITE_MISS", 24, 4, false},
	{RegRstCntrs, "RST_CNTRS", 28, 1, true},
	{RegInvalidate, "INVALIDATE", 32, 1, true},
	{RegVersion, "VERSION", 36, 4, false},
}

// Registers returns the register map, ordered by offset.
func Registers() []Register {
	return append([]Register(nil), registers[:]...)
}

func (r RegID) String() string {
	if r < 0 || r >= numRegs {
		return fmt.Sprintf("RegID(%d)", int(r))
	}

	return registers[r].Name
}

// RegisterAt decodes a byte offset of the control address space. The offset
// can point to any byte of the register.
func RegisterAt(offset uint64) (Register, bool) {
	for _, r := range registers {
		if offset >= r.Offset && offset < r.Offset+r.Bytes {
			return r, true
		}
	}

	return Register{}, false
}

// RegisterByName finds a register by its name, such as "READ_HIT".
func RegisterByName(name string) (Register, bool) {
	for _, r := range registers {
		if r.Name == name {
			return r, true
		}
	}

	return Register{}, false
}

type counterClass int

const (
	counterReadHit counterClass = iota
	counterReadMiss
	counterWriteHit
	counterWriteMiss
)

// ControlPlane holds the control registers of a cache. It is safe to read and
// write from other goroutines.
type ControlPlane struct {
	sync.Mutex

	countEnabled bool

	readHit, readMiss   uint32
	writeHit, writeMiss uint32

	wtbEmpty, wtbFull bool

	invalidatePending bool
	lower             *ControlPlane
	onCommand         func()
}

func newControlPlane(countEnabled bool) *ControlPlane {
	return &ControlPlane{
		countEnabled: countEnabled,
		wtbEmpty:     true,
	}
}

// Read returns the value of a register. Write-pulse registers read zero.
func (cp *ControlPlane) Read(id RegID) uint32 {
	cp.Lock()
	defer cp.Unlock()

	return cp.read(id)
}

func (cp *ControlPlane) read(id RegID) uint32 {
	switch id {
	case RegWTBEmpty:
		empty := cp.wtbEmpty
		if cp.lower != nil {
			empty = empty && cp.lower.Read(RegWTBEmpty) == 1
		}

		return boolToReg(empty)
	case RegWTBFull:
		return boolToReg(cp.wtbFull)
	case RegRWHit:
		return cp.readHit + cp.writeHit
	case RegRWMiss:
		return cp.readMiss + cp.writeMiss
	case RegReadHit:
		return cp.readHit
	case RegReadMiss:
		return cp.readMiss
	case RegWriteHit:
		return cp.writeHit
	case RegWriteMiss:
		return cp.writeMiss
	case RegVersion:
		return Version
	}

	return 0
}

// Write triggers the command of a write-pulse register. Writes to read-only
// registers are ignored.
func (cp *ControlPlane) Write(id RegID, _ uint32) {
	cp.Lock()

	notify := false

	switch id {
	case RegRstCntrs:
		cp.resetCounters()
	case RegInvalidate:
		cp.invalidatePending = true
		notify = true
	}

	onCommand := cp.onCommand
	cp.Unlock()

	if notify && onCommand != nil {
		onCommand()
	}
}

// ReadBytes returns the register bytes in [offset, offset+size). Bytes that
// no register covers read zero.
func (cp *ControlPlane) ReadBytes(offset, size uint64) []byte {
	cp.Lock()
	defer cp.Unlock()

	data := make([]byte, size)
	for i := uint64(0); i < size; i++ {
		r, found := RegisterAt(offset + i)
		if !found {
			continue
		}

		value := cp.read(r.ID)
		data[i] = byte(value >> (8 * (offset + i - r.Offset)))
	}

	return data
}

// WriteBytes writes the enabled bytes starting at offset. Any enabled byte of
// a write-pulse register triggers its command once.
func (cp *ControlPlane) WriteBytes(offset uint64, data []byte, mask []bool) {
	triggered := make(map[RegID]bool)

	for i := range data {
		if mask != nil && !mask[i] {
			continue
		}

		r, found := RegisterAt(offset + uint64(i))
		if !found || !r.Writable || triggered[r.ID] {
			continue
		}

		triggered[r.ID] = true
		cp.Write(r.ID, uint32(data[i]))
	}
}

// Snapshot returns the values of all the readable registers by name.
func (cp *ControlPlane) Snapshot() map[string]uint32 {
	cp.Lock()
	defer cp.Unlock()

	values := make(map[string]uint32)
	for _, r := range registers {
		if r.Writable {
			continue
		}

		values[r.Name] = cp.read(r.ID)
	}

	return values
}

func (cp *ControlPlane) count(class counterClass) {
	cp.Lock()
	defer cp.Unlock()

	if !cp.countEnabled {
		return
	}

	switch class {
	case counterReadHit:
		cp.readHit++
	case counterReadMiss:
		cp.readMiss++
	case counterWriteHit:
		cp.writeHit++
	case counterWriteMiss:
		cp.writeMiss++
	}
}

func (cp *ControlPlane) resetCounters() {
	cp.readHit = 0
	cp.readMiss = 0
	cp.writeHit = 0
	cp.writeMiss = 0
}

func (cp *ControlPlane) setWriteBufferStatus(empty, full bool) {
	cp.Lock()
	defer cp.Unlock()

	cp.wtbEmpty = empty
	cp.wtbFull = full
}

func (cp *ControlPlane) takeInvalidate() bool {
	cp.Lock()
	defer cp.Unlock()

	pending := cp.invalidatePending
	cp.invalidatePending = false

	return pending
}

func (cp *ControlPlane) reset() {
	cp.Lock()
	defer cp.Unlock()

	cp.resetCounters()
	cp.invalidatePending = false
}

func boolToReg(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}
