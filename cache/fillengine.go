package cache

import (
	"github.com/sarchlab/iobcache/cache/internal/tagging"
	"github.com/sarchlab/iobcache/cache/internal/writebuffer"
	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/tracing"
)

// fillEngine brings a missing line in from the backing memory. At most one
// fill is in flight.
type fillEngine struct {
	comp *Comp

	req          *request
	victim       tagging.Block
	victimChosen bool

	readReq  *mem.ReadReq
	inFlight bool

	done      bool
	installed tagging.Block
}

func (e *fillEngine) start(req *request) {
	e.req = req
	e.victimChosen = false
	e.done = false
}

// tick works on the current miss until the line read is sent.
func (e *fillEngine) tick() (sent, madeProgress bool) {
	c := e.comp
	lineAddr := c.storage.lineAddr(e.req.addr)

	if !e.victimChosen {
		e.victim = c.storage.tags.FindVictim(lineAddr)
		e.victimChosen = true
		madeProgress = true
	}

	if e.victim.IsValid {
		if !e.evict() {
			return false, madeProgress
		}

		madeProgress = true
	}

	// The backing copy of the line is stale until the buffered writes to it
	// are drained.
	if c.writeBuffer.OverlapsLine(lineAddr, c.storage.lineSize) {
		return false, madeProgress
	}

	if !c.bottomPort.CanSend() {
		return false, madeProgress
	}

	read := mem.ReadReqBuilder{}.
		WithSrc(c.bottomPort.AsRemote()).
		WithDst(c.lowModule).
		WithAddress(lineAddr).
		WithByteSize(c.storage.lineSize).
		Build()
	if err := c.bottomPort.Send(read); err != nil {
		return false, madeProgress
	}

	e.readReq = read
	e.inFlight = true
	tracing.TraceReqInitiate(read, c, e.req.id)

	return true, true
}

func (e *fillEngine) evict() bool {
	c := e.comp

	if e.victim.IsDirty {
		if c.writeBuffer.IsFull() {
			return false
		}

		c.enqueueWrite(writebuffer.Entry{
			Address: c.storage.tags.BlockAddress(e.victim),
			Data:    c.storage.readLine(e.victim),
			Mask:    fullMask(c.storage.lineSize),
		})

		tracing.AddTaskStep(e.req.id, c, "evict")
	}

	e.victim.IsValid = false
	e.victim.IsDirty = false
	c.storage.tags.Update(e.victim)

	return true
}

func (e *fillEngine) handleRsp(rsp *mem.DataReadyRsp) {
	c := e.comp

	if !e.inFlight || rsp.RespondTo != e.readReq.ID {
		panicConsistency(ErrKindUnexpectedRsp,
			"%s received data for unknown request %s",
			c.Name(), rsp.RespondTo)
	}

	if uint64(len(rsp.Data)) != c.storage.lineSize {
		panicConsistency(ErrKindUnexpectedRsp,
			"%s received %d bytes for a %d-byte line",
			c.Name(), len(rsp.Data), c.storage.lineSize)
	}

	e.installed = c.storage.install(e.victim, e.readReq.Address, rsp.Data)
	e.inFlight = false
	e.done = true

	tracing.TraceReqFinalize(e.readReq, c)
}

func (e *fillEngine) finish() {
	e.req = nil
	e.readReq = nil
	e.done = false
	e.victimChosen = false
}

// reset abandons the current fill and returns the ID of the read that is
// still in flight, if any.
func (e *fillEngine) reset() (orphan string, hasOrphan bool) {
	if e.inFlight {
		orphan, hasOrphan = e.readReq.ID, true
	}

	*e = fillEngine{comp: e.comp}

	return orphan, hasOrphan
}

func fullMask(n uint64) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	return mask
}
