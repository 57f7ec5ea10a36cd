package cache

import (
	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/tracing"
)

// drainStage sends the head of the write buffer to the backing memory. The
// entry leaves the buffer only after the write is acknowledged.
type drainStage struct {
	comp *Comp

	req      *mem.WriteReq
	inFlight bool
}

func (d *drainStage) Tick() bool {
	c := d.comp

	if d.inFlight {
		return false
	}

	entry, ok := c.writeBuffer.Peek()
	if !ok {
		return false
	}

	if !c.bottomPort.CanSend() {
		return false
	}

	write := mem.WriteReqBuilder{}.
		WithSrc(c.bottomPort.AsRemote()).
		WithDst(c.lowModule).
		WithAddress(entry.Address).
		WithData(entry.Data).
		WithDirtyMask(entry.Mask).
		Build()
	if err := c.bottomPort.Send(write); err != nil {
		return false
	}

	d.req = write
	d.inFlight = true

	tracing.StartTask(d.taskID(), "", c, "wb_drain", "write", entry)

	return true
}

func (d *drainStage) taskID() string {
	return d.req.ID + "_wb_drain"
}

func (d *drainStage) handleRsp(rsp *mem.WriteDoneRsp) {
	c := d.comp

	if !d.inFlight || rsp.RespondTo != d.req.ID {
		panicConsistency(ErrKindUnexpectedRsp,
			"%s received write done for unknown request %s",
			c.Name(), rsp.RespondTo)
	}

	c.writeBuffer.Pop()
	tracing.EndTask(d.taskID(), c)

	d.req = nil
	d.inFlight = false
}

func (d *drainStage) reset() (orphan string, hasOrphan bool) {
	if d.inFlight {
		orphan, hasOrphan = d.req.ID, true
	}

	d.req = nil
	d.inFlight = false

	return orphan, hasOrphan
}
