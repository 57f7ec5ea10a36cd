package cache

import (
	"github.com/sarchlab/iobcache/cache/internal/writebuffer"
	"github.com/sarchlab/iobcache/sim"
	"github.com/sarchlab/iobcache/tracing"
)

type fsmState int

const (
	stateIdle fsmState = iota
	stateLookup
	stateHitComplete
	stateMissFill
	stateBackingWait
	stateMissComplete
	stateReadRespond
	stateCtrlAccess
)

var fsmStateNames = [...]string{
	"Idle",
	"Lookup",
	"HitComplete",
	"MissFill",
	"BackingWait",
	"MissComplete",
	"ReadRespond",
	"CtrlAccess",
}

func (s fsmState) String() string {
	return fsmStateNames[s]
}

// HookPosStateChange marks a transition of the front-end state machine. The
// hook item is a StateChange.
var HookPosStateChange = &sim.HookPos{Name: "Cache State Change"}

// HookPosReqDone marks the completion of a front-end request. The hook item is
// a Transaction.
var HookPosReqDone = &sim.HookPos{Name: "Cache Req Done"}

// HookPosInvalidate marks the invalidation of all the lines.
var HookPosInvalidate = &sim.HookPos{Name: "Cache Invalidate"}

// StateChange describes a transition of the front-end state machine.
type StateChange struct {
	From, To string
	ReqID    string
}

// Transaction describes a completed front-end request.
type Transaction struct {
	ID      string
	Address uint64
	IsWrite bool
	IsCtrl  bool
	Hit     bool
}

// fsm serves one front-end request at a time.
type fsm struct {
	comp *Comp

	state   fsmState
	req     *request
	rspData []byte
}

func (f *fsm) Tick() bool {
	switch f.state {
	case stateIdle:
		return f.idle()
	case stateLookup:
		return f.lookup()
	case stateMissFill:
		return f.missFill()
	case stateBackingWait:
		return f.backingWait()
	case stateHitComplete, stateMissComplete:
		return f.complete()
	case stateReadRespond:
		return f.readRespond()
	case stateCtrlAccess:
		return f.ctrlAccess()
	}

	return false
}

func (f *fsm) setState(s fsmState) {
	c := f.comp
	if c.NumHooks() > 0 {
		change := StateChange{From: f.state.String(), To: s.String()}
		if f.req != nil {
			change.ReqID = f.req.id
		}

		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Now:    c.CurrentTime(),
			Pos:    HookPosStateChange,
			Item:   change,
		})
	}

	f.state = s
}

func (f *fsm) idle() bool {
	c := f.comp

	if c.ctrl.takeInvalidate() {
		c.invalidateNow()
		return true
	}

	req := c.adapter.peek()
	if req == nil {
		return false
	}

	c.adapter.accept(req)
	f.req = req
	f.rspData = nil

	if req.isCtrl {
		f.setState(stateCtrlAccess)
	} else {
		f.setState(stateLookup)
	}

	return true
}

func (f *fsm) lookup() bool {
	c := f.comp
	req := f.req

	c.mustNotCrossLine(req)

	offset := c.storage.offset(req.addr)
	writeThrough := c.config.WritePolicy == WriteThrough

	block, hit := c.storage.lookup(req.addr)
	if !hit {
		return f.miss(writeThrough)
	}

	if req.isWrite {
		if writeThrough {
			if c.writeBuffer.IsFull() {
				return false
			}

			c.enqueueWrite(writebuffer.Entry{
				Address: req.addr,
				Data:    req.data,
				Mask:    req.mask,
			})
		}

		c.storage.write(block, offset, req.data, req.mask)
	} else {
		f.rspData = c.storage.read(block, offset, req.size)
	}

	c.storage.tags.Visit(block)
	req.hit = true

	tracing.AddTaskStep(req.id, c, "hit")
	f.setState(stateHitComplete)

	return true
}

func (f *fsm) miss(writeThrough bool) bool {
	c := f.comp
	req := f.req

	// Write-through does not allocate on a write miss.
	if req.isWrite && writeThrough {
		if c.writeBuffer.IsFull() {
			return false
		}

		c.enqueueWrite(writebuffer.Entry{
			Address: req.addr,
			Data:    req.data,
			Mask:    req.mask,
		})

		tracing.AddTaskStep(req.id, c, "miss")
		f.setState(stateMissComplete)

		return true
	}

	tracing.AddTaskStep(req.id, c, "miss")
	c.fill.start(req)
	f.setState(stateMissFill)

	return true
}

func (f *fsm) missFill() bool {
	sent, madeProgress := f.comp.fill.tick()
	if sent {
		f.setState(stateBackingWait)
	}

	return madeProgress
}

func (f *fsm) backingWait() bool {
	c := f.comp
	if !c.fill.done {
		return false
	}

	req := f.req
	block := c.fill.installed
	offset := c.storage.offset(req.addr)

	if req.isWrite {
		c.storage.write(block, offset, req.data, req.mask)
	} else {
		f.rspData = c.storage.read(block, offset, req.size)
	}

	c.fill.finish()

	tracing.AddTaskStep(req.id, c, "fill")
	f.setState(stateMissComplete)

	return true
}

func (f *fsm) complete() bool {
	c := f.comp
	req := f.req

	if !c.adapter.complete(req, f.rspData) {
		return false
	}

	c.countCompletion(req)

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Now:    c.CurrentTime(),
			Pos:    HookPosReqDone,
			Item: Transaction{
				ID:      req.id,
				Address: req.addr,
				IsWrite: req.isWrite,
				IsCtrl:  req.isCtrl,
				Hit:     req.hit,
			},
		})
	}

	if !req.isWrite && c.adapter.hasDataPhase() {
		f.setState(stateReadRespond)
		return true
	}

	f.setState(stateIdle)
	f.req = nil

	return true
}

func (f *fsm) readRespond() bool {
	f.comp.adapter.respondData(f.rspData)

	f.setState(stateIdle)
	f.req = nil
	f.rspData = nil

	return true
}

func (f *fsm) ctrlAccess() bool {
	c := f.comp
	req := f.req

	if req.isWrite {
		c.ctrl.WriteBytes(req.addr, req.data, req.mask)
	} else {
		f.rspData = c.ctrl.ReadBytes(req.addr, req.size)
	}

	f.setState(stateHitComplete)

	return true
}

func (f *fsm) reset() {
	f.state = stateIdle
	f.req = nil
	f.rspData = nil
}
