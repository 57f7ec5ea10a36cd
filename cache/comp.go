// Package cache models a set-associative cache controller with a write
// buffer, a control register bank and a single-request front end.
package cache

import (
	"log"
	"reflect"

	"github.com/sarchlab/iobcache/cache/internal/writebuffer"
	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/sim"
)

// Comp is a cache controller. It serves one front-end request at a time while
// the write buffer drains to the backing memory.
type Comp struct {
	*sim.TickingComponent

	config Config

	frontEnd   *FrontEnd
	topPort    sim.Port
	bottomPort sim.Port
	lowModule  sim.RemotePort

	storage     *storageArray
	writeBuffer *writebuffer.Buffer
	ctrl        *ControlPlane

	adapter frontEndAdapter
	fsm     *fsm
	fill    *fillEngine
	drain   *drainStage

	// orphans are the backing requests sent before a reset. Their responses
	// are dropped.
	orphans map[string]bool

	lower *Comp
}

// Config returns the configuration that the cache is built with.
func (c *Comp) Config() Config {
	return c.config
}

// FrontEnd returns the signal bundle of the cache. It is nil if the cache
// takes requests from the top port.
func (c *Comp) FrontEnd() *FrontEnd {
	return c.frontEnd
}

// TopPort returns the port that receives memory requests. It is nil if the
// cache uses the signal front end.
func (c *Comp) TopPort() sim.Port {
	return c.topPort
}

// BottomPort returns the port connected to the backing memory.
func (c *Comp) BottomPort() sim.Port {
	return c.bottomPort
}

// SetLowModulePort sets the port that the backing requests are sent to.
func (c *Comp) SetLowModulePort(port sim.RemotePort) {
	c.lowModule = port
}

// ControlPlane returns the control registers of the cache.
func (c *Comp) ControlPlane() *ControlPlane {
	return c.ctrl
}

// State returns the name of the state of the front-end state machine.
func (c *Comp) State() string {
	return c.fsm.state.String()
}

// IsIdle checks if the cache has no request in progress and nothing left to
// write back.
func (c *Comp) IsIdle() bool {
	return c.fsm.state == stateIdle &&
		c.writeBuffer.IsEmpty() &&
		!c.fill.inFlight
}

// WTBEmpty checks if all the buffered writes of this cache, and of the lower
// caches it is chained to, have reached the backing memory.
func (c *Comp) WTBEmpty() bool {
	return c.ctrl.Read(RegWTBEmpty) == 1
}

// ChainTo places the cache above a lower cache. Invalidations are forwarded
// to the lower cache and the write buffer status includes it. It panics if
// the lower cache cannot hold the lines of this cache.
func (c *Comp) ChainTo(lower *Comp) {
	if err := c.config.ValidateLower(lower.config); err != nil {
		log.Panicf("cannot chain %s to %s: %v", c.Name(), lower.Name(), err)
	}

	c.lower = lower

	c.ctrl.Lock()
	c.ctrl.lower = lower.ctrl
	c.ctrl.Unlock()
}

// Invalidate requests all the lines to be invalidated. It takes effect when
// no request is in progress.
func (c *Comp) Invalidate() {
	c.ctrl.Write(RegInvalidate, 1)
}

// Reset brings the cache back to its initial state. Responses to backing
// requests that are in flight are dropped when they arrive.
func (c *Comp) Reset() {
	if id, ok := c.fill.reset(); ok {
		c.orphans[id] = true
	}

	if id, ok := c.drain.reset(); ok {
		c.orphans[id] = true
	}

	c.writeBuffer.Reset()
	c.storage.reset()
	c.ctrl.reset()
	c.fsm.reset()
	c.adapter.reset()
	c.updateStatus()

	c.TickLater()
}

// Tick updates the state of the cache by one cycle.
func (c *Comp) Tick() bool {
	madeProgress := c.adapter.startCycle()

	madeProgress = c.parseBottom() || madeProgress
	madeProgress = c.drain.Tick() || madeProgress
	madeProgress = c.fsm.Tick() || madeProgress

	c.updateStatus()

	return madeProgress
}

func (c *Comp) updateStatus() {
	c.ctrl.setWriteBufferStatus(
		c.writeBuffer.IsEmpty(),
		c.writeBuffer.IsFull(),
	)
}

func (c *Comp) parseBottom() bool {
	msg := c.bottomPort.PeekIncoming()
	if msg == nil {
		return false
	}

	rsp, ok := msg.(sim.Rsp)
	if !ok {
		log.Panicf("%s cannot handle message of type %s from the bottom",
			c.Name(), reflect.TypeOf(msg))
	}

	c.bottomPort.RetrieveIncoming()

	if c.orphans[rsp.GetRspTo()] {
		delete(c.orphans, rsp.GetRspTo())
		return true
	}

	switch rsp := rsp.(type) {
	case *mem.DataReadyRsp:
		c.fill.handleRsp(rsp)
	case *mem.WriteDoneRsp:
		c.drain.handleRsp(rsp)
	default:
		log.Panicf("%s cannot handle message of type %s from the bottom",
			c.Name(), reflect.TypeOf(msg))
	}

	return true
}

func (c *Comp) enqueueWrite(entry writebuffer.Entry) {
	if err := c.writeBuffer.Enqueue(entry); err != nil {
		panicConsistency(ErrKindWriteBufferFull,
			"%s: enqueueing 0x%x: %v", c.Name(), entry.Address, err)
	}
}

func (c *Comp) mustNotCrossLine(req *request) {
	if req.size == 0 ||
		c.storage.offset(req.addr)+req.size > c.storage.lineSize {
		panicConsistency(ErrKindLineCrossing,
			"%s: access [0x%x, +%d) does not fit in one line",
			c.Name(), req.addr, req.size)
	}
}

func (c *Comp) invalidateNow() {
	if c.fill.inFlight {
		panicConsistency(ErrKindInvalidateInFill,
			"%s: invalidating while line 0x%x is being filled",
			c.Name(), c.fill.readReq.Address)
	}

	c.storage.invalidateAll()

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Now:    c.CurrentTime(),
			Pos:    HookPosInvalidate,
		})
	}

	if c.lower != nil {
		c.lower.Invalidate()
	}
}

func (c *Comp) countCompletion(req *request) {
	if req.isCtrl {
		return
	}

	switch {
	case req.isWrite && req.hit:
		c.ctrl.count(counterWriteHit)
	case req.isWrite:
		c.ctrl.count(counterWriteMiss)
	case req.hit:
		c.ctrl.count(counterReadHit)
	default:
		c.ctrl.count(counterReadMiss)
	}
}
