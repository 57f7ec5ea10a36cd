// Package idealmemcontroller provides a backing memory that answers every
// request after a configurable number of cycles.
package idealmemcontroller

import (
	"log"
	"math/rand"
	"reflect"

	"github.com/google/btree"
	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/sim"
	"github.com/sarchlab/iobcache/tracing"
)

// pendingRsp is a response waiting for its ready cycle. The data of a read is
// sampled and a write is applied when the request arrives, so the storage
// changes in arrival order whatever the latency of each request.
type pendingRsp struct {
	readyCycle uint64
	seq        uint64
	req        mem.AccessReq
	data       []byte
}

func (p *pendingRsp) Less(than btree.Item) bool {
	o := than.(*pendingRsp)
	if p.readyCycle != o.readyCycle {
		return p.readyCycle < o.readyCycle
	}

	return p.seq < o.seq
}

// Comp is an ideal memory controller. Each request is answered after
// Latency cycles, plus a random jitter of up to LatencyJitter cycles, plus one
// cycle for every burst beat after the first.
type Comp struct {
	*sim.TickingComponent

	topPort sim.Port
	Storage *mem.Storage

	Latency       int
	LatencyJitter int
	BurstWidth    int
	width         int

	rng     *rand.Rand
	pending *btree.BTree
	nextSeq uint64
}

// TopPort returns the port that receives the memory requests.
func (c *Comp) TopPort() sim.Port {
	return c.topPort
}

// NumPending returns the number of requests that are not answered yet.
func (c *Comp) NumPending() int {
	return c.pending.Len()
}

// Tick accepts new requests and sends out the ready responses.
func (c *Comp) Tick() bool {
	madeProgress := false

	madeProgress = c.respond() || madeProgress

	for i := 0; i < c.width; i++ {
		madeProgress = c.accept() || madeProgress
	}

	// Keep ticking until every pending response has been sent.
	return madeProgress || c.pending.Len() > 0
}

func (c *Comp) accept() bool {
	msg := c.topPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	tracing.TraceReqReceive(msg, c)

	req, ok := msg.(mem.AccessReq)
	if !ok {
		log.Panicf("%s cannot handle request of type %s",
			c.Name(), reflect.TypeOf(msg))
	}

	p := &pendingRsp{
		readyCycle: c.CurrentCycle() + c.latencyOf(req),
		seq:        c.nextSeq,
		req:        req,
	}
	c.nextSeq++

	switch req := req.(type) {
	case *mem.ReadReq:
		data, err := c.Storage.Read(req.Address, req.AccessByteSize)
		if err != nil {
			log.Panic(err)
		}

		p.data = data
	case *mem.WriteReq:
		err := c.Storage.WriteWithMask(req.Address, req.Data, req.DirtyMask)
		if err != nil {
			log.Panic(err)
		}
	default:
		log.Panicf("%s cannot handle request of type %s",
			c.Name(), reflect.TypeOf(msg))
	}

	c.pending.ReplaceOrInsert(p)

	return true
}

func (c *Comp) latencyOf(req mem.AccessReq) uint64 {
	cycles := c.Latency

	if c.LatencyJitter > 0 {
		cycles += c.rng.Intn(c.LatencyJitter + 1)
	}

	if c.BurstWidth > 0 && req.GetByteSize() > 0 {
		beats := (int(req.GetByteSize()) + c.BurstWidth - 1) / c.BurstWidth
		cycles += beats - 1
	}

	return uint64(cycles)
}

func (c *Comp) respond() bool {
	madeProgress := false
	now := c.CurrentCycle()

	for c.pending.Len() > 0 {
		p := c.pending.Min().(*pendingRsp)
		if p.readyCycle > now {
			break
		}

		if !c.topPort.CanSend() {
			break
		}

		err := c.topPort.Send(c.rspOf(p))
		if err != nil {
			break
		}

		c.pending.DeleteMin()
		tracing.TraceReqComplete(p.req, c)

		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) rspOf(p *pendingRsp) sim.Msg {
	switch req := p.req.(type) {
	case *mem.ReadReq:
		return mem.DataReadyRspBuilder{}.
			WithSrc(c.topPort.AsRemote()).
			WithDst(req.Src).
			WithRspTo(req.ID).
			WithData(p.data).
			Build()
	case *mem.WriteReq:
		return mem.WriteDoneRspBuilder{}.
			WithSrc(c.topPort.AsRemote()).
			WithDst(req.Src).
			WithRspTo(req.ID).
			Build()
	}

	log.Panicf("unknown request type %s", reflect.TypeOf(p.req))

	return nil
}
