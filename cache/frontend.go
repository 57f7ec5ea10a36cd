package cache

import (
	"encoding/binary"
	"sync"

	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/sim"
	"github.com/sarchlab/iobcache/tracing"
)

// request is a front-end access that the state machine works on.
type request struct {
	id      string
	addr    uint64
	size    uint64
	isWrite bool
	isCtrl  bool
	data    []byte
	mask    []bool

	hit bool
	msg mem.AccessReq
}

func (r *request) what() string {
	if r.isWrite {
		return "write"
	}

	return "read"
}

// A Requester is notified when the outputs of a FrontEnd change.
type Requester interface {
	TickNow()
}

// FrontEnd is the valid/ready signal bundle between a requester and the
// cache. The requester drives Valid, Addr, WData and WStrb, and keeps Valid
// high until Ready is seen. A zero WStrb reads. Ready is high for one cycle
// when the request is served. For reads, RValid and RData are high for one
// cycle, the cycle after Ready.
type FrontEnd struct {
	sync.Mutex

	Valid bool
	Addr  uint64
	WData uint64
	WStrb uint8

	Ready  bool
	RValid bool
	RData  uint64

	controller interface{ TickLater() }
	requester  Requester
}

// AttachRequester registers the requester to notify when outputs change.
func (f *FrontEnd) AttachRequester(r Requester) {
	f.requester = r
}

// Drive presents a request. The cache samples it from the next cycle on.
func (f *FrontEnd) Drive(addr uint64, wdata uint64, wstrb uint8) {
	f.Lock()
	f.Valid = true
	f.Addr = addr
	f.WData = wdata
	f.WStrb = wstrb
	f.Unlock()

	if f.controller != nil {
		f.controller.TickLater()
	}
}

// Release drops Valid.
func (f *FrontEnd) Release() {
	f.Lock()
	defer f.Unlock()

	f.Valid = false
}

// Outputs returns the values of Ready, RValid and RData.
func (f *FrontEnd) Outputs() (ready, rvalid bool, rdata uint64) {
	f.Lock()
	defer f.Unlock()

	return f.Ready, f.RValid, f.RData
}

func (f *FrontEnd) notify() {
	if f.requester != nil {
		f.requester.TickNow()
	}
}

// frontEndAdapter turns the requests of a front end into requests of the
// state machine.
type frontEndAdapter interface {
	// peek returns the request waiting to be accepted, if any.
	peek() *request

	// accept consumes the request returned by peek.
	accept(req *request)

	// complete signals the completion. Read data is returned with it. It
	// returns false if the completion cannot be signalled in this cycle.
	complete(req *request, data []byte) bool

	// hasDataPhase tells if read data is delivered by respondData in the
	// cycle after completion instead of with it.
	hasDataPhase() bool
	respondData(data []byte)

	// startCycle clears the one-cycle outputs.
	startCycle() bool

	reset()
}

type iobAdapter struct {
	comp *Comp
	fe   *FrontEnd

	wordSize uint64
	useCtrl  bool
}

func (a *iobAdapter) peek() *request {
	a.fe.Lock()
	defer a.fe.Unlock()

	if !a.fe.Valid {
		return nil
	}

	cfg := a.comp.config
	req := &request{
		size:    a.wordSize,
		isWrite: a.fe.WStrb != 0,
	}

	if a.useCtrl && a.fe.Addr&cfg.CtrlBit() != 0 {
		req.isCtrl = true
	}

	req.addr = a.fe.Addr & cfg.AddressMask() &^ (a.wordSize - 1)

	if req.isWrite {
		req.data = make([]byte, a.wordSize)
		req.mask = make([]bool, a.wordSize)

		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], a.fe.WData)
		copy(req.data, word[:a.wordSize])

		for i := uint64(0); i < a.wordSize; i++ {
			req.mask[i] = a.fe.WStrb&(1<<i) != 0
		}
	}

	return req
}

func (a *iobAdapter) accept(req *request) {
	req.id = sim.GetIDGenerator().Generate()

	tracing.StartTask(req.id, "", a.comp, "req_in", req.what(), nil)
}

func (a *iobAdapter) complete(req *request, _ []byte) bool {
	a.fe.Lock()
	a.fe.Ready = true
	a.fe.Unlock()

	tracing.EndTask(req.id, a.comp)
	a.fe.notify()

	return true
}

func (a *iobAdapter) hasDataPhase() bool {
	return true
}

func (a *iobAdapter) respondData(data []byte) {
	var word [8]byte
	copy(word[:], data)

	a.fe.Lock()
	a.fe.RValid = true
	a.fe.RData = binary.LittleEndian.Uint64(word[:])
	a.fe.Unlock()

	a.fe.notify()
}

func (a *iobAdapter) startCycle() bool {
	a.fe.Lock()
	defer a.fe.Unlock()

	hadOutput := a.fe.Ready || a.fe.RValid
	a.fe.Ready = false
	a.fe.RValid = false

	return hadOutput
}

func (a *iobAdapter) reset() {
	a.startCycle()
	a.fe.Lock()
	a.fe.RData = 0
	a.fe.Unlock()
}

// portAdapter serves the memory requests that arrive at the top port.
type portAdapter struct {
	comp    *Comp
	topPort sim.Port
}

func (a *portAdapter) peek() *request {
	msg := a.topPort.PeekIncoming()
	if msg == nil {
		return nil
	}

	switch msg := msg.(type) {
	case *mem.ReadReq:
		return &request{
			id:   tracing.MsgIDAtReceiver(msg, a.comp),
			addr: msg.Address,
			size: msg.AccessByteSize,
			msg:  msg,
		}
	case *mem.WriteReq:
		return &request{
			id:      tracing.MsgIDAtReceiver(msg, a.comp),
			addr:    msg.Address,
			size:    uint64(len(msg.Data)),
			isWrite: true,
			data:    msg.Data,
			mask:    msg.DirtyMask,
			msg:     msg,
		}
	}

	panicConsistency(ErrKindUnsupportedAccess,
		"%s cannot handle a %T on its top port", a.comp.Name(), msg)

	return nil
}

func (a *portAdapter) accept(req *request) {
	a.topPort.RetrieveIncoming()
	tracing.TraceReqReceive(req.msg, a.comp)
}

func (a *portAdapter) complete(req *request, data []byte) bool {
	if !a.topPort.CanSend() {
		return false
	}

	var rsp sim.Msg
	if req.isWrite {
		rsp = mem.WriteDoneRspBuilder{}.
			WithSrc(a.topPort.AsRemote()).
			WithDst(req.msg.Meta().Src).
			WithRspTo(req.msg.Meta().ID).
			Build()
	} else {
		rsp = mem.DataReadyRspBuilder{}.
			WithSrc(a.topPort.AsRemote()).
			WithDst(req.msg.Meta().Src).
			WithRspTo(req.msg.Meta().ID).
			WithData(data).
			Build()
	}

	if err := a.topPort.Send(rsp); err != nil {
		return false
	}

	tracing.TraceReqComplete(req.msg, a.comp)

	return true
}

func (a *portAdapter) hasDataPhase() bool {
	return false
}

func (a *portAdapter) respondData(_ []byte) {}

func (a *portAdapter) startCycle() bool {
	return false
}

func (a *portAdapter) reset() {}
