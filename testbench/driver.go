package testbench

import (
	"encoding/binary"
	"fmt"
	"log"
	"reflect"

	"github.com/sarchlab/iobcache/cache"
	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/sim"
	"github.com/sarchlab/iobcache/tracing"
)

// A Result records one completed op.
type Result struct {
	Program    string
	Index      int
	Op         Op
	Got        uint64
	IssueCycle uint64
	DoneCycle  uint64
}

// Failed checks if a checked read returned a wrong value.
func (r Result) Failed() bool {
	return r.Op.Check && r.Op.extract(r.Got) != r.Op.Want
}

// A Failure is a checked read that returned a wrong value.
type Failure struct {
	Result
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s[%d]: %s: got 0x%x, want 0x%x",
		f.Program, f.Index, f.Op, f.Op.extract(f.Got), f.Op.Want)
}

type driverPhase int

const (
	phaseIssue driverPhase = iota
	phaseWaitReady
	phaseWaitData
	phaseWaitRsp
)

type pendingOp struct {
	program string
	index   int
	op      Op
	issued  uint64
	req     mem.AccessReq
}

// Driver runs programs against a cache, one op at a time. With an IOb front
// end, it drives the front-end signals. Otherwise, it sends memory requests
// to the top port of the cache. Control ops that cannot go through the front
// end are applied to the control plane of the cache directly.
type Driver struct {
	*sim.TickingComponent

	target   *cache.Comp
	fe       *cache.FrontEnd
	memPort  sim.Port
	wordSize int
	useCtrl  bool

	programs []Program
	prog     int
	next     int
	phase    driverPhase
	pending  *pendingOp

	Results  []Result
	Failures []Failure
}

// Port returns the port that sends memory requests, or nil when the driver
// uses the IOb signals.
func (d *Driver) Port() sim.Port {
	return d.memPort
}

// Load appends programs to run.
func (d *Driver) Load(programs ...Program) {
	d.programs = append(d.programs, programs...)
}

// Start makes the driver issue the loaded programs.
func (d *Driver) Start() {
	d.TickLater()
}

// Done checks if all the loaded programs have completed.
func (d *Driver) Done() bool {
	return d.prog >= len(d.programs) && d.pending == nil
}

// Tick updates the state of the driver.
func (d *Driver) Tick() bool {
	madeProgress := false

	switch d.phase {
	case phaseWaitReady:
		madeProgress = d.waitReady()
	case phaseWaitData:
		madeProgress = d.waitData()
	case phaseWaitRsp:
		madeProgress = d.waitRsp()
	}

	if d.phase == phaseIssue {
		madeProgress = d.issue() || madeProgress
	}

	return madeProgress
}

func (d *Driver) nextOp() (Program, int, bool) {
	for d.prog < len(d.programs) {
		p := d.programs[d.prog]
		if d.next < len(p.Ops) {
			return p, d.next, true
		}

		d.prog++
		d.next = 0
	}

	return Program{}, 0, false
}

func (d *Driver) issue() bool {
	p, i, ok := d.nextOp()
	if !ok {
		return false
	}

	op := p.Ops[i]
	d.pending = &pendingOp{
		program: p.Name,
		index:   i,
		op:      op,
		issued:  d.CurrentCycle(),
	}

	switch {
	case op.IsCtrl() && (d.fe == nil || !d.useCtrl):
		d.applyCtrl(op)
	case d.fe != nil:
		d.drive(op)
	default:
		if !d.send(op) {
			d.pending = nil
			return false
		}
	}

	d.next++

	return true
}

func (d *Driver) drive(op Op) {
	addr := op.Addr
	if op.IsCtrl() {
		addr |= d.target.Config().CtrlBit()
	}

	strb := op.Strb
	if op.IsRead() {
		strb = 0
	}

	d.fe.Drive(addr, op.Data, strb)
	d.phase = phaseWaitReady
}

func (d *Driver) applyCtrl(op Op) {
	cp := d.target.ControlPlane()
	size := uint64(d.wordSize)

	if op.Kind == OpCtrlWrite {
		data, mask := d.wordBytes(op.Data, op.Strb)
		cp.WriteBytes(op.Addr, data, mask)
		d.complete(0)

		return
	}

	d.complete(leUint64(cp.ReadBytes(op.Addr, size)))
}

func (d *Driver) send(op Op) bool {
	var req mem.AccessReq

	if op.Kind == OpWrite {
		data, mask := d.wordBytes(op.Data, op.Strb)
		req = mem.WriteReqBuilder{}.
			WithSrc(d.memPort.AsRemote()).
			WithDst(d.target.TopPort().AsRemote()).
			WithAddress(op.Addr).
			WithData(data).
			WithDirtyMask(mask).
			Build()
	} else {
		req = mem.ReadReqBuilder{}.
			WithSrc(d.memPort.AsRemote()).
			WithDst(d.target.TopPort().AsRemote()).
			WithAddress(op.Addr).
			WithByteSize(uint64(d.wordSize)).
			Build()
	}

	if err := d.memPort.Send(req); err != nil {
		return false
	}

	d.pending.req = req
	d.phase = phaseWaitRsp
	tracing.TraceReqInitiate(req, d, "")

	return true
}

func (d *Driver) waitReady() bool {
	ready, _, _ := d.fe.Outputs()
	if !ready {
		return false
	}

	d.fe.Release()

	if d.pending.op.IsRead() {
		d.phase = phaseWaitData
		return true
	}

	d.complete(0)

	return true
}

func (d *Driver) waitData() bool {
	_, rvalid, rdata := d.fe.Outputs()
	if !rvalid {
		return false
	}

	d.complete(rdata)

	return true
}

func (d *Driver) waitRsp() bool {
	msg := d.memPort.PeekIncoming()
	if msg == nil {
		return false
	}

	rsp, ok := msg.(mem.AccessRsp)
	if !ok || rsp.GetRspTo() != d.pending.req.Meta().ID {
		log.Panicf("driver %s received unexpected %s",
			d.Name(), reflect.TypeOf(msg))
	}

	d.memPort.RetrieveIncoming()
	tracing.TraceReqFinalize(d.pending.req, d)

	var got uint64
	if dr, ok := rsp.(*mem.DataReadyRsp); ok {
		got = leUint64(dr.Data)
	}

	d.complete(got)

	return true
}

func (d *Driver) complete(got uint64) {
	p := d.pending
	r := Result{
		Program:    p.program,
		Index:      p.index,
		Op:         p.op,
		Got:        got,
		IssueCycle: p.issued,
		DoneCycle:  d.CurrentCycle(),
	}

	d.Results = append(d.Results, r)
	if r.Failed() {
		d.Failures = append(d.Failures, Failure{Result: r})
	}

	d.pending = nil
	d.phase = phaseIssue
}

func (d *Driver) wordBytes(v uint64, strb uint8) ([]byte, []bool) {
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], v)

	data := make([]byte, d.wordSize)
	mask := make([]bool, d.wordSize)

	copy(data, word[:d.wordSize])

	for i := range mask {
		mask[i] = strb&(1<<uint(i)) != 0
	}

	return data, mask
}

func leUint64(data []byte) uint64 {
	var word [8]byte
	copy(word[:], data)

	return binary.LittleEndian.Uint64(word[:])
}

// DriverBuilder creates drivers.
type DriverBuilder struct {
	engine sim.Engine
	freq   sim.Freq
	target *cache.Comp
}

// MakeDriverBuilder returns a builder with default parameters.
func MakeDriverBuilder() DriverBuilder {
	return DriverBuilder{freq: 1 * sim.GHz}
}

// WithEngine sets the engine that the driver uses.
func (b DriverBuilder) WithEngine(engine sim.Engine) DriverBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the driver.
func (b DriverBuilder) WithFreq(freq sim.Freq) DriverBuilder {
	b.freq = freq
	return b
}

// WithTarget sets the cache to drive.
func (b DriverBuilder) WithTarget(target *cache.Comp) DriverBuilder {
	b.target = target
	return b
}

// Build creates a driver. With a port front end, the port of the driver
// still needs to be connected to the top port of the target.
func (b DriverBuilder) Build(name string) *Driver {
	cfg := b.target.Config()
	d := &Driver{
		target:   b.target,
		fe:       b.target.FrontEnd(),
		wordSize: cfg.WordSize,
		useCtrl:  cfg.UseCtrl,
	}
	d.TickingComponent = sim.NewSecondaryTickingComponent(
		name, b.engine, b.freq, d)

	if d.fe != nil {
		d.fe.AttachRequester(d)
	} else {
		d.memPort = sim.NewPort(d, 4, 4, name+".MemPort")
		d.AddPort("Mem", d.memPort)
	}

	return d
}
