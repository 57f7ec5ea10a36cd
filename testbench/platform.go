package testbench

import (
	"fmt"
	"log"

	"github.com/sarchlab/iobcache/cache"
	"github.com/sarchlab/iobcache/mem/idealmemcontroller"
	"github.com/sarchlab/iobcache/sim"
	"github.com/sarchlab/iobcache/sim/directconnection"
)

// A Platform is a cache under test with its backing memory and a driver.
type Platform struct {
	Engine sim.Engine
	Cache  *cache.Comp

	// L2 is the optional port-fed cache between Cache and Memory.
	L2 *cache.Comp

	Memory *idealmemcontroller.Comp
	Conn   *directconnection.Comp
	Driver *Driver
}

// Components returns all the components of the platform.
func (p *Platform) Components() []sim.Component {
	comps := []sim.Component{p.Cache}
	if p.L2 != nil {
		comps = append(comps, p.L2)
	}

	return append(comps, p.Memory, p.Conn, p.Driver)
}

// Caches returns the caches of the platform, from the top level down.
func (p *Platform) Caches() []*cache.Comp {
	if p.L2 == nil {
		return []*cache.Comp{p.Cache}
	}

	return []*cache.Comp{p.Cache, p.L2}
}

// Run runs programs to completion and reports the outcome of each.
func (p *Platform) Run(programs ...Program) ([]ProgramReport, error) {
	first := len(p.Driver.Results)

	p.Driver.Load(programs...)
	p.Driver.Start()

	if err := p.Engine.Run(); err != nil {
		return nil, err
	}

	reports := Summarize(p.Driver.Results[first:])

	if !p.Driver.Done() {
		return reports, fmt.Errorf("driver stalled after %d ops",
			len(p.Driver.Results)-first)
	}

	return reports, nil
}

// A ProgramReport summarizes the run of a program.
type ProgramReport struct {
	Name       string
	Ops        int
	Failures   []Failure
	StartCycle uint64
	EndCycle   uint64
}

// Passed checks if all the checked reads of the program returned the expected
// value.
func (r ProgramReport) Passed() bool {
	return len(r.Failures) == 0
}

// Summarize groups results by program, in the order the programs ran.
func Summarize(results []Result) []ProgramReport {
	var reports []ProgramReport

	for _, r := range results {
		n := len(reports)
		if n == 0 || reports[n-1].Name != r.Program || r.Index == 0 {
			reports = append(reports, ProgramReport{
				Name:       r.Program,
				StartCycle: r.IssueCycle,
			})
			n++
		}

		rep := &reports[n-1]
		rep.Ops++
		rep.EndCycle = r.DoneCycle

		if r.Failed() {
			rep.Failures = append(rep.Failures, Failure{Result: r})
		}
	}

	return reports
}

// PlatformBuilder creates platforms.
type PlatformBuilder struct {
	engine     sim.Engine
	freq       sim.Freq
	config     cache.Config
	l2Config   *cache.Config
	memLatency int
	memJitter  int
	burstWidth int
	seed       int64
}

// MakePlatformBuilder returns a builder with a default cache over a memory
// with a latency of 10 cycles.
func MakePlatformBuilder() PlatformBuilder {
	return PlatformBuilder{
		freq:       1 * sim.GHz,
		config:     cache.DefaultConfig(),
		memLatency: 10,
		seed:       1,
	}
}

// WithEngine sets the engine. A new serial engine is used by default.
func (b PlatformBuilder) WithEngine(engine sim.Engine) PlatformBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of all the components.
func (b PlatformBuilder) WithFreq(freq sim.Freq) PlatformBuilder {
	b.freq = freq
	return b
}

// WithCacheConfig sets the configuration of the cache under test.
func (b PlatformBuilder) WithCacheConfig(config cache.Config) PlatformBuilder {
	b.config = config
	return b
}

// WithL2 adds a second cache level. Its front end is always a port. Its
// lines must be at least as large as the lines of the cache under test.
func (b PlatformBuilder) WithL2(config cache.Config) PlatformBuilder {
	config.FrontEnd = cache.FrontEndPort
	b.l2Config = &config

	return b
}

// WithMemLatency sets the latency of the memory, in cycles.
func (b PlatformBuilder) WithMemLatency(cycles int) PlatformBuilder {
	b.memLatency = cycles
	return b
}

// WithMemJitter adds a random delay of up to n cycles to each memory access.
func (b PlatformBuilder) WithMemJitter(n int) PlatformBuilder {
	b.memJitter = n
	return b
}

// WithBurstWidth sets the bytes that the memory moves per cycle.
func (b PlatformBuilder) WithBurstWidth(bytes int) PlatformBuilder {
	b.burstWidth = bytes
	return b
}

// WithSeed sets the seed of the memory latency jitter.
func (b PlatformBuilder) WithSeed(seed int64) PlatformBuilder {
	b.seed = seed
	return b
}

// Build creates a platform. It panics if the L2 cannot serve the cache under
// test.
func (b PlatformBuilder) Build(name string) *Platform {
	if b.l2Config != nil {
		if err := b.config.ValidateLower(*b.l2Config); err != nil {
			log.Panicf("platform %s: invalid L2: %v", name, err)
		}
	}

	p := &Platform{Engine: b.engine}
	if p.Engine == nil {
		p.Engine = sim.NewSerialEngine()
	}

	memBuilder := idealmemcontroller.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithLatency(b.memLatency).
		WithLatencyJitter(b.memJitter).
		WithSeed(b.seed).
		WithNewStorage(b.config.AddressMask() + 1)
	if b.burstWidth > 0 {
		memBuilder = memBuilder.WithBurstWidth(b.burstWidth)
	}

	p.Memory = memBuilder.Build(name + ".Mem")
	p.Conn = directconnection.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		Build(name + ".Conn")

	lowModule := p.Memory.TopPort()

	if b.l2Config != nil {
		p.L2 = cache.MakeBuilder().
			WithEngine(p.Engine).
			WithFreq(b.freq).
			WithConfig(*b.l2Config).
			WithLowModulePort(p.Memory.TopPort().AsRemote()).
			Build(name + ".L2")
		p.Conn.PlugIn(p.L2.TopPort())
		p.Conn.PlugIn(p.L2.BottomPort())
		lowModule = p.L2.TopPort()
	}

	p.Cache = cache.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithConfig(b.config).
		WithLowModulePort(lowModule.AsRemote()).
		Build(name + ".Cache")
	p.Conn.PlugIn(p.Cache.BottomPort())
	p.Conn.PlugIn(p.Memory.TopPort())

	if p.L2 != nil {
		p.Cache.ChainTo(p.L2)
	}

	p.Driver = MakeDriverBuilder().
		WithEngine(p.Engine).
		WithFreq(b.freq).
		WithTarget(p.Cache).
		Build(name + ".Driver")

	if port := p.Driver.Port(); port != nil {
		p.Conn.PlugIn(port)
		p.Conn.PlugIn(p.Cache.TopPort())
	}

	return p
}
