package cache

import (
	"log"

	"github.com/sarchlab/iobcache/cache/internal/writebuffer"
	"github.com/sarchlab/iobcache/sim"
)

// A Builder can build caches.
type Builder struct {
	engine        sim.Engine
	freq          sim.Freq
	config        Config
	lowModule     sim.RemotePort
	topBufSize    int
	bottomBufSize int
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		freq:          1 * sim.GHz,
		config:        DefaultConfig(),
		topBufSize:    4,
		bottomBufSize: 4,
	}
}

// WithEngine sets the engine of the cache.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the cache.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithConfig replaces the whole configuration.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithNumWays sets the associativity.
func (b Builder) WithNumWays(n int) Builder {
	b.config.NumWays = n
	return b
}

// WithNumLines sets the number of sets.
func (b Builder) WithNumLines(n int) Builder {
	b.config.NumLines = n
	return b
}

// WithLineSize sets the number of bytes in a line.
func (b Builder) WithLineSize(n int) Builder {
	b.config.LineSize = n
	return b
}

// WithWordSize sets the number of bytes of the front-end data bus.
func (b Builder) WithWordSize(n int) Builder {
	b.config.WordSize = n
	return b
}

// WithAddressWidth sets the number of front-end address bits.
func (b Builder) WithAddressWidth(n int) Builder {
	b.config.AddressWidth = n
	return b
}

// WithWriteBufferDepth sets the number of writes that can be buffered.
func (b Builder) WithWriteBufferDepth(n int) Builder {
	b.config.WriteBufferDepth = n
	return b
}

// WithWritePolicy sets the write policy.
func (b Builder) WithWritePolicy(p WritePolicy) Builder {
	b.config.WritePolicy = p
	return b
}

// WithReplacementPolicy sets the replacement policy.
func (b Builder) WithReplacementPolicy(p ReplacementPolicy) Builder {
	b.config.ReplacementPolicy = p
	return b
}

// WithCtrl sets if the control registers are mapped into the front-end
// address space.
func (b Builder) WithCtrl(enabled bool) Builder {
	b.config.UseCtrl = enabled
	return b
}

// WithCtrlCounters sets if the hit and miss counters count.
func (b Builder) WithCtrlCounters(enabled bool) Builder {
	b.config.UseCtrlCnt = enabled
	return b
}

// WithFrontEnd sets how requests enter the cache.
func (b Builder) WithFrontEnd(kind FrontEndKind) Builder {
	b.config.FrontEnd = kind
	return b
}

// WithLowModulePort sets the port that the backing requests are sent to.
func (b Builder) WithLowModulePort(port sim.RemotePort) Builder {
	b.lowModule = port
	return b
}

// Build creates a cache. It panics if the configuration is invalid.
func (b Builder) Build(name string) *Comp {
	if err := b.config.Validate(); err != nil {
		log.Panicf("cannot build cache %s: %v", name, err)
	}

	c := &Comp{
		config:      b.config,
		lowModule:   b.lowModule,
		storage:     newStorageArray(b.config),
		writeBuffer: writebuffer.New(b.config.WriteBufferDepth),
		ctrl:        newControlPlane(b.config.UseCtrlCnt),
		orphans:     make(map[string]bool),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)
	c.ctrl.onCommand = c.TickLater

	c.fsm = &fsm{comp: c}
	c.fill = &fillEngine{comp: c}
	c.drain = &drainStage{comp: c}

	b.addPorts(c, name)
	b.addFrontEnd(c)

	return c
}

func (b Builder) addPorts(c *Comp, name string) {
	c.bottomPort = sim.NewPort(c, b.bottomBufSize, b.bottomBufSize,
		name+".BottomPort")
	c.AddPort("Bottom", c.bottomPort)

	if b.config.FrontEnd == FrontEndPort {
		c.topPort = sim.NewPort(c, b.topBufSize, b.topBufSize,
			name+".TopPort")
		c.AddPort("Top", c.topPort)
	}
}

func (b Builder) addFrontEnd(c *Comp) {
	switch b.config.FrontEnd {
	case FrontEndIOb:
		c.frontEnd = &FrontEnd{controller: c}
		c.adapter = &iobAdapter{
			comp:     c,
			fe:       c.frontEnd,
			wordSize: uint64(b.config.WordSize),
			useCtrl:  b.config.UseCtrl,
		}
	case FrontEndPort:
		c.adapter = &portAdapter{comp: c, topPort: c.topPort}
	}
}
