package idealmemcontroller

import (
	"math/rand"

	"github.com/google/btree"
	"github.com/sarchlab/iobcache/mem"
	"github.com/sarchlab/iobcache/sim"
)

// A Builder can build ideal memory controllers.
type Builder struct {
	engine        sim.Engine
	freq          sim.Freq
	width         int
	latency       int
	latencyJitter int
	burstWidth    int
	seed          int64
	capacity      uint64
	topBufSize    int
	storage       *mem.Storage
}

// MakeBuilder returns a new Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		width:      1,
		latency:    100,
		capacity:   4 * mem.GB,
		topBufSize: 16,
	}
}

// WithEngine sets the engine that the controller uses.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the memory controller.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithWidth sets the number of requests accepted per cycle.
func (b Builder) WithWidth(width int) Builder {
	b.width = width
	return b
}

// WithLatency sets the fixed number of cycles before a response is sent.
func (b Builder) WithLatency(latency int) Builder {
	b.latency = latency
	return b
}

// WithLatencyJitter adds up to n random cycles to every request.
func (b Builder) WithLatencyJitter(n int) Builder {
	b.latencyJitter = n
	return b
}

// WithBurstWidth sets the number of bytes transferred per cycle. Zero disables
// the burst model.
func (b Builder) WithBurstWidth(bytes int) Builder {
	b.burstWidth = bytes
	return b
}

// WithSeed sets the seed of the latency jitter.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithNewStorage sets the capacity of the storage to create.
func (b Builder) WithNewStorage(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithStorage sets an existing storage for the controller to use.
func (b Builder) WithStorage(s *mem.Storage) Builder {
	b.storage = s
	return b
}

// WithTopBufSize sets the size of the incoming buffer of the top port.
func (b Builder) WithTopBufSize(n int) Builder {
	b.topBufSize = n
	return b
}

// Build builds a new Comp.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		Latency:       b.latency,
		LatencyJitter: b.latencyJitter,
		BurstWidth:    b.burstWidth,
		width:         b.width,
		rng:           rand.New(rand.NewSource(b.seed)),
		pending:       btree.New(2),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	if b.storage != nil {
		c.Storage = b.storage
	} else {
		c.Storage = mem.NewStorage(b.capacity)
	}

	c.topPort = sim.NewPort(c, b.topBufSize, b.topBufSize, name+".TopPort")
	c.AddPort("Top", c.topPort)

	return c
}
