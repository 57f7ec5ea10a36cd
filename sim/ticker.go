package sim

import "sync"

// TickEvent asks a handler to advance its state by one cycle.
type TickEvent struct {
	EventBase
}

// MakeTickEvent creates a primary TickEvent for handler at time t.
func MakeTickEvent(handler Handler, t VTimeInSec) TickEvent {
	evt := TickEvent{}
	evt.ID = GetIDGenerator().Generate()
	evt.handler = handler
	evt.time = t

	return evt
}

// A Ticker updates its state once per cycle. Tick reports whether anything
// changed.
type Ticker interface {
	Tick() bool
}

// TickScheduler schedules at most one pending tick event per cycle for a
// handler.
type TickScheduler struct {
	mu        sync.Mutex
	handler   Handler
	engine    Engine
	freq      Freq
	secondary bool

	// pending is the time of the latest scheduled tick, -1 before the
	// first one.
	pending VTimeInSec
}

// NewTickScheduler creates a scheduler for primary tick events.
func NewTickScheduler(
	handler Handler,
	engine Engine,
	freq Freq,
) *TickScheduler {
	return &TickScheduler{
		handler: handler,
		engine:  engine,
		freq:    freq,
		pending: -1,
	}
}

// NewSecondaryTickScheduler creates a scheduler whose ticks run after the
// primary events of the same cycle.
func NewSecondaryTickScheduler(
	handler Handler,
	engine Engine,
	freq Freq,
) *TickScheduler {
	s := NewTickScheduler(handler, engine, freq)
	s.secondary = true

	return s
}

// TickNow schedules a tick in the current cycle.
func (s *TickScheduler) TickNow() {
	s.tickAt(s.freq.ThisTick)
}

// TickLater schedules a tick in the next cycle.
func (s *TickScheduler) TickLater() {
	s.tickAt(s.freq.NextTick)
}

func (s *TickScheduler) tickAt(align func(VTimeInSec) VTimeInSec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := align(s.engine.CurrentTime())
	if t <= s.pending {
		return
	}

	s.pending = t

	evt := MakeTickEvent(s.handler, t)
	evt.secondary = s.secondary
	s.engine.Schedule(evt)
}

// CurrentTime returns the engine time.
func (s *TickScheduler) CurrentTime() VTimeInSec {
	return s.engine.CurrentTime()
}

// CurrentCycle returns the number of cycles since time 0.
func (s *TickScheduler) CurrentCycle() uint64 {
	return s.freq.Cycle(s.CurrentTime())
}

// TickingComponent is a component driven by a Ticker. It keeps ticking while
// the Ticker makes progress and wakes up on port activity.
type TickingComponent struct {
	*ComponentBase
	*TickScheduler

	ticker Ticker
}

// NewTickingComponent creates a ticking component with primary ticks.
func NewTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
) *TickingComponent {
	return newTickingComponent(name, engine, freq, ticker, false)
}

// NewSecondaryTickingComponent creates a ticking component whose ticks run
// after the primary events of the same cycle.
func NewSecondaryTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
) *TickingComponent {
	return newTickingComponent(name, engine, freq, ticker, true)
}

func newTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
	secondary bool,
) *TickingComponent {
	tc := &TickingComponent{
		ComponentBase: NewComponentBase(name),
		ticker:        ticker,
	}

	tc.TickScheduler = NewTickScheduler(tc, engine, freq)
	tc.TickScheduler.secondary = secondary

	return tc
}

// NotifyRecv wakes the component in the next cycle.
func (c *TickingComponent) NotifyRecv(_ Port) {
	c.TickLater()
}

// NotifyPortFree wakes the component in the next cycle.
func (c *TickingComponent) NotifyPortFree(_ Port) {
	c.TickLater()
}

// Handle runs one tick and schedules another if the tick made progress.
func (c *TickingComponent) Handle(_ Event) error {
	if c.ticker.Tick() {
		c.TickLater()
	}

	return nil
}
