package sim

import (
	"log"
	"reflect"
	"sync"
	"sync/atomic"
)

// A SerialEngine handles events one at a time in time order. Primary events
// go before secondary events scheduled at the same time.
type SerialEngine struct {
	HookableBase

	timeLock sync.RWMutex
	time     VTimeInSec

	primary   EventQueue
	secondary EventQueue
	handled   atomic.Uint64

	paused     bool
	pausedLock sync.Mutex
	gate       sync.Mutex

	runLock sync.Mutex

	endHandlers []SimulationEndHandler
}

// NewSerialEngine creates a SerialEngine with empty queues.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		primary:   NewEventQueue(),
		secondary: NewEventQueue(),
	}
}

// Schedule queues an event. Events cannot be scheduled in the past.
func (e *SerialEngine) Schedule(evt Event) {
	if now := e.CurrentTime(); evt.Time() < now {
		log.Panicf("event %s scheduled at %.10f, before now %.10f",
			reflect.TypeOf(evt), evt.Time(), now)
	}

	if evt.IsSecondary() {
		e.secondary.Push(evt)
		return
	}

	e.primary.Push(evt)
}

// CurrentTime returns the time of the event being handled.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	e.timeLock.RLock()
	defer e.timeLock.RUnlock()

	return e.time
}

func (e *SerialEngine) setTime(t VTimeInSec) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// NumEventsHandled returns how many events the engine has handled.
func (e *SerialEngine) NumEventsHandled() uint64 {
	return e.handled.Load()
}

// Run handles events until both queues drain or a handler fails.
func (e *SerialEngine) Run() error {
	e.runLock.Lock()
	defer e.runLock.Unlock()

	for {
		more, err := e.step()
		if err != nil || !more {
			return err
		}
	}
}

// step handles the earliest event. It reports false when no event is left.
func (e *SerialEngine) step() (bool, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	q := e.pickQueue()
	if q == nil {
		return false, nil
	}

	evt := q.Pop()
	if evt.Time() < e.CurrentTime() {
		log.Panicf("event %s at %.10f is in the past, now %.10f",
			reflect.TypeOf(evt), evt.Time(), e.CurrentTime())
	}

	e.setTime(evt.Time())

	ctx := HookCtx{Domain: e, Now: evt.Time(), Pos: HookPosBeforeEvent, Item: evt}
	e.InvokeHook(ctx)

	err := evt.Handler().Handle(evt)
	e.handled.Add(1)

	ctx.Pos = HookPosAfterEvent
	e.InvokeHook(ctx)

	return true, err
}

// pickQueue returns the queue holding the next event, or nil if both are
// empty.
func (e *SerialEngine) pickQueue() EventQueue {
	switch {
	case e.primary.Len() == 0 && e.secondary.Len() == 0:
		return nil
	case e.secondary.Len() == 0:
		return e.primary
	case e.primary.Len() == 0:
		return e.secondary
	case e.primary.Peek().Time() <= e.secondary.Peek().Time():
		return e.primary
	default:
		return e.secondary
	}
}

// Pause blocks the engine before its next event.
func (e *SerialEngine) Pause() {
	e.pausedLock.Lock()
	defer e.pausedLock.Unlock()

	if !e.paused {
		e.gate.Lock()
		e.paused = true
	}
}

// Continue lets a paused engine handle events again.
func (e *SerialEngine) Continue() {
	e.pausedLock.Lock()
	defer e.pausedLock.Unlock()

	if e.paused {
		e.gate.Unlock()
		e.paused = false
	}
}

// RegisterSimulationEndHandler adds a handler that Finished calls.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.endHandlers = append(e.endHandlers, handler)
}

// Finished calls the end handlers with the current time.
func (e *SerialEngine) Finished() {
	now := e.CurrentTime()
	for _, h := range e.endHandlers {
		h.Handle(now)
	}
}
