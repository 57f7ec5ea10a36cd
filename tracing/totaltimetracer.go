package tracing

import (
	"sync"

	"github.com/sarchlab/iobcache/sim"
)

// TotalTimeTracer sums the durations of the selected tasks. Overlapping
// tasks each add their full duration.
type TotalTimeTracer struct {
	timeTeller sim.TimeTeller
	filter     TaskFilter

	mu       sync.Mutex
	started  map[string]sim.VTimeInSec
	total    sim.VTimeInSec
	finished uint64
}

// NewTotalTimeTracer creates a TotalTimeTracer for the tasks that pass
// filter.
func NewTotalTimeTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *TotalTimeTracer {
	return &TotalTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		started:    make(map[string]sim.VTimeInSec),
	}
}

// TotalTime returns the summed duration of the finished tasks.
func (t *TotalTimeTracer) TotalTime() sim.VTimeInSec {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// TaskCount returns the number of finished tasks.
func (t *TotalTimeTracer) TaskCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.finished
}

// StartTask remembers when a selected task starts.
func (t *TotalTimeTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	now := t.timeTeller.CurrentTime()

	t.mu.Lock()
	t.started[task.ID] = now
	t.mu.Unlock()
}

// StepTask ignores steps.
func (t *TotalTimeTracer) StepTask(_ Task) {}

// EndTask adds the duration of a selected task.
func (t *TotalTimeTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.started[task.ID]
	if !ok {
		return
	}

	delete(t.started, task.ID)
	t.total += now - start
	t.finished++
}
