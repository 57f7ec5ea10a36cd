package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/iobcache/sim"
)

// HookLister is implemented by domains that expose their hooks.
type HookLister interface {
	ListHooks() []sim.Hook
}

// CollectTrace lets the tracer collect traces from a domain.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	if lister, ok := domain.(HookLister); ok {
		for _, hook := range lister.ListHooks() {
			hook, ok := hook.(*traceHook)
			if ok && hook.t == tracer {
				panic(fmt.Sprintf("domain %s already has tracer %s",
					domain.Name(), reflect.TypeOf(tracer)))
			}
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

// A traceHook is a hook that forwards task events to a tracer.
type traceHook struct {
	t Tracer
}

// Func calls the tracer interfaces when the hook is triggered.
func (h *traceHook) Func(ctx sim.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.t.StartTask(task)
	case HookPosTaskStep:
		h.t.StepTask(task)
	case HookPosTaskEnd:
		h.t.EndTask(task)
	}
}
