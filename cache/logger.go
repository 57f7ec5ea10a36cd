package cache

import (
	"log"

	"github.com/sarchlab/iobcache/sim"
)

// TransactionLogger is a hook that writes the state transitions and the
// completed requests of a cache into a logger.
type TransactionLogger struct {
	sim.LogHookBase

	// LogStates enables logging every state transition.
	LogStates bool
}

// NewTransactionLogger returns a new TransactionLogger that writes into the
// logger.
func NewTransactionLogger(logger *log.Logger) *TransactionLogger {
	h := new(TransactionLogger)
	h.Logger = logger

	return h
}

// Func writes the hook information into the logger.
func (h *TransactionLogger) Func(ctx sim.HookCtx) {
	name := ctx.Domain.(sim.Named).Name()

	switch ctx.Pos {
	case HookPosReqDone:
		t := ctx.Item.(Transaction)
		h.Logger.Printf("%.10f,%s,done,%s,%s,0x%x,%s\n",
			ctx.Now, name, t.ID, accessKind(t), t.Address, hitOrMiss(t))
	case HookPosStateChange:
		if !h.LogStates {
			return
		}

		s := ctx.Item.(StateChange)
		h.Logger.Printf("%.10f,%s,state,%s,%s->%s\n",
			ctx.Now, name, s.ReqID, s.From, s.To)
	case HookPosInvalidate:
		h.Logger.Printf("%.10f,%s,invalidate\n", ctx.Now, name)
	}
}

func accessKind(t Transaction) string {
	kind := "read"
	if t.IsWrite {
		kind = "write"
	}

	if t.IsCtrl {
		kind = "ctrl_" + kind
	}

	return kind
}

func hitOrMiss(t Transaction) string {
	switch {
	case t.IsCtrl:
		return "-"
	case t.Hit:
		return "hit"
	}

	return "miss"
}
