// Package directconnection provides a connection that delivers messages
// between ports in the cycle they are sent.
package directconnection

import (
	"log"

	"github.com/sarchlab/iobcache/sim"
)

// Comp is a DirectConnection that connects components without latency.
type Comp struct {
	*sim.TickingComponent

	nextPortID int
	ports      []sim.Port
	portByName map[sim.RemotePort]sim.Port
}

// PlugIn marks the port connects to this DirectConnection.
func (c *Comp) PlugIn(port sim.Port) {
	c.Lock()
	defer c.Unlock()

	if _, found := c.portByName[port.AsRemote()]; found {
		log.Panicf("port %s is already plugged into %s", port.Name(), c.Name())
	}

	c.ports = append(c.ports, port)
	c.portByName[port.AsRemote()] = port

	port.SetConnection(c)
}

// NotifyAvailable is called by a port to notify that the connection can
// deliver to the port again.
func (c *Comp) NotifyAvailable(p sim.Port) {
	for _, port := range c.ports {
		if port == p {
			continue
		}

		port.NotifyAvailable()
	}

	c.TickNow()
}

// NotifySend is called by a port to notify that the connection can start
// to tick now.
func (c *Comp) NotifySend() {
	c.TickNow()
}

// Tick updates the states of the connection and delivers messages.
func (c *Comp) Tick() bool {
	if len(c.ports) == 0 {
		return false
	}

	madeProgress := false
	for i := 0; i < len(c.ports); i++ {
		portID := (i + c.nextPortID) % len(c.ports)
		madeProgress = c.forwardMany(c.ports[portID]) || madeProgress
	}

	c.nextPortID = (c.nextPortID + 1) % len(c.ports)

	return madeProgress
}

func (c *Comp) forwardMany(port sim.Port) bool {
	madeProgress := false

	for {
		head := port.PeekOutgoing()
		if head == nil {
			break
		}

		dst, found := c.portByName[head.Meta().Dst]
		if !found {
			log.Panicf("%s: dst %s of msg %s is not connected",
				c.Name(), head.Meta().Dst, head.Meta().ID)
		}

		err := dst.Deliver(head)
		if err != nil {
			break
		}

		if c.NumHooks() > 0 {
			c.InvokeHook(sim.HookCtx{
				Domain: c,
				Now:    c.CurrentTime(),
				Pos:    sim.HookPosConnDeliver,
				Item:   head,
			})
		}

		madeProgress = true
		port.RetrieveOutgoing()
	}

	return madeProgress
}
