package sim

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// NameMustBeValid panics if the name is empty or contains spaces.
func NameMustBeValid(name string) {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		log.Panicf("invalid name %q", name)
	}
}

// A Component is an element that is being simulated.
type Component interface {
	Named
	Handler
	Hookable

	AddPort(name string, port Port)
	GetPortByName(name string) Port
	Ports() []Port

	NotifyRecv(port Port)
	NotifyPortFree(port Port)
}

// ComponentBase provides some functions that other components can use.
type ComponentBase struct {
	HookableBase
	sync.Mutex
	name  string
	ports map[string]Port
}

// NewComponentBase creates a new ComponentBase.
func NewComponentBase(name string) *ComponentBase {
	NameMustBeValid(name)

	c := new(ComponentBase)
	c.name = name
	c.ports = make(map[string]Port)

	return c
}

// Name returns the name of the component.
func (c *ComponentBase) Name() string {
	return c.name
}

// AddPort registers a port under a local name.
func (c *ComponentBase) AddPort(name string, port Port) {
	if _, found := c.ports[name]; found {
		log.Panicf("port %s already exists on component %s", name, c.name)
	}

	c.ports[name] = port
}

// GetPortByName returns the port by the local name of the port.
func (c *ComponentBase) GetPortByName(name string) Port {
	port, found := c.ports[name]
	if !found {
		names := make([]string, 0, len(c.ports))
		for n := range c.ports {
			names = append(names, n)
		}
		sort.Strings(names)

		panic(fmt.Sprintf("port %s is not available on component %s, "+
			"available ports: %s", name, c.name, strings.Join(names, ", ")))
	}

	return port
}

// Ports returns all the ports of the component, ordered by name.
func (c *ComponentBase) Ports() []Port {
	names := make([]string, 0, len(c.ports))
	for n := range c.ports {
		names = append(names, n)
	}
	sort.Strings(names)

	ports := make([]Port, 0, len(names))
	for _, n := range names {
		ports = append(ports, c.ports[n])
	}

	return ports
}
