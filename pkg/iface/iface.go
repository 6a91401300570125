// Package iface holds the router's own interface table: the fixed set of
// named, addressed ports the forwarding pipeline treats as "local".
package iface

import (
	"fmt"

	"github.com/swrouter/swrouter/pkg/common"
)

// Interface is one of the router's own network ports. It is immutable once
// built by pkg/config at startup.
type Interface struct {
	Name string
	MAC  common.MACAddress
	IPv4 common.IPv4Address
}

// Table is the router's interface table: built once, never mutated
// afterward, so it needs no lock, the same reasoning that keeps the
// routing table read-mostly.
type Table struct {
	interfaces []Interface
}

// NewTable builds a Table from the given interfaces. On a duplicate IPv4
// address across interfaces, first-listed wins for ByIPv4 lookups — a
// misconfiguration the table tolerates rather than rejects, matching the
// teacher's permissive construction style.
func NewTable(interfaces []Interface) *Table {
	t := &Table{interfaces: make([]Interface, len(interfaces))}
	copy(t.interfaces, interfaces)
	return t
}

// ByName returns the interface with the given name.
func (t *Table) ByName(name string) (Interface, bool) {
	for _, i := range t.interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return Interface{}, false
}

// ByIPv4 returns the interface owning the given address. First-match-wins
// if the table was built with a duplicate (see NewTable).
func (t *Table) ByIPv4(addr common.IPv4Address) (Interface, bool) {
	for _, i := range t.interfaces {
		if i.IPv4 == addr {
			return i, true
		}
	}
	return Interface{}, false
}

// All returns every interface in the table, in insertion order.
func (t *Table) All() []Interface {
	out := make([]Interface, len(t.interfaces))
	copy(out, t.interfaces)
	return out
}

// IsLocalAddress reports whether addr belongs to one of the router's own
// interfaces (i.e. the packet is destined for the router itself).
func (t *Table) IsLocalAddress(addr common.IPv4Address) bool {
	_, ok := t.ByIPv4(addr)
	return ok
}

// String renders the table for diagnostics/logging.
func (t *Table) String() string {
	s := fmt.Sprintf("Table{%d interfaces}", len(t.interfaces))
	for _, i := range t.interfaces {
		s += fmt.Sprintf("\n  %s: mac=%s ipv4=%s", i.Name, i.MAC, i.IPv4)
	}
	return s
}
