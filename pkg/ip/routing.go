// Package ip implements IPv4 packet handling and routing table lookup.
package ip

import (
	"fmt"
	"sync"

	"github.com/swrouter/swrouter/pkg/common"
)

// Route represents a routing table entry.
type Route struct {
	Destination common.IPv4Address // Destination network
	Netmask     common.IPv4Address // Network mask
	Gateway     common.IPv4Address // Next hop gateway (0.0.0.0 for direct)
	Iface       string             // Egress interface name
	Metric      int                // Route metric (informational; Lookup does not consult it)
}

// RoutingTable manages IPv4 routes. Built once at startup by pkg/config and
// never mutated afterward in normal operation, so lookups need only a
// read-preferring lock.
type RoutingTable struct {
	mu             sync.RWMutex
	routes         []*Route
	defaultGateway *Route
}

// NewRoutingTable creates a new, empty routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		routes: make([]*Route, 0),
	}
}

// AddRoute adds a route to the routing table. Routes are matched in
// insertion order when they tie on prefix length, so the first equally
// specific route inserted wins.
func (rt *RoutingTable) AddRoute(route *Route) error {
	if route == nil {
		return fmt.Errorf("route is nil")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if route.Destination == (common.IPv4Address{0, 0, 0, 0}) &&
		route.Netmask == (common.IPv4Address{0, 0, 0, 0}) {
		rt.defaultGateway = route
	}

	rt.routes = append(rt.routes, route)
	return nil
}

// RemoveRoute removes a route from the routing table.
func (rt *RoutingTable) RemoveRoute(destination, netmask common.IPv4Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for i, route := range rt.routes {
		if route.Destination == destination && route.Netmask == netmask {
			rt.routes = append(rt.routes[:i], rt.routes[i+1:]...)

			if rt.defaultGateway == route {
				rt.defaultGateway = nil
			}

			return true
		}
	}

	return false
}

// Lookup finds the longest-prefix-matching route for a destination address
// and returns it along with the next-hop address to resolve via ARP.
func (rt *RoutingTable) Lookup(dst common.IPv4Address) (*Route, common.IPv4Address, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var bestRoute *Route
	bestPrefixLen := -1

	for _, route := range rt.routes {
		if rt.matches(dst, route.Destination, route.Netmask) {
			prefixLen := rt.countOnes(route.Netmask)
			if prefixLen > bestPrefixLen {
				bestRoute = route
				bestPrefixLen = prefixLen
			}
		}
	}

	if bestRoute == nil {
		return nil, common.IPv4Address{}, fmt.Errorf("no route to host: %s", dst)
	}

	nextHop := dst
	if bestRoute.Gateway != (common.IPv4Address{0, 0, 0, 0}) {
		nextHop = bestRoute.Gateway
	}

	return bestRoute, nextHop, nil
}

// matches checks if an IP address matches a network (destination & netmask).
func (rt *RoutingTable) matches(ip, network, netmask common.IPv4Address) bool {
	for i := 0; i < 4; i++ {
		if (ip[i] & netmask[i]) != (network[i] & netmask[i]) {
			return false
		}
	}
	return true
}

// countOnes counts the number of 1 bits in a netmask (prefix length).
func (rt *RoutingTable) countOnes(netmask common.IPv4Address) int {
	count := 0
	for i := 0; i < 4; i++ {
		b := netmask[i]
		for b != 0 {
			count += int(b & 1)
			b >>= 1
		}
	}
	return count
}

// SetDefaultGateway installs (or replaces) the 0.0.0.0/0 route.
func (rt *RoutingTable) SetDefaultGateway(gateway common.IPv4Address, iface string) error {
	for rt.RemoveRoute(common.IPv4Address{0, 0, 0, 0}, common.IPv4Address{0, 0, 0, 0}) {
	}
	route := &Route{
		Destination: common.IPv4Address{0, 0, 0, 0},
		Netmask:     common.IPv4Address{0, 0, 0, 0},
		Gateway:     gateway,
		Iface:       iface,
		Metric:      0,
	}
	return rt.AddRoute(route)
}

// GetDefaultGateway returns the default gateway route, or nil if none is set.
func (rt *RoutingTable) GetDefaultGateway() *Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.defaultGateway
}

// GetRoutes returns all routes in the routing table.
func (rt *RoutingTable) GetRoutes() []*Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	routes := make([]*Route, len(rt.routes))
	copy(routes, rt.routes)
	return routes
}

// String returns a human-readable representation of the routing table.
func (rt *RoutingTable) String() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	s := "Routing Table:\n"
	s += "Destination     Netmask         Gateway         Interface  Metric\n"
	s += "-------------------------------------------------------------------\n"

	for _, route := range rt.routes {
		gateway := route.Gateway.String()
		if route.Gateway == (common.IPv4Address{0, 0, 0, 0}) {
			gateway = "direct"
		}

		s += fmt.Sprintf("%-15s %-15s %-15s %-10s %d\n",
			route.Destination, route.Netmask, gateway, route.Iface, route.Metric)
	}

	return s
}
