// Package config parses the router's two static bootstrap files: the
// interface list and the routing table. Both are plain whitespace-separated
// text, one record per line, with '#' comments and blank lines ignored.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/swrouter/swrouter/pkg/common"
	"github.com/swrouter/swrouter/pkg/iface"
	"github.com/swrouter/swrouter/pkg/ip"
)

// ParseInterfaces reads one "name mac ipv4" record per line, e.g.:
//
//	eth0 00:11:22:33:44:55 192.168.1.1
//	eth1 00:11:22:33:44:66 172.64.3.1
func ParseInterfaces(r io.Reader) ([]iface.Interface, error) {
	var interfaces []iface.Interface

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("interfaces line %d: want 3 fields (name mac ipv4), got %d", lineNo, len(fields))
		}

		mac, err := common.ParseMAC(fields[1])
		if err != nil {
			return nil, fmt.Errorf("interfaces line %d: %w", lineNo, err)
		}
		addr, err := common.ParseIPv4(fields[2])
		if err != nil {
			return nil, fmt.Errorf("interfaces line %d: %w", lineNo, err)
		}

		interfaces = append(interfaces, iface.Interface{
			Name: fields[0],
			MAC:  mac,
			IPv4: addr,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading interfaces: %w", err)
	}
	return interfaces, nil
}

// ParseRoutes reads one "destination gateway netmask iface" record per
// line, the same field order as a classic static rtable file, e.g.:
//
//	0.0.0.0 172.64.3.1 0.0.0.0 eth1
//	192.168.1.0 0.0.0.0 255.255.255.0 eth0
func ParseRoutes(r io.Reader) (*ip.RoutingTable, error) {
	rt := ip.NewRoutingTable()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("routes line %d: want 4 fields (dest gateway netmask iface), got %d", lineNo, len(fields))
		}

		dest, err := common.ParseIPv4(fields[0])
		if err != nil {
			return nil, fmt.Errorf("routes line %d: %w", lineNo, err)
		}
		gw, err := common.ParseIPv4(fields[1])
		if err != nil {
			return nil, fmt.Errorf("routes line %d: %w", lineNo, err)
		}
		mask, err := common.ParseIPv4(fields[2])
		if err != nil {
			return nil, fmt.Errorf("routes line %d: %w", lineNo, err)
		}

		if err := rt.AddRoute(&ip.Route{
			Destination: dest,
			Netmask:     mask,
			Gateway:     gw,
			Iface:       fields[3],
		}); err != nil {
			return nil, fmt.Errorf("routes line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	return rt, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
