package forwarding

import (
	"encoding/binary"

	"github.com/swrouter/swrouter/pkg/arp"
	"github.com/swrouter/swrouter/pkg/common"
	"github.com/swrouter/swrouter/pkg/ethernet"
	"github.com/swrouter/swrouter/pkg/iface"
	"github.com/swrouter/swrouter/pkg/icmp"
	"github.com/swrouter/swrouter/pkg/ip"
)

// handleEchoRequest answers an ICMP echo request by repurposing the
// received buffer in place: swap the IP addresses, flip the ICMP type,
// recompute both checksums, then deliver to the resolved next hop. This is
// the one egress path that reuses the inbound allocation; every other path
// in this file builds a fresh buffer.
func (p *Pipeline) handleEchoRequest(frame []byte, pkt *ip.Packet) {
	ipOff := ethernet.HeaderSize
	ipHeaderLen := int(pkt.IHL) * 4
	icmpOff := ipOff + ipHeaderLen

	if len(frame) < icmpOff+icmp.MinHeaderLength {
		p.drop("short_icmp_echo")
		return
	}

	var swap [4]byte
	copy(swap[:], frame[ipOff+12:ipOff+16])
	copy(frame[ipOff+12:ipOff+16], frame[ipOff+16:ipOff+20])
	copy(frame[ipOff+16:ipOff+20], swap[:])

	frame[icmpOff] = byte(icmp.TypeEchoReply)
	frame[icmpOff+2], frame[icmpOff+3] = 0, 0
	binary.BigEndian.PutUint16(frame[icmpOff+2:icmpOff+4], common.CalculateChecksum(frame[icmpOff:]))

	frame[ipOff+10], frame[ipOff+11] = 0, 0
	binary.BigEndian.PutUint16(frame[ipOff+10:ipOff+12], common.CalculateChecksum(frame[ipOff:ipOff+ipHeaderLen]))

	route, nextHop, err := p.routes.Lookup(pkt.Source)
	if err != nil {
		p.drop("echo_reply_no_route", "dst", pkt.Source)
		return
	}
	p.deliverToNextHop(route.Iface, nextHop, frame)
}

// deliverToNextHop implements the cache-hit/cache-miss split shared by
// transit forwarding, echo replies, and synthesized ICMP: it fills in the
// Ethernet source from the egress interface, then either resolves the
// destination MAC from the ARP cache or parks the frame and kicks off
// resolution.
func (p *Pipeline) deliverToNextHop(routeIface string, nextHop common.IPv4Address, frame []byte) {
	egress, ok := p.ifaces.ByName(routeIface)
	if !ok {
		p.drop("egress_interface_missing", "iface", routeIface)
		return
	}
	copy(frame[6:12], egress.MAC[:])

	if mac, hit := p.arpStore.Lookup(nextHop); hit {
		if p.metrics != nil {
			p.metrics.ARPCacheHitsTotal.Inc()
		}
		copy(frame[0:6], mac[:])
		if err := p.sender.Send(egress.Name, frame); err != nil {
			p.logger.Warn("send failed", "iface", egress.Name, "err", err)
		}
		return
	}

	if p.metrics != nil {
		p.metrics.ARPCacheMissesTotal.Inc()
	}
	copy(frame[0:6], common.MACAddress{}[:])
	req := p.arpStore.QueueRequest(nextHop, frame, egress.Name)
	p.AdvanceRetransmit(req)
	p.syncPendingGauge()
}

// syncPendingGauge refreshes the ARP pending-requests gauge from the
// Store's current count. The Store itself stays free of any metrics
// dependency; the forwarding layer samples it after every operation that
// can change the pending set.
func (p *Pipeline) syncPendingGauge() {
	if p.metrics != nil {
		p.metrics.ARPPendingRequests.Set(float64(p.arpStore.PendingCount()))
	}
}

// drainPending hands every parked frame of a newly resolved request to the
// host I/O shim, rewriting only the Ethernet destination; the source was
// already set to the egress interface's MAC when the frame was parked.
func (p *Pipeline) drainPending(req *arp.PendingRequest, resolvedMAC common.MACAddress) {
	for _, pf := range req.Parked {
		copy(pf.Frame[0:6], resolvedMAC[:])
		if err := p.sender.Send(pf.Iface, pf.Frame); err != nil {
			p.logger.Warn("send failed draining parked frame", "iface", pf.Iface, "err", err)
		}
	}
}

// AdvanceRetransmit runs handle_arpreq for req: a no-op within the
// retransmit interval, a broadcast probe otherwise, or ICMP host
// unreachable toward every parked frame once attempts are exhausted.
// Exported so the ARP sweeper's timer callback can drive the same egress
// logic the packet path uses internally.
func (p *Pipeline) AdvanceRetransmit(req *arp.PendingRequest) {
	action, target, probeIface, exhausted := p.arpStore.Advance(req)

	switch action {
	case arp.RetransmitNoOp:
		return

	case arp.RetransmitExhausted:
		if p.metrics != nil {
			p.metrics.ARPRequestsExhaustedTotal.Inc()
		}
		p.syncPendingGauge()
		for _, pf := range exhausted {
			pkt, err := ip.Parse(pf.Frame[ethernet.HeaderSize:])
			if err != nil {
				continue
			}
			p.synthICMP(pkt.Source, icmp.TypeDestinationUnreachable, icmp.CodeHostUnreachable, snapshot28(pf.Frame[ethernet.HeaderSize:]))
		}

	case arp.RetransmitProbe:
		if p.metrics != nil {
			p.metrics.ARPProbesSentTotal.Inc()
		}
		egress, ok := p.ifaces.ByName(probeIface)
		if !ok {
			return
		}
		p.sendARPRequest(egress, target)
	}
}

// synthICMP is send_icmp(dst_ip, type, code, snippet): builds a type-3/11
// ICMP message, resolves its own egress path by LPM, and drops silently if
// that LPM fails rather than cascading into another ICMP message.
func (p *Pipeline) synthICMP(dst common.IPv4Address, icmpType icmp.Type, code icmp.Code, snippet []byte) {
	var msg *icmp.Message
	switch icmpType {
	case icmp.TypeTimeExceeded:
		msg = icmp.NewTimeExceeded(code, snippet)
	case icmp.TypeDestinationUnreachable:
		msg = icmp.NewDestinationUnreachable(code, snippet)
	default:
		return
	}

	icmpBytes, err := msg.Serialize()
	if err != nil {
		return
	}

	route, nextHop, err := p.routes.Lookup(dst)
	if err != nil {
		return
	}
	egress, ok := p.ifaces.ByName(route.Iface)
	if !ok {
		return
	}

	pkt := ip.NewPacket(egress.IPv4, dst, common.ProtocolICMP, icmpBytes)
	ipBytes, err := pkt.Serialize()
	if err != nil {
		return
	}

	if p.metrics != nil {
		p.metrics.ICMPSynthesizedTotal.WithLabelValues(icmpLabel(icmpType, code)).Inc()
	}
	p.deliverToNextHop(route.Iface, nextHop, newIPv4Frame(ipBytes))
}

// sendARPReply answers an ARP request for one of our own addresses.
func (p *Pipeline) sendARPReply(local iface.Interface, targetMAC common.MACAddress, targetIP common.IPv4Address) {
	reply := arp.NewReply(local.MAC, local.IPv4, targetMAC, targetIP)
	p.sendEthernet(local, targetMAC, common.EtherTypeARP, reply.Serialize())
}

// sendARPRequest broadcasts an ARP probe for target on egress.
func (p *Pipeline) sendARPRequest(egress iface.Interface, target common.IPv4Address) {
	req := arp.NewRequest(egress.MAC, egress.IPv4, target)
	p.sendEthernet(egress, common.BroadcastMAC, common.EtherTypeARP, req.Serialize())
}

// sendEthernet is send_ethernet(iface, dst_mac, ethertype, payload): fills
// the Ethernet header with the interface's own MAC as source and hands the
// frame to the host I/O shim.
func (p *Pipeline) sendEthernet(egress iface.Interface, dst common.MACAddress, etherType common.EtherType, payload []byte) {
	frame := ethernet.NewFrame(dst, egress.MAC, etherType, payload)
	if err := p.sender.Send(egress.Name, frame.Serialize()); err != nil {
		p.logger.Warn("send failed", "iface", egress.Name, "err", err)
	}
}

func icmpLabel(t icmp.Type, c icmp.Code) string {
	return itoa(uint8(t)) + "/" + itoa(uint8(c))
}

func itoa(v uint8) string {
	if v == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
