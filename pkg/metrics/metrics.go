// Package metrics declares the Prometheus instrumentation for the router's
// forwarding pipeline and ARP subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge the router exports. Built once at
// startup and passed explicitly to the packages that need it, the same way
// the reference telemetry services in this stack wire their collectors.
type Metrics struct {
	PacketsForwardedTotal prometheus.Counter
	PacketsDroppedTotal   *prometheus.CounterVec // label: reason
	ICMPSynthesizedTotal  *prometheus.CounterVec // label: type_code

	ARPCacheHitsTotal        prometheus.Counter
	ARPCacheMissesTotal      prometheus.Counter
	ARPProbesSentTotal       prometheus.Counter
	ARPRequestsExhaustedTotal prometheus.Counter
	ARPPendingRequests       prometheus.Gauge
}

// New builds a Metrics instance registered against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsForwardedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_packets_forwarded_total",
			Help: "Total number of IPv4 packets forwarded to a next hop.",
		}),
		PacketsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_packets_dropped_total",
			Help: "Total number of frames dropped, labeled by reason.",
		}, []string{"reason"}),
		ICMPSynthesizedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_icmp_synthesized_total",
			Help: "Total number of ICMP messages synthesized, labeled by type_code.",
		}, []string{"type_code"}),
		ARPCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_arp_cache_hits_total",
			Help: "Total number of ARP cache lookups that resolved a MAC address.",
		}),
		ARPCacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_arp_cache_misses_total",
			Help: "Total number of ARP cache lookups that found no entry.",
		}),
		ARPProbesSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_arp_probes_sent_total",
			Help: "Total number of ARP request probes broadcast by the retransmit handler.",
		}),
		ARPRequestsExhaustedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_arp_requests_exhausted_total",
			Help: "Total number of pending ARP requests that exhausted their retry budget.",
		}),
		ARPPendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_arp_pending_requests",
			Help: "Current number of in-flight ARP resolutions.",
		}),
	}
}
