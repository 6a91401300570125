package arp

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/swrouter/swrouter/pkg/common"
)

// CacheTTL is how long a resolved cache entry remains valid after insertion.
const CacheTTL = 15 * time.Second

// RetransmitInterval is the minimum spacing between ARP probes for the same
// pending request.
const RetransmitInterval = 1 * time.Second

// MaxAttempts is the number of probes sent before a pending request is
// declared unreachable.
const MaxAttempts = 5

// cacheEntry is a resolved IPv4-to-MAC binding.
type cacheEntry struct {
	MAC        common.MACAddress
	InsertedAt time.Time
}

// parkedFrame is an egress-ready Ethernet frame waiting on ARP resolution.
type parkedFrame struct {
	Frame []byte
	Iface string
}

// PendingRequest is an in-flight ARP resolution for a single target IPv4.
// It is created by QueueRequest and mutated only while the Store's mutex is
// held. Insert hands it to the caller fully detached from the Store so the
// caller can drain its parked frames without holding the lock.
type PendingRequest struct {
	Target    common.IPv4Address
	FirstSent time.Time
	LastSent  time.Time
	Attempts  int
	Parked    []parkedFrame
}

// Store holds the resolved ARP cache and the pending-request queue under a
// single mutex, matching the concurrency model shared between the packet
// path and the once-a-second sweep: both sides serialize through the same
// lock, and both release it before touching the network.
type Store struct {
	clock clockwork.Clock

	mu      sync.Mutex
	cache   map[common.IPv4Address]*cacheEntry
	pending map[common.IPv4Address]*PendingRequest
}

// NewStore creates an empty Store using the given clock. Production callers
// pass clockwork.NewRealClock(); tests inject a clockwork.FakeClock to
// control retransmit/expiry timing deterministically.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:   clock,
		cache:   make(map[common.IPv4Address]*cacheEntry),
		pending: make(map[common.IPv4Address]*PendingRequest),
	}
}

// Lookup returns the MAC address for ip if a non-expired cache entry exists.
func (s *Store) Lookup(ip common.IPv4Address) (common.MACAddress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[ip]
	if !ok {
		return common.MACAddress{}, false
	}
	if s.clock.Now().Sub(entry.InsertedAt) >= CacheTTL {
		return common.MACAddress{}, false
	}
	return entry.MAC, true
}

// Insert establishes or refreshes the cache entry for ip with a fresh
// timestamp, and atomically detaches any pending request for ip. The
// returned request, if non-nil, is no longer tracked by the Store: the
// caller drains its parked frames without holding the Store's lock.
func (s *Store) Insert(ip common.IPv4Address, mac common.MACAddress) *PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[ip] = &cacheEntry{MAC: mac, InsertedAt: s.clock.Now()}

	req := s.pending[ip]
	delete(s.pending, ip)
	return req
}

// QueueRequest appends frame to the pending request for ip, creating one if
// none exists, and returns it. The returned pointer aliases the Store's
// internal record; callers pass it straight to Advance to send the first
// probe immediately rather than waiting for the next sweep.
func (s *Store) QueueRequest(ip common.IPv4Address, frame []byte, iface string) *PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make([]byte, len(frame))
	copy(owned, frame)

	req, ok := s.pending[ip]
	if !ok {
		req = &PendingRequest{Target: ip}
		s.pending[ip] = req
	}
	req.Parked = append(req.Parked, parkedFrame{Frame: owned, Iface: iface})
	return req
}

// DestroyRequest removes req from the pending queue. A no-op if req was
// already destroyed (e.g. concurrently resolved by Insert).
func (s *Store) DestroyRequest(req *PendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[req.Target] == req {
		delete(s.pending, req.Target)
	}
}

// Sweep drops expired cache entries and yields every pending request to fn,
// outside the lock, for retransmit-or-exhaust handling. fn need not call
// DestroyRequest: Insert detaches a resolved request and Advance removes an
// exhausted one.
func (s *Store) Sweep(fn func(req *PendingRequest)) {
	now := s.clock.Now()

	s.mu.Lock()
	for ip, entry := range s.cache {
		if now.Sub(entry.InsertedAt) >= CacheTTL {
			delete(s.cache, ip)
		}
	}
	reqs := make([]*PendingRequest, 0, len(s.pending))
	for _, req := range s.pending {
		reqs = append(reqs, req)
	}
	s.mu.Unlock()

	for _, req := range reqs {
		fn(req)
	}
}

// RetransmitAction describes what the retransmit handler should do with a
// pending request, decided atomically against the Store's lock so the
// packet task and the timer task can never race over the same request's
// last-sent/attempts fields.
type RetransmitAction int

const (
	// RetransmitNoOp means less than RetransmitInterval has elapsed since
	// the last probe; do nothing.
	RetransmitNoOp RetransmitAction = iota
	// RetransmitExhausted means the request hit MaxAttempts; every parked
	// frame in ExhaustedFrames should fail with an ICMP host-unreachable,
	// and the request is already destroyed.
	RetransmitExhausted
	// RetransmitProbe means a new ARP request should be broadcast on
	// ProbeIface; last-sent and attempts have already been advanced.
	RetransmitProbe
)

// Advance evaluates and applies handle_arpreq's state machine for req in a
// single locked step, then returns a descriptor telling the caller what I/O
// to perform outside the lock.
func (s *Store) Advance(req *PendingRequest) (action RetransmitAction, target common.IPv4Address, probeIface string, exhaustedFrames []parkedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if !req.LastSent.IsZero() && now.Sub(req.LastSent) < RetransmitInterval {
		return RetransmitNoOp, req.Target, "", nil
	}

	if req.Attempts >= MaxAttempts {
		if s.pending[req.Target] == req {
			delete(s.pending, req.Target)
		}
		return RetransmitExhausted, req.Target, "", req.Parked
	}

	if req.FirstSent.IsZero() {
		req.FirstSent = now
	}
	req.LastSent = now
	req.Attempts++

	iface := ""
	if len(req.Parked) > 0 {
		iface = req.Parked[0].Iface
	}
	return RetransmitProbe, req.Target, iface, nil
}

// PendingCount returns the number of in-flight ARP resolutions, for gauges.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// String renders the store for diagnostics/logging.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	str := fmt.Sprintf("ARP Store (%d cached, %d pending):\n", len(s.cache), len(s.pending))
	for ip, entry := range s.cache {
		str += fmt.Sprintf("  %s -> %s (age %s)\n", ip, entry.MAC, s.clock.Now().Sub(entry.InsertedAt))
	}
	for ip, req := range s.pending {
		str += fmt.Sprintf("  %s pending (attempts=%d, parked=%d)\n", ip, req.Attempts, len(req.Parked))
	}
	return str
}
