package arp

import (
	"context"
)

// RunSweeper runs the once-a-second timer task until ctx is cancelled. It
// has no responsibility beyond calling Sweep: handleRetransmit (supplied by
// the forwarding pipeline) does the actual probe/exhaustion I/O.
func (s *Store) RunSweeper(ctx context.Context, handleRetransmit func(req *PendingRequest)) {
	ticker := s.clock.NewTicker(RetransmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(handleRetransmit)
		}
	}
}
