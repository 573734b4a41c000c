package alivescan

import (
	"log/slog"
	"sync/atomic"

	"github.com/netreach/alivescan/internal/queue"
)

// restrictions holds the scan-restriction state: two independent caps with distinct effects,
// and the monotonic counters/flags that track them. Every method here is called only from
// the sniffer goroutine (via mark_alive), except for the zero-value construction the
// lifecycle controller does before the sniffer starts -- that single-writer discipline is
// what lets this type skip a mutex entirely.
type restrictions struct {
	maxScanHosts  int
	maxAliveHosts int

	aliveCount      int
	scanCapReached  bool
	aliveCapReached bool

	// finishPublished guards the exactly-once finish signal. It is an atomic rather than a
	// plain bool because, unlike the rest of this type, it can legitimately be touched from
	// two goroutines: the sniffer thread (on reaching the scan cap) and the lifecycle
	// controller (at teardown, or immediately if init fails before the sniffer ever starts).
	finishPublished atomic.Bool
}

func newRestrictions(cfg *ScanConfig) *restrictions {
	r := &restrictions{maxScanHosts: cfg.MaxScanHosts, maxAliveHosts: cfg.MaxAliveHosts}
	if r.maxScanHosts == 0 {
		// A configured cap of zero hosts is already exhausted before any detection --
		// nothing is ever published. The equality check in onAlive can't express this
		// (alive_count is always >= 1 by the time it runs), so it's set here instead.
		r.scanCapReached = true
	}
	return r
}

// ScanCapReached reports whether max_scan_hosts has been reached.
func (r *restrictions) ScanCapReached() bool { return r.scanCapReached }

// AliveCapReached reports whether max_alive_hosts has been reached; the orchestrator polls
// this between targets to decide whether to keep sending probes.
func (r *restrictions) AliveCapReached() bool { return r.aliveCapReached }

// AliveCount returns the number of unique targets marked alive so far.
func (r *restrictions) AliveCount() int { return r.aliveCount }

// onAlive runs the four-step transition for a target that was just newly marked alive
// (mark_alive returned was_new and the source address is a known target). It is the
// sniffer's only path for publishing to q; the sniffer itself never calls q directly.
func (r *restrictions) onAlive(addr string, alive *AliveSet, q queue.Queue, log *slog.Logger, metrics *Metrics) {
	// Step 1.
	r.aliveCount++

	// Step 2.
	if !r.scanCapReached {
		if err := q.PublishHost(addr); err != nil {
			log.Warn("alivescan: failed to publish alive host", "addr", addr, "error", err)
			if metrics != nil {
				metrics.QueueErrors.Inc()
			}
		} else if metrics != nil {
			metrics.HostsPublished.Inc()
		}
	} else {
		alive.Defer(addr)
	}

	// Step 3. A max_scan_hosts of zero starts with scan_cap_reached already true (see
	// newRestrictions), so the equality trigger below never fires for it; the exactly-once
	// finish signal still has to go out on this, the first alive detection.
	switch {
	case !r.scanCapReached && r.aliveCount == r.maxScanHosts:
		r.scanCapReached = true
		if err := r.publishFinishOnce(q); err != nil {
			log.Warn("alivescan: failed to publish finish signal on scan cap", "error", err)
		}
	case r.maxScanHosts == 0 && r.aliveCount == 1:
		if err := r.publishFinishOnce(q); err != nil {
			log.Warn("alivescan: failed to publish finish signal on scan cap", "error", err)
		}
	}

	// Step 4. Mirrors step 3's zero-cap case: with max_alive_hosts == 0 the equality
	// trigger (alive_count == 0) can never fire post-increment, so probing has to stop as
	// soon as the first host is confirmed alive instead.
	if r.aliveCount == r.maxAliveHosts || (r.maxAliveHosts == 0 && r.aliveCount == 1) {
		r.aliveCapReached = true
	}
}

// publishFinishOnce publishes the finish signal if it has not already been published this
// run. This can fire mid-run (when the scan cap is reached) as well as at teardown;
// downstream consumers must tolerate further DEADHOST/ERRMSG traffic afterward.
func (r *restrictions) publishFinishOnce(q queue.Queue) error {
	if !r.finishPublished.CompareAndSwap(false, true) {
		return nil
	}
	return q.PublishFinish()
}
