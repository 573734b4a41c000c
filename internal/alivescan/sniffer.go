package alivescan

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"

	"github.com/netreach/alivescan/internal/alivescan/capture"
	"github.com/netreach/alivescan/internal/queue"
)

// snifferState is the lifecycle: Created -> Running -> BreakRequested ->
// Joined. It exists purely for observability/testing; the transitions themselves are driven
// by the capture loop and the lifecycle controller, not by external callers setting state.
type snifferState int32

const (
	snifferCreated snifferState = iota
	snifferRunning
	snifferBreakRequested
	snifferJoined
)

// captureSource is the subset of capture.Handle the sniffer depends on, so tests can drive
// it against a fake frame generator instead of a live pcap device.
type captureSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// sniffer owns the capture handle for the duration of a run and is the sole mutator of the
// alive-seen set and restriction state. Exactly one goroutine ever calls run.
type sniffer struct {
	src        captureSource
	filterPort uint16
	targets    *TargetTable
	alive      *AliveSet
	restrict   *restrictions
	queue      queue.Queue
	log        *slog.Logger
	metrics    *Metrics

	state   atomic.Int32
	stopped atomic.Bool // cooperative shutdown flag, checked once per frame

	ready chan struct{} // closed exactly once, on entry to Running: the start-rendezvous
	done  chan struct{} // closed when run returns, for join-with-timeout
}

func newSniffer(src captureSource, cfg *ScanConfig, targets *TargetTable, alive *AliveSet, restrict *restrictions, q queue.Queue) *sniffer {
	s := &sniffer{
		src:        src,
		filterPort: cfg.FilterPort,
		targets:    targets,
		alive:      alive,
		restrict:   restrict,
		queue:      q,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.state.Store(int32(snifferCreated))
	return s
}

// Ready returns a channel closed once the sniffer has entered Running, satisfying the
// one-shot start-rendezvous required before any probe may be emitted.
func (s *sniffer) Ready() <-chan struct{} { return s.ready }

// Done returns a channel closed once run has returned, for the lifecycle controller's
// bounded join.
func (s *sniffer) Done() <-chan struct{} { return s.done }

// RequestStop sets the cooperative stop flag (checked once per frame) and records the
// BreakRequested transition. The caller is still responsible for calling Break on the
// underlying capture handle to unblock a pending ReadPacketData.
func (s *sniffer) RequestStop() {
	s.stopped.Store(true)
	s.state.Store(int32(snifferBreakRequested))
}

// run is the capture loop: it signals the rendezvous on entry, then classifies and
// publishes frames until stopped (cooperatively) or the source reports a non-recoverable
// error. It must run on its own goroutine; the lifecycle controller waits on Done().
func (s *sniffer) run() {
	defer func() {
		s.state.Store(int32(snifferJoined))
		close(s.done)
	}()

	s.state.Store(int32(snifferRunning))
	close(s.ready)

	for !s.stopped.Load() {
		data, _, err := s.src.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			// The handle was broken out from under us, or some other unrecoverable
			// capture error: stop the loop either way.
			return
		}

		reply, ok := capture.Classify(data, s.src.LinkType(), s.filterPort)
		if !ok {
			continue
		}
		s.handleReply(reply)

		if s.restrict.AliveCapReached() {
			continue
		}
	}
}

// handleReply implements steps 2-4 for one classified reply frame.
func (s *sniffer) handleReply(reply capture.Reply) {
	addr := CanonicalAddr(reply.SourceAddr)
	if addr == "" {
		return
	}

	wasNew := s.alive.MarkAlive(addr)
	if !wasNew || !s.targets.IsTarget(addr) {
		return
	}

	s.restrict.onAlive(addr, s.alive, s.queue, s.log, s.metrics)
}
