package alivescan

import (
	"log/slog"
	"net"

	"github.com/jonboulle/clockwork"

	"github.com/netreach/alivescan/internal/alivescan/packet"
	"github.com/netreach/alivescan/internal/alivescan/rawsock"
	"github.com/netreach/alivescan/internal/queue"
)

// sockets bundles the open raw-socket handles the orchestrator sends probes on, keyed by
// rawsock.SocketKind. Built once by the lifecycle controller and closed once at teardown.
type sockets struct {
	sock  rawsock.Socket
	byKnd map[rawsock.SocketKind]rawsock.Handle
}

// orchestrator drives the sender thread: for each enabled method, in the fixed order
// [TCP, ICMP, ARP], it iterates every target and emits that method's probe, pacing in
// bursts. Its own mutable state is the IP ID counter, the considered set, and the burst
// counter, which is local to each method's loop rather than a package-global static.
type orchestrator struct {
	cfg      *ScanConfig
	sockets  *sockets
	router   rawsock.Router
	targets  *TargetTable
	alive    *AliveSet
	restrict *restrictions
	queue    queue.Queue
	log      *slog.Logger
	clock    clockwork.Clock
	metrics  *Metrics

	icmpID uint16
	ipID   uint16

	// considered is the set of targets at least one enabled method actually attempted a
	// probe for (or, for CONSIDER_ALIVE, actually visited) before alive_cap_reached cut the
	// iteration short. A target the alive cap stopped the engine from ever reaching is
	// excluded from both the alive and dead tallies -- it was never checked, so it is
	// neither. Targets that were probed but never replied are still counted dead as usual;
	// this only narrows the universe the dead count is taken over.
	considered map[string]struct{}
}

func newOrchestrator(cfg *ScanConfig, sk *sockets, router rawsock.Router, targets *TargetTable, alive *AliveSet, restrict *restrictions, q queue.Queue) *orchestrator {
	return &orchestrator{
		cfg: cfg, sockets: sk, router: router, targets: targets, alive: alive, restrict: restrict,
		queue: q, log: cfg.Logger, clock: cfg.Clock, metrics: cfg.Metrics,
		icmpID:     0xbeef,
		considered: make(map[string]struct{}),
	}
}

// ConsideredCount returns the number of distinct targets at least one method actually
// attempted during run(), for the lifecycle controller's dead-count computation.
func (o *orchestrator) ConsideredCount() int { return len(o.considered) }

// run executes every enabled method in the fixed order [TCP, ICMP, ARP], plus the
// CONSIDER_ALIVE short-circuit if selected.
func (o *orchestrator) run() {
	if o.cfg.Methods.Has(MethodTCPAck) || o.cfg.Methods.Has(MethodTCPSyn) {
		o.runMethod("tcp", o.sendTCP)
	}
	if o.cfg.Methods.Has(MethodICMP) {
		o.runMethod("icmp", o.sendICMP)
	}
	if o.cfg.Methods.Has(MethodARP) {
		o.runMethod("arp", o.sendARP)
	}
	if o.cfg.Methods.Has(MethodConsiderAlive) {
		o.runConsiderAlive()
	}
}

// runMethod iterates every target, invoking send for each, pacing with a local burst
// counter and stopping early once the alive cap is reached.
func (o *orchestrator) runMethod(label string, send func(addr string, handle TargetHandle, ip net.IP)) {
	burstCount := 0
	o.targets.ForEach(func(addr string, handle TargetHandle) {
		if o.restrict.AliveCapReached() {
			return
		}
		ip := net.ParseIP(addr)
		if ip == nil {
			o.log.Warn("alivescan: target address does not parse, skipping", "addr", addr, "method", label)
			return
		}
		o.considered[addr] = struct{}{}
		send(addr, handle, ip)

		burstCount++
		if burstCount%o.cfg.BurstSize == 0 {
			o.clock.Sleep(o.cfg.BurstPause)
		}
	})
}

// runConsiderAlive marks every target alive without emitting a packet. Like the original
// engine, this calls the restriction controller directly from the sender thread rather than
// the sniffer thread -- the one documented exception to the single-writer discipline, safe
// in practice because CONSIDER_ALIVE is never combined with a concurrently-running probing
// method that could itself mutate restriction state.
func (o *orchestrator) runConsiderAlive() {
	o.targets.ForEach(func(addr string, handle TargetHandle) {
		if o.restrict.AliveCapReached() {
			return
		}
		o.considered[addr] = struct{}{}
		if wasNew := o.alive.MarkAlive(addr); wasNew {
			o.restrict.onAlive(addr, o.alive, o.queue, o.log, o.metrics)
		}
	})
}

func (o *orchestrator) nextIPID() uint16 {
	o.ipID++
	return o.ipID
}

// sendICMP emits an ICMPv4 or ICMPv6 echo request, choosing the v4 variant for IPv4-mapped
// IPv6 targets.
func (o *orchestrator) sendICMP(addr string, _ TargetHandle, ip net.IP) {
	if !IsIPv6(ip) {
		o.send(addr, rawsock.ICMPv4, ip, packet.ICMPv4EchoRequest(o.icmpID, o.nextIPID()))
		return
	}
	msg := packet.ICMPv6EchoRequest(o.icmpID, o.nextIPID())
	route, err := o.router.Route(ip)
	if err != nil {
		o.recordSendErr(addr, rawsock.ICMPv6, err)
		return
	}
	var src, dst [16]byte
	copy(src[:], route.Source.To16())
	copy(dst[:], ip.To16())
	packet.ICMPv6Checksum(msg, src, dst)
	o.send(addr, rawsock.ICMPv6, ip, msg)
}

// sendTCP emits a TCPv4 or TCPv6 segment (ACK or SYN, per configuration) to each configured
// probe port, choosing the v4 variant for IPv4-mapped IPv6 targets.
func (o *orchestrator) sendTCP(addr string, _ TargetHandle, ip net.IP) {
	flag := rawsock.TCPFlagACK
	pflag := packet.TCPFlagACK
	if o.cfg.Methods.Has(MethodTCPSyn) && !o.cfg.Methods.Has(MethodTCPAck) {
		flag, pflag = rawsock.TCPFlagSYN, packet.TCPFlagSYN
	}

	route, err := o.router.Route(ip)
	if err != nil {
		o.recordSendErr(addr, rawsock.TCPv4, err)
		return
	}

	if !IsIPv6(ip) {
		var src, dst [4]byte
		copy(src[:], route.Source.To4())
		copy(dst[:], ip.To4())
		for _, port := range o.cfg.TCPPorts {
			seg := packet.TCPv4Segment(src, dst, port, pflag)
			hdr := packet.BuildIPv4Header(src, dst, 6, len(seg), o.nextIPID())
			o.sendFlag(addr, rawsock.TCPv4, ip, flag, append(hdr, seg...))
		}
		return
	}
	var src, dst [16]byte
	copy(src[:], route.Source.To16())
	copy(dst[:], ip.To16())
	for _, port := range o.cfg.TCPPorts {
		seg := packet.TCPv6Segment(src, dst, port, pflag)
		o.sendFlag(addr, rawsock.TCPv6, ip, flag, seg)
	}
}

// sendARP emits an ARP request for IPv4 targets, or the ND-neighbor-solicitation substitute
// for IPv6 targets.
func (o *orchestrator) sendARP(addr string, _ TargetHandle, ip net.IP) {
	route, err := o.router.Route(ip)
	if err != nil {
		o.recordSendErr(addr, rawsock.ARPv4, err)
		return
	}

	if !IsIPv6(ip) {
		localMAC, err := rawsock.ResolveInterfaceMAC(route.Iface.Name)
		if err != nil {
			o.recordSendErr(addr, rawsock.ARPv4, err)
			return
		}
		frame, err := packet.ARPRequest(localMAC, route.Source, ip)
		if err != nil {
			o.recordSendErr(addr, rawsock.ARPv4, err)
			return
		}
		o.send(addr, rawsock.ARPv4, ip, frame)
		return
	}

	localMAC, err := rawsock.ResolveInterfaceMAC(route.Iface.Name)
	if err != nil {
		o.recordSendErr(addr, rawsock.NDv6, err)
		return
	}
	var target, src, dst [16]byte
	copy(target[:], ip.To16())
	var localMAC6 [6]byte
	copy(localMAC6[:], localMAC)
	msg := packet.NDNeighborSolicitation(target, localMAC6)
	copy(src[:], route.Source.To16())
	copy(dst[:], ip.To16())
	packet.ICMPv6Checksum(msg, src, dst)
	o.send(addr, rawsock.NDv6, ip, msg)
}

func (o *orchestrator) send(addr string, kind rawsock.SocketKind, ip net.IP, b []byte) {
	o.sendFlag(addr, kind, ip, rawsock.TCPFlagACK, b)
}

func (o *orchestrator) sendFlag(addr string, kind rawsock.SocketKind, ip net.IP, flag rawsock.TCPFlag, b []byte) {
	h, ok := o.sockets.byKnd[kind]
	if !ok {
		o.recordSendErr(addr, kind, errSocketNotOpen(kind))
		return
	}
	dest := rawsock.Dest{IP: ip, TCPFlags: flag}
	if kind == rawsock.ARPv4 || kind == rawsock.NDv6 {
		route, err := o.router.Route(ip)
		if err == nil {
			dest.Iface = route.Iface.Index
		}
	}
	if _, err := o.sockets.sock.Send(h, dest, b); err != nil {
		o.recordSendErr(addr, kind, err)
		return
	}
	if o.metrics != nil {
		o.metrics.ProbesSent.WithLabelValues(kind.String()).Inc()
	}
}

func (o *orchestrator) recordSendErr(addr string, kind rawsock.SocketKind, err error) {
	sendErr := &SendError{Dst: addr, Kind: kind, Err: err}
	o.log.Warn("alivescan: probe send failed", "error", sendErr)
	if o.metrics != nil {
		o.metrics.SendErrors.WithLabelValues(kind.String()).Inc()
	}
}

type socketNotOpenError struct{ kind rawsock.SocketKind }

func (e socketNotOpenError) Error() string { return "alivescan: no open socket for " + e.kind.String() }

func errSocketNotOpen(kind rawsock.SocketKind) error { return socketNotOpenError{kind: kind} }
