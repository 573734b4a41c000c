package alivescan

import (
	"context"
	"fmt"

	"github.com/netreach/alivescan/internal/alivescan/capture"
	"github.com/netreach/alivescan/internal/alivescan/rawsock"
	"github.com/netreach/alivescan/internal/queue"
)

// SocketKindsFor returns every rawsock.SocketKind a method set requires opened, including
// the UDP companion sockets opened alongside TCP (kernel route/bind side effects for crafted
// TCP sends; never used for transmission directly). Exported so a caller can check privileges
// for exactly the kinds a run will open, before Engine.Run opens any of them.
func SocketKindsFor(methods Methods) []rawsock.SocketKind {
	var kinds []rawsock.SocketKind
	if methods.Has(MethodICMP) {
		kinds = append(kinds, rawsock.ICMPv4, rawsock.ICMPv6)
	}
	if methods.Has(MethodTCPAck) || methods.Has(MethodTCPSyn) {
		kinds = append(kinds, rawsock.TCPv4, rawsock.TCPv6, rawsock.UDPv4, rawsock.UDPv6)
	}
	if methods.Has(MethodARP) {
		kinds = append(kinds, rawsock.ARPv4, rawsock.NDv6)
	}
	return kinds
}

// Engine is the lifecycle controller: it runs one scan end-to-end. A value is single-use --
// call Run once per scan.
type Engine struct {
	cfg     *ScanConfig
	mgmt    ManagementClient
	queue   queue.Queue
	newSoc  func() rawsock.Socket
	router  rawsock.Router
	openCap func(filterPort uint16) (captureHandle, error)
}

// captureHandle is the subset of *capture.Handle the engine depends on, so tests can
// substitute a fake capture device instead of opening a real one.
type captureHandle interface {
	captureSource
	Break()
	Close() error
}

// NewEngine builds an Engine ready to run a scan against real OS raw sockets, the kernel
// routing table, and a live capture device. cfg is validated on construction.
func NewEngine(cfg *ScanConfig, mgmt ManagementClient, q queue.Queue, router rawsock.Router) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		mgmt:   mgmt,
		queue:  q,
		newSoc: rawsock.NewSocket,
		router: router,
		openCap: func(filterPort uint16) (captureHandle, error) {
			return capture.Open(filterPort)
		},
	}, nil
}

// Run executes the 12-step lifecycle and returns the number of targets found dead, or an
// error if initialization failed fatally. A finish signal is always published before Run
// returns, successfully or not.
func (e *Engine) Run(ctx context.Context) (deadCount int, err error) {
	log := e.cfg.Logger
	start := e.cfg.Clock.Now()
	defer func() {
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.RunDuration.Observe(e.cfg.Clock.Since(start).Seconds())
		}
	}()
	restrict := newRestrictions(e.cfg)
	publishFinish := func() {
		if err := restrict.publishFinishOnce(e.queue); err != nil {
			log.Warn("alivescan: failed to publish finish signal", "error", err)
		}
	}

	// Step 1: configuration already resolved and validated by NewEngine/the caller.

	// Step 2: open sockets for every method in use.
	sock := e.newSoc()
	sk := &sockets{sock: sock, byKnd: make(map[rawsock.SocketKind]rawsock.Handle)}
	for _, kind := range SocketKindsFor(e.cfg.Methods) {
		h, err := sock.Open(kind)
		if err != nil {
			sock.CloseAll()
			publishFinish()
			return 0, &SocketError{Kind: kind, Err: err}
		}
		sk.byKnd[kind] = h
	}
	defer func() {
		if cerr := sock.CloseAll(); cerr != nil {
			log.Warn("alivescan: socket teardown reported errors", "error", cerr)
		}
	}()

	// Step 3: build target table from the management client's iterator.
	rawTargets, err := e.mgmt.Targets(ctx)
	if err != nil {
		publishFinish()
		return 0, fmt.Errorf("alivescan: failed to fetch targets: %w", err)
	}
	targets := NewTargetTable()
	for _, t := range rawTargets {
		addr := CanonicalAddr(t.Addr)
		if addr == "" {
			log.Warn("alivescan: skipping target with unparseable address")
			continue
		}
		targets.Insert(addr, t.Handle)
	}

	// Step 4: open the capture handle with the fixed filter.
	capHandle, err := e.openCap(e.cfg.FilterPort)
	if err != nil {
		publishFinish()
		return 0, &CaptureError{Err: err}
	}
	defer capHandle.Close()

	alive := NewAliveSet()
	snf := newSniffer(capHandle, e.cfg, targets, alive, restrict, e.queue)

	// Step 5: start the sniffer thread, block on the start-rendezvous, then warm up.
	go snf.run()
	select {
	case <-snf.Ready():
	case <-ctx.Done():
		publishFinish()
		return 0, ctx.Err()
	}
	e.cfg.Clock.Sleep(e.cfg.Warmup)

	// Step 6: run the sender orchestrator.
	orch := newOrchestrator(e.cfg, sk, e.router, targets, alive, restrict, e.queue)
	orch.run()

	// Step 7: drain for late replies.
	e.cfg.Clock.Sleep(e.cfg.ReplyDrain)

	// Step 8: request capture break, join with a grace period, force-cancel if needed.
	snf.RequestStop()
	capHandle.Break()
	select {
	case <-snf.Done():
	case <-e.cfg.Clock.After(e.cfg.JoinGrace):
		log.Warn("alivescan: sniffer did not join within grace period, abandoning it")
		// Cooperative shutdown failed; forced cancellation is an emergency
		// fallback only. The capture handle is already broken and will be closed by the
		// deferred capHandle.Close() above regardless of whether the goroutine has exited.
	}

	// Step 9: capture handle closed by the deferred call above, on return.

	// Step 10: cap-reached diagnostic.
	if e.cfg.Metrics != nil {
		if restrict.ScanCapReached() {
			e.cfg.Metrics.CapReached.WithLabelValues("max_scan_hosts").Inc()
		}
		if restrict.AliveCapReached() {
			e.cfg.Metrics.CapReached.WithLabelValues("max_alive_hosts").Inc()
		}
	}
	if restrict.AliveCapReached() {
		notChecked := targets.Len() - orch.ConsideredCount()
		if notChecked < 0 {
			notChecked = 0
		}
		key, body := queue.CapReachedMessage(notChecked)
		if err := e.queue.PublishMessage(key, body); err != nil {
			log.Warn("alivescan: failed to publish cap-reached diagnostic", "error", err)
		}
	}

	// Step 11: compute and publish the dead count. A deferred-publish host replied, so it is
	// not dead -- the snapshot taken before ExcludeDeferred captures that. Targets the alive
	// cap stopped the orchestrator from ever reaching are excluded from the universe dead is
	// computed over: never checked, so neither alive nor dead. ExcludeDeferred itself still
	// runs immediately before this computation, so alive.Len() reflects only published hosts
	// for any caller that inspects the set afterward (e.g. metrics).
	aliveSeenTotal := alive.Len()
	alive.ExcludeDeferred()
	deadCount = orch.ConsideredCount() - aliveSeenTotal
	if deadCount < 0 {
		deadCount = 0
	}
	dkey, dbody := queue.DeadHostMessage(deadCount)
	if err := e.queue.PublishMessage(dkey, dbody); err != nil {
		log.Warn("alivescan: failed to publish dead-host count", "error", err)
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.HostsDead.Add(float64(deadCount))
	}

	// Step 12: teardown (sockets closed by the deferred CloseAll above); finish signal if
	// not already published mid-run by the restriction controller.
	publishFinish()

	return deadCount, nil
}
