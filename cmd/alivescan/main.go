package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/netreach/alivescan/internal/alivescan"
	"github.com/netreach/alivescan/internal/alivescan/rawsock"
	"github.com/netreach/alivescan/internal/netlink"
	"github.com/netreach/alivescan/internal/queue"

	_ "net/http/pprof"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultMetricsAddr = ":8080"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	enablePprofFlag := flag.Bool("enable-pprof", false, "enable pprof server")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address to listen on for prometheus metrics (empty disables it)")

	targetsFlag := flag.String("targets", "", "comma-separated list of target IP addresses to scan (required)")
	methodsFlag := flag.String("methods", "icmp,tcp-ack,arp", "comma-separated detection methods: icmp, tcp-ack, tcp-syn, arp, consider-alive")
	tcpPortsFlag := flag.String("tcp-ports", "", "comma-separated TCP probe ports (default: the engine's built-in fallback range)")
	sourceFlag := flag.String("source", "", "preferred source address for crafted probes (default: resolved per-target from the routing table)")
	outFlag := flag.String("out", "-", "where to write results: '-' for stdout, or a path to append to")

	burstSizeFlag := flag.Int("burst-size", alivescan.DefaultBurstSize, "targets per method before pausing (a TCP target counts once, though it gets one probe per port)")
	burstPauseFlag := flag.Duration("burst-pause", alivescan.DefaultBurstPause, "pause between bursts")
	warmupFlag := flag.Duration("warmup", alivescan.DefaultWarmup, "delay after the sniffer starts and before probing begins")
	replyDrainFlag := flag.Duration("reply-drain", alivescan.DefaultReplyDrain, "delay after probing before the sniffer stops")
	joinGraceFlag := flag.Duration("join-grace", alivescan.DefaultJoinGrace, "bound on waiting for the sniffer to stop cooperatively")
	filterPortFlag := flag.Uint16("filter-port", alivescan.DefaultFilterPort, "TCP port the capture filter watches replies on")
	maxScanHostsFlag := flag.Int("max-scan-hosts", alivescan.NoCap, "stop publishing after this many alive hosts (-1: unlimited, 0: publish none)")
	maxAliveHostsFlag := flag.Int("max-alive-hosts", alivescan.NoCap, "stop probing after this many alive hosts (-1: unlimited, 0: stop after the first)")

	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(*verboseFlag)

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if strings.TrimSpace(*targetsFlag) == "" {
		err := fmt.Errorf("--targets is required")
		log.Error("no targets given", "error", err)
		return err
	}

	methods, err := parseMethods(*methodsFlag)
	if err != nil {
		log.Error("failed to parse methods", "error", err)
		return err
	}

	targets, err := parseTargets(*targetsFlag)
	if err != nil {
		log.Error("failed to parse targets", "error", err)
		return err
	}

	tcpPorts, err := parsePorts(*tcpPortsFlag)
	if err != nil {
		log.Error("failed to parse tcp-ports", "error", err)
		return err
	}

	var source net.IP
	if *sourceFlag != "" {
		source = net.ParseIP(*sourceFlag)
		if source == nil {
			err := fmt.Errorf("invalid --source address: %s", *sourceFlag)
			log.Error("failed to parse source address", "error", err)
			return err
		}
	}

	q, closeQueue, err := openQueue(*outFlag)
	if err != nil {
		log.Error("failed to open output queue", "error", err)
		return err
	}
	defer closeQueue()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := alivescan.NewMetrics(registry)

	if *metricsAddrFlag != "" {
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics listener", "error", err)
				return
			}
			log.Info("prometheus metrics listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.Serve(listener, mux); err != nil {
				log.Error("prometheus metrics server stopped", "error", err)
			}
		}()
	}

	if err := rawsock.RequirePrivileges(alivescan.SocketKindsFor(methods)); err != nil {
		log.Error("insufficient privileges", "error", err)
		return err
	}

	cfg := &alivescan.ScanConfig{
		Methods:       methods,
		SourceAddress: source,
		TCPPorts:      tcpPorts,
		BurstSize:     *burstSizeFlag,
		BurstPause:    *burstPauseFlag,
		ReplyDrain:    *replyDrainFlag,
		Warmup:        *warmupFlag,
		JoinGrace:     *joinGraceFlag,
		FilterPort:    *filterPortFlag,
		MaxScanHosts:  *maxScanHostsFlag,
		MaxAliveHosts: *maxAliveHostsFlag,
		Logger:        log,
		Clock:         clockwork.NewRealClock(),
		Metrics:       metrics,
	}

	mgmt := &alivescan.StaticManagementClient{ID: "cli", Hosts: targets}
	router := netlink.NewRouter()

	engine, err := alivescan.NewEngine(cfg, mgmt, q, router)
	if err != nil {
		log.Error("failed to build engine", "error", err)
		return err
	}

	dead, err := engine.Run(ctx)
	if err != nil {
		log.Error("scan failed", "error", err)
		return err
	}
	log.Info("scan complete", "alive", len(targets)-dead, "dead", dead, "targets", len(targets))
	return nil
}

func parseMethods(s string) (alivescan.Methods, error) {
	var methods alivescan.Methods
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(tok)) {
		case "":
			continue
		case "icmp":
			methods |= alivescan.Methods(alivescan.MethodICMP)
		case "tcp-ack":
			methods |= alivescan.Methods(alivescan.MethodTCPAck)
		case "tcp-syn":
			methods |= alivescan.Methods(alivescan.MethodTCPSyn)
		case "arp":
			methods |= alivescan.Methods(alivescan.MethodARP)
		case "consider-alive":
			methods |= alivescan.Methods(alivescan.MethodConsiderAlive)
		default:
			return 0, fmt.Errorf("unknown detection method %q", tok)
		}
	}
	if methods.Empty() {
		return 0, fmt.Errorf("no detection methods selected")
	}
	return methods, nil
}

func parseTargets(s string) ([]alivescan.Target, error) {
	var targets []alivescan.Target
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		ip := net.ParseIP(tok)
		if ip == nil {
			return nil, fmt.Errorf("invalid target address %q", tok)
		}
		targets = append(targets, alivescan.Target{Addr: ip})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no valid targets given")
	}
	return targets, nil
}

func parsePorts(s string) ([]uint16, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ports []uint16
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		var p uint16
		if _, err := fmt.Sscanf(tok, "%d", &p); err != nil || p == 0 {
			return nil, fmt.Errorf("invalid tcp port %q", tok)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func openQueue(out string) (q queue.Queue, closeFn func(), err error) {
	if out == "-" || out == "" {
		return queue.NewWriterQueue(os.Stdout), func() {}, nil
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file %q: %w", out, err)
	}
	return queue.NewWriterQueue(f), func() { f.Close() }, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
