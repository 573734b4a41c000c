package alivescan

import (
	"log/slog"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
)

// Method is a bit in the enabled-detection-methods set.
type Method uint8

const (
	MethodICMP Method = 1 << iota
	MethodTCPAck
	MethodTCPSyn
	MethodARP
	MethodConsiderAlive
)

// Methods is a bitset over Method values.
type Methods uint8

func (m Methods) Has(method Method) bool { return m&Methods(method) != 0 }
func (m Methods) Empty() bool            { return m == 0 }

// Default TCP probe ports, used when no user-supplied range is given or the user-supplied
// range is invalid.
var DefaultTCPPorts = []uint16{80, 137, 587, 3128, 8081}

// NoCap is the sentinel for "no cap configured" on MaxScanHosts/MaxAliveHosts. A configured
// 0 is a real cap of zero hosts, not "unlimited" -- see Validate's boundary handling and
// restrictions.onAlive. Any negative value supplied by a caller is normalized to NoCap.
const NoCap = -1

const (
	DefaultBurstSize    = 100
	DefaultBurstPause   = 10 * time.Millisecond
	DefaultReplyDrain   = 3 * time.Second
	DefaultWarmup       = 2 * time.Second
	DefaultJoinGrace    = 500 * time.Millisecond
	DefaultFilterPort   = 9391
	DefaultSnapLen      = 1500
	DefaultBPFTimeout   = 100 * time.Millisecond
	DefaultMaxScanHosts = NoCap
	DefaultMaxAliveHost = NoCap
)

// ScanConfig is the resolved configuration the lifecycle controller receives. Unlike the
// original C engine, preference/file loading is not re-implemented here -- callers build
// and Validate() a ScanConfig directly.
type ScanConfig struct {
	Methods       Methods
	SourceAddress net.IP // optional preferred egress address
	TCPPorts      []uint16
	BurstSize     int
	BurstPause    time.Duration
	ReplyDrain    time.Duration
	Warmup        time.Duration
	JoinGrace     time.Duration
	FilterPort    uint16
	MaxScanHosts  int
	MaxAliveHosts int

	// Ambient stack, not part of the liveness semantics.
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Metrics *Metrics
}

// Validate normalizes cfg in place and returns a *ConfigError if the method set is empty.
// An invalid TCP port range falls back to DefaultTCPPorts, and max_alive_hosts is raised to
// max_scan_hosts when it would otherwise be tighter -- preserved verbatim, not a bug. 0 is a
// real cap on both fields; only a negative value means "no cap configured."
func (c *ScanConfig) Validate() error {
	if c.Methods.Empty() {
		return &ConfigError{Reason: "no detection methods selected"}
	}
	if len(c.TCPPorts) == 0 || !validPortRange(c.TCPPorts) {
		c.TCPPorts = append([]uint16(nil), DefaultTCPPorts...)
	}
	if c.BurstSize <= 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.BurstPause <= 0 {
		c.BurstPause = DefaultBurstPause
	}
	if c.ReplyDrain <= 0 {
		c.ReplyDrain = DefaultReplyDrain
	}
	if c.Warmup <= 0 {
		c.Warmup = DefaultWarmup
	}
	if c.JoinGrace <= 0 {
		c.JoinGrace = DefaultJoinGrace
	}
	if c.FilterPort == 0 {
		c.FilterPort = DefaultFilterPort
	}
	if c.MaxScanHosts < 0 {
		c.MaxScanHosts = DefaultMaxScanHosts
	}
	if c.MaxAliveHosts < 0 {
		c.MaxAliveHosts = DefaultMaxAliveHost
	}
	// Cap normalization, preserved verbatim: the alive-stop cap must never be
	// tighter than the publish cap, else the engine would stop probing before it could
	// publish permitted hosts. Only applies once max_scan_hosts is itself a real cap;
	// NoCap on either side is never tightened.
	if c.MaxScanHosts != NoCap {
		if c.MaxAliveHosts != NoCap && c.MaxAliveHosts < c.MaxScanHosts {
			c.MaxAliveHosts = c.MaxScanHosts
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	return nil
}

// validPortRange reports whether every port in ports is a valid, non-zero 16-bit port.
func validPortRange(ports []uint16) bool {
	for _, p := range ports {
		if p == 0 {
			return false
		}
	}
	return true
}
