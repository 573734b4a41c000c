// Package rawsock opens and drives the raw AF_INET/AF_INET6/AF_PACKET sockets the sender
// orchestrator sends probes on. It generalizes the hand-rolled raw-ICMP socket plumbing
// doublezero's uping tool used for a single method into an Open/Send/Close/Route contract
// that covers every probe kind the engine needs.
package rawsock

import (
	"fmt"
	"net"
)

// SocketKind identifies one of the sockets a detection method needs.
type SocketKind int

const (
	ICMPv4 SocketKind = iota
	ICMPv6
	TCPv4
	TCPv6
	UDPv4
	UDPv6
	ARPv4
	NDv6
)

func (k SocketKind) String() string {
	switch k {
	case ICMPv4:
		return "icmpv4"
	case ICMPv6:
		return "icmpv6"
	case TCPv4:
		return "tcpv4"
	case TCPv6:
		return "tcpv6"
	case UDPv4:
		return "udpv4"
	case UDPv6:
		return "udpv6"
	case ARPv4:
		return "arpv4"
	case NDv6:
		return "ndv6"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Handle is an opaque reference to an opened socket. The zero value is never valid.
type Handle int

// Dest is the destination a probe is sent to: an IP for AF_INET/AF_INET6 sockets, or a
// link-layer address for AF_PACKET (ARP) sockets.
type Dest struct {
	IP       net.IP
	HWAddr   net.HardwareAddr // copied into the link-layer sockaddr of ARPv4 sends; unused otherwise
	Iface    int              // interface index, required for ARPv4/NDv6 sends
	TCPFlags TCPFlag          // ignored for non-TCP kinds
}

// TCPFlag distinguishes the two TCP probe variants the orchestrator can emit.
type TCPFlag uint8

const (
	TCPFlagACK TCPFlag = iota
	TCPFlagSYN
)

// Socket opens, sends on, and closes the raw sockets a method needs, and resolves routes.
type Socket interface {
	// Open returns a handle for kind, or the OS error that prevented opening it.
	Open(kind SocketKind) (Handle, error)
	// Send blocks until b has been written in full (partial sends are retried) or an error
	// occurs. It returns the number of bytes written.
	Send(h Handle, dst Dest, b []byte) (int, error)
	// Close is idempotent; repeated calls after the first successful close return nil.
	Close(h Handle) error
	// CloseAll closes every handle this Socket has opened, aggregating failures into a
	// *CleanupErrs (nil if every close succeeded).
	CloseAll() error
}

// Router resolves the interface, source address, and (for ARP/ND) link-layer address to use
// to reach dst.
type Router interface {
	Route(dst net.IP) (RouteInfo, error)
}

// RouteInfo is what the raw socket layer needs to emit a probe toward a destination.
type RouteInfo struct {
	Iface   *net.Interface
	Source  net.IP
	Gateway net.IP // nil when dst is on-link
}

// CleanupErrs aggregates non-fatal teardown failures from CloseAll.
type CleanupErrs struct {
	Errs []error
}

func (e *CleanupErrs) Error() string {
	return fmt.Sprintf("rawsock: %d socket(s) failed to close: %v", len(e.Errs), e.Errs)
}

// ResolveInterfaceMAC returns the hardware address of the named interface, used by the
// orchestrator to fill in the ARP sender-hardware-address field.
func ResolveInterfaceMAC(name string) (net.HardwareAddr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return ifi.HardwareAddr, nil
}
