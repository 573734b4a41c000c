// Package capture opens the engine's live packet-capture handle and classifies the frames
// it delivers. It generalizes flow-enricher's offline gopacket/pcap consumer (which reads a
// recorded file once and decodes UDP/sFlow payloads) into a live "any interface" handle that
// runs for the duration of a scan and classifies reply frames instead of flow records.
package capture

import (
	"fmt"
	"net"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"

	"github.com/netreach/alivescan/internal/alivescan/packet"
)

const anyInterface = "any"

// icmpv4TypeEchoReply and icmpv6TypeEchoReply are the reply type codes the fixed BPF filter
// and the classifier both key on.
const (
	icmpv4TypeEchoReply = 0
	icmpv6TypeEchoReply = 129
)

// Filter renders the fixed BPF expression for the given filter port. It is the only filter
// the capture handle ever installs; per-connection state is deliberately avoided in favor of
// a static expression keyed on a fixed source port.
func Filter(filterPort uint16) string {
	return fmt.Sprintf(
		"(ip6 or ip or arp) and (ip6[40] = 129 or icmp[icmptype] = icmp-echoreply or dst port %d or arp[6:2] = 2)",
		filterPort,
	)
}

// Source is the subset of *pcap.Handle the sniffer depends on, narrowed so tests can
// substitute a fake frame generator instead of opening a real capture device.
type Source interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	LinkType() layers.LinkType
	Close()
}

// Handle wraps a live pcap capture on every interface with the fixed filter installed.
type Handle struct {
	h *pcap.Handle
}

// Open opens a live capture handle on "any" interface, snap length 1500, non-promiscuous,
// with a 100ms buffer timeout, and installs Filter(filterPort). Failure at any step is fatal
// for the run.
func Open(filterPort uint16) (*Handle, error) {
	inactive, err := pcap.NewInactiveHandle(anyInterface)
	if err != nil {
		return nil, fmt.Errorf("capture: create inactive handle: %w", err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(1500); err != nil {
		return nil, fmt.Errorf("capture: set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(false); err != nil {
		return nil, fmt.Errorf("capture: set promisc: %w", err)
	}
	if err := inactive.SetTimeout(100 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("capture: set timeout: %w", err)
	}

	h, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("capture: activate: %w", err)
	}
	if err := h.SetBPFFilter(Filter(filterPort)); err != nil {
		h.Close()
		return nil, fmt.Errorf("capture: compile/install filter: %w", err)
	}
	return &Handle{h: h}, nil
}

// ReadPacketData blocks for at most the buffer timeout before returning pcap.NextErrorTimeoutExpired.
func (c *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return c.h.ReadPacketData()
}

// LinkType reports the link-layer type frames are encoded in, used to dispatch Classify
// without assuming Ethernet.
func (c *Handle) LinkType() layers.LinkType { return c.h.LinkType() }

// Break unblocks a concurrent ReadPacketData call in the sniffer goroutine.
func (c *Handle) Break() { c.h.Close() }

// Close releases the handle. Idempotent: pcap.Handle.Close tolerates repeated calls.
func (c *Handle) Close() error {
	c.h.Close()
	return nil
}

// Reply is a classified, qualifying reply frame: a source address that should be considered
// for mark_alive.
type Reply struct {
	SourceAddr net.IP
}

// Classify decodes frame as linkType and reports the source address of a qualifying reply:
// ICMPv4/ICMPv6 echo replies, TCP segments destined to filterPort (RST or ACK, not
// distinguished), and ARP replies. It dispatches on the capture handle's actual link type and
// parses header fields explicitly rather than assuming a fixed byte offset into the frame.
func Classify(frame []byte, linkType layers.LinkType, filterPort uint16) (Reply, bool) {
	if linkType == layers.LinkTypeEthernet {
		if reply, ok := classifyARP(frame); ok {
			return reply, true
		}
	}

	pkt := gopacket.NewPacket(frame, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	if v4 := pkt.Layer(layers.LayerTypeIPv4); v4 != nil {
		ip4, ok := v4.(*layers.IPv4)
		if !ok {
			return Reply{}, false
		}
		if icmpLayer := pkt.Layer(layers.LayerTypeICMPv4); icmpLayer != nil {
			icmp, ok := icmpLayer.(*layers.ICMPv4)
			if ok && icmp.TypeCode.Type() == icmpv4TypeEchoReply {
				return Reply{SourceAddr: ip4.SrcIP}, true
			}
		}
		if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			tcp, ok := tcpLayer.(*layers.TCP)
			if ok && uint16(tcp.DstPort) == filterPort {
				return Reply{SourceAddr: ip4.SrcIP}, true
			}
		}
		return Reply{}, false
	}

	if v6 := pkt.Layer(layers.LayerTypeIPv6); v6 != nil {
		ip6, ok := v6.(*layers.IPv6)
		if !ok {
			return Reply{}, false
		}
		if icmpLayer := pkt.Layer(layers.LayerTypeICMPv6); icmpLayer != nil {
			icmp, ok := icmpLayer.(*layers.ICMPv6)
			if ok && icmp.TypeCode.Type() == icmpv6TypeEchoReply {
				return Reply{SourceAddr: ip6.SrcIP}, true
			}
		}
		if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			tcp, ok := tcpLayer.(*layers.TCP)
			if ok && uint16(tcp.DstPort) == filterPort {
				return Reply{SourceAddr: ip6.SrcIP}, true
			}
		}
		return Reply{}, false
	}

	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		arp, ok := arpLayer.(*layers.ARP)
		if ok && arp.AddrType == layers.LinkTypeEthernet && arp.Protocol == layers.EthernetTypeIPv4 &&
			arp.HwAddressSize == 6 && arp.ProtAddressSize == 4 && arp.Operation == layers.ARPReply {
			return Reply{SourceAddr: net.IP(arp.SourceProtAddress)}, true
		}
	}

	return Reply{}, false
}

// classifyARP recognizes an Ethernet+ARP reply frame via packet.ParseARPReply, the same
// explicit-field validation the packet builders use to construct ARP requests.
func classifyARP(frame []byte) (Reply, bool) {
	parsed, ok := packet.ParseARPReply(frame)
	if !ok {
		return Reply{}, false
	}
	return Reply{SourceAddr: parsed.SenderIP}, true
}
