package packet

import (
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// BroadcastMAC is the Ethernet destination used for ARP requests.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARPRequest builds an Ethernet-II + ARP-request frame asking who has dstIP, sourced from
// srcMAC/srcIP. Serialization (and the frame's implicit lack of a checksum) is delegated to
// gopacket, the same layer-serialization idiom doublezero uses to build raw protocol frames
// (its PIM sender composes layers the same way before handing bytes to a raw socket).
func ARPRequest(srcMAC net.HardwareAddr, srcIP, dstIP net.IP) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       BroadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParsedARPReply is the validated result of classifying an ARP reply frame: htype, ptype,
// hlen, plen, and op are all checked before trusting any field.
type ParsedARPReply struct {
	SenderIP net.IP
	SenderHW net.HardwareAddr
}

// ParseARPReply validates frame as an Ethernet+ARP reply (htype=1, ptype=0x0800, hlen=6,
// plen=4, op=2) and extracts the sender protocol/hardware addresses. It returns ok=false
// for anything else, including truncated frames.
func ParseARPReply(frame []byte) (reply ParsedARPReply, ok bool) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	arpLayer := pkt.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return ParsedARPReply{}, false
	}
	arp, isARP := arpLayer.(*layers.ARP)
	if !isARP {
		return ParsedARPReply{}, false
	}
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 {
		return ParsedARPReply{}, false
	}
	if arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
		return ParsedARPReply{}, false
	}
	if arp.Operation != layers.ARPReply {
		return ParsedARPReply{}, false
	}
	return ParsedARPReply{
		SenderIP: net.IP(arp.SourceProtAddress),
		SenderHW: net.HardwareAddr(arp.SourceHwAddress),
	}, true
}
