package capture

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func TestCapture_Filter_rendersFixedExpression(t *testing.T) {
	t.Parallel()

	got := Filter(9391)
	require.Equal(t,
		"(ip6 or ip or arp) and (ip6[40] = 129 or icmp[icmptype] = icmp-echoreply or dst port 9391 or arp[6:2] = 2)",
		got,
	)
}

func buildICMPv4EchoReply(t *testing.T, src, dst net.IP) []byte {
	t.Helper()
	eth := layers.Ethernet{SrcMAC: mac(1), DstMAC: mac(2), EthernetType: layers.EthernetTypeIPv4}
	ip := layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolICMPv4, SrcIP: src, DstIP: dst}
	icmp := layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0)}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&eth, &ip, &icmp, gopacket.Payload([]byte("x"))))
	return buf.Bytes()
}

func buildTCPToPort(t *testing.T, src, dst net.IP, dstPort uint16) []byte {
	t.Helper()
	eth := layers.Ethernet{SrcMAC: mac(1), DstMAC: mac(2), EthernetType: layers.EthernetTypeIPv4}
	ip := layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
	tcp := layers.TCP{SrcPort: 80, DstPort: layers.TCPPort(dstPort), RST: true, ACK: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(&ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&eth, &ip, &tcp))
	return buf.Bytes()
}

func buildARPReply(t *testing.T, senderIP, targetIP net.IP) []byte {
	t.Helper()
	eth := layers.Ethernet{SrcMAC: mac(3), DstMAC: mac(4), EthernetType: layers.EthernetTypeARP}
	arp := layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPReply,
		SourceHwAddress: mac(3), SourceProtAddress: senderIP.To4(),
		DstHwAddress: mac(4), DstProtAddress: targetIP.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&eth, &arp))
	return buf.Bytes()
}

func mac(b byte) net.HardwareAddr { return net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, b} }

func TestCapture_Classify_icmpv4EchoReply(t *testing.T) {
	t.Parallel()

	frame := buildICMPv4EchoReply(t, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"))
	reply, ok := Classify(frame, layers.LinkTypeEthernet, 9391)
	require.True(t, ok)
	require.True(t, reply.SourceAddr.Equal(net.ParseIP("10.0.0.1")))
}

func TestCapture_Classify_tcpToFilterPort(t *testing.T) {
	t.Parallel()

	frame := buildTCPToPort(t, net.ParseIP("10.0.0.7"), net.ParseIP("10.0.0.2"), 9391)
	reply, ok := Classify(frame, layers.LinkTypeEthernet, 9391)
	require.True(t, ok)
	require.True(t, reply.SourceAddr.Equal(net.ParseIP("10.0.0.7")))
}

func TestCapture_Classify_tcpToOtherPortIsRejected(t *testing.T) {
	t.Parallel()

	frame := buildTCPToPort(t, net.ParseIP("10.0.0.7"), net.ParseIP("10.0.0.2"), 22)
	_, ok := Classify(frame, layers.LinkTypeEthernet, 9391)
	require.False(t, ok)
}

func TestCapture_Classify_arpReply(t *testing.T) {
	t.Parallel()

	frame := buildARPReply(t, net.ParseIP("10.0.0.5"), net.ParseIP("10.0.0.2"))
	reply, ok := Classify(frame, layers.LinkTypeEthernet, 9391)
	require.True(t, ok)
	require.True(t, reply.SourceAddr.Equal(net.ParseIP("10.0.0.5")))
}
