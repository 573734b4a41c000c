package packet

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func TestPacket_InternetChecksum_selfVerifies(t *testing.T) {
	t.Parallel()

	b := ICMPv4EchoRequest(1, 1)
	require.Equal(t, uint16(0), InternetChecksum(b), "a checksummed ICMP message sums to zero")
}

func TestPacket_ICMPv4EchoRequest_fieldsAndLength(t *testing.T) {
	t.Parallel()

	b := ICMPv4EchoRequest(0xBEEF, 7)
	require.Equal(t, 8+icmpEchoPayloadLen, len(b))
	require.Equal(t, byte(8), b[0], "type = echo request")
	require.Equal(t, byte(0), b[1], "code = 0")
}

func TestPacket_ICMPv6Checksum_selfVerifies(t *testing.T) {
	t.Parallel()

	msg := ICMPv6EchoRequest(1, 1)
	var src, dst [16]byte
	copy(src[:], net.ParseIP("2001:db8::1").To16())
	copy(dst[:], net.ParseIP("2001:db8::2").To16())
	ICMPv6Checksum(msg, src, dst)

	pseudo := ipv6PseudoHeader(src, dst, 58, uint32(len(msg)))
	require.Equal(t, uint16(0), checksumWithPseudoHeader(pseudo, msg))
}

func TestPacket_NDNeighborSolicitation_shape(t *testing.T) {
	t.Parallel()

	var target [16]byte
	copy(target[:], net.ParseIP("2001:db8::5").To16())
	mac := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	b := NDNeighborSolicitation(target, mac)
	require.Equal(t, byte(135), b[0])
	require.Equal(t, target[:], b[8:24])
	require.Equal(t, byte(1), b[24], "SLLA option type")
	require.Equal(t, mac[:], b[26:32])
}

func TestPacket_TCPv4Segment_checksumVerifies(t *testing.T) {
	t.Parallel()

	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	seg := TCPv4Segment(src, dst, 80, TCPFlagACK)
	require.Equal(t, uint16(80), uint16(seg[2])<<8|uint16(seg[3]))

	pseudo := ipv4PseudoHeader(src, dst, 6, uint16(len(seg)))
	require.Equal(t, uint16(0), checksumWithPseudoHeader(pseudo, seg))
}

func TestPacket_TCPv6Segment_checksumVerifies(t *testing.T) {
	t.Parallel()

	var src, dst [16]byte
	copy(src[:], net.ParseIP("2001:db8::1").To16())
	copy(dst[:], net.ParseIP("2001:db8::2").To16())

	seg := TCPv6Segment(src, dst, 443, TCPFlagSYN)
	require.NotZero(t, seg[13]&byte(TCPFlagSYN))

	pseudo := ipv6PseudoHeader(src, dst, 6, uint32(len(seg)))
	require.Equal(t, uint16(0), checksumWithPseudoHeader(pseudo, seg))
}

func TestPacket_BuildIPv4Header_checksumVerifies(t *testing.T) {
	t.Parallel()

	src := [4]byte{192, 168, 1, 1}
	dst := [4]byte{192, 168, 1, 2}
	h := BuildIPv4Header(src, dst, 6, 20, 42)
	require.Equal(t, uint16(0), InternetChecksum(h))
	require.Equal(t, byte(0x45), h[0])
}

func TestPacket_ARPRequest_roundTripsThroughParseARPReply(t *testing.T) {
	t.Parallel()

	srcMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	srcIP := net.ParseIP("10.0.0.1")
	dstIP := net.ParseIP("10.0.0.2")

	frame, err := ARPRequest(srcMAC, srcIP, dstIP)
	require.NoError(t, err)
	require.NotEmpty(t, frame)

	// A request is not a reply: ParseARPReply must reject it (wrong Operation).
	_, ok := ParseARPReply(frame)
	require.False(t, ok)
}

func TestPacket_ParseARPReply_acceptsWellFormedReply(t *testing.T) {
	t.Parallel()

	replyMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	replyIP := net.ParseIP("10.0.0.2").To4()
	askerMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	askerIP := net.ParseIP("10.0.0.1").To4()

	eth := layers.Ethernet{SrcMAC: replyMAC, DstMAC: askerMAC, EthernetType: layers.EthernetTypeARP}
	arp := layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPReply,
		SourceHwAddress: []byte(replyMAC), SourceProtAddress: []byte(replyIP),
		DstHwAddress: []byte(askerMAC), DstProtAddress: []byte(askerIP),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp))

	parsed, ok := ParseARPReply(buf.Bytes())
	require.True(t, ok)
	require.True(t, parsed.SenderIP.Equal(replyIP))
	require.Equal(t, replyMAC, parsed.SenderHW)
}
