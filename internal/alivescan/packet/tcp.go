package packet

import (
	"encoding/binary"
	"math/rand"
)

// TCPFlags mirrors the two probe variants the orchestrator emits: a bare ACK (service
// probe, elicits an RST from any listener) or a SYN (connect probe).
type TCPFlags uint8

const (
	TCPFlagACK TCPFlags = 1 << 4
	TCPFlagSYN TCPFlags = 1 << 1
)

const tcpHeaderLen = 20

// TCPv4Segment builds a minimal (no-options) TCP segment with a randomized source port,
// destined for dstPort, carrying flags, with a checksum computed over the IPv4 pseudo-
// header. seq is arbitrary; the IPv4 header an IP_HDRINCL socket needs is not built here
// -- the caller prepends one from BuildIPv4Header.
func TCPv4Segment(src, dst [4]byte, dstPort uint16, flags TCPFlags) []byte {
	seg := make([]byte, tcpHeaderLen)
	srcPort := uint16(1024 + rand.Intn(64512))
	seq := rand.Uint32()
	binary.BigEndian.PutUint16(seg[0:2], srcPort)
	binary.BigEndian.PutUint16(seg[2:4], dstPort)
	binary.BigEndian.PutUint32(seg[4:8], seq)
	binary.BigEndian.PutUint32(seg[8:12], 0) // ack number, unused
	seg[12] = (tcpHeaderLen / 4) << 4         // data offset, no options
	seg[13] = byte(flags)
	binary.BigEndian.PutUint16(seg[14:16], 65535) // window
	binary.BigEndian.PutUint16(seg[18:20], 0)      // urgent pointer

	pseudo := ipv4PseudoHeader(src, dst, 6, uint16(len(seg))) // protocol = TCP (6)
	binary.BigEndian.PutUint16(seg[16:18], checksumWithPseudoHeader(pseudo, seg))
	return seg
}

// TCPv6Segment builds the IPv6 analogue of TCPv4Segment; the kernel injects the IPv6
// header for these sends, so only the segment is returned.
func TCPv6Segment(src, dst [16]byte, dstPort uint16, flags TCPFlags) []byte {
	seg := make([]byte, tcpHeaderLen)
	srcPort := uint16(1024 + rand.Intn(64512))
	seq := rand.Uint32()
	binary.BigEndian.PutUint16(seg[0:2], srcPort)
	binary.BigEndian.PutUint16(seg[2:4], dstPort)
	binary.BigEndian.PutUint32(seg[4:8], seq)
	binary.BigEndian.PutUint32(seg[8:12], 0)
	seg[12] = (tcpHeaderLen / 4) << 4
	seg[13] = byte(flags)
	binary.BigEndian.PutUint16(seg[14:16], 65535)
	binary.BigEndian.PutUint16(seg[18:20], 0)

	pseudo := ipv6PseudoHeader(src, dst, 6, uint32(len(seg)))
	binary.BigEndian.PutUint16(seg[16:18], checksumWithPseudoHeader(pseudo, seg))
	return seg
}

// BuildIPv4Header builds a minimal 20-byte IPv4 header for HDRINCL sends: version/IHL=5,
// the given protocol and total length, TTL 64, and a computed header checksum. id should be
// a monotonically increasing identifier (the sender orchestrator keeps one per run).
func BuildIPv4Header(src, dst [4]byte, protocol uint8, payloadLen int, id uint16) []byte {
	h := make([]byte, 20)
	h[0] = 0x45 // version 4, IHL 5
	h[1] = 0    // DSCP/ECN
	binary.BigEndian.PutUint16(h[2:4], uint16(20+payloadLen))
	binary.BigEndian.PutUint16(h[4:6], id)
	h[6], h[7] = 0, 0 // flags/fragment offset
	h[8] = 64         // TTL
	h[9] = protocol
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	binary.BigEndian.PutUint16(h[10:12], InternetChecksum(h))
	return h
}
