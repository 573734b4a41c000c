package packet

import (
	"encoding/binary"
)

// icmpEchoPayloadLen matches the original engine's 56-byte filler payload (its content is
// irrelevant to correctness; only the length is load-bearing for a realistic probe size).
const icmpEchoPayloadLen = 56

// ICMPv4EchoRequest builds an ICMPv4 echo request (type 8, code 0) with the given identifier
// and sequence number, and a checksum covering the header and payload.
func ICMPv4EchoRequest(id, seq uint16) []byte {
	b := make([]byte, 8+icmpEchoPayloadLen)
	b[0] = 8 // echo request
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	binary.BigEndian.PutUint16(b[2:4], InternetChecksum(b))
	return b
}

// ICMPv6EchoRequest builds an ICMPv6 echo request (type 128, code 0) body; the caller (or
// the kernel, for unprivileged ICMPv6 sockets) supplies the IPv6 pseudo-header checksum via
// ICMPv6Checksum.
func ICMPv6EchoRequest(id, seq uint16) []byte {
	b := make([]byte, 8+icmpEchoPayloadLen)
	b[0] = 128 // echo request
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	// Checksum filled in by ICMPv6Checksum once src/dst are known.
	return b
}

// ICMPv6Checksum computes and writes the ICMPv6 checksum for msg (an ICMPv6 message body,
// as produced by ICMPv6EchoRequest or NDNeighborSolicitation) given the IPv6 source and
// destination it will be sent with.
func ICMPv6Checksum(msg []byte, src, dst [16]byte) {
	binary.BigEndian.PutUint16(msg[2:4], 0)
	pseudo := ipv6PseudoHeader(src, dst, 58, uint32(len(msg))) // next header = ICMPv6 (58)
	sum := checksumWithPseudoHeader(pseudo, msg)
	binary.BigEndian.PutUint16(msg[2:4], sum)
}

// NDNeighborSolicitation builds an IPv6 neighbor-solicitation ICMPv6 message (type 135) for
// target, with a source-link-layer-address option carrying localMAC. Checksum is left zero;
// call ICMPv6Checksum once src/dst are known.
func NDNeighborSolicitation(target [16]byte, localMAC [6]byte) []byte {
	b := make([]byte, 8+16+8) // header + target address + SLLA option
	b[0] = 135                // neighbor solicitation
	b[1] = 0
	// bytes 4:8 are reserved, left zero
	copy(b[8:24], target[:])
	b[24] = 1 // option type: source link-layer address
	b[25] = 1 // option length, in units of 8 octets
	copy(b[26:32], localMAC[:])
	return b
}
