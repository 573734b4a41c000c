// Package packet builds the immutable byte sequences the raw socket layer sends: ICMPv4/
// ICMPv6 echo requests, IPv6 neighbor solicitations, TCPv4/TCPv6 probe segments, and
// Ethernet+ARP request frames. Checksums are computed here so callers never touch raw
// buffers.
package packet

import "encoding/binary"

// InternetChecksum computes the standard Internet one's-complement checksum over b, the
// same algorithm doublezero's uping sender/listener use for ICMPv4 and IPv4 header
// checksums (onesComplement16 / icmpChecksum), generalized here to also cover TCP and
// ICMPv6 pseudo-header sums.
func InternetChecksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// checksumWithPseudoHeader computes InternetChecksum over pseudoHeader followed by payload,
// copying both into one combined buffer first.
func checksumWithPseudoHeader(pseudoHeader, payload []byte) uint16 {
	buf := make([]byte, 0, len(pseudoHeader)+len(payload))
	buf = append(buf, pseudoHeader...)
	buf = append(buf, payload...)
	return InternetChecksum(buf)
}

// ipv4PseudoHeader builds the 12-byte IPv4 pseudo-header used by TCP/UDP checksums.
func ipv4PseudoHeader(src, dst [4]byte, protocol uint8, length uint16) []byte {
	h := make([]byte, 12)
	copy(h[0:4], src[:])
	copy(h[4:8], dst[:])
	h[8] = 0
	h[9] = protocol
	binary.BigEndian.PutUint16(h[10:12], length)
	return h
}

// ipv6PseudoHeader builds the 40-byte IPv6 pseudo-header used by TCP/ICMPv6 checksums.
func ipv6PseudoHeader(src, dst [16]byte, nextHeader uint8, length uint32) []byte {
	h := make([]byte, 40)
	copy(h[0:16], src[:])
	copy(h[16:32], dst[:])
	binary.BigEndian.PutUint32(h[32:36], length)
	h[36], h[37], h[38] = 0, 0, 0
	h[39] = nextHeader
	return h
}
