package alivescan

import "net"

// CanonicalAddr returns the textual key used throughout the engine for addr: dotted-quad
// for IPv4, lowercase colon-hex for IPv6, with IPv4-mapped IPv6 (::ffff:0:0/96) collapsed
// to its IPv4 form. Returns "" if addr is nil or cannot be parsed.
func CanonicalAddr(addr net.IP) string {
	if addr == nil {
		return ""
	}
	if v4 := addr.To4(); v4 != nil {
		return v4.String()
	}
	if len(addr) != net.IPv6len {
		return ""
	}
	return addr.String()
}

// ParseCanonicalAddr parses s (as produced by net.IP.String, in either v4 or v6 form) and
// returns its canonical key.
func ParseCanonicalAddr(s string) (string, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return "", false
	}
	return CanonicalAddr(ip), true
}

// IsIPv6 reports whether addr's canonical form is IPv6 (i.e. it did not collapse to IPv4).
func IsIPv6(addr net.IP) bool {
	if addr == nil {
		return false
	}
	return addr.To4() == nil
}
