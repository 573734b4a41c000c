//go:build linux

package rawsock

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// socketFD opens one AF_PACKET/AF_INET/AF_INET6 socket per requested SocketKind, mirroring
// doublezero's uping.sender/uping.listener raw-socket setup (IP_HDRINCL for the sends that
// build their own IPv4 header, plain raw sockets where the kernel injects the header).
type socketFD struct {
	kind SocketKind
	fd   int
}

type linuxSocket struct {
	mu      sync.Mutex
	handles map[Handle]*socketFD
	next    Handle
}

// NewSocket returns a Socket backed by Linux raw sockets. CAP_NET_RAW (or root) is required.
func NewSocket() Socket {
	return &linuxSocket{handles: make(map[Handle]*socketFD)}
}

func (s *linuxSocket) Open(kind SocketKind) (Handle, error) {
	fd, err := openKind(kind)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := s.next
	s.handles[h] = &socketFD{kind: kind, fd: fd}
	return h, nil
}

func openKind(kind SocketKind) (int, error) {
	switch kind {
	case ICMPv4:
		return unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	case ICMPv6:
		return unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_ICMPV6)
	case TCPv4:
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_TCP)
		if err != nil {
			return 0, err
		}
		// We build our own IPv4 header for TCP probes; ask the kernel not to build
		// one for us.
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
			_ = unix.Close(fd)
			return 0, fmt.Errorf("enable IP_HDRINCL: %w", err)
		}
		return fd, nil
	case TCPv6:
		// Kernel injects the IPv6 header; no HDRINCL equivalent needed.
		return unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_TCP)
	case UDPv4:
		return unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	case UDPv6:
		return unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	case ARPv4:
		return unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ARP))
	case NDv6:
		return unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_ICMPV6)
	default:
		return 0, fmt.Errorf("unknown socket kind %v", kind)
	}
}

func htons(v int) int {
	return int(uint16(v)<<8 | uint16(v)>>8)
}

func (s *linuxSocket) Send(h Handle, dst Dest, b []byte) (int, error) {
	s.mu.Lock()
	sfd, ok := s.handles[h]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("rawsock: unknown handle %v", h)
	}

	sa, err := sockaddrFor(sfd.kind, dst)
	if err != nil {
		return 0, err
	}

	written := 0
	for written < len(b) {
		n, err := send(sfd.fd, b[written:], sa)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return written, err
		}
		if n <= 0 {
			return written, fmt.Errorf("rawsock: short write (%d bytes)", n)
		}
		written += n
	}
	return written, nil
}

func send(fd int, b []byte, sa unix.Sockaddr) (int, error) {
	if sa == nil {
		if err := unix.Send(fd, b, 0); err != nil {
			return 0, err
		}
		return len(b), nil
	}
	if err := unix.Sendto(fd, b, 0, sa); err != nil {
		return 0, err
	}
	return len(b), nil
}

func sockaddrFor(kind SocketKind, dst Dest) (unix.Sockaddr, error) {
	switch kind {
	case ICMPv4, TCPv4, UDPv4:
		v4 := dst.IP.To4()
		if v4 == nil {
			return nil, fmt.Errorf("rawsock: destination %s is not IPv4 for %s", dst.IP, kind)
		}
		return &unix.SockaddrInet4{Addr: [4]byte{v4[0], v4[1], v4[2], v4[3]}}, nil
	case ICMPv6, TCPv6, UDPv6, NDv6:
		v6 := dst.IP.To16()
		if v6 == nil || dst.IP.To4() != nil {
			return nil, fmt.Errorf("rawsock: destination %s is not IPv6 for %s", dst.IP, kind)
		}
		var addr [16]byte
		copy(addr[:], v6)
		return &unix.SockaddrInet6{Addr: addr, ZoneId: uint32(dst.Iface)}, nil
	case ARPv4:
		sa := &unix.SockaddrLinklayer{
			Ifindex:  dst.Iface,
			Protocol: htons(unix.ETH_P_ARP),
			Halen:    6,
		}
		copy(sa.Addr[:6], dst.HWAddr)
		return sa, nil
	default:
		return nil, fmt.Errorf("rawsock: unknown kind %v", kind)
	}
}

func (s *linuxSocket) Close(h Handle) error {
	s.mu.Lock()
	sfd, ok := s.handles[h]
	if ok {
		delete(s.handles, h)
	}
	s.mu.Unlock()
	if !ok {
		return nil // idempotent: already closed or never opened
	}
	return unix.Close(sfd.fd)
}

func (s *linuxSocket) CloseAll() error {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := s.Close(h); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &CleanupErrs{Errs: errs}
}

