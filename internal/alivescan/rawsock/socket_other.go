//go:build !linux

package rawsock

import "errors"

// NewSocket is only implemented on Linux: raw AF_PACKET/AF_INET/AF_INET6 sockets and the
// ioctls this engine relies on (IP_HDRINCL, SockaddrLinklayer) are Linux-specific, the same
// constraint doublezero's uping tool carries (its sender/listener are //go:build linux).
func NewSocket() Socket {
	return &unimplementedSocket{}
}

type unimplementedSocket struct{}

func (s *unimplementedSocket) Open(kind SocketKind) (Handle, error) {
	return 0, &unimplementedError{kind}
}
func (s *unimplementedSocket) Send(Handle, Dest, []byte) (int, error) {
	return 0, errors.New("rawsock: unimplemented on this platform")
}
func (s *unimplementedSocket) Close(Handle) error { return nil }
func (s *unimplementedSocket) CloseAll() error    { return nil }

type unimplementedError struct{ kind SocketKind }

func (e *unimplementedError) Error() string {
	return "rawsock: raw sockets are only implemented on linux (kind " + e.kind.String() + ")"
}
