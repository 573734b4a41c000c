// Package netlink resolves the egress interface and source address the raw socket layer
// needs to reach a destination, adapted from doublezero's global-monitor/internal/netlink
// and client/doublezerod/internal/routing packages (both thin wrappers over
// github.com/vishvananda/netlink).
package netlink

import (
	"fmt"
	"net"

	"github.com/netreach/alivescan/internal/alivescan/rawsock"
)

// Router satisfies rawsock.Router using the kernel routing table.
type Router struct {
	impl routeGetter
}

// routeGetter is the single vishvananda/netlink call this package depends on; it is an
// interface so tests can substitute a fake routing table without a real kernel/namespace.
type routeGetter interface {
	RouteGet(dst net.IP) ([]Route, error)
}

// Route mirrors the fields of vishvananda/netlink's Route that this package consumes.
type Route struct {
	LinkIndex int
	Src       net.IP
	Gw        net.IP
}

// NewRouter returns a Router backed by the real kernel routing table (Linux only; see
// router_other.go for the stub used on unsupported platforms).
func NewRouter() *Router {
	return &Router{impl: newKernelRouteGetter()}
}

// newRouterWithGetter is used by tests to inject a fake routing table.
func newRouterWithGetter(g routeGetter) *Router {
	return &Router{impl: g}
}

// Route resolves the interface, source address, and (if off-link) gateway used to reach
// dst. The caller fills in src_mac itself via rawsock.ResolveInterfaceMAC once it has the
// interface name.
func (r *Router) Route(dst net.IP) (rawsock.RouteInfo, error) {
	routes, err := r.impl.RouteGet(dst)
	if err != nil {
		return rawsock.RouteInfo{}, fmt.Errorf("netlink: route lookup for %s: %w", dst, err)
	}
	if len(routes) == 0 {
		return rawsock.RouteInfo{}, fmt.Errorf("netlink: no route to %s", dst)
	}
	route := routes[0]

	ifi, err := net.InterfaceByIndex(route.LinkIndex)
	if err != nil {
		return rawsock.RouteInfo{}, fmt.Errorf("netlink: resolve interface %d: %w", route.LinkIndex, err)
	}

	src := route.Src
	if src == nil {
		src, err = preferredSourceFor(ifi, dst)
		if err != nil {
			return rawsock.RouteInfo{}, fmt.Errorf("netlink: no source address on %s for %s: %w", ifi.Name, dst, err)
		}
	}

	return rawsock.RouteInfo{Iface: ifi, Source: src, Gateway: route.Gw}, nil
}

// preferredSourceFor picks the first interface address matching dst's address family, used
// when the kernel route doesn't report a preferred source (e.g. some IPv6 on-link routes).
func preferredSourceFor(ifi *net.Interface, dst net.IP) (net.IP, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	wantV6 := dst.To4() == nil
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		isV6 := ipNet.IP.To4() == nil
		if isV6 == wantV6 {
			return ipNet.IP, nil
		}
	}
	return nil, fmt.Errorf("no address on %s matching address family of %s", ifi.Name, dst)
}
