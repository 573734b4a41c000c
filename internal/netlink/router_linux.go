//go:build linux

package netlink

import (
	"net"

	nl "github.com/vishvananda/netlink"
)

type kernelRouteGetter struct{}

func newKernelRouteGetter() routeGetter { return kernelRouteGetter{} }

func (kernelRouteGetter) RouteGet(dst net.IP) ([]Route, error) {
	nlRoutes, err := nl.RouteGet(dst)
	if err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(nlRoutes))
	for _, r := range nlRoutes {
		routes = append(routes, Route{LinkIndex: r.LinkIndex, Src: r.Src, Gw: r.Gw})
	}
	return routes, nil
}
