//go:build !linux

package netlink

import (
	"errors"
	"net"
)

type kernelRouteGetter struct{}

func newKernelRouteGetter() routeGetter { return kernelRouteGetter{} }

func (kernelRouteGetter) RouteGet(net.IP) ([]Route, error) {
	return nil, errors.New("netlink: route lookup is only implemented on linux")
}
