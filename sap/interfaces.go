package sap

import (
	"fmt"
	"net"
)

// InterfaceAddr is a named local IPv4 address.
type InterfaceAddr struct {
	Name string
	IP   net.IP
}

// InterfaceLister enumerates local IPv4 addresses. Loopback addresses are not
// included.
type InterfaceLister func() ([]InterfaceAddr, error)

// SystemInterfaces returns the non-loopback IPv4 addresses of the host in
// interface order.
func SystemInterfaces() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []InterfaceAddr
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || ip.IsLoopback() {
				continue
			}
			out = append(out, InterfaceAddr{Name: ifi.Name, IP: ip})
		}
	}
	return out, nil
}

func selectInterface(list []InterfaceAddr, index int) (InterfaceAddr, error) {
	if index < 0 || index >= len(list) {
		return InterfaceAddr{}, fmt.Errorf("%w: index %d of %d", ErrInterfaceNotFound, index, len(list))
	}
	return list[index], nil
}
