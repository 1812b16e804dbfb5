package platform

import (
	"fmt"
	"net/netip"
)

// parseAddr parses s as an address of the requested family. An IPv4
// address written in its ::ffff: mapped form counts as IPv4.
func parseAddr(s string, want6 bool) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if want6 != (a.Is6() && !a.Is4In6()) {
		return netip.Addr{}, fmt.Errorf("%s: wrong address family", s)
	}
	return a.Unmap(), nil
}

func parsePrefix(addr string, bits int, want6 bool) (netip.Prefix, error) {
	a, err := parseAddr(addr, want6)
	if err != nil {
		return netip.Prefix{}, err
	}
	p := netip.PrefixFrom(a, bits)
	if !p.IsValid() {
		return netip.Prefix{}, fmt.Errorf("%s/%d: invalid prefix length", addr, bits)
	}
	return p, nil
}
