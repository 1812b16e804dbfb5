package netcfg

import (
	"context"
	"fmt"
	"strings"

	"github.com/psaab/bootcfg/pkg/config"
)

// Family is an address family name as written in documents.
type Family string

const (
	Inet  Family = "inet"
	Inet6 Family = "inet6"
)

// Method is how an address gets configured.
type Method string

const (
	MethodDHCP   Method = "dhcp"   // inet only
	MethodAuto   Method = "auto"   // inet6 only
	MethodStatic Method = "static" // both
)

// AddressSpec is one validated "addrs" element.
type AddressSpec struct {
	Family    Family
	Method    Method
	Addr      string // without the prefix length
	PrefixLen int
}

func (a AddressSpec) String() string {
	if a.Method != MethodStatic {
		return fmt.Sprintf("%s %s", a.Family, a.Method)
	}
	return fmt.Sprintf("%s %s/%d", a.Family, a.Addr, a.PrefixLen)
}

func (f Family) bits() int {
	if f == Inet6 {
		return 128
	}
	return 32
}

func (t *Translator) parseAddress(n *config.Node, loc string) (AddressSpec, error) {
	fields, err := stringFields(t.diag, n, loc, "type", "method", "addr")
	if err != nil {
		return AddressSpec{}, err
	}
	typ, hasType := fields["type"]
	method, hasMethod := fields["method"]
	if !hasType || !hasMethod {
		return AddressSpec{}, fmt.Errorf("%s: missing type/method", loc)
	}

	spec := AddressSpec{Family: Family(typ), Method: Method(method)}
	switch spec.Family {
	case Inet:
		if spec.Method != MethodDHCP && spec.Method != MethodStatic {
			return AddressSpec{}, fmt.Errorf("%s: method \"static\" or \"dhcp\" expected, got %q", loc, method)
		}
	case Inet6:
		if spec.Method != MethodAuto && spec.Method != MethodStatic {
			return AddressSpec{}, fmt.Errorf("%s: method \"static\" or \"auto\" expected, got %q", loc, method)
		}
	default:
		return AddressSpec{}, fmt.Errorf("%s: address type %q not supported", loc, typ)
	}
	if spec.Method != MethodStatic {
		return spec, nil
	}

	cidr, ok := fields["addr"]
	if !ok {
		return AddressSpec{}, fmt.Errorf("%s: missing \"addr\"", loc)
	}
	addr, plen, err := splitCIDR(cidr, t.opts.LenientPrefixLen)
	if err != nil {
		return AddressSpec{}, fmt.Errorf("%s: invalid \"addr\" %q: %w", loc, cidr, err)
	}
	if bits := spec.Family.bits(); !t.opts.LenientPrefixLen && plen > bits {
		return AddressSpec{}, fmt.Errorf("%s: invalid \"addr\" %q: prefix length %d out of range 0-%d", loc, cidr, plen, bits)
	}
	spec.Addr, spec.PrefixLen = addr, plen
	return spec, nil
}

// splitCIDR splits "address/prefixlen" on the first "/".
func splitCIDR(cidr string, lenient bool) (string, int, error) {
	addr, mask, ok := strings.Cut(cidr, "/")
	if !ok {
		return "", 0, fmt.Errorf("no prefix length")
	}
	plen, err := parsePrefixLen(mask, lenient)
	if err != nil {
		return "", 0, err
	}
	return addr, plen, nil
}

func (t *Translator) configureAddress(ctx context.Context, ifname string, a AddressSpec, loc string) error {
	var err error
	switch {
	case a.Family == Inet && a.Method == MethodDHCP:
		if err = t.sys.DHCPv4(ctx, ifname); err != nil {
			return fmt.Errorf("%s: configuring dhcp failed: %w", loc, err)
		}
		return nil
	case a.Family == Inet6 && a.Method == MethodAuto:
		if err = t.sys.AutoIPv6(ctx, ifname); err != nil {
			return fmt.Errorf("%s: ipv6 autoconfig failed: %w", loc, err)
		}
		return nil
	case a.Family == Inet:
		err = t.sys.StaticIPv4(ctx, ifname, a.Addr, a.PrefixLen)
	default:
		err = t.sys.StaticIPv6(ctx, ifname, a.Addr, a.PrefixLen)
	}
	if err != nil {
		return fmt.Errorf("%s: ifconfig \"%s/%d\" failed: %w", loc, a.Addr, a.PrefixLen, err)
	}
	return nil
}
