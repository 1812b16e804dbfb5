// Package routing creates interfaces, assigns addresses and installs
// default routes via netlink.
package routing

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// Manager holds the netlink handle used for link, address and route changes.
type Manager struct {
	nlHandle *netlink.Handle
}

// New creates a new routing Manager.
func New() (*Manager, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("netlink handle: %w", err)
	}
	return &Manager{nlHandle: h}, nil
}

// Close releases the netlink handle.
func (m *Manager) Close() error {
	if m.nlHandle != nil {
		m.nlHandle.Close()
	}
	return nil
}

// CreateInterface creates a dummy interface called name and brings it up.
// An existing link with that name is reused.
func (m *Manager) CreateInterface(name string) error {
	if link, err := m.nlHandle.LinkByName(name); err == nil {
		slog.Debug("interface already exists", "name", name)
		return m.nlHandle.LinkSetUp(link)
	}

	dummy := &netlink.Dummy{
		LinkAttrs: netlink.LinkAttrs{Name: name},
	}
	if err := m.nlHandle.LinkAdd(dummy); err != nil {
		return fmt.Errorf("create interface %s: %w", name, err)
	}
	if err := m.nlHandle.LinkSetUp(dummy); err != nil {
		return fmt.Errorf("set %s up: %w", name, err)
	}
	slog.Info("interface created", "name", name)
	return nil
}

// SetUp brings the named link up.
func (m *Manager) SetUp(name string) error {
	link, err := m.nlHandle.LinkByName(name)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", name, err)
	}
	if err := m.nlHandle.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", name, err)
	}
	return nil
}

// AddAddress brings the link up and adds prefix to it.
func (m *Manager) AddAddress(name string, prefix netip.Prefix) error {
	link, err := m.nlHandle.LinkByName(name)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", name, err)
	}
	if err := m.nlHandle.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", name, err)
	}
	addr := &netlink.Addr{IPNet: PrefixToIPNet(prefix)}
	if err := m.nlHandle.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("add address %s to %s: %w", prefix, name, err)
	}
	slog.Info("address added", "interface", name, "address", prefix)
	return nil
}

// AddDefaultRoute installs a default route via gw. The address family
// of the route follows gw.
func (m *Manager) AddDefaultRoute(gw netip.Addr) error {
	route := DefaultRoute(gw)
	if err := m.nlHandle.RouteAdd(route); err != nil {
		return fmt.Errorf("add default route via %s: %w", gw, err)
	}
	slog.Info("default route added", "gateway", gw)
	return nil
}

// DefaultRoute builds the netlink route for a default route via gw.
func DefaultRoute(gw netip.Addr) *netlink.Route {
	dst := netip.PrefixFrom(netip.IPv4Unspecified(), 0)
	family := netlink.FAMILY_V4
	if gw.Is6() && !gw.Is4In6() {
		dst = netip.PrefixFrom(netip.IPv6Unspecified(), 0)
		family = netlink.FAMILY_V6
	}
	return &netlink.Route{
		Family: family,
		Dst:    PrefixToIPNet(dst),
		Gw:     net.IP(gw.Unmap().AsSlice()),
	}
}

// PrefixToIPNet converts netip.Prefix to *net.IPNet.
func PrefixToIPNet(p netip.Prefix) *net.IPNet {
	addr := p.Addr()
	bits := p.Bits()
	if addr.Is4() {
		return &net.IPNet{
			IP:   addr.AsSlice(),
			Mask: net.CIDRMask(bits, 32),
		}
	}
	return &net.IPNet{
		IP:   addr.AsSlice(),
		Mask: net.CIDRMask(bits, 128),
	}
}
