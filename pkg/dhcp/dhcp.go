// Package dhcp implements the one-shot DHCPv4 exchange used for
// interfaces configured with "method": "dhcp". The lease is applied
// once; it is not renewed after boot.
package dhcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"github.com/vishvananda/netlink"

	"github.com/psaab/bootcfg/pkg/routing"
)

// DefaultTimeout bounds a single DORA exchange.
const DefaultTimeout = 30 * time.Second

// Lease holds the result of a DHCP negotiation.
type Lease struct {
	Interface string
	Address   netip.Prefix
	Gateway   netip.Addr
	DNS       []netip.Addr
	LeaseTime time.Duration
	Obtained  time.Time
}

// Client runs DHCPv4 exchanges and applies the resulting leases.
type Client struct {
	nlHandle *netlink.Handle
	timeout  time.Duration
}

// New creates a DHCP client. A zero timeout selects DefaultTimeout.
func New(timeout time.Duration) (*Client, error) {
	nlh, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("netlink handle: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{nlHandle: nlh, timeout: timeout}, nil
}

// Close releases the netlink handle.
func (c *Client) Close() {
	if c.nlHandle != nil {
		c.nlHandle.Close()
	}
}

// Oneshot brings ifaceName up, performs one DORA exchange, assigns the
// leased address and, when the server offers a router, installs a
// default route through it.
func (c *Client) Oneshot(ctx context.Context, ifaceName string) (*Lease, error) {
	link, err := c.nlHandle.LinkByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("link lookup %s: %w", ifaceName, err)
	}
	if err := c.nlHandle.LinkSetUp(link); err != nil {
		return nil, fmt.Errorf("set %s up: %w", ifaceName, err)
	}

	slog.Info("DHCPv4: starting discovery", "interface", ifaceName)
	lease, err := c.exchange(ctx, ifaceName)
	if err != nil {
		return nil, err
	}

	if err := c.apply(link, lease); err != nil {
		return nil, err
	}

	slog.Info("DHCPv4: lease obtained",
		"interface", ifaceName,
		"address", lease.Address,
		"gateway", lease.Gateway,
		"lease_time", lease.LeaseTime)
	return lease, nil
}

// exchange performs a single DORA exchange.
func (c *Client) exchange(ctx context.Context, ifaceName string) (*Lease, error) {
	client, err := nclient4.New(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("create DHCPv4 client: %w", err)
	}
	defer client.Close()

	exCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dhcpLease, err := client.Request(exCtx)
	if err != nil {
		return nil, fmt.Errorf("DHCPv4 request: %w", err)
	}
	return leaseFromACK(ifaceName, dhcpLease.ACK, time.Now())
}

// leaseFromACK extracts lease parameters from a DHCPACK.
func leaseFromACK(ifaceName string, ack *dhcpv4.DHCPv4, now time.Time) (*Lease, error) {
	yourIP := ack.YourIPAddr
	if yourIP == nil || yourIP.IsUnspecified() {
		return nil, fmt.Errorf("no IP in DHCP ACK")
	}

	mask := ack.SubnetMask()
	if mask == nil {
		mask = net.CIDRMask(24, 32) // fallback
	}
	ones, _ := net.IPMask(mask).Size()

	addr, ok := netip.AddrFromSlice(yourIP.To4())
	if !ok {
		return nil, fmt.Errorf("invalid IP in DHCP ACK: %v", yourIP)
	}

	lease := &Lease{
		Interface: ifaceName,
		Address:   netip.PrefixFrom(addr, ones),
		Obtained:  now,
	}

	if routers := ack.Router(); len(routers) > 0 {
		if gw, ok := netip.AddrFromSlice(routers[0].To4()); ok {
			lease.Gateway = gw
		}
	}

	for _, dns := range ack.DNS() {
		if a, ok := netip.AddrFromSlice(dns.To4()); ok {
			lease.DNS = append(lease.DNS, a)
		}
	}

	lease.LeaseTime = ack.IPAddressLeaseTime(3600 * time.Second) // default 1 hour
	return lease, nil
}

// apply sets the leased address on the link and installs the default route.
func (c *Client) apply(link netlink.Link, lease *Lease) error {
	addr, route := leaseConfig(link.Attrs().Index, lease)
	if err := c.nlHandle.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("addr replace: %w", err)
	}
	if route == nil {
		return nil
	}
	if err := c.nlHandle.RouteReplace(route); err != nil {
		return fmt.Errorf("default route via %s: %w", lease.Gateway, err)
	}
	return nil
}

// leaseConfig returns the netlink address of lease and, when the lease
// names a router, the default route through it on link index.
func leaseConfig(index int, lease *Lease) (*netlink.Addr, *netlink.Route) {
	addr := &netlink.Addr{IPNet: routing.PrefixToIPNet(lease.Address)}
	if !lease.Gateway.IsValid() {
		return addr, nil
	}
	route := routing.DefaultRoute(lease.Gateway)
	route.LinkIndex = index
	return addr, route
}
