// Package netcfg applies the "net" object: interfaces and their
// addresses, gateways, and the resolver configuration.
package netcfg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/platform"
	"github.com/psaab/bootcfg/pkg/schema"
)

var (
	ErrTooManyNameservers = errors.New("too many nameservers")
	ErrTooManySearch      = errors.New("too many search domains")
	ErrLineTooLong        = errors.New("resolver line too long")
)

// Options tune the translator.
type Options struct {
	// EtcDir receives resolv.conf. Defaults to /etc.
	EtcDir string

	// LenientPrefixLen accepts prefix lengths with trailing garbage
	// ("24abc" is 24, "abc" is 0) for documents written against the
	// legacy atoi parse. By default such values are fatal.
	LenientPrefixLen bool
}

// System is the subset of platform capabilities the translator uses.
type System interface {
	platform.Network
	Mkdir(path string, perm fs.FileMode) error
	WriteFile(path string, data []byte, perm fs.FileMode) error
}

// Translator applies "net" sub-objects through a System.
type Translator struct {
	sys  System
	diag *schema.Diagnostics
	opts Options
}

// New returns a Translator.
func New(sys System, diag *schema.Diagnostics, opts Options) *Translator {
	if opts.EtcDir == "" {
		opts.EtcDir = "/etc"
	}
	return &Translator{sys: sys, diag: diag, opts: opts}
}

// Table returns the "net" handlers in execution order.
func (t *Translator) Table() schema.Table {
	return schema.Table{
		{Name: "interfaces", Apply: t.handleInterfaces},
		{Name: "gateways", Apply: t.handleGateways},
		{Name: "dns", Apply: t.handleDNS},
	}
}

func (t *Translator) handleInterfaces(ctx context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}
	for _, iface := range m.Value.Members {
		if err := t.configureInterface(ctx, iface, loc); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) configureInterface(ctx context.Context, m config.Member, loc string) error {
	ifname := m.Name
	loc = schema.Join(loc, ifname)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}

	var create bool
	var addrs *config.Node
	for _, f := range m.Value.Members {
		switch f.Name {
		case "create":
			if err := schema.Expect(f.Value, config.KindBool, schema.Join(loc, f.Name)); err != nil {
				return err
			}
			create = f.Value.Bool
		case "addrs":
			if err := schema.Expect(f.Value, config.KindArray, schema.Join(loc, f.Name)); err != nil {
				return err
			}
			addrs = f.Value
		default:
			t.diag.Warn(loc, f.Name, "unexpected key, ignored")
		}
	}

	if create {
		if err := t.sys.CreateInterface(ctx, ifname); err != nil {
			return fmt.Errorf("%s: ifcreate failed: %w", loc, err)
		}
	}
	if addrs == nil {
		t.diag.Warn(loc, "", "no addresses configured for interface")
		return nil
	}

	for i, a := range addrs.Elems {
		spec, err := t.parseAddress(a, fmt.Sprintf("%s.addrs[%d]", loc, i))
		if err != nil {
			return err
		}
		if err := t.configureAddress(ctx, ifname, spec, fmt.Sprintf("%s.addrs[%d]", loc, i)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) handleGateways(ctx context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindArray, loc); err != nil {
		return err
	}
	for i, g := range m.Value.Elems {
		gloc := fmt.Sprintf("%s[%d]", loc, i)
		fields, err := stringFields(t.diag, g, gloc, "type", "addr")
		if err != nil {
			return err
		}
		typ, addr := fields["type"], fields["addr"]
		if typ == "" || addr == "" {
			return fmt.Errorf("%s: missing type/addr", gloc)
		}
		switch Family(typ) {
		case Inet:
			err = t.sys.GatewayIPv4(ctx, addr)
		case Inet6:
			err = t.sys.GatewayIPv6(ctx, addr)
		default:
			return fmt.Errorf("%s: gateway type %q not supported", gloc, typ)
		}
		if err != nil {
			return fmt.Errorf("%s: gw %q addition failed: %w", gloc, addr, err)
		}
	}
	return nil
}

// stringFields collects the named string members of obj. Members with
// other names warn; a present member that is not a string is fatal.
func stringFields(d *schema.Diagnostics, obj *config.Node, loc string, names ...string) (map[string]string, error) {
	if err := schema.Expect(obj, config.KindObject, loc); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, m := range obj.Members {
		known := false
		for _, n := range names {
			if m.Name == n {
				known = true
				break
			}
		}
		if !known {
			d.Warn(loc, m.Name, "unexpected key, ignored")
			continue
		}
		s, err := schema.ExpectString(m.Value, schema.Join(loc, m.Name))
		if err != nil {
			return nil, err
		}
		out[m.Name] = s
	}
	return out, nil
}

// parsePrefixLen parses the part after "/" of an address. Lenient mode
// takes the leading decimal digits and yields 0 when there are none.
func parsePrefixLen(s string, lenient bool) (int, error) {
	if lenient {
		return legacyAtoi(s), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("invalid prefix length %q", s)
	}
	return n, nil
}

// legacyAtoi mimics C atoi: optional leading blanks and sign, then
// digits up to the first non-digit.
func legacyAtoi(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<20 {
			break
		}
	}
	if neg {
		return -n
	}
	return n
}
