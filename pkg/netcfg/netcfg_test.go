package netcfg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/platform"
	"github.com/psaab/bootcfg/pkg/schema"
)

func apply(t *testing.T, opts Options, doc string) (*platform.Recorder, *schema.Diagnostics, error) {
	t.Helper()
	n, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rec := platform.NewRecorder()
	diag := schema.NewDiagnostics(nil)
	tr := New(rec, diag, opts)
	err = schema.Dispatch(context.Background(), diag, n, tr.Table(), "net")
	return rec, diag, err
}

func TestStaticIPv4(t *testing.T) {
	rec, _, err := apply(t, Options{}, `{"interfaces": {"vioif0": {"addrs": [
		{"type": "inet", "method": "static", "addr": "10.0.0.5/24"}
	]}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"inet vioif0 10.0.0.5 24"}, rec.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestNetTableOrder(t *testing.T) {
	// dns and gateways precede interfaces in the document but not in
	// the applied order.
	rec, _, err := apply(t, Options{EtcDir: "/etc"}, `{
		"dns": {"nameservers": ["10.0.0.1"]},
		"gateways": [{"type": "inet", "addr": "10.0.0.1"}, {"type": "inet6", "addr": "fe80::1"}],
		"interfaces": {
			"vioif0": {"addrs": [{"type": "inet", "method": "dhcp"}, {"type": "inet6", "method": "auto"}]},
			"tun0": {"create": true, "addrs": [{"type": "inet6", "method": "static", "addr": "2001:db8::5/64"}]}
		}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"dhcp4 vioif0",
		"auto6 vioif0",
		"ifcreate tun0",
		"inet6 tun0 2001:db8::5 64",
		"gw 10.0.0.1",
		"gw6 fe80::1",
		"mkdir /etc",
		"write /etc/resolv.conf",
	}
	if diff := cmp.Diff(want, rec.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestInterfaceWarnings(t *testing.T) {
	rec, diag, err := apply(t, Options{}, `{"interfaces": {"lo0": {"mtu": 1500}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("unexpected calls: %v", rec.Ops())
	}
	var msgs []string
	for _, w := range diag.Warnings() {
		msgs = append(msgs, w.String())
	}
	want := []string{
		`net.interfaces.lo0: "mtu": unexpected key, ignored`,
		"net.interfaces.lo0: no addresses configured for interface",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateFalse(t *testing.T) {
	rec, _, err := apply(t, Options{}, `{"interfaces": {"vioif0": {"create": false, "addrs": []}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("unexpected calls: %v", rec.Ops())
	}
}

func TestNetErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"create not bool", `{"interfaces":{"a":{"create":"yes"}}}`, "net.interfaces.a.create: expected BOOLEAN, got STRING"},
		{"addrs not array", `{"interfaces":{"a":{"addrs":{}}}}`, "expected ARRAY"},
		{"missing method", `{"interfaces":{"a":{"addrs":[{"type":"inet"}]}}}`, "net.interfaces.a.addrs[0]: missing type/method"},
		{"bad family", `{"interfaces":{"a":{"addrs":[{"type":"ipx","method":"static"}]}}}`, `address type "ipx" not supported`},
		{"inet auto", `{"interfaces":{"a":{"addrs":[{"type":"inet","method":"auto"}]}}}`, `method "static" or "dhcp" expected, got "auto"`},
		{"inet6 dhcp", `{"interfaces":{"a":{"addrs":[{"type":"inet6","method":"dhcp"}]}}}`, `method "static" or "auto" expected, got "dhcp"`},
		{"static no addr", `{"interfaces":{"a":{"addrs":[{"type":"inet","method":"static"}]}}}`, `missing "addr"`},
		{"static no slash", `{"interfaces":{"a":{"addrs":[{"type":"inet","method":"static","addr":"10.0.0.1"}]}}}`, `invalid "addr" "10.0.0.1"`},
		{"static bad plen", `{"interfaces":{"a":{"addrs":[{"type":"inet","method":"static","addr":"10.0.0.1/24x"}]}}}`, `invalid prefix length "24x"`},
		{"static plen out of range", `{"interfaces":{"a":{"addrs":[{"type":"inet","method":"static","addr":"10.0.0.1/33"}]}}}`, "out of range 0-32"},
		{"gateway missing addr", `{"gateways":[{"type":"inet"}]}`, "net.gateways[0]: missing type/addr"},
		{"gateway bad type", `{"gateways":[{"type":"ipx","addr":"1"}]}`, `gateway type "ipx" not supported`},
		{"gateways not array", `{"gateways":{}}`, "net.gateways: expected ARRAY"},
		{"dns not object", `{"dns":[]}`, "net.dns: expected OBJECT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := apply(t, Options{}, tt.doc)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("err = %q, want it to contain %q", err, tt.msg)
			}
		})
	}
}

func TestCapabilityFailure(t *testing.T) {
	n, _ := config.Parse([]byte(`{"gateways":[{"type":"inet","addr":"10.0.0.1"}]}`))
	rec := platform.NewRecorder()
	boom := errors.New("network unreachable")
	rec.FailOn("gw", "", boom)
	diag := schema.NewDiagnostics(nil)
	err := schema.Dispatch(context.Background(), diag, n, New(rec, diag, Options{}).Table(), "net")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped capability error", err)
	}
	if !strings.Contains(err.Error(), `gw "10.0.0.1" addition failed`) {
		t.Errorf("err = %q", err)
	}
}

func TestPrefixLen(t *testing.T) {
	tests := []struct {
		in      string
		lenient bool
		want    int
		wantErr bool
	}{
		{"24", false, 24, false},
		{"0", false, 0, false},
		{"24abc", false, 0, true},
		{"", false, 0, true},
		{"-1", false, 0, true},
		{"+8", false, 0, true},
		{"24abc", true, 24, false},
		{"abc", true, 0, false},
		{"", true, 0, false},
		{" 16", true, 16, false},
	}
	for _, tt := range tests {
		got, err := parsePrefixLen(tt.in, tt.lenient)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePrefixLen(%q, %v) err = %v", tt.in, tt.lenient, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePrefixLen(%q, %v) = %d, want %d", tt.in, tt.lenient, got, tt.want)
		}
	}
}

func TestLenientStaticAddress(t *testing.T) {
	rec, _, err := apply(t, Options{LenientPrefixLen: true}, `{"interfaces": {"a": {"addrs": [
		{"type": "inet", "method": "static", "addr": "10.0.0.5/x"}
	]}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"inet a 10.0.0.5 0"}, rec.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitCIDRFirstSlash(t *testing.T) {
	addr, plen, err := splitCIDR("10.0.0.1/8/9", true)
	if err != nil {
		t.Fatal(err)
	}
	if addr != "10.0.0.1" || plen != 8 {
		t.Errorf("splitCIDR = %q, %d", addr, plen)
	}
}
