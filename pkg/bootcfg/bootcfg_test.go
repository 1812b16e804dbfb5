package bootcfg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/platform"
	"github.com/psaab/bootcfg/pkg/sysctl"
)

func newInterpreter(t *testing.T, rec *platform.Recorder, progs ...string) *Interpreter {
	t.Helper()
	var ps []bootplan.Program
	for _, name := range progs {
		ps = append(ps, bootplan.Program{Name: name, Path: "/bin/" + name})
	}
	reg, err := bootplan.NewRegistry(ps...)
	if err != nil {
		t.Fatal(err)
	}
	return New(Options{
		Registry: reg,
		System:   rec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func applyDoc(t *testing.T, in *Interpreter, doc string) (*Result, error) {
	t.Helper()
	n, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return in.Apply(context.Background(), n)
}

const fullDoc = `{
	"netbsd": {"sysctl": {"kern.hostname": "box"}},
	"rc": [{"bin": "hello", "argv": ["hello", "-v"]}],
	"env": {"HOME": "/"},
	"blk": {"ld1a": {"type": "etfs", "path": "disk.img"}},
	"mount": {"/data": {"source": "blk", "path": "/dev/ld1a"}},
	"net": {
		"interfaces": {"vioif0": {"addrs": [{"type": "inet", "method": "static", "addr": "10.0.0.5/24"}]}},
		"gateways": [{"type": "inet", "addr": "10.0.0.1"}]
	}
}`

// reversedDoc holds the same members as fullDoc in reverse order.
const reversedDoc = `{
	"net": {
		"gateways": [{"type": "inet", "addr": "10.0.0.1"}],
		"interfaces": {"vioif0": {"addrs": [{"type": "inet", "method": "static", "addr": "10.0.0.5/24"}]}}
	},
	"mount": {"/data": {"source": "blk", "path": "/dev/ld1a"}},
	"blk": {"ld1a": {"type": "etfs", "path": "disk.img"}},
	"env": {"HOME": "/"},
	"rc": [{"bin": "hello", "argv": ["hello", "-v"]}],
	"netbsd": {"sysctl": {"kern.hostname": "box"}}
}`

func TestRootOrder(t *testing.T) {
	rec := platform.NewRecorder()
	res, err := applyDoc(t, newInterpreter(t, rec, "hello"), fullDoc)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"sysctl kern.hostname box",
		"setenv HOME /",
		"etfs /dev/ld1a disk.img",
		"mkdir /data",
		"mount ffs /dev/ld1a /data",
		"inet vioif0 10.0.0.5 24",
		"gw 10.0.0.1",
	}
	if diff := cmp.Diff(want, rec.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	if res.Plan.Len() != 1 || res.Defaulted {
		t.Errorf("plan = %+v, defaulted = %v", res.Plan.Entries(), res.Defaulted)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestKeyOrderIndependent(t *testing.T) {
	recA, recB := platform.NewRecorder(), platform.NewRecorder()
	resA, err := applyDoc(t, newInterpreter(t, recA, "hello"), fullDoc)
	if err != nil {
		t.Fatal(err)
	}
	resB, err := applyDoc(t, newInterpreter(t, recB, "hello"), reversedDoc)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(recA.Ops(), recB.Ops()); diff != "" {
		t.Errorf("traces differ (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(resA.Plan.Entries(), resB.Plan.Entries()); diff != "" {
		t.Errorf("plans differ (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(resA.Sysctls, resB.Sysctls); diff != "" {
		t.Errorf("sysctls differ (-a +b):\n%s", diff)
	}
}

func TestGlobalSysctls(t *testing.T) {
	rec := platform.NewRecorder()
	res, err := applyDoc(t, newInterpreter(t, rec, "hello"), `{"netbsd": {"sysctl": {"a": "1", "b": true}}}`)
	if err != nil {
		t.Fatal(err)
	}
	want := []sysctl.Assignment{{Key: "a", Value: "1"}, {Key: "b", Value: "1"}}
	if diff := cmp.Diff(want, res.Sysctls); diff != "" {
		t.Errorf("sysctls mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessSysctls(t *testing.T) {
	rec := platform.NewRecorder()
	res, err := applyDoc(t, newInterpreter(t, rec, "hello"),
		`{"rc": [{"bin": "hello", "netbsd": {"sysctl": {"x": "5"}}}]}`)
	if err != nil {
		t.Fatal(err)
	}
	e := res.Plan.Entries()[0]
	want := []sysctl.Assignment{{Key: "proc.curproc.x", Value: "5"}}
	if diff := cmp.Diff(want, e.Sysctls); diff != "" {
		t.Errorf("entry sysctls mismatch (-want +got):\n%s", diff)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("per-process sysctls must not be written globally: %v", rec.Ops())
	}
}

func TestDefaultPlan(t *testing.T) {
	for _, doc := range []string{`{}`, `{"rc": []}`, `{"env": {"A": "b"}}`} {
		t.Run(doc, func(t *testing.T) {
			res, err := applyDoc(t, newInterpreter(t, platform.NewRecorder(), "one", "two"), doc)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Defaulted {
				t.Error("plan not marked as defaulted")
			}
			var got [][]string
			for _, e := range res.Plan.Entries() {
				if e.Mode != bootplan.Foreground {
					t.Errorf("%s: mode = %v", e.Program.Name, e.Mode)
				}
				got = append(got, e.Argv)
			}
			if diff := cmp.Diff([][]string{{"one"}, {"two"}}, got); diff != "" {
				t.Errorf("argv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmptyRegistry(t *testing.T) {
	_, err := applyDoc(t, newInterpreter(t, platform.NewRecorder()), `{}`)
	if !errors.Is(err, bootplan.ErrEmptyRegistry) {
		t.Fatalf("err = %v, want ErrEmptyRegistry", err)
	}
}

func TestPipeLastRejected(t *testing.T) {
	rec := platform.NewRecorder()
	_, err := applyDoc(t, newInterpreter(t, rec, "hello"), `{
		"rc": [{"bin": "hello"}, {"bin": "hello", "runmode": "|"}],
		"env": {"A": "b"}
	}`)
	if !errors.Is(err, bootplan.ErrPipeLast) {
		t.Fatalf("err = %v, want ErrPipeLast", err)
	}
}

func TestNotTransactional(t *testing.T) {
	rec := platform.NewRecorder()
	res, err := applyDoc(t, newInterpreter(t, rec, "hello"), `{
		"rc": [{"bin": "missing"}],
		"netbsd": {"sysctl": {"kern.hostname": "box"}}
	}`)
	if !errors.Is(err, bootplan.ErrUnknownProgram) {
		t.Fatalf("err = %v, want ErrUnknownProgram", err)
	}
	if diff := cmp.Diff([]string{"sysctl kern.hostname box"}, rec.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	if len(res.Sysctls) != 1 {
		t.Errorf("result sysctls = %v, want the one written before the failure", res.Sysctls)
	}
}

func TestEnvLastWriterWins(t *testing.T) {
	rec := platform.NewRecorder()
	_, err := applyDoc(t, newInterpreter(t, rec, "hello"), `{"env": {"A": "1"}, "env": {"A": "2"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Env["A"]; got != "2" {
		t.Errorf("A = %q, want 2", got)
	}
}

func TestEnvErrors(t *testing.T) {
	rec := platform.NewRecorder()
	if _, err := applyDoc(t, newInterpreter(t, rec, "hello"), `{"env": {"A": true}}`); err == nil {
		t.Error("non-string env value accepted")
	}

	rec = platform.NewRecorder()
	rec.FailOn("setenv", "A", errors.New("no space"))
	_, err := applyDoc(t, newInterpreter(t, rec, "hello"), `{"env": {"A": "1"}}`)
	if err == nil || !strings.Contains(err.Error(), "no space") {
		t.Errorf("err = %v, want capability error text", err)
	}
}

func TestUnknownRootKeyWarns(t *testing.T) {
	res, err := applyDoc(t, newInterpreter(t, platform.NewRecorder(), "hello"), `{"bogus": 1}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Key != "bogus" || res.Warnings[0].Loc != "root" {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestRootKeys(t *testing.T) {
	want := []string{"netbsd", "rc", "env", "blk", "mount", "net"}
	if diff := cmp.Diff(want, RootKeys()); diff != "" {
		t.Errorf("root keys mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpretInline(t *testing.T) {
	rec := platform.NewRecorder()
	in := newInterpreter(t, rec, "hello")
	res, err := in.Interpret(context.Background(),
		`console=com0 {"rc": [{"bin": "hello", "runmode": "&"}, {"bin": "hello"}]} quiet`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceInline {
		t.Errorf("source = %s", res.Source)
	}
	es := res.Plan.Entries()
	if len(es) != 2 || es[0].Mode != bootplan.Background || es[1].Mode != bootplan.Foreground {
		t.Errorf("plan = %+v", es)
	}
}

func TestInterpretNoConfig(t *testing.T) {
	res, err := newInterpreter(t, platform.NewRecorder(), "hello").
		Interpret(context.Background(), "console=com0 root=/dev/ld0a")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceNone || !res.Defaulted {
		t.Errorf("source = %s, defaulted = %v", res.Source, res.Defaulted)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != noConfigWarning {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestInterpretSyntaxError(t *testing.T) {
	_, err := newInterpreter(t, platform.NewRecorder(), "hello").
		Interpret(context.Background(), `{"rc": [}`)
	var se *config.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *config.SyntaxError", err)
	}
}

func TestInterpretRootfs(t *testing.T) {
	rec := platform.NewRecorder()
	rec.Files["/rootfs/etc/cfg.json"] = []byte(`{"env": {"FROM": "rootfs"}}`)
	res, err := newInterpreter(t, rec, "hello").
		Interpret(context.Background(), "console=com0 _RUMPRUN_ROOTFSCFG=//etc/cfg.json quiet")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceRootfs {
		t.Errorf("source = %s", res.Source)
	}
	want := []string{
		"mkdir /rootfs",
		"mount ffs /dev/ld0a /rootfs",
		"read /rootfs/etc/cfg.json",
		"setenv FROM rootfs",
	}
	if diff := cmp.Diff(want, rec.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpretRootfsEtfsFallback(t *testing.T) {
	rec := platform.NewRecorder()
	for _, dev := range []string{"/dev/ld0a", "/dev/sd0a"} {
		rec.FailOn("mount", dev, errors.New("no such device"))
	}
	rec.Files["/rootfs/cfg"] = []byte(`{}`)
	_, err := newInterpreter(t, rec, "hello").
		Interpret(context.Background(), "_RUMPRUN_ROOTFSCFG=cfg")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"etfs /dev/rootfs blkfront:sda1",
		"mount ffs /dev/rootfs /rootfs",
	}
	if diff := cmp.Diff(want, rec.OpsOf("etfs", "mount")[6:]); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpretRootfsUnmountable(t *testing.T) {
	rec := platform.NewRecorder()
	rec.FailOn("mount", "", errors.New("no such device"))
	rec.FailOn("etfs", "", errors.New("no host"))
	_, err := newInterpreter(t, rec, "hello").
		Interpret(context.Background(), "_RUMPRUN_ROOTFSCFG=cfg")
	if err == nil || !strings.Contains(err.Error(), "failed to mount /rootfs") {
		t.Fatalf("err = %v", err)
	}
}

func TestInterpretRootfsTooLarge(t *testing.T) {
	rec := platform.NewRecorder()
	rec.Files["/rootfs/cfg"] = []byte(`{"env": {"A": "` + strings.Repeat("x", MaxConfigSize) + `"}}`)
	_, err := newInterpreter(t, rec, "hello").
		Interpret(context.Background(), "_RUMPRUN_ROOTFSCFG=cfg")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestApplyWithoutSystem(t *testing.T) {
	in := New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if _, err := in.Apply(context.Background(), config.Object()); err == nil {
		t.Error("Apply without a system succeeded")
	}
}
