package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/config"
)

func mustLoad(t *testing.T, name, data string) *config.Node {
	t.Helper()
	n, err := LoadDocument(name, []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestLoadDocumentFormats(t *testing.T) {
	jsonc := mustLoad(t, "cfg.json", `{
		// comment
		"rc": [{"bin": "hello"},],
	}`)
	yaml := mustLoad(t, "cfg.yaml", "rc:\n  - bin: hello\n")

	a := Run(context.Background(), jsonc, Options{})
	b := Run(context.Background(), yaml, Options{})
	if a.Err != nil || b.Err != nil {
		t.Fatalf("errors: %v, %v", a.Err, b.Err)
	}
	if diff := cmp.Diff(a.Plan(), b.Plan()); diff != "" {
		t.Errorf("plans differ (-json +yaml):\n%s", diff)
	}
}

func TestLoadDocumentError(t *testing.T) {
	_, err := LoadDocument("bad.json", []byte(`{"rc": `))
	var se *config.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *config.SyntaxError", err)
	}
	if !strings.HasPrefix(err.Error(), "bad.json: ") {
		t.Errorf("error does not name the file: %v", err)
	}
}

func TestProgramsFromDoc(t *testing.T) {
	doc := mustLoad(t, "x.json", `{"rc": [
		{"bin": "b"}, {"bin": "a"}, {"bin": "b"}, {"bin": "*"}, {"argv": ["x"]}
	], "rc": [{"bin": "c"}]}`)
	var names []string
	for _, p := range ProgramsFromDoc(doc) {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, names); diff != "" {
		t.Errorf("programs mismatch (-want +got):\n%s", diff)
	}
	if got := ProgramsFromDoc(nil); got != nil {
		t.Errorf("nil doc = %v", got)
	}
}

func TestRunTraceAndPlan(t *testing.T) {
	doc := mustLoad(t, "x.json", `{
		"net": {"gateways": [{"type": "inet", "addr": "10.0.0.1"}]},
		"rc": [
			{"bin": "log", "runmode": "|"},
			{"bin": "app", "workdir": "/srv", "netbsd": {"sysctl": {"x": "5"}}}
		]
	}`)
	d := Run(context.Background(), doc, Options{
		Programs: []bootplan.Program{{Name: "log", Path: "/bin/log"}, {Name: "app", Path: "app"}},
	})
	if d.Err != nil {
		t.Fatal(d.Err)
	}
	if got, want := d.Trace(), "gw 10.0.0.1\n"; got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
	want := "0: log | [/bin/log]\n1: app (cwd /srv) proc.curproc.x=5\n"
	if got := d.Plan(); got != want {
		t.Errorf("plan = %q, want %q", got, want)
	}
}

func TestRunUnknownProgram(t *testing.T) {
	doc := mustLoad(t, "x.json", `{"rc": [{"bin": "ghost"}]}`)
	d := Run(context.Background(), doc, Options{
		Programs: []bootplan.Program{{Name: "app", Path: "app"}},
	})
	if !errors.Is(d.Err, bootplan.ErrUnknownProgram) {
		t.Errorf("err = %v, want ErrUnknownProgram", d.Err)
	}
}

func TestRunCmdline(t *testing.T) {
	d := RunCmdline(context.Background(), "_RUMPRUN_ROOTFSCFG=/cfg.json",
		map[string][]byte{"/rootfs/cfg.json": []byte(`{"env": {"A": "b"}}`)},
		Options{Programs: []bootplan.Program{{Name: "app", Path: "app"}}})
	if d.Err != nil {
		t.Fatal(d.Err)
	}
	if got := d.Recorder.Env["A"]; got != "b" {
		t.Errorf("A = %q", got)
	}
	if !d.Result.Defaulted {
		t.Error("expected default plan")
	}
}

func TestDiffLines(t *testing.T) {
	if got := DiffLines("a\nb\n", "a\nb\n"); got != "" {
		t.Errorf("equal inputs diff = %q", got)
	}
	got := DiffLines("a\nb\nc\n", "a\nx\nc\n")
	want := " a\n-b\n+x\n c\n"
	if got != want {
		t.Errorf("diff = %q, want %q", got, want)
	}
}

func TestSummaryDiffShowsReordering(t *testing.T) {
	opts := Options{Programs: []bootplan.Program{{Name: "app", Path: "app"}}}
	a := Run(context.Background(), mustLoad(t, "a.json",
		`{"env": {"A": "1"}, "netbsd": {"sysctl": {"k": "v"}}}`), opts)
	b := Run(context.Background(), mustLoad(t, "b.json",
		`{"netbsd": {"sysctl": {"k": "v"}}, "env": {"A": "1"}}`), opts)
	if diff := DiffLines(a.Summary(), b.Summary()); diff != "" {
		t.Errorf("reordered documents differ:\n%s", diff)
	}
}

func TestShellExec(t *testing.T) {
	var out bytes.Buffer
	sh := NewShell(Options{}, &out)
	ctx := context.Background()

	if err := sh.Exec(ctx, "plan"); err == nil {
		t.Error("plan before any document succeeded")
	}
	if err := sh.Exec(ctx, `{"rc": [{"bin": "app"}], "extra": 1}`); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{`warning: root: "extra": no match for key, ignored`, "0: app", "ok"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}

	out.Reset()
	if err := sh.Exec(ctx, "keys"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "netbsd\n  rc\n  env") {
		t.Errorf("keys output:\n%s", out.String())
	}

	if err := sh.Exec(ctx, "bogus"); err == nil {
		t.Error("unknown command accepted")
	}
	if err := sh.Exec(ctx, "quit"); err != errExit {
		t.Errorf("quit = %v", err)
	}
}

func TestShellReportsFatal(t *testing.T) {
	var out bytes.Buffer
	sh := NewShell(Options{}, &out)
	if err := sh.Exec(context.Background(), `{"rc": [{"bin": "app", "runmode": "|"}]}`); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "error: bootcfg: last rc entry may not output to pipe") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestSkeletonParses(t *testing.T) {
	doc, err := config.Parse([]byte(skeleton()))
	if err != nil {
		t.Fatalf("skeleton %q: %v", skeleton(), err)
	}
	if len(doc.Members) != 6 {
		t.Errorf("skeleton members = %d", len(doc.Members))
	}
}
