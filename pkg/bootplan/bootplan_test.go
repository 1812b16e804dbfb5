package bootplan

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/schema"
	"github.com/psaab/bootcfg/pkg/sysctl"
)

func testRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	var progs []Program
	for _, n := range names {
		progs = append(progs, Program{Name: n, Path: "/bin/" + n})
	}
	r, err := NewRegistry(progs...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func buildRC(t *testing.T, reg *Registry, doc string) (*Plan, error) {
	t.Helper()
	n, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse %s: %v", doc, err)
	}
	b := NewBuilder(reg)
	err = b.HandleRC(context.Background(), config.M("rc", n), "")
	return b.Plan(), err
}

func TestParseRunMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RunMode
		wantErr bool
	}{
		{"", Foreground, false},
		{"&", Background, false},
		{"|", Pipe, false},
		{"&&", 0, true},
		{"bg", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRunMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRunMode(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRunMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.Symbol() != tt.in {
			t.Errorf("%v.Symbol() = %q, want %q", got, got.Symbol(), tt.in)
		}
	}
}

func TestBuilderArgv(t *testing.T) {
	reg := testRegistry(t, "foo", "bar")
	plan, err := buildRC(t, reg, `[
		{"bin": "foo", "argv": ["foo", "-v"]},
		{"bin": "foo"},
		{"bin": "bar", "argv": []}
	]`)
	if err != nil {
		t.Fatal(err)
	}
	var got [][]string
	for _, e := range plan.Entries() {
		got = append(got, e.Argv)
	}
	want := [][]string{{"foo", "-v"}, {"foo"}, {"bar"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderEntryFields(t *testing.T) {
	reg := testRegistry(t, "httpd", "logger")
	plan, err := buildRC(t, reg, `[
		{"bin": "logger", "runmode": "|", "workdir": "/var"},
		{"bin": "httpd", "runmode": "&",
		 "netbsd": {"sysctl": {"x": "5", "y": false}}},
		{"bin": "httpd", "runmode": ""}
	]`)
	if err != nil {
		t.Fatal(err)
	}
	want := []ExecEntry{
		{
			Program: Program{Name: "logger", Path: "/bin/logger"},
			Argv:    []string{"logger"},
			Workdir: "/var",
			Mode:    Pipe,
		},
		{
			Program: Program{Name: "httpd", Path: "/bin/httpd"},
			Argv:    []string{"httpd"},
			Mode:    Background,
			Sysctls: []sysctl.Assignment{
				{Key: "proc.curproc.x", Value: "5"},
				{Key: "proc.curproc.y", Value: "0"},
			},
		},
		{
			Program: Program{Name: "httpd", Path: "/bin/httpd"},
			Argv:    []string{"httpd"},
			Mode:    Foreground,
		},
	}
	if diff := cmp.Diff(want, plan.Entries()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderLegacyWildcard(t *testing.T) {
	reg := testRegistry(t, "first", "second")
	plan, err := buildRC(t, reg, `[{"bin": "*"}]`)
	if err != nil {
		t.Fatal(err)
	}
	e := plan.Entries()[0]
	if e.Program.Name != "first" {
		t.Errorf("program = %q, want first", e.Program.Name)
	}
	if diff := cmp.Diff([]string{"*"}, e.Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}

	_, err = buildRC(t, testRegistry(t), `[{"bin": "*"}]`)
	if !errors.Is(err, ErrUnknownProgram) || !errors.Is(err, ErrEmptyRegistry) {
		t.Errorf("wildcard on empty registry err = %v", err)
	}
}

func TestBuilderErrors(t *testing.T) {
	reg := testRegistry(t, "foo")
	tests := []struct {
		name string
		doc  string
		is   error
		msg  string
	}{
		{"not array", `{"bin":"foo"}`, nil, "rc: expected ARRAY, got OBJECT"},
		{"element not object", `["foo"]`, nil, "rc[0]: expected OBJECT, got STRING"},
		{"missing bin", `[{"argv":["x"]}]`, nil, `rc[0]: missing "bin"`},
		{"unknown bin", `[{"bin":"nope"}]`, ErrUnknownProgram, `rc[0]: unknown bin "nope"`},
		{"unknown key", `[{"bin":"foo","cwd":"/"}]`, schema.ErrUnknownKey, `rc[0]: unexpected key "cwd"`},
		{"unknown netbsd key", `[{"bin":"foo","netbsd":{"env":{}}}]`, schema.ErrUnknownKey, `rc[0].netbsd: unexpected key "env"`},
		{"bad runmode", `[{"bin":"foo","runmode":";"}]`, nil, `invalid runmode ";" for bin "foo"`},
		{"argv not strings", `[{"bin":"foo","argv":["foo",1]}]`, nil, "rc[0].argv[1]: expected STRING, got NUMBER"},
		{"bin not string", `[{"bin":true}]`, nil, "rc[0].bin: expected STRING, got BOOLEAN"},
		{"sysctl bad value", `[{"bin":"foo","netbsd":{"sysctl":{"a":[]}}}]`, nil, `invalid type for key "a"`},
		{"second entry fails", `[{"bin":"foo"},{"bin":"bar"}]`, ErrUnknownProgram, "rc[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildRC(t, reg, tt.doc)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("err = %q, want it to contain %q", err, tt.msg)
			}
		})
	}
}

func TestBuilderKeepsEntriesBeforeFailure(t *testing.T) {
	plan, err := buildRC(t, testRegistry(t, "foo"), `[{"bin":"foo"},{"bin":"bar"}]`)
	if err == nil {
		t.Fatal("expected error")
	}
	if plan.Len() != 1 {
		t.Errorf("plan len = %d, want 1", plan.Len())
	}
}

func TestPlanValidate(t *testing.T) {
	p := &Plan{}
	if err := p.Validate(); err == nil {
		t.Error("empty plan validated")
	}
	p.Append(ExecEntry{Argv: []string{"a"}, Mode: Pipe})
	if err := p.Validate(); !errors.Is(err, ErrPipeLast) {
		t.Errorf("pipe last err = %v, want ErrPipeLast", err)
	}
	p.Append(ExecEntry{Argv: []string{"b"}, Mode: Background})
	if err := p.Validate(); err != nil {
		t.Errorf("valid plan: %v", err)
	}
}

func TestDefaultPlan(t *testing.T) {
	p, err := DefaultPlan(testRegistry(t, "a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range p.Entries() {
		if e.Mode != Foreground {
			t.Errorf("%s mode = %v", e.Program.Name, e.Mode)
		}
		if len(e.Argv) != 1 || e.Argv[0] != e.Program.Name {
			t.Errorf("%s argv = %q", e.Program.Name, e.Argv)
		}
		got = append(got, e.Program.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if _, err := DefaultPlan(testRegistry(t)); !errors.Is(err, ErrEmptyRegistry) {
		t.Errorf("empty registry err = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	if _, err := NewRegistry(Program{Name: "a"}, Program{Name: "a"}); err == nil {
		t.Error("duplicate name accepted")
	}
	tests := []struct {
		in      string
		want    Program
		wantErr bool
	}{
		{"httpd=/usr/sbin/httpd", Program{"httpd", "/usr/sbin/httpd"}, false},
		{"sh", Program{"sh", "sh"}, false},
		{"=/bin/x", Program{}, true},
		{"x=", Program{}, true},
	}
	for _, tt := range tests {
		got, err := ParseProgram(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProgram(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProgram(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestPlanJSON(t *testing.T) {
	p := &Plan{}
	p.Append(ExecEntry{
		Program: Program{Name: "a", Path: "/bin/a"},
		Argv:    []string{"a", "-x"},
		Mode:    Background,
	})
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"program":{"name":"a","path":"/bin/a"},"argv":["a","-x"],"runmode":"background"}]`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}
	empty, _ := json.Marshal(&Plan{})
	if string(empty) != "[]" {
		t.Errorf("empty plan json = %s", empty)
	}
}
