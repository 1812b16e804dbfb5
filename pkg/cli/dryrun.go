// Package cli implements bootcfgctl: dry runs of boot configuration
// documents against a recording system, and an interactive shell.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/psaab/bootcfg/pkg/bootcfg"
	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/platform"
)

// LoadDocument parses data as YAML when name ends in .yaml or .yml and
// as JSON with comments otherwise.
func LoadDocument(name string, data []byte) (*config.Node, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return config.ParseYAML(data)
	default:
		n, err := config.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	}
}

// Options configure a dry run.
type Options struct {
	// Programs lists the registry in order. When empty, every bin named
	// by the document's rc entries is registered.
	Programs         []bootplan.Program
	LenientPrefixLen bool
	// Logger receives interpreter logs. Defaults to discarding them.
	Logger *slog.Logger
}

// Dryrun is the outcome of interpreting one document against a
// platform.Recorder.
type Dryrun struct {
	Result   *bootcfg.Result
	Recorder *platform.Recorder
	Err      error
}

// Run interprets doc without touching the host.
func Run(ctx context.Context, doc *config.Node, opts Options) *Dryrun {
	in, rec, err := newInterpreter(doc, opts)
	if err != nil {
		return &Dryrun{Recorder: rec, Err: err}
	}
	res, err := in.Apply(ctx, doc)
	return &Dryrun{Result: res, Recorder: rec, Err: err}
}

// RunCmdline interprets a boot command line, including documents it
// names on the root filesystem, against a recorder preloaded with files.
func RunCmdline(ctx context.Context, cmdline string, files map[string][]byte, opts Options) *Dryrun {
	in, rec, err := newInterpreter(nil, opts)
	if err != nil {
		return &Dryrun{Recorder: rec, Err: err}
	}
	for name, data := range files {
		rec.Files[name] = data
	}
	res, err := in.Interpret(ctx, cmdline)
	return &Dryrun{Result: res, Recorder: rec, Err: err}
}

func newInterpreter(doc *config.Node, opts Options) (*bootcfg.Interpreter, *platform.Recorder, error) {
	rec := platform.NewRecorder()
	progs := opts.Programs
	if len(progs) == 0 {
		progs = ProgramsFromDoc(doc)
	}
	reg, err := bootplan.NewRegistry(progs...)
	if err != nil {
		return nil, rec, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return bootcfg.New(bootcfg.Options{
		Registry:         reg,
		System:           rec,
		Logger:           log,
		LenientPrefixLen: opts.LenientPrefixLen,
	}), rec, nil
}

// ProgramsFromDoc returns one program per distinct string "bin" in the
// document's rc entries, in first-use order.
func ProgramsFromDoc(doc *config.Node) []bootplan.Program {
	var progs []bootplan.Program
	seen := map[string]bool{"*": true}
	for _, m := range memberValues(doc, "rc") {
		if m.Kind != config.KindArray {
			continue
		}
		for _, e := range m.Elems {
			bin := e.Lookup("bin")
			if bin == nil || bin.Kind != config.KindString || bin.Str == "" || seen[bin.Str] {
				continue
			}
			seen[bin.Str] = true
			progs = append(progs, bootplan.Program{Name: bin.Str, Path: bin.Str})
		}
	}
	return progs
}

func memberValues(n *config.Node, name string) []*config.Node {
	if n == nil || n.Kind != config.KindObject {
		return nil
	}
	var out []*config.Node
	for _, m := range n.Members {
		if m.Name == name {
			out = append(out, m.Value)
		}
	}
	return out
}

// Trace renders the recorded capability calls, one per line.
func (d *Dryrun) Trace() string {
	var b strings.Builder
	for _, op := range d.Recorder.Ops() {
		b.WriteString(op)
		b.WriteByte('\n')
	}
	return b.String()
}

// Plan renders the boot plan one entry per line, as the shell shows it.
func (d *Dryrun) Plan() string {
	if d.Result == nil || d.Result.Plan == nil {
		return ""
	}
	var b strings.Builder
	for i, e := range d.Result.Plan.Entries() {
		fmt.Fprintf(&b, "%d: %s", i, strings.Join(e.Argv, " "))
		if sym := e.Mode.Symbol(); sym != "" {
			fmt.Fprintf(&b, " %s", sym)
		}
		if e.Program.Path != e.Program.Name {
			fmt.Fprintf(&b, " [%s]", e.Program.Path)
		}
		if e.Workdir != "" {
			fmt.Fprintf(&b, " (cwd %s)", e.Workdir)
		}
		for _, s := range e.Sysctls {
			fmt.Fprintf(&b, " %s", s)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Summary renders the plan followed by the trace, for diffing.
func (d *Dryrun) Summary() string {
	var b strings.Builder
	b.WriteString("# plan\n")
	b.WriteString(d.Plan())
	b.WriteString("# trace\n")
	b.WriteString(d.Trace())
	if d.Err != nil {
		fmt.Fprintf(&b, "# error\n%v\n", d.Err)
	}
	return b.String()
}

// DiffLines returns a line diff of a and b with "-", "+" and " "
// prefixes, or "" when they are equal.
func DiffLines(a, b string) string {
	if a == b {
		return ""
	}
	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffpatch.DiffInsert:
			prefix = "+"
		case diffpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteByte('\n')
			}
		}
	}
	return out.String()
}
