package bootplan

import (
	"context"
	"fmt"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/schema"
	"github.com/psaab/bootcfg/pkg/sysctl"
)

// procSysctlPrefix namespaces per-process tunables.
const procSysctlPrefix = "proc.curproc"

// Builder turns the "rc" array into plan entries.
type Builder struct {
	reg  *Registry
	plan *Plan
}

// NewBuilder returns a Builder resolving bin names against reg.
func NewBuilder(reg *Registry) *Builder {
	if reg == nil {
		reg = &Registry{}
	}
	return &Builder{reg: reg, plan: &Plan{}}
}

// Plan returns the plan built so far.
func (b *Builder) Plan() *Plan {
	return b.plan
}

// HandleRC is the "rc" handler. Every element must be an object; entries
// are appended in array order. Unknown keys are fatal here.
func (b *Builder) HandleRC(_ context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindArray, loc); err != nil {
		return err
	}
	for i, elem := range m.Value.Elems {
		e, err := b.entry(elem, fmt.Sprintf("%s[%d]", loc, i))
		if err != nil {
			return err
		}
		b.plan.Append(e)
	}
	return nil
}

func (b *Builder) entry(n *config.Node, loc string) (ExecEntry, error) {
	if err := schema.Expect(n, config.KindObject, loc); err != nil {
		return ExecEntry{}, err
	}

	var bin, argv, runmode, workdir, sysctls *config.Node
	for _, m := range n.Members {
		want := config.KindString
		switch m.Name {
		case "bin":
			bin = m.Value
		case "argv":
			argv, want = m.Value, config.KindArray
		case "runmode":
			runmode = m.Value
		case "workdir":
			workdir = m.Value
		case "netbsd":
			v, err := netbsdSysctl(m.Value, schema.Join(loc, m.Name))
			if err != nil {
				return ExecEntry{}, err
			}
			if v != nil {
				sysctls = v
			}
			continue
		default:
			return ExecEntry{}, schema.UnknownKey(loc, m.Name)
		}
		if err := schema.Expect(m.Value, want, schema.Join(loc, m.Name)); err != nil {
			return ExecEntry{}, err
		}
	}

	if bin == nil {
		return ExecEntry{}, fmt.Errorf("%s: missing \"bin\"", loc)
	}
	prog, err := b.resolve(bin.Str)
	if err != nil {
		return ExecEntry{}, fmt.Errorf("%s: %w", loc, err)
	}
	e := ExecEntry{Program: prog, Mode: Foreground}

	if argv != nil {
		if e.Argv, err = schema.ExpectStrings(argv, schema.Join(loc, "argv")); err != nil {
			return ExecEntry{}, err
		}
	}
	if len(e.Argv) == 0 {
		e.Argv = []string{bin.Str}
	}
	if runmode != nil {
		if e.Mode, err = ParseRunMode(runmode.Str); err != nil {
			return ExecEntry{}, fmt.Errorf("%s: %w for bin %q", loc, err, bin.Str)
		}
	}
	if workdir != nil {
		e.Workdir = workdir.Str
	}
	if sysctls != nil {
		e.Sysctls, err = sysctl.Flatten(sysctls, procSysctlPrefix, schema.Join(loc, "netbsd.sysctl"))
		if err != nil {
			return ExecEntry{}, err
		}
	}
	return e, nil
}

// netbsdSysctl validates an entry's "netbsd" object and returns its
// "sysctl" member, if any.
func netbsdSysctl(n *config.Node, loc string) (*config.Node, error) {
	if err := schema.Expect(n, config.KindObject, loc); err != nil {
		return nil, err
	}
	var sc *config.Node
	for _, m := range n.Members {
		if m.Name != "sysctl" {
			return nil, schema.UnknownKey(loc, m.Name)
		}
		if err := schema.Expect(m.Value, config.KindObject, schema.Join(loc, m.Name)); err != nil {
			return nil, err
		}
		sc = m.Value
	}
	return sc, nil
}

func (b *Builder) resolve(bin string) (Program, error) {
	if p, ok := resolveLegacyWildcard(b.reg, bin); ok {
		return p, nil
	}
	if p, ok := b.reg.Lookup(bin); ok {
		return p, nil
	}
	if bin == legacyWildcard {
		return Program{}, fmt.Errorf("%w %q: %w", ErrUnknownProgram, bin, ErrEmptyRegistry)
	}
	return Program{}, fmt.Errorf("%w %q", ErrUnknownProgram, bin)
}
