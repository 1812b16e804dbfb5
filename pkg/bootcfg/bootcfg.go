// Package bootcfg interprets a boot configuration document: it locates
// the document on the boot command line or root filesystem, applies the
// root handlers in their fixed order and returns the validated plan.
//
// Interpretation is not transactional. When a handler fails, whatever
// earlier handlers changed on the system stays changed.
package bootcfg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/netcfg"
	"github.com/psaab/bootcfg/pkg/platform"
	"github.com/psaab/bootcfg/pkg/schema"
	"github.com/psaab/bootcfg/pkg/storage"
	"github.com/psaab/bootcfg/pkg/sysctl"
)

// Options configure an Interpreter.
type Options struct {
	Registry *bootplan.Registry
	System   platform.System
	Logger   *slog.Logger

	// EtcDir receives resolv.conf. Default /etc.
	EtcDir string
	// RootfsDir is where the root filesystem is mounted when the
	// document lives on it. Default /rootfs.
	RootfsDir string
	// LenientPrefixLen accepts malformed prefix lengths as the legacy
	// parser did.
	LenientPrefixLen bool
}

// Source says where a document came from.
type Source string

const (
	SourceNone   Source = "none"
	SourceInline Source = "inline"
	SourceRootfs Source = "rootfs"
)

// Result is the outcome of one interpretation pass.
type Result struct {
	Plan *bootplan.Plan
	// Sysctls are the global assignments that were written.
	Sysctls  []sysctl.Assignment
	Warnings []schema.Warning
	Source   Source
	// Defaulted is set when the plan was synthesized from the registry.
	Defaulted bool
}

// Interpreter applies documents to a System.
type Interpreter struct {
	opts Options
	log  *slog.Logger
}

// New returns an Interpreter. Zero option fields get their defaults.
func New(opts Options) *Interpreter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EtcDir == "" {
		opts.EtcDir = "/etc"
	}
	if opts.RootfsDir == "" {
		opts.RootfsDir = "/rootfs"
	}
	if opts.Registry == nil {
		opts.Registry, _ = bootplan.NewRegistry()
	}
	return &Interpreter{opts: opts, log: opts.Logger}
}

// pass holds the state of one interpretation.
type pass struct {
	diag    *schema.Diagnostics
	builder *bootplan.Builder
	sysctls *sysctl.Translator
}

func (in *Interpreter) newPass() (*pass, schema.Table) {
	p := &pass{
		diag:    schema.NewDiagnostics(in.log),
		builder: bootplan.NewBuilder(in.opts.Registry),
		sysctls: sysctl.NewTranslator(in.opts.System),
	}
	net := netcfg.New(in.opts.System, p.diag, netcfg.Options{
		EtcDir:           in.opts.EtcDir,
		LenientPrefixLen: in.opts.LenientPrefixLen,
	})
	st := storage.New(in.opts.System)

	// Order matters: tunables before anything runs, block devices
	// before the mounts that name them.
	root := schema.Table{
		{Name: "netbsd", Apply: schema.Sub(p.diag, p.sysctls.Table())},
		{Name: "rc", Apply: p.builder.HandleRC},
		{Name: "env", Apply: in.handleEnv},
		{Name: "blk", Apply: st.HandleBlk},
		{Name: "mount", Apply: st.HandleMount},
		{Name: "net", Apply: schema.Sub(p.diag, net.Table())},
	}
	return p, root
}

// RootKeys returns the top-level keys in the order they are applied.
func RootKeys() []string {
	_, root := New(Options{}).newPass()
	return root.Names()
}

// Apply interprets doc. A nil doc applies nothing and yields the
// default plan. On error the returned Result still describes what was
// applied before the failure.
func (in *Interpreter) Apply(ctx context.Context, doc *config.Node) (*Result, error) {
	if in.opts.System == nil {
		return nil, fmt.Errorf("bootcfg: no system configured")
	}
	p, root := in.newPass()
	res := &Result{Source: SourceNone}

	var err error
	if doc != nil {
		err = schema.Dispatch(ctx, p.diag, doc, root, "root")
	}
	res.Plan = p.builder.Plan()
	res.Sysctls = p.sysctls.Applied()
	res.Warnings = p.diag.Warnings()
	if err != nil {
		return res, err
	}
	return res, in.finish(res)
}

// finish substitutes the default plan for an empty one and validates it.
func (in *Interpreter) finish(res *Result) error {
	if res.Plan.Len() == 0 {
		plan, err := bootplan.DefaultPlan(in.opts.Registry)
		if err != nil {
			return fmt.Errorf("internal error: %w", err)
		}
		res.Plan = plan
		res.Defaulted = true
		in.log.Info("no rc entries, running every registered program", "programs", plan.Len())
	}
	if err := res.Plan.Validate(); err != nil {
		return fmt.Errorf("bootcfg: %w", err)
	}
	return nil
}

func (in *Interpreter) handleEnv(_ context.Context, m config.Member, loc string) error {
	loc = schema.Join(loc, m.Name)
	if err := schema.Expect(m.Value, config.KindObject, loc); err != nil {
		return err
	}
	for _, kv := range m.Value.Members {
		val, err := schema.ExpectString(kv.Value, schema.Join(loc, kv.Name))
		if err != nil {
			return err
		}
		if err := in.opts.System.Setenv(kv.Name, val); err != nil {
			return fmt.Errorf("%s: setenv %q: %w", loc, kv.Name, err)
		}
	}
	return nil
}
