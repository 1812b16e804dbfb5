package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/psaab/bootcfg/pkg/bootcfg"
	"github.com/psaab/bootcfg/pkg/config"
)

// Printer writes command output, coloring warnings and errors when the
// destination is a terminal.
type Printer struct {
	w    io.Writer
	warn *color.Color
	fail *color.Color
	ok   *color.Color
	head *color.Color
}

// NewPrinter returns a Printer for w. Color is used only when w is a
// terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	p := &Printer{
		w:    w,
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
		ok:   color.New(color.FgGreen),
		head: color.New(color.FgCyan),
	}
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		for _, c := range []*color.Color{p.warn, p.fail, p.ok, p.head} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{p.warn, p.fail, p.ok, p.head} {
			c.EnableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Warnings prints one line per warning of d.
func (p *Printer) Warnings(d *Dryrun) {
	if d.Result == nil {
		return
	}
	for _, w := range d.Result.Warnings {
		p.warn.Fprintf(p.w, "warning: %s\n", w)
	}
}

// Error prints err, if any, and reports whether there was one.
func (p *Printer) Error(err error) bool {
	if err == nil {
		return false
	}
	p.fail.Fprintf(p.w, "error: %v\n", err)
	return true
}

// Section prints a heading followed by body.
func (p *Printer) Section(title, body string) {
	p.head.Fprintf(p.w, "%s:\n", title)
	if body == "" {
		fmt.Fprintln(p.w, "  (none)")
		return
	}
	for _, line := range strings.SplitAfter(body, "\n") {
		if line != "" {
			fmt.Fprintf(p.w, "  %s", line)
		}
	}
}

// Diff prints a line diff, coloring removals and additions.
func (p *Printer) Diff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "-"):
			p.fail.Fprint(p.w, line)
		case strings.HasPrefix(line, "+"):
			p.ok.Fprint(p.w, line)
		default:
			fmt.Fprint(p.w, line)
		}
	}
}

// OK prints a success line.
func (p *Printer) OK(format string, args ...any) {
	p.ok.Fprintf(p.w, format+"\n", args...)
}

// Shell is an interactive loop: each line holding a document is
// interpreted against a fresh recorder, and commands inspect the most
// recent run.
type Shell struct {
	rl   *readline.Instance
	opts Options
	out  *Printer
	last *Dryrun
}

// NewShell returns a Shell printing to out.
func NewShell(opts Options, out io.Writer) *Shell {
	return &Shell{opts: opts, out: NewPrinter(out)}
}

var errExit = errors.New("exit")

// Run starts the interactive loop. historyFile may be empty.
func (s *Shell) Run(ctx context.Context, historyFile string) error {
	var err error
	s.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "bootcfg> ",
		HistoryFile:     historyFile,
		AutoComplete:    newCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer s.rl.Close()

	fmt.Fprintln(s.rl.Stdout(), "bootcfg shell - paste a document, or type 'help'")
	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := s.Exec(ctx, line); err != nil {
			if err == errExit {
				return nil
			}
			s.out.Error(err)
		}
	}
}

// Exec runs one shell line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "{") {
		doc, err := config.Parse([]byte(line))
		if err != nil {
			return err
		}
		s.apply(ctx, doc)
		return nil
	}

	parts := strings.Fields(line)
	switch parts[0] {
	case "load":
		if len(parts) != 2 {
			return fmt.Errorf("usage: load FILE")
		}
		data, err := os.ReadFile(parts[1])
		if err != nil {
			return err
		}
		doc, err := LoadDocument(parts[1], data)
		if err != nil {
			return err
		}
		s.apply(ctx, doc)
		return nil
	case "cmdline":
		s.show(RunCmdline(ctx, strings.TrimSpace(strings.TrimPrefix(line, "cmdline")), nil, s.opts))
		return nil
	case "plan", "trace", "warnings":
		if s.last == nil {
			return fmt.Errorf("no document applied yet")
		}
		switch parts[0] {
		case "plan":
			s.out.Section("plan", s.last.Plan())
		case "trace":
			s.out.Section("trace", s.last.Trace())
		default:
			s.out.Warnings(s.last)
		}
		return nil
	case "keys":
		s.out.Section("root keys (applied in this order)", strings.Join(bootcfg.RootKeys(), "\n")+"\n")
		return nil
	case "help", "?":
		s.help()
		return nil
	case "quit", "exit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (s *Shell) apply(ctx context.Context, doc *config.Node) {
	s.show(Run(ctx, doc, s.opts))
}

func (s *Shell) show(d *Dryrun) {
	s.last = d
	s.out.Warnings(d)
	s.out.Section("trace", d.Trace())
	s.out.Section("plan", d.Plan())
	if !s.out.Error(d.Err) {
		s.out.OK("ok")
	}
}

func (s *Shell) help() {
	s.out.Section("commands", strings.Join([]string{
		"{...}          apply a JSON document",
		"load FILE      apply a JSON, JSONC or YAML file",
		"cmdline TEXT   apply a boot command line",
		"plan           show the last boot plan",
		"trace          show the last capability calls",
		"warnings       show the last warnings",
		"keys           list root keys in application order",
		"quit           leave the shell",
	}, "\n")+"\n")
}
