// bootcfgctl checks boot configuration documents without booting them.
//
// Every subcommand interprets documents against a recording system, so
// nothing on the host changes: the output is the boot plan and the
// ordered list of capability calls the guest would make.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/cli"
	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/logging"
)

// errFailed signals a failure that was already printed.
var errFailed = errors.New("failed")

type globalFlags struct {
	bins    []string
	lenient bool
	debug   bool
}

func (g *globalFlags) options() (cli.Options, error) {
	opts := cli.Options{LenientPrefixLen: g.lenient}
	for _, b := range g.bins {
		p, err := bootplan.ParseProgram(b)
		if err != nil {
			return opts, err
		}
		opts.Programs = append(opts.Programs, p)
	}
	if g.debug {
		logger, _, err := logging.Setup(logging.Options{Debug: true})
		if err != nil {
			return opts, err
		}
		opts.Logger = logger
	}
	return opts, nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "bootcfgctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "bootcfgctl",
		Short:         "Inspect unikernel boot configuration documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringArrayVar(&g.bins, "bin", nil,
		"registered program as name=path (repeatable); default: every bin the document names")
	root.PersistentFlags().BoolVar(&g.lenient, "lenient-prefixlen", false, "accept malformed prefix lengths")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "show interpreter logs")

	root.AddCommand(
		newCheckCommand(g),
		newPlanCommand(g),
		newTraceCommand(g),
		newDiffCommand(g),
		newConvertCommand(),
		newShellCommand(g),
	)
	return root
}

func readDocument(name string) (*config.Node, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return cli.LoadDocument(name, data)
}

func dryrun(cmd *cobra.Command, g *globalFlags, name string) (*cli.Dryrun, error) {
	opts, err := g.options()
	if err != nil {
		return nil, err
	}
	doc, err := readDocument(name)
	if err != nil {
		return nil, err
	}
	return cli.Run(cmd.Context(), doc, opts), nil
}

func newCheckCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate documents and report warnings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := cli.NewPrinter(cmd.OutOrStdout())
			failed := false
			for _, name := range args {
				d, err := dryrun(cmd, g, name)
				if err != nil {
					p.Error(err)
					failed = true
					continue
				}
				p.Warnings(d)
				if p.Error(d.Err) {
					failed = true
					continue
				}
				p.OK("%s: ok (%d plan entries, %d capability calls)", name, d.Result.Plan.Len(), len(d.Recorder.Calls))
			}
			if failed {
				return errFailed
			}
			return nil
		},
	}
}

func newPlanCommand(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Print the boot plan a document produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dryrun(cmd, g, args[0])
			if err != nil {
				return err
			}
			if d.Err != nil {
				return d.Err
			}
			if !asJSON {
				fmt.Fprint(cmd.OutOrStdout(), d.Plan())
				return nil
			}
			data, err := d.Result.Report().MarshalIndent()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as the launcher receives it")
	return cmd
}

func newTraceCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trace FILE",
		Short: "Print the capability calls a document makes, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dryrun(cmd, g, args[0])
			if err != nil {
				return err
			}
			// The calls made before a fatal error are part of the answer.
			fmt.Fprint(cmd.OutOrStdout(), d.Trace())
			return d.Err
		},
	}
}

func newDiffCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff A B",
		Short: "Compare the plans and traces of two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := dryrun(cmd, g, args[0])
			if err != nil {
				return err
			}
			b, err := dryrun(cmd, g, args[1])
			if err != nil {
				return err
			}
			diff := cli.DiffLines(a.Summary(), b.Summary())
			if diff == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no difference")
				return nil
			}
			cli.NewPrinter(cmd.OutOrStdout()).Diff(diff)
			return errFailed
		},
	}
}

func newConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert FILE",
		Short: "Print a YAML or JSONC document as compact JSON for the boot command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", config.Compact(doc))
			return err
		},
	}
}

func newShellCommand(g *globalFlags) *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactively apply documents and inspect the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := g.options()
			if err != nil {
				return err
			}
			return cli.NewShell(opts, cmd.OutOrStdout()).Run(cmd.Context(), history)
		},
	}
	home, _ := os.UserHomeDir()
	def := ""
	if home != "" {
		def = filepath.Join(home, ".bootcfg_history")
	}
	cmd.Flags().StringVar(&history, "history", def, "history file (empty disables history)")
	return cmd
}
