//go:build linux

// bootcfg applies the boot configuration of a unikernel guest.
//
// It reads the boot command line, applies the document it carries (or
// the one it names on the root filesystem) and writes the resulting boot
// plan as JSON for the program launcher. Any fatal error stops the boot
// with exit status 1; whatever was already applied stays applied.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/psaab/bootcfg/pkg/bootcfg"
	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/logging"
	"github.com/psaab/bootcfg/pkg/metrics"
	"github.com/psaab/bootcfg/pkg/platform"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "bootcfg: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cmdline        string
		cmdlineFile    string
		bins           []string
		planOut        string
		syslogAddrs    []string
		syslogSeverity string
		debug          bool
		metricsFile    string
		lenient        bool
		etcDir         string
		rootfsDir      string
	)

	flagSet := pflag.NewFlagSet("bootcfg", pflag.ContinueOnError)
	flagSet.StringVar(&cmdline, "cmdline", "", "boot command line (overrides --cmdline-file)")
	flagSet.StringVar(&cmdlineFile, "cmdline-file", "/proc/cmdline", "file holding the boot command line")
	flagSet.StringArrayVar(&bins, "bin", nil, "registered program as name=path (repeatable, order matters)")
	flagSet.StringVar(&planOut, "plan-out", "-", "where to write the boot plan JSON (- for stdout)")
	flagSet.StringSliceVar(&syslogAddrs, "syslog", nil, "forward log records to these host[:port] collectors")
	flagSet.StringVar(&syslogSeverity, "syslog-severity", "", "lowest severity forwarded (error, warning, info, debug)")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.StringVar(&metricsFile, "metrics-textfile", "", "write Prometheus metrics to this file when done")
	flagSet.BoolVar(&lenient, "lenient-prefixlen", false, "accept malformed prefix lengths the way older launchers did")
	flagSet.StringVar(&etcDir, "etc-dir", "/etc", "directory receiving resolv.conf")
	flagSet.StringVar(&rootfsDir, "rootfs-dir", "/rootfs", "mount point for a root filesystem holding the configuration")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, closeLog, err := logging.Setup(logging.Options{
		Debug:          debug,
		Syslog:         syslogAddrs,
		SyslogSeverity: syslogSeverity,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	progs := make([]bootplan.Program, 0, len(bins))
	for _, b := range bins {
		p, err := bootplan.ParseProgram(b)
		if err != nil {
			return err
		}
		progs = append(progs, p)
	}
	reg, err := bootplan.NewRegistry(progs...)
	if err != nil {
		return err
	}

	if !flagSet.Changed("cmdline") {
		data, err := os.ReadFile(cmdlineFile)
		if err != nil {
			return fmt.Errorf("read command line: %w", err)
		}
		cmdline = strings.TrimSpace(string(data))
	}

	linux, err := platform.NewLinux()
	if err != nil {
		return err
	}
	defer linux.Close()

	collector := metrics.NewCollector()
	in := bootcfg.New(bootcfg.Options{
		Registry:         reg,
		System:           metrics.Instrument(linux, collector),
		Logger:           logger,
		EtcDir:           etcDir,
		RootfsDir:        rootfsDir,
		LenientPrefixLen: lenient,
	})

	start := time.Now()
	res, runErr := in.Interpret(context.Background(), cmdline)

	if metricsFile != "" {
		o := metrics.Outcome{Err: runErr, Duration: time.Since(start)}
		if res != nil {
			o.Warnings = len(res.Warnings)
			o.Sysctls = len(res.Sysctls)
			if res.Plan != nil {
				o.PlanEntries = res.Plan.Len()
			}
		}
		collector.Observe(o)
		if err := collector.WriteTextfile(metricsFile); err != nil {
			logger.Warn("failed to write metrics", "file", metricsFile, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	data, err := res.Report().MarshalIndent()
	if err != nil {
		return err
	}
	if planOut == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(planOut, data, 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	logger.Info("boot plan written", "file", planOut, "entries", res.Plan.Len(), "source", res.Source)
	return nil
}
