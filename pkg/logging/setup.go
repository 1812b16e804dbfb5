// Package logging configures the process-wide slog logger and forwards
// records to remote syslog collectors.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options select the logger Setup builds.
type Options struct {
	// Output defaults to os.Stderr.
	Output io.Writer
	Debug  bool
	// Syslog lists "host[:port]" collectors records are copied to.
	Syslog []string
	// SyslogSeverity filters forwarded records ("error", "warning",
	// "info", "debug"); empty forwards everything.
	SyslogSeverity string
	Tag            string
}

// Setup builds the logger described by opts and installs it as the slog
// default. The returned function closes the syslog connections.
func Setup(opts Options) (*slog.Logger, func(), error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})

	closeFn := func() {}
	if len(opts.Syslog) > 0 {
		var clients []*SyslogClient
		for _, addr := range opts.Syslog {
			c, err := NewSyslogClient(addr)
			if err != nil {
				for _, c := range clients {
					c.Close()
				}
				return nil, nil, err
			}
			c.SetTag(opts.Tag)
			c.MinSeverity = ParseSeverity(opts.SyslogSeverity)
			clients = append(clients, c)
		}
		fw := newForwarder(h, clients)
		h, closeFn = fw, fw.close
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
