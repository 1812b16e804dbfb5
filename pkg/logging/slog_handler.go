package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// Attribute keys the interpreter uses to name where a record applies.
const (
	LocKey = "loc"
	KeyKey = "key"
)

// forwarder is an slog.Handler that copies records to syslog collectors
// after handing them to the console handler. A record carrying loc and
// key attributes is rendered the way interpretation warnings are
// reported, `loc: "key": message`, so the collector shows the offending
// document key first.
type forwarder struct {
	base    slog.Handler
	clients []*SyslogClient
	// prefix holds attributes bound with WithAttrs, already rendered.
	prefix []field
	group  string
}

type field struct{ key, val string }

func newForwarder(base slog.Handler, clients []*SyslogClient) *forwarder {
	return &forwarder{base: base, clients: clients}
}

func (h *forwarder) close() {
	for _, c := range h.clients {
		c.Close()
	}
}

func (h *forwarder) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *forwarder) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)

	severity := severityOf(r.Level)
	var line string
	for _, c := range h.clients {
		if !c.ShouldSend(severity) {
			continue
		}
		if line == "" {
			line = h.render(r)
		}
		// Delivery is best effort; the console already has the record.
		_ = c.Send(severity, line)
	}
	return err
}

func (h *forwarder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base = h.base.WithAttrs(attrs)
	next.prefix = append([]field(nil), h.prefix...)
	for _, a := range attrs {
		next.prefix = appendAttr(next.prefix, h.group, a)
	}
	return &next
}

func (h *forwarder) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.base = h.base.WithGroup(name)
	next.group = joinKey(h.group, name)
	return &next
}

// render builds the forwarded text of r.
func (h *forwarder) render(r slog.Record) string {
	fields := append([]field(nil), h.prefix...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.group, a)
		return true
	})

	var loc, key string
	rest := fields[:0]
	for _, f := range fields {
		switch {
		case f.key == LocKey && loc == "":
			loc = f.val
		case f.key == KeyKey && key == "":
			key = f.val
		default:
			rest = append(rest, f)
		}
	}

	var b strings.Builder
	if loc != "" {
		b.WriteString(loc)
		b.WriteString(": ")
		if key != "" {
			b.WriteString(strconv.Quote(key))
			b.WriteString(": ")
		}
	} else if key != "" {
		rest = append([]field{{KeyKey, key}}, rest...)
	}
	b.WriteString(r.Message)
	for _, f := range rest {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(f.val))
	}
	return b.String()
}

func appendAttr(fields []field, group string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		g := joinKey(group, a.Key)
		for _, ga := range a.Value.Group() {
			fields = appendAttr(fields, g, ga)
		}
		return fields
	}
	return append(fields, field{joinKey(group, a.Key), a.Value.String()})
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	if key == "" {
		return group
	}
	return group + "." + key
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func severityOf(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return SyslogError
	case level >= slog.LevelWarn:
		return SyslogWarning
	case level >= slog.LevelInfo:
		return SyslogInfo
	default:
		return SyslogDebug
	}
}
