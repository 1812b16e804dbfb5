package schema

import (
	"fmt"
	"log/slog"
)

// Warning is a non-fatal finding recorded during interpretation.
type Warning struct {
	Loc string
	Key string
	Msg string
}

func (w Warning) String() string {
	if w.Key == "" {
		return fmt.Sprintf("%s: %s", w.Loc, w.Msg)
	}
	return fmt.Sprintf("%s: %q: %s", w.Loc, w.Key, w.Msg)
}

// Diagnostics logs warnings and keeps them for the caller.
type Diagnostics struct {
	log      *slog.Logger
	warnings []Warning
}

// NewDiagnostics returns a Diagnostics logging to log, or to the default
// logger when log is nil.
func NewDiagnostics(log *slog.Logger) *Diagnostics {
	if log == nil {
		log = slog.Default()
	}
	return &Diagnostics{log: log}
}

// Warn records a warning about key at loc.
func (d *Diagnostics) Warn(loc, key, msg string) {
	w := Warning{Loc: loc, Key: key, Msg: msg}
	d.warnings = append(d.warnings, w)
	d.log.Warn(msg, "loc", loc, "key", key)
}

// Warnings returns the recorded warnings in the order they were raised.
func (d *Diagnostics) Warnings() []Warning {
	return append([]Warning(nil), d.warnings...)
}
