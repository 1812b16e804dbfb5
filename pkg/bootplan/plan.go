// Package bootplan builds the ordered list of program invocations that
// runs once configuration has been applied.
package bootplan

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/psaab/bootcfg/pkg/sysctl"
)

var (
	// ErrPipeLast rejects a plan whose last entry pipes into nothing.
	ErrPipeLast = errors.New("last rc entry may not output to pipe")
	// ErrUnknownProgram marks a bin name missing from the registry.
	ErrUnknownProgram = errors.New("unknown bin")
	// ErrEmptyRegistry means no program is available for a default plan.
	ErrEmptyRegistry = errors.New("no programs registered")
)

// RunMode controls how an entry runs relative to the next one.
type RunMode int

const (
	Foreground RunMode = iota // run to completion
	Background                // "&": start and continue
	Pipe                      // "|": stdout feeds the next entry
)

// ParseRunMode maps the document's runmode string to a RunMode.
func ParseRunMode(s string) (RunMode, error) {
	switch s {
	case "":
		return Foreground, nil
	case "&":
		return Background, nil
	case "|":
		return Pipe, nil
	default:
		return 0, fmt.Errorf("invalid runmode %q", s)
	}
}

// Symbol returns the document spelling of m.
func (m RunMode) Symbol() string {
	switch m {
	case Background:
		return "&"
	case Pipe:
		return "|"
	default:
		return ""
	}
}

func (m RunMode) String() string {
	switch m {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Pipe:
		return "pipe"
	default:
		return fmt.Sprintf("RunMode(%d)", int(m))
	}
}

func (m RunMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ExecEntry is one planned program invocation.
type ExecEntry struct {
	Program Program             `json:"program"`
	Argv    []string            `json:"argv"`
	Workdir string              `json:"workdir,omitempty"`
	Mode    RunMode             `json:"runmode"`
	Sysctls []sysctl.Assignment `json:"sysctls,omitempty"`
}

// Plan is the append-only sequence of entries, in execution order.
type Plan struct {
	entries []ExecEntry
}

// Append adds e to the end of the plan.
func (p *Plan) Append(e ExecEntry) {
	p.entries = append(p.entries, e)
}

// Len returns the number of entries.
func (p *Plan) Len() int {
	return len(p.entries)
}

// Entries returns a copy of the entries.
func (p *Plan) Entries() []ExecEntry {
	return append([]ExecEntry(nil), p.entries...)
}

// Last returns the final entry, or false when the plan is empty.
func (p *Plan) Last() (ExecEntry, bool) {
	if len(p.entries) == 0 {
		return ExecEntry{}, false
	}
	return p.entries[len(p.entries)-1], true
}

// Validate checks the invariants a runnable plan must hold.
func (p *Plan) Validate() error {
	last, ok := p.Last()
	if !ok {
		return errors.New("boot plan is empty")
	}
	if last.Mode == Pipe {
		return ErrPipeLast
	}
	return nil
}

// MarshalJSON writes the plan as a JSON array of entries.
func (p *Plan) MarshalJSON() ([]byte, error) {
	if p.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.entries)
}
