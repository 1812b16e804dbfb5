package bootcfg

import (
	"encoding/json"

	"github.com/psaab/bootcfg/pkg/bootplan"
	"github.com/psaab/bootcfg/pkg/sysctl"
)

// Report is the JSON form of a Result handed to the program launcher.
type Report struct {
	Source    Source               `json:"source"`
	Defaulted bool                 `json:"defaulted,omitempty"`
	Plan      []bootplan.ExecEntry `json:"plan"`
	Sysctls   []sysctl.Assignment  `json:"sysctls,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
}

// Report summarizes r for serialization.
func (r *Result) Report() Report {
	rep := Report{
		Source:    r.Source,
		Defaulted: r.Defaulted,
		Plan:      []bootplan.ExecEntry{},
		Sysctls:   r.Sysctls,
	}
	if r.Plan != nil {
		rep.Plan = r.Plan.Entries()
	}
	for _, w := range r.Warnings {
		rep.Warnings = append(rep.Warnings, w.String())
	}
	return rep
}

// MarshalIndent renders the report as indented JSON with a trailing
// newline.
func (r Report) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
