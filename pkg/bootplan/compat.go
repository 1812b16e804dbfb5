package bootplan

// Compatibility rules for documents generated by the legacy launcher
// script. A strict validator can ignore this file.

// legacyWildcard is the bin name the legacy launcher emits when it does
// not know which program was baked in.
const legacyWildcard = "*"

// resolveLegacyWildcard maps "*" to the first registered program.
func resolveLegacyWildcard(r *Registry, bin string) (Program, bool) {
	if bin != legacyWildcard {
		return Program{}, false
	}
	return r.First()
}

// DefaultPlan returns one foreground entry per registered program, with
// argv set to the program name. It is used when no rc entries were given.
func DefaultPlan(r *Registry) (*Plan, error) {
	if r == nil || r.Len() == 0 {
		return nil, ErrEmptyRegistry
	}
	p := &Plan{}
	for _, prog := range r.Programs() {
		p.Append(ExecEntry{
			Program: prog,
			Argv:    []string{prog.Name},
			Mode:    Foreground,
		})
	}
	return p, nil
}
