package bootplan

import (
	"fmt"
	"strings"
)

// Program is an entry point the plan can name.
type Program struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Registry is the fixed, ordered list of runnable programs.
type Registry struct {
	programs []Program
}

// NewRegistry returns a registry holding progs in the given order.
func NewRegistry(progs ...Program) (*Registry, error) {
	seen := make(map[string]bool, len(progs))
	for _, p := range progs {
		if p.Name == "" {
			return nil, fmt.Errorf("program with path %q has no name", p.Path)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("program %q registered twice", p.Name)
		}
		seen[p.Name] = true
	}
	return &Registry{programs: append([]Program(nil), progs...)}, nil
}

// ParseProgram parses "name=path". A bare name uses the name as path.
func ParseProgram(s string) (Program, error) {
	name, path, ok := strings.Cut(s, "=")
	if name == "" {
		return Program{}, fmt.Errorf("invalid program %q: empty name", s)
	}
	if !ok {
		path = name
	}
	if path == "" {
		return Program{}, fmt.Errorf("invalid program %q: empty path", s)
	}
	return Program{Name: name, Path: path}, nil
}

// Lookup finds a program by exact name.
func (r *Registry) Lookup(name string) (Program, bool) {
	for _, p := range r.programs {
		if p.Name == name {
			return p, true
		}
	}
	return Program{}, false
}

// First returns the first registered program.
func (r *Registry) First() (Program, bool) {
	if len(r.programs) == 0 {
		return Program{}, false
	}
	return r.programs[0], true
}

// Programs returns the registered programs in order.
func (r *Registry) Programs() []Program {
	return append([]Program(nil), r.programs...)
}

// Len returns the number of registered programs.
func (r *Registry) Len() int {
	return len(r.programs)
}
