// Package sysctl flattens sysctl objects into ordered key/value
// assignments and applies them.
package sysctl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psaab/bootcfg/pkg/config"
	"github.com/psaab/bootcfg/pkg/schema"
)

// Assignment is one tunable write.
type Assignment struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (a Assignment) String() string {
	return a.Key + "=" + a.Value
}

// Setter writes a single tunable.
type Setter interface {
	SetSysctl(key, value string) error
}

// Flatten turns obj into assignments in member order. Values may be
// booleans ("1"/"0"), strings or numbers (literal text). A non-empty
// prefix is joined to every key with ".".
func Flatten(obj *config.Node, prefix, loc string) ([]Assignment, error) {
	if err := schema.Expect(obj, config.KindObject, loc); err != nil {
		return nil, err
	}
	out := make([]Assignment, 0, len(obj.Members))
	for _, m := range obj.Members {
		var val string
		switch v := m.Value; {
		case v == nil:
			return nil, fmt.Errorf("%s: invalid type for key %q: NULL", loc, m.Name)
		case v.Kind == config.KindBool && v.Bool:
			val = "1"
		case v.Kind == config.KindBool:
			val = "0"
		case v.Kind == config.KindString, v.Kind == config.KindNumber:
			val = v.Str
		default:
			return nil, fmt.Errorf("%s: invalid type for key %q: %s", loc, m.Name, v.Kind)
		}
		key := m.Name
		if prefix != "" {
			key = prefix + "." + key
		}
		out = append(out, Assignment{Key: key, Value: val})
	}
	return out, nil
}

// Apply writes each assignment in order and stops at the first failure.
func Apply(s Setter, as []Assignment) error {
	for _, a := range as {
		if err := s.SetSysctl(a.Key, a.Value); err != nil {
			return fmt.Errorf("error writing sysctl key %q: %w", a.Key, err)
		}
		slog.Debug("sysctl set", "key", a.Key, "value", a.Value)
	}
	return nil
}

// Translator applies the global "netbsd.sysctl" object. Assignments that
// were written are kept for the caller.
type Translator struct {
	sys     Setter
	applied []Assignment
}

// NewTranslator returns a Translator writing through s.
func NewTranslator(s Setter) *Translator {
	return &Translator{sys: s}
}

// Table returns the handlers of the "netbsd" object.
func (t *Translator) Table() schema.Table {
	return schema.Table{
		{Name: "sysctl", Apply: t.handleSysctl},
	}
}

func (t *Translator) handleSysctl(_ context.Context, m config.Member, loc string) error {
	as, err := Flatten(m.Value, "", schema.Join(loc, m.Name))
	if err != nil {
		return err
	}
	for _, a := range as {
		if err := Apply(t.sys, []Assignment{a}); err != nil {
			return err
		}
		t.applied = append(t.applied, a)
	}
	return nil
}

// Applied returns the assignments written so far, in order.
func (t *Translator) Applied() []Assignment {
	return append([]Assignment(nil), t.applied...)
}
