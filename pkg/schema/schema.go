// Package schema applies per-key handlers to configuration objects in a
// declared priority order.
//
// Objects carry no meaningful key order, yet boot setup must happen in
// dependency order (sysctls before programs, block devices before mounts).
// Dispatch therefore walks the handler table, not the object: each table
// slot runs once for every matching member, in document order, so
// duplicate keys compose instead of overwriting one another.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/psaab/bootcfg/pkg/config"
)

// ErrUnknownKey marks a key that a fully specified sub-schema does not accept.
var ErrUnknownKey = errors.New("unexpected key")

// HandlerFunc applies one member of an object. loc names the enclosing
// object for diagnostics.
type HandlerFunc func(ctx context.Context, m config.Member, loc string) error

// Handler binds a key name to the function that applies it.
type Handler struct {
	Name  string
	Apply HandlerFunc
}

// Table is an ordered handler list. Slice order is execution priority.
type Table []Handler

// Has reports whether any handler in t is bound to name.
func (t Table) Has(name string) bool {
	for _, h := range t {
		if h.Name == name {
			return true
		}
	}
	return false
}

// Names returns the handler names in priority order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, h := range t {
		names[i] = h.Name
	}
	return names
}

// Dispatch applies t to the members of obj in two passes.
//
// Pass 1 warns about every member no handler accepts and changes nothing.
// Pass 2 runs the handlers in table order; each handler sees every
// member carrying its name, in document order. The first handler error
// aborts the walk. Effects of handlers that already ran stay in place.
func Dispatch(ctx context.Context, d *Diagnostics, obj *config.Node, t Table, loc string) error {
	if err := Expect(obj, config.KindObject, loc); err != nil {
		return err
	}

	for _, m := range obj.Members {
		if !t.Has(m.Name) {
			d.Warn(loc, m.Name, "no match for key, ignored")
		}
	}

	for _, h := range t {
		for _, m := range obj.Members {
			if m.Name != h.Name {
				continue
			}
			if err := h.Apply(ctx, m, loc); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sub returns a HandlerFunc that dispatches the member's value against t,
// using the member name as the nested location.
func Sub(d *Diagnostics, t Table) HandlerFunc {
	return func(ctx context.Context, m config.Member, loc string) error {
		return Dispatch(ctx, d, m.Value, t, Join(loc, m.Name))
	}
}

// UnknownKey returns the fatal error for a key a strict sub-schema rejects.
func UnknownKey(loc, key string) error {
	return fmt.Errorf("%s: %w %q", loc, ErrUnknownKey, key)
}

// Join appends a path element to a diagnostic location.
func Join(loc, elem string) string {
	if loc == "" {
		return elem
	}
	return loc + "." + elem
}
