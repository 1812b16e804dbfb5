package schema

import (
	"fmt"

	"github.com/psaab/bootcfg/pkg/config"
)

// KindError reports a node whose kind differs from what a handler requires.
type KindError struct {
	Loc  string
	Want config.Kind
	Got  config.Kind
	Pos  string
}

func (e *KindError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("%s: expected %s, got %s (at %s)", e.Loc, e.Want, e.Got, e.Pos)
	}
	return fmt.Sprintf("%s: expected %s, got %s", e.Loc, e.Want, e.Got)
}

// Expect returns a *KindError unless n has kind want. A nil node counts
// as NULL.
func Expect(n *config.Node, want config.Kind, loc string) error {
	got := config.KindNull
	if n != nil {
		got = n.Kind
	}
	if got == want {
		return nil
	}
	return &KindError{Loc: loc, Want: want, Got: got, Pos: n.Pos()}
}

// ExpectString asserts a string node and returns its value.
func ExpectString(n *config.Node, loc string) (string, error) {
	if err := Expect(n, config.KindString, loc); err != nil {
		return "", err
	}
	return n.Str, nil
}

// ExpectStrings asserts an array of string nodes and returns the values.
func ExpectStrings(n *config.Node, loc string) ([]string, error) {
	if err := Expect(n, config.KindArray, loc); err != nil {
		return nil, err
	}
	vals := make([]string, 0, len(n.Elems))
	for i, e := range n.Elems {
		s, err := ExpectString(e, fmt.Sprintf("%s[%d]", loc, i))
		if err != nil {
			return nil, err
		}
		vals = append(vals, s)
	}
	return vals, nil
}
