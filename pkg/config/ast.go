package config

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a document node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindString
	KindNumber
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOLEAN"
	case KindString:
		return "STRING"
	case KindNumber:
		return "NUMBER"
	case KindArray:
		return "ARRAY"
	case KindObject:
		return "OBJECT"
	default:
		return "UNKNOWN"
	}
}

// Member is one name/value pair of an object node.
type Member struct {
	Name  string
	Value *Node
}

// Node is one value in a parsed configuration document.
//
// Object members keep document order and may repeat a name: legacy
// generators emit duplicate keys and every occurrence must be applied.
type Node struct {
	Kind Kind

	// Str holds the decoded text of a string, or the literal text of a number.
	Str string

	// Bool holds the value of a boolean node.
	Bool bool

	// Elems are the elements of an array node.
	Elems []*Node

	// Members are the pairs of an object node.
	Members []Member

	// Line/Column where this node starts (for error reporting).
	// Zero for nodes built in code.
	Line   int
	Column int
}

// Lookup returns the value of the first member called name, or nil.
func (n *Node) Lookup(name string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	for _, m := range n.Members {
		if m.Name == name {
			return m.Value
		}
	}
	return nil
}

// Pos returns "line:column", or "" when the node carries no position.
func (n *Node) Pos() string {
	if n == nil || n.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", n.Line, n.Column)
}

// String renders a compact, single-line form of the node for diagnostics.
func (n *Node) String() string {
	var b strings.Builder
	writeCompact(&b, n)
	return b.String()
}

// Null returns a null node.
func Null() *Node { return &Node{Kind: KindNull} }

// Bool returns a boolean node.
func Bool(v bool) *Node { return &Node{Kind: KindBool, Bool: v} }

// String returns a string node.
func String(s string) *Node { return &Node{Kind: KindString, Str: s} }

// Number returns a number node with the given literal text.
func Number(lit string) *Node { return &Node{Kind: KindNumber, Str: lit} }

// Array returns an array node holding elems.
func Array(elems ...*Node) *Node {
	return &Node{Kind: KindArray, Elems: elems}
}

// Object returns an object node holding members in the given order.
func Object(members ...Member) *Node {
	return &Node{Kind: KindObject, Members: members}
}

// M is shorthand for a Member literal.
func M(name string, v *Node) Member {
	return Member{Name: name, Value: v}
}

// Strings returns an array node of string nodes.
func Strings(vals ...string) *Node {
	elems := make([]*Node, len(vals))
	for i, v := range vals {
		elems[i] = String(v)
	}
	return Array(elems...)
}
