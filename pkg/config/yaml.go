package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// maxYAMLNodes bounds the tree built from a YAML document. Aliases are
// expanded at every reference, so a short document can otherwise name an
// exponential number of nodes.
const maxYAMLNodes = 1 << 16

// ParseYAML reads a YAML-authored document into the same Node tree the
// JSON parser produces. Decoding into yaml.Node keeps mapping order and
// duplicate keys, so both readers feed the dispatcher identically.
func ParseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("parse yaml: empty document")
	}
	var b yamlBuilder
	return b.node(&doc, 0)
}

type yamlBuilder struct {
	nodes int
}

func (b *yamlBuilder) node(y *yaml.Node, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, yamlErr(y, "nesting deeper than %d", maxDepth)
	}
	if b.nodes++; b.nodes > maxYAMLNodes {
		return nil, yamlErr(y, "document expands to more than %d nodes", maxYAMLNodes)
	}
	var n *Node
	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) != 1 {
			return nil, yamlErr(y, "expected one document")
		}
		return b.node(y.Content[0], depth)
	case yaml.AliasNode:
		return b.node(y.Alias, depth+1)
	case yaml.MappingNode:
		n = &Node{Kind: KindObject}
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, yamlErr(k, "mapping key must be a scalar")
			}
			child, err := b.node(v, depth+1)
			if err != nil {
				return nil, err
			}
			n.Members = append(n.Members, Member{Name: k.Value, Value: child})
		}
	case yaml.SequenceNode:
		n = &Node{Kind: KindArray}
		for _, e := range y.Content {
			child, err := b.node(e, depth+1)
			if err != nil {
				return nil, err
			}
			n.Elems = append(n.Elems, child)
		}
	case yaml.ScalarNode:
		switch y.ShortTag() {
		case "!!null":
			n = Null()
		case "!!bool":
			var v bool
			if err := y.Decode(&v); err != nil {
				return nil, yamlErr(y, "%v", err)
			}
			n = Bool(v)
		case "!!int", "!!float":
			n = Number(y.Value)
		default:
			n = String(y.Value)
		}
	default:
		return nil, yamlErr(y, "unsupported yaml node kind %d", y.Kind)
	}
	n.Line, n.Column = y.Line, y.Column
	return n, nil
}

func yamlErr(y *yaml.Node, format string, args ...any) error {
	return &SyntaxError{Line: y.Line, Column: y.Column, Msg: fmt.Sprintf(format, args...)}
}
