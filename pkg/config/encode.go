package config

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Compact renders n as single-line JSON. Member order and duplicate
// names are kept, which encoding/json cannot do from a map, so the
// output is suitable for pasting into a boot command line.
func Compact(n *Node) []byte {
	var b strings.Builder
	writeCompact(&b, n)
	return []byte(b.String())
}

func writeCompact(b *strings.Builder, n *Node) {
	if n == nil {
		b.WriteString("null")
		return
	}
	switch n.Kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		if n.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindString:
		writeQuoted(b, n.Str)
	case KindNumber:
		b.WriteString(n.Str)
	case KindArray:
		b.WriteByte('[')
		for i, e := range n.Elems {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCompact(b, e)
		}
		b.WriteByte(']')
	case KindObject:
		b.WriteByte('{')
		for i, m := range n.Members {
			if i > 0 {
				b.WriteByte(',')
			}
			writeQuoted(b, m.Name)
			b.WriteByte(':')
			writeCompact(b, m.Value)
		}
		b.WriteByte('}')
	}
}

func writeQuoted(b *strings.Builder, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	b.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
