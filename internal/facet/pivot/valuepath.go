package pivot

import (
	"fmt"
	"strings"
)

// Segment is one element of a value path. Null marks the bucket of documents
// that have no value for the level's field, which is distinct from an empty
// string value.
type Segment struct {
	Value string
	Null  bool
}

// ValuePath addresses a pivot node by the values leading to it from the root.
type ValuePath []Segment

// Append returns a new path extended by seg; p is left untouched.
func (p ValuePath) Append(seg Segment) ValuePath {
	out := make(ValuePath, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// HasPrefix reports whether prefix matches the start of p.
func (p ValuePath) HasPrefix(prefix ValuePath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if p[i] != seg {
			return false
		}
	}
	return true
}

// Encode renders the path for the wire: '^' for a null segment, '~' followed
// by the text (with ',' and '\' backslash-escaped) otherwise, segments joined
// by ','. The empty path encodes as "".
func (p ValuePath) Encode() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		if seg.Null {
			b.WriteByte('^')
			continue
		}
		b.WriteByte('~')
		for _, r := range seg.Value {
			if r == ',' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (p ValuePath) String() string { return p.Encode() }

// DecodeValuePath parses the output of Encode.
func DecodeValuePath(s string) (ValuePath, error) {
	if s == "" {
		return ValuePath{}, nil
	}
	var (
		out     ValuePath
		raw     []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			raw = append(raw, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		return nil, fmt.Errorf("value path %q: dangling escape", s)
	}
	raw = append(raw, cur.String())

	for _, seg := range raw {
		switch {
		case seg == "^":
			out = append(out, Segment{Null: true})
		case strings.HasPrefix(seg, "~"):
			out = append(out, Segment{Value: seg[1:]})
		default:
			return nil, fmt.Errorf("value path %q: malformed segment %q", s, seg)
		}
	}
	return out, nil
}
