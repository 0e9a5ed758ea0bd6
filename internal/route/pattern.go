// Package route compiles route patterns and matches request paths against
// them.
//
// A pattern is an ordered list of segments: static text, a dynamic
// placeholder written [name] that binds exactly one path segment, or a
// terminal catch-all written [...name] that binds one or more remaining
// segments joined by "/". Patterns are stored in a Trie whose lookup
// prefers static over dynamic over catch-all children at every position.
package route

import (
	"strings"

	"github.com/conneroisu/volki/internal/errors"
)

// SegmentKind classifies a pattern segment.
type SegmentKind uint8

const (
	SegmentStatic SegmentKind = iota
	SegmentDynamic
	SegmentCatchAll
)

// String returns the kind name.
func (k SegmentKind) String() string {
	switch k {
	case SegmentStatic:
		return "static"
	case SegmentDynamic:
		return "dynamic"
	case SegmentCatchAll:
		return "catch-all"
	default:
		return "unknown"
	}
}

// Segment is one element of a Pattern. For static segments Name is the
// literal text; otherwise it is the parameter name.
type Segment struct {
	Kind SegmentKind
	Name string
}

// String renders the segment in pattern syntax.
func (s Segment) String() string {
	switch s.Kind {
	case SegmentDynamic:
		return "[" + s.Name + "]"
	case SegmentCatchAll:
		return "[..." + s.Name + "]"
	default:
		return s.Name
	}
}

// Pattern is a parsed route pattern. The zero value is the root "/".
type Pattern struct {
	Segments []Segment
}

// String renders the pattern, always with a leading "/".
func (p Pattern) String() string {
	if len(p.Segments) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range p.Segments {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// ParamNames returns the names of the dynamic and catch-all segments in
// order.
func (p Pattern) ParamNames() []string {
	var names []string
	for _, s := range p.Segments {
		if s.Kind != SegmentStatic {
			names = append(names, s.Name)
		}
	}
	return names
}

// IsStatic reports whether the pattern has no placeholders.
func (p Pattern) IsStatic() bool {
	for _, s := range p.Segments {
		if s.Kind != SegmentStatic {
			return false
		}
	}
	return true
}

// Concrete fills every placeholder from values and returns a request path
// the pattern matches. Missing values become "x".
func (p Pattern) Concrete(values map[string]string) string {
	if len(p.Segments) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range p.Segments {
		b.WriteByte('/')
		if s.Kind == SegmentStatic {
			b.WriteString(s.Name)
			continue
		}
		v := values[s.Name]
		if v == "" {
			v = "x"
		}
		b.WriteString(v)
	}
	return b.String()
}

// ParsePattern parses a pattern string. Leading and trailing slashes are
// ignored; "" and "/" are the root.
func ParsePattern(s string) (Pattern, error) {
	const op = "route.ParsePattern"

	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return Pattern{}, nil
	}

	parts := strings.Split(trimmed, "/")
	p := Pattern{Segments: make([]Segment, 0, len(parts))}
	seen := make(map[string]struct{}, len(parts))

	for i, part := range parts {
		if part == "" {
			return Pattern{}, errors.Newf(errors.KindBadPattern, op, "empty segment in %q", s)
		}

		seg, problem := parseSegment(part)
		if problem != "" {
			return Pattern{}, errors.Newf(errors.KindBadPattern, op, "placeholder %q %s in %q", part, problem, s)
		}

		if seg.Kind == SegmentCatchAll && i != len(parts)-1 {
			return Pattern{}, errors.Newf(errors.KindBadPattern, op, "catch-all %s must be the final segment of %q", seg, s)
		}

		if seg.Kind != SegmentStatic {
			if _, dup := seen[seg.Name]; dup {
				return Pattern{}, errors.Newf(errors.KindBadPattern, op, "parameter %q used twice in %q", seg.Name, s)
			}
			seen[seg.Name] = struct{}{}
		}

		p.Segments = append(p.Segments, seg)
	}

	return p, nil
}

// MustParsePattern is ParsePattern for patterns known to be valid.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// parseSegment classifies one segment. A non-empty problem describes why
// a placeholder is malformed.
func parseSegment(part string) (seg Segment, problem string) {
	if !strings.HasPrefix(part, "[") {
		return Segment{Kind: SegmentStatic, Name: part}, ""
	}

	if !strings.HasSuffix(part, "]") {
		return Segment{}, "lacks a closing bracket"
	}

	inner := part[1 : len(part)-1]
	kind := SegmentDynamic
	if rest, ok := strings.CutPrefix(inner, "..."); ok {
		kind = SegmentCatchAll
		inner = rest
	}

	if inner == "" {
		return Segment{}, "has no name"
	}
	if strings.ContainsAny(inner, "[]") {
		return Segment{}, "has an invalid name"
	}

	return Segment{Kind: kind, Name: inner}, ""
}

// FilePathToPattern translates a handler file path, relative to its
// pages/ or api/ subtree and slash-separated, into a pattern. The
// extension is stripped and "index" segments drop out.
func FilePathToPattern(rel, ext string) (Pattern, error) {
	rel = strings.TrimSuffix(strings.Trim(rel, "/"), ext)

	parts := strings.Split(rel, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "index" {
			continue
		}
		kept = append(kept, part)
	}

	return ParsePattern("/" + strings.Join(kept, "/"))
}

// WithPrefix returns a copy of p with static segments for prefix prepended.
func (p Pattern) WithPrefix(prefix ...string) Pattern {
	segs := make([]Segment, 0, len(prefix)+len(p.Segments))
	for _, s := range prefix {
		segs = append(segs, Segment{Kind: SegmentStatic, Name: s})
	}
	segs = append(segs, p.Segments...)
	return Pattern{Segments: segs}
}

// SplitPath splits a request path into segments. Leading and trailing
// slashes are ignored, so "/a/" and "/a" are equivalent and "/" has no
// segments.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
