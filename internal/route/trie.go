package route

import (
	"strings"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
)

// Entry is one registered route: a pattern, the methods it accepts and the
// handler it dispatches to.
type Entry[H any] struct {
	Pattern Pattern
	Methods http11.MethodSet
	Handler H
}

// Match is the result of a successful lookup.
type Match[H any] struct {
	Entry *Entry[H]
	// Params holds raw, still percent-encoded, parameter values.
	Params map[string]string
	// HeadFallback is set when a HEAD request was answered by the GET
	// entry and the body must be suppressed.
	HeadFallback bool
}

const noNode = -1

// node is one trie position. Children are indices into Trie.nodes.
type node struct {
	static   map[string]int
	dynamic  int
	catchAll int
	// entries indexes Trie.entries; non-empty only at terminals.
	entries []int
	methods http11.MethodSet
}

func newNode() node {
	return node{dynamic: noNode, catchAll: noNode}
}

// Trie matches request paths against registered patterns. It is built
// single-threaded, frozen, and then safe for concurrent lookups.
type Trie[H any] struct {
	nodes   []node
	entries []Entry[H]
	frozen  bool
}

// NewTrie returns an empty trie holding only the root.
func NewTrie[H any]() *Trie[H] {
	return &Trie[H]{nodes: []node{newNode()}}
}

// Insert registers e. Registering the same (pattern, method) twice fails,
// as does inserting into a frozen trie.
func (t *Trie[H]) Insert(e Entry[H]) error {
	const op = "route.Insert"

	if t.frozen {
		return errors.New(errors.KindBadPattern, op, "route table is frozen")
	}
	if e.Methods.Empty() {
		return errors.Newf(errors.KindBadPattern, op, "%s registers no methods", e.Pattern)
	}

	cur := 0
	for _, seg := range e.Pattern.Segments {
		cur = t.child(cur, seg)
	}

	n := &t.nodes[cur]
	if dup := n.methods & e.Methods; !dup.Empty() {
		return errors.Newf(errors.KindBadPattern, op, "duplicate route %s %s", dup.String(), e.Pattern)
	}

	n.methods |= e.Methods
	n.entries = append(n.entries, len(t.entries))
	t.entries = append(t.entries, e)
	return nil
}

// child returns the child of parent for seg, creating it if needed.
func (t *Trie[H]) child(parent int, seg Segment) int {
	switch seg.Kind {
	case SegmentDynamic:
		if next := t.nodes[parent].dynamic; next != noNode {
			return next
		}
		next := t.alloc()
		t.nodes[parent].dynamic = next
		return next
	case SegmentCatchAll:
		if next := t.nodes[parent].catchAll; next != noNode {
			return next
		}
		next := t.alloc()
		t.nodes[parent].catchAll = next
		return next
	default:
		if next, ok := t.nodes[parent].static[seg.Name]; ok {
			return next
		}
		next := t.alloc()
		if t.nodes[parent].static == nil {
			t.nodes[parent].static = make(map[string]int)
		}
		t.nodes[parent].static[seg.Name] = next
		return next
	}
}

func (t *Trie[H]) alloc() int {
	t.nodes = append(t.nodes, newNode())
	return len(t.nodes) - 1
}

// Freeze makes the trie read-only.
func (t *Trie[H]) Freeze() {
	t.frozen = true
}

// Len returns the number of registered entries.
func (t *Trie[H]) Len() int {
	return len(t.entries)
}

// Entries returns the registered entries in insertion order.
func (t *Trie[H]) Entries() []Entry[H] {
	out := make([]Entry[H], len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup resolves method and path.
//
// At each position a static child is tried first, then the dynamic child,
// then the catch-all child, which must consume at least one segment. A
// branch that dead-ends falls back to the next candidate. The first
// terminal reached decides the outcome: a HEAD request with only a GET
// entry uses GET with HeadFallback set, and any other missing method fails
// with KindMethodNotAllowed carrying the Allow value in the "allow"
// context key. No terminal at all fails with KindNoRoute.
func (t *Trie[H]) Lookup(method http11.Method, path string) (Match[H], error) {
	const op = "route.Lookup"

	segs := SplitPath(path)
	term := t.walk(0, segs)
	if term == noNode {
		return Match[H]{}, errors.Newf(errors.KindNoRoute, op, "no route for %s", path)
	}

	n := &t.nodes[term]
	headFallback := false
	want := method
	if !n.methods.Has(method) {
		if method == http11.MethodHead && n.methods.Has(http11.MethodGet) {
			want = http11.MethodGet
			headFallback = true
		} else {
			return Match[H]{}, errors.Newf(errors.KindMethodNotAllowed, op, "%s not allowed for %s", method, path).
				WithContext("allow", n.methods.Allow())
		}
	}

	for _, idx := range n.entries {
		e := &t.entries[idx]
		if e.Methods.Has(want) {
			return Match[H]{Entry: e, Params: bind(e.Pattern, segs), HeadFallback: headFallback}, nil
		}
	}

	// methods is the union of the entries' sets, so this is unreachable.
	return Match[H]{}, errors.Newf(errors.KindNoRoute, op, "no route for %s", path)
}

// walk returns the terminal node matching segs below cur, or noNode.
func (t *Trie[H]) walk(cur int, segs []string) int {
	n := &t.nodes[cur]

	if len(segs) == 0 {
		if len(n.entries) > 0 {
			return cur
		}
		return noNode
	}

	seg := segs[0]

	if next, ok := n.static[seg]; ok {
		if term := t.walk(next, segs[1:]); term != noNode {
			return term
		}
	}

	if n.dynamic != noNode && seg != "" {
		if term := t.walk(n.dynamic, segs[1:]); term != noNode {
			return term
		}
	}

	if n.catchAll != noNode && len(t.nodes[n.catchAll].entries) > 0 {
		return n.catchAll
	}

	return noNode
}

// bind maps p's placeholder names onto the aligned path segments.
func bind(p Pattern, segs []string) map[string]string {
	var params map[string]string
	for i, s := range p.Segments {
		switch s.Kind {
		case SegmentDynamic:
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[s.Name] = segs[i]
		case SegmentCatchAll:
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[s.Name] = strings.Join(segs[i:], "/")
		}
	}
	return params
}
