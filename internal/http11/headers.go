package http11

import (
	"strconv"
	"strings"
)

// Header is one name/value pair as received or as to be sent.
type Header struct {
	Name  string
	Value string
}

// Headers is an order-preserving multimap with case-insensitive lookup.
// Names keep their original case for echo; duplicates are never collapsed.
type Headers struct {
	list  []Header
	index map[string][]int
}

func foldName(name string) string {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if 'A' <= c && c <= 'Z' {
			return strings.ToLower(name)
		}
	}
	return name
}

// Add appends a header, keeping any existing values.
func (h *Headers) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
	key := foldName(name)
	h.index[key] = append(h.index[key], len(h.list))
	h.list = append(h.list, Header{Name: name, Value: value})
}

// Set replaces all values of name with a single value.
func (h *Headers) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the first value for name, or "".
func (h *Headers) Get(name string) string {
	if idx := h.index[foldName(name)]; len(idx) > 0 {
		return h.list[idx[0]].Value
	}
	return ""
}

// Has reports whether at least one value for name is present.
func (h *Headers) Has(name string) bool {
	return len(h.index[foldName(name)]) > 0
}

// Values returns every value for name in arrival order.
func (h *Headers) Values(name string) []string {
	idx := h.index[foldName(name)]
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = h.list[j].Value
	}
	return out
}

// Del removes every value for name.
func (h *Headers) Del(name string) {
	key := foldName(name)
	if len(h.index[key]) == 0 {
		return
	}

	kept := h.list[:0]
	for _, hdr := range h.list {
		if foldName(hdr.Name) != key {
			kept = append(kept, hdr)
		}
	}
	h.list = kept
	h.reindex()
}

func (h *Headers) reindex() {
	clear(h.index)
	for i, hdr := range h.list {
		key := foldName(hdr.Name)
		h.index[key] = append(h.index[key], i)
	}
}

// Len returns the number of header lines.
func (h *Headers) Len() int {
	return len(h.list)
}

// All returns the headers in order. The slice must not be modified.
func (h *Headers) All() []Header {
	return h.list
}

// Reset empties the headers while keeping allocated storage.
func (h *Headers) Reset() {
	h.list = h.list[:0]
	clear(h.index)
}

// ContentLength parses the Content-Length header. ok is false when the
// header is absent or malformed.
func (h *Headers) ContentLength() (n int64, ok bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := parseContentLength(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseContentLength accepts only ASCII digits.
func parseContentLength(v string) (int64, error) {
	if v == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(v, 10, 64)
}
