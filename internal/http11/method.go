package http11

import "strings"

// Method is one of the seven recognized request methods.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodOptions
)

const (
	methodGetString     = "GET"
	methodHeadString    = "HEAD"
	methodPostString    = "POST"
	methodPutString     = "PUT"
	methodDeleteString  = "DELETE"
	methodPatchString   = "PATCH"
	methodOptionsString = "OPTIONS"
)

// ParseMethod maps a case-sensitive method token onto a Method.
// Unrecognized tokens yield MethodUnknown.
func ParseMethod(b []byte) Method {
	switch len(b) {
	case 3:
		switch string(b) {
		case methodGetString:
			return MethodGet
		case methodPutString:
			return MethodPut
		}
	case 4:
		switch string(b) {
		case methodPostString:
			return MethodPost
		case methodHeadString:
			return MethodHead
		}
	case 5:
		if string(b) == methodPatchString {
			return MethodPatch
		}
	case 6:
		if string(b) == methodDeleteString {
			return MethodDelete
		}
	case 7:
		if string(b) == methodOptionsString {
			return MethodOptions
		}
	}

	return MethodUnknown
}

// ParseMethodString is ParseMethod for strings.
func ParseMethodString(s string) Method {
	return ParseMethod([]byte(s))
}

// String returns the wire token of the method.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return methodGetString
	case MethodHead:
		return methodHeadString
	case MethodPost:
		return methodPostString
	case MethodPut:
		return methodPutString
	case MethodDelete:
		return methodDeleteString
	case MethodPatch:
		return methodPatchString
	case MethodOptions:
		return methodOptionsString
	default:
		return ""
	}
}

// AllowsImplicitEmptyBody reports whether a request with this method and no
// framing headers has an empty body.
func (m Method) AllowsImplicitEmptyBody() bool {
	return m == MethodGet || m == MethodHead || m == MethodDelete
}

// MethodSet is a bitmask of methods.
type MethodSet uint16

// NewMethodSet builds a set from the given methods.
func NewMethodSet(methods ...Method) MethodSet {
	var s MethodSet
	for _, m := range methods {
		s = s.With(m)
	}
	return s
}

// With returns s plus m.
func (s MethodSet) With(m Method) MethodSet {
	if m == MethodUnknown {
		return s
	}
	return s | 1<<m
}

// Has reports whether m is in the set.
func (s MethodSet) Has(m Method) bool {
	return m != MethodUnknown && s&(1<<m) != 0
}

// Empty reports whether the set has no methods.
func (s MethodSet) Empty() bool {
	return s == 0
}

// allowOrder is the order methods are listed in an Allow header.
var allowOrder = [...]Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions}

// Methods returns the members of the set in Allow order.
func (s MethodSet) Methods() []Method {
	out := make([]Method, 0, len(allowOrder))
	for _, m := range allowOrder {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// Allow renders the value of an Allow header for a pattern whose registered
// methods are s. HEAD is listed whenever GET is present.
func (s MethodSet) Allow() string {
	if s.Has(MethodGet) {
		s = s.With(MethodHead)
	}

	methods := s.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}

	return strings.Join(names, ", ")
}

// String is the Allow rendering without the implicit HEAD.
func (s MethodSet) String() string {
	methods := s.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}

	return strings.Join(names, ",")
}
