//go:build property
// +build property

package http11

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRequestRoundTripProperties checks that serializing a parsed
// well-formed request reproduces its bytes.
func TestRequestRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("serialize(parse(bytes)) == bytes", prop.ForAll(
		func(method string, segments []string, names []string, values []string, body string) bool {
			var raw strings.Builder
			raw.WriteString(method)
			raw.WriteString(" /")
			raw.WriteString(strings.Join(segments, "/"))
			raw.WriteString(" HTTP/1.1\r\n")
			for i, name := range names {
				if i >= len(values) {
					break
				}
				fmt.Fprintf(&raw, "X-%s: %s\r\n", name, values[i])
			}
			if body != "" {
				fmt.Fprintf(&raw, "Content-Length: %d\r\n", len(body))
			}
			raw.WriteString("\r\n")
			raw.WriteString(body)

			req, err := NewParser(strings.NewReader(raw.String()), DefaultLimits()).ReadRequest()
			if err != nil {
				return false
			}

			var out bytes.Buffer
			if _, err := req.WriteTo(&out); err != nil {
				return false
			}
			return out.String() == raw.String()
		},
		gen.OneConstOf("GET", "HEAD", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"),
		gen.SliceOfN(4, gen.RegexMatch(`^[a-z0-9_-]{1,12}$`)),
		gen.SliceOfN(5, gen.RegexMatch(`^[A-Za-z][A-Za-z0-9-]{0,15}$`)),
		gen.SliceOfN(5, gen.RegexMatch(`^[!-~]([ -~]{0,30}[!-~])?$`)),
		gen.AlphaString(),
	))

	properties.Property("header names are case-insensitive on lookup", prop.ForAll(
		func(name, value string) bool {
			raw := "GET / HTTP/1.1\r\nX-" + name + ": " + value + "\r\n\r\n"
			req, err := NewParser(strings.NewReader(raw), DefaultLimits()).ReadRequest()
			if err != nil {
				return false
			}
			return req.Header(strings.ToUpper("x-"+name)) == value &&
				req.Header(strings.ToLower("x-"+name)) == value
		},
		gen.RegexMatch(`^[A-Za-z][A-Za-z0-9]{0,10}$`),
		gen.RegexMatch(`^[a-z0-9]{1,20}$`),
	))

	properties.TestingRun(t)
}
