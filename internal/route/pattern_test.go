package route

import (
	"testing"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in   string
		want []Segment
	}{
		{"/", nil},
		{"", nil},
		{"/about", []Segment{{SegmentStatic, "about"}}},
		{"/users/[id]/", []Segment{{SegmentStatic, "users"}, {SegmentDynamic, "id"}}},
		{"docs/[...path]", []Segment{{SegmentStatic, "docs"}, {SegmentCatchAll, "path"}}},
		{"/a]b/[x]", []Segment{{SegmentStatic, "a]b"}, {SegmentDynamic, "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePattern(tt.in)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, p.Segments)
			} else {
				assert.Equal(t, tt.want, p.Segments)
			}
		})
	}
}

func TestParsePatternErrors(t *testing.T) {
	tests := []struct {
		in      string
		message string
	}{
		{"/a//b", "empty segment"},
		{"/[...rest]/tail", "must be the final segment"},
		{"/[id", "lacks a closing bracket"},
		{"/[]", "has no name"},
		{"/[...]", "has no name"},
		{"/[id]/[id]", "used twice"},
		{"/[id]/[...id]", "used twice"},
		{"/[a[b]", "invalid name"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParsePattern(tt.in)
			require.Error(t, err)
			assert.Equal(t, errors.KindBadPattern, errors.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestPatternString(t *testing.T) {
	for _, s := range []string{"/", "/about", "/users/[id]", "/docs/[...path]", "/api/users/[id]/posts"} {
		p := MustParsePattern(s)
		assert.Equal(t, s, p.String())
	}
	assert.Equal(t, []string{"id", "path"}, MustParsePattern("/u/[id]/[...path]").ParamNames())
	assert.True(t, MustParsePattern("/a/b").IsStatic())
	assert.False(t, MustParsePattern("/a/[b]").IsStatic())
}

func TestFilePathToPattern(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"index.volki", "/"},
		{"about.volki", "/about"},
		{"users/index.volki", "/users"},
		{"users/[id].volki", "/users/[id]"},
		{"users/[id]/index.volki", "/users/[id]"},
		{"docs/[...path].volki", "/docs/[...path]"},
		{"blog/[year]/[slug].volki", "/blog/[year]/[slug]"},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			p, err := FilePathToPattern(tt.rel, ".volki")
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}

	_, err := FilePathToPattern("[...a]/b.volki", ".volki")
	assert.Equal(t, errors.KindBadPattern, errors.KindOf(err))
}

func TestWithPrefixAndConcrete(t *testing.T) {
	p := MustParsePattern("/users/[id]").WithPrefix("api")
	assert.Equal(t, "/api/users/[id]", p.String())
	assert.Equal(t, "/api", Pattern{}.WithPrefix("api").String())

	assert.Equal(t, "/api/users/7", p.Concrete(map[string]string{"id": "7"}))
	assert.Equal(t, "/api/users/x", p.Concrete(nil))
	assert.Equal(t, "/", Pattern{}.Concrete(nil))
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, SplitPath("/"))
	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"a"}, SplitPath("/a/"))
	assert.Equal(t, []string{"a"}, SplitPath("/a"))
	assert.Equal(t, []string{"a", "", "b"}, SplitPath("/a//b"))
}

func FuzzParsePattern(f *testing.F) {
	for _, seed := range []string{"/", "/users/[id]", "/docs/[...p]", "/[a]/[a]", "/[x", "//"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, s string) {
		p, err := ParsePattern(s)
		if err != nil {
			if errors.KindOf(err) != errors.KindBadPattern {
				t.Fatalf("unexpected kind for %q: %v", s, err)
			}
			return
		}

		again, err := ParsePattern(p.String())
		if err != nil {
			t.Fatalf("re-parse of %q failed: %v", p.String(), err)
		}
		if again.String() != p.String() {
			t.Fatalf("round trip changed %q to %q", p.String(), again.String())
		}
	})
}
