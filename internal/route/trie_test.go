package route

import (
	"testing"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	get     = http11.NewMethodSet(http11.MethodGet)
	post    = http11.NewMethodSet(http11.MethodPost)
	getHead = http11.NewMethodSet(http11.MethodGet, http11.MethodHead)
)

func buildTrie(t *testing.T, routes map[string]http11.MethodSet) *Trie[string] {
	t.Helper()
	trie := NewTrie[string]()
	for pattern, methods := range routes {
		require.NoError(t, trie.Insert(Entry[string]{
			Pattern: MustParsePattern(pattern),
			Methods: methods,
			Handler: pattern,
		}))
	}
	trie.Freeze()
	return trie
}

func TestLookupScenarios(t *testing.T) {
	trie := buildTrie(t, map[string]http11.MethodSet{
		"/":               getHead,
		"/about":          getHead,
		"/users/[id]":     getHead,
		"/docs/[...path]": getHead,
	})

	tests := []struct {
		path    string
		handler string
		params  map[string]string
	}{
		{"/", "/", nil},
		{"/about", "/about", nil},
		{"/about/", "/about", nil},
		{"/users/42", "/users/[id]", map[string]string{"id": "42"}},
		{"/docs/a/b/c", "/docs/[...path]", map[string]string{"path": "a/b/c"}},
		{"/docs/a", "/docs/[...path]", map[string]string{"path": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, err := trie.Lookup(http11.MethodGet, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.handler, m.Entry.Handler)
			assert.Equal(t, tt.params, m.Params)
			assert.False(t, m.HeadFallback)
		})
	}
}

func TestLookupNoRoute(t *testing.T) {
	trie := buildTrie(t, map[string]http11.MethodSet{
		"/users/[id]":     getHead,
		"/docs/[...path]": getHead,
	})

	for _, path := range []string{"/docs", "/users", "/users/1/extra", "/static/app.css", "/"} {
		t.Run(path, func(t *testing.T) {
			_, err := trie.Lookup(http11.MethodGet, path)
			require.Error(t, err)
			assert.Equal(t, errors.KindNoRoute, errors.KindOf(err))
		})
	}
}

func TestLookupLiteralBeatsDynamicBeatsCatchAll(t *testing.T) {
	trie := buildTrie(t, map[string]http11.MethodSet{
		"/users/new":      get,
		"/users/[id]":     get,
		"/users/[...all]": get,
	})

	m, err := trie.Lookup(http11.MethodGet, "/users/new")
	require.NoError(t, err)
	assert.Equal(t, "/users/new", m.Entry.Handler)

	m, err = trie.Lookup(http11.MethodGet, "/users/7")
	require.NoError(t, err)
	assert.Equal(t, "/users/[id]", m.Entry.Handler)

	m, err = trie.Lookup(http11.MethodGet, "/users/7/posts")
	require.NoError(t, err)
	assert.Equal(t, "/users/[...all]", m.Entry.Handler)
	assert.Equal(t, map[string]string{"all": "7/posts"}, m.Params)
}

func TestLookupBacktracksFromDeadEndLiteral(t *testing.T) {
	trie := buildTrie(t, map[string]http11.MethodSet{
		"/users/new":       get,
		"/users/[id]/edit": get,
	})

	m, err := trie.Lookup(http11.MethodGet, "/users/new/edit")
	require.NoError(t, err)
	assert.Equal(t, "/users/[id]/edit", m.Entry.Handler)
	assert.Equal(t, map[string]string{"id": "new"}, m.Params)
}

func TestLookupHeadFallback(t *testing.T) {
	trie := buildTrie(t, map[string]http11.MethodSet{
		"/page":     get,
		"/explicit": getHead,
	})

	m, err := trie.Lookup(http11.MethodHead, "/page")
	require.NoError(t, err)
	assert.True(t, m.HeadFallback)
	assert.Equal(t, "/page", m.Entry.Handler)

	m, err = trie.Lookup(http11.MethodHead, "/explicit")
	require.NoError(t, err)
	assert.False(t, m.HeadFallback)
}

func TestLookupMethodNotAllowed(t *testing.T) {
	trie := NewTrie[string]()
	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/users/[id]"), Methods: post, Handler: "post"}))
	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/items/[id]"), Methods: post, Handler: "post"}))
	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/items/[key]"), Methods: get, Handler: "get"}))

	_, err := trie.Lookup(http11.MethodDelete, "/users/1")
	require.Error(t, err)
	assert.Equal(t, errors.KindMethodNotAllowed, errors.KindOf(err))
	assert.Equal(t, "POST", errors.ContextValue(err, "allow"))

	_, err = trie.Lookup(http11.MethodDelete, "/items/1")
	assert.Equal(t, "GET, POST, HEAD", errors.ContextValue(err, "allow"))

	_, err = trie.Lookup(http11.MethodOptions, "/items/1")
	assert.Equal(t, errors.KindMethodNotAllowed, errors.KindOf(err))

	_, err = trie.Lookup(http11.MethodHead, "/users/1")
	assert.Equal(t, errors.KindMethodNotAllowed, errors.KindOf(err))
}

func TestParamNamesBoundPerEntry(t *testing.T) {
	trie := NewTrie[string]()
	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/items/[id]"), Methods: post, Handler: "post"}))
	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/items/[key]"), Methods: get, Handler: "get"}))

	m, err := trie.Lookup(http11.MethodPost, "/items/9")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "9"}, m.Params)

	m, err = trie.Lookup(http11.MethodGet, "/items/9")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"key": "9"}, m.Params)
}

func TestInsertErrors(t *testing.T) {
	trie := NewTrie[string]()
	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/a/[id]"), Methods: getHead}))

	err := trie.Insert(Entry[string]{Pattern: MustParsePattern("/a/[other]"), Methods: get})
	require.Error(t, err)
	assert.Equal(t, errors.KindBadPattern, errors.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate route GET /a/[other]")

	err = trie.Insert(Entry[string]{Pattern: MustParsePattern("/a"), Methods: 0})
	assert.Error(t, err)

	require.NoError(t, trie.Insert(Entry[string]{Pattern: MustParsePattern("/a/[id]"), Methods: post}))
	assert.Equal(t, 2, trie.Len())

	trie.Freeze()
	err = trie.Insert(Entry[string]{Pattern: MustParsePattern("/b"), Methods: get})
	assert.Error(t, err)
	assert.Len(t, trie.Entries(), 2)
}

func TestOverlappingPatternsAreLegal(t *testing.T) {
	trie := NewTrie[string]()
	for _, p := range []string{"/[a]", "/[...rest]", "/x", "/[a]/[b]", "/[...other]/"} {
		err := trie.Insert(Entry[string]{Pattern: MustParsePattern(p), Methods: post, Handler: p})
		if p == "/[...other]/" {
			assert.Error(t, err, "same shape and method as /[...rest]")
			continue
		}
		require.NoError(t, err, p)
	}
}
