package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	testCases := []struct {
		kind     Kind
		expected int
	}{
		{KindBadRequest, 400},
		{KindHeaderFieldsTooLarge, 400},
		{KindURITooLong, 414},
		{KindPayloadTooLarge, 413},
		{KindNotImplemented, 501},
		{KindRequestTimeout, 408},
		{KindNoRoute, 404},
		{KindMethodNotAllowed, 405},
		{KindTooManyRequests, 429},
		{KindHandlerFailed, 500},
		{KindBadPattern, 500},
		{KindUnknown, 500},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.kind.Status())
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "method_not_allowed", KindMethodNotAllowed.String())
	assert.Equal(t, "unknown", Kind(200).String())
}

func TestErrorFormatting(t *testing.T) {
	t.Run("op file message cause", func(t *testing.T) {
		err := &Error{
			Kind:    KindBadPattern,
			Op:      "route.Parse",
			Message: "catch-all must be the final segment",
			File:    "pages/[...a]/b.volki",
			Cause:   fmt.Errorf("boom"),
		}
		assert.Equal(t, "route.Parse: pages/[...a]/b.volki: catch-all must be the final segment: boom", err.Error())
	})

	t.Run("kind name when message empty", func(t *testing.T) {
		assert.Equal(t, "payload too large", (&Error{Kind: KindPayloadTooLarge}).Error())
	})
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(KindURITooLong, "http11.ReadHead", "request target exceeds 8192 bytes")
	wrapped := fmt.Errorf("conn 1: %w", err)

	assert.True(t, Is(wrapped, ErrURITooLong))
	assert.False(t, Is(wrapped, ErrBadRequest))
	assert.Equal(t, KindURITooLong, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(KindIOClosed, "op", nil, "msg"))

	cause := fmt.Errorf("connection reset")
	err := Wrap(KindIOClosed, "http11.read", cause, "read failed")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrIOClosed)
}

func TestContextValue(t *testing.T) {
	err := New(KindMethodNotAllowed, "route.Lookup", "").WithContext("allow", "GET, HEAD")
	assert.Equal(t, "GET, HEAD", ContextValue(fmt.Errorf("x: %w", err), "allow"))
	assert.Empty(t, ContextValue(err, "missing"))
	assert.Empty(t, ContextValue(fmt.Errorf("plain"), "allow"))
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())
	assert.NoError(t, collector.Err())

	collector.AddError(nil)
	assert.False(t, collector.HasErrors())

	first := New(KindBadPattern, "scan", "duplicate name").WithFile("pages/[a]/[a].volki")
	collector.AddError(first)
	assert.Same(t, first, collector.Err())

	collector.AddError(New(KindBadPattern, "scan", "unclosed bracket").WithFile("pages/[b.volki"))
	err := collector.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors")
	assert.Contains(t, err.Error(), "pages/[a]/[a].volki")
	assert.Contains(t, err.Error(), "pages/[b.volki")
	assert.Equal(t, KindBadPattern, KindOf(err))

	collector.Clear()
	assert.False(t, collector.HasErrors())
}

func TestErrorCollectorConcurrent(t *testing.T) {
	collector := NewErrorCollector()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				collector.AddError(fmt.Errorf("g%d-%d", id, i))
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, collector.GetAllErrors(), 400)
}
