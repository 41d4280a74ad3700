package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 1, "a": 2, "c": 3}
	require.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	require.Empty(t, SortedKeys(map[string]int{}))
}

func TestQuoteJS(t *testing.T) {
	require.Equal(t, `"plain"`, QuoteJS("plain"))
	require.Equal(t, `"a\"b"`, QuoteJS(`a"b`))
	require.Equal(t, `"a\\b"`, QuoteJS(`a\b`))
	require.Equal(t, `"a\nb"`, QuoteJS("a\nb"))
}
