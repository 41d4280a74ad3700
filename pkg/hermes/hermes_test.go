package hermes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type countingCompiler struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (c *countingCompiler) Compile(ctx context.Context, in Input) (Outcome, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if err := c.fail[in.Filename]; err != nil {
		return Outcome{}, err
	}
	return Outcome{Bytecode: []byte("hbc:" + in.Code)}, nil
}

func TestConvertParallel(t *testing.T) {
	c := &countingCompiler{}
	inputs := make([]Input, 8)
	for i := range inputs {
		inputs[i] = Input{Filename: fmt.Sprintf("a%d.hbc", i), Code: fmt.Sprintf("code%d", i)}
	}

	outcomes, err := Convert(context.Background(), inputs, c, 4, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, outcomes, 8)
	require.Equal(t, 8, c.calls)
	// Outcomes come back in input order regardless of completion order.
	for i, out := range outcomes {
		require.Equal(t, "hbc:"+inputs[i].Code, string(out.Bytecode))
	}
}

func TestConvertEmpty(t *testing.T) {
	outcomes, err := Convert(context.Background(), nil, &countingCompiler{}, 4, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, outcomes)
}

func TestConvertFailureCarriesFilename(t *testing.T) {
	c := &countingCompiler{fail: map[string]error{"bad.hbc": errors.New("segfault")}}
	inputs := []Input{
		{Filename: "ok.hbc", Code: "a"},
		{Filename: "bad.hbc", Code: "b"},
	}

	_, err := Convert(context.Background(), inputs, c, 2, zerolog.Nop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.hbc")
	require.Contains(t, err.Error(), "segfault")
}

func TestCachingCompiler(t *testing.T) {
	inner := &countingCompiler{}
	cc, err := NewCachingCompiler(inner, 8)
	require.NoError(t, err)

	in := Input{Filename: "x.hbc", Code: "code", Map: "map"}
	first, err := cc.Compile(context.Background(), in)
	require.NoError(t, err)
	second, err := cc.Compile(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)

	// Different content misses.
	_, err = cc.Compile(context.Background(), Input{Filename: "x.hbc", Code: "other", Map: "map"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)

	// Same content with a different minify setting is a distinct conversion.
	minified := in
	minified.Minify = true
	_, err = cc.Compile(context.Background(), minified)
	require.NoError(t, err)
	require.Equal(t, 3, inner.calls)

	// So is the same content under a different filename.
	renamed := in
	renamed.Filename = "y.hbc"
	_, err = cc.Compile(context.Background(), renamed)
	require.NoError(t, err)
	require.Equal(t, 4, inner.calls)
}

func TestCachingCompilerDoesNotCacheErrors(t *testing.T) {
	inner := &countingCompiler{fail: map[string]error{"x.hbc": errors.New("boom")}}
	cc, err := NewCachingCompiler(inner, 8)
	require.NoError(t, err)

	in := Input{Filename: "x.hbc", Code: "code"}
	_, err = cc.Compile(context.Background(), in)
	require.Error(t, err)

	inner.fail = nil
	out, err := cc.Compile(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "hbc:code", string(out.Bytecode))
	require.Equal(t, 2, inner.calls)
}
