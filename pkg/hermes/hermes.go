// Package hermes is the boundary to the native bytecode compiler. The
// serializer hands each finished js artifact across this boundary and gets
// back bytecode plus an adjusted source map; the compiler itself lives
// outside this repository.
package hermes

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dopplerDistortion/expo/pkg/graph"
)

// Input is one artifact handed to the compiler.
type Input struct {
	Filename string
	Code     string
	Map      string
	Minify   bool
}

// Outcome is the compiler's answer. SourceMap may be nil, in which case the
// artifact keeps its original map.
type Outcome struct {
	Bytecode  []byte
	SourceMap []byte
}

// Compiler converts one js artifact to bytecode. Failures are fatal build
// errors and are never retried.
type Compiler interface {
	Compile(ctx context.Context, in Input) (Outcome, error)
}

// Convert compiles every input, dispatching independent conversions in
// parallel and gathering results before returning. Outcomes come back in
// input order. Every failure is wrapped with its artifact filename; the
// combined error reports all of them.
func Convert(ctx context.Context, inputs []Input, c Compiler, concurrency int, logger zerolog.Logger) ([]Outcome, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(inputs) {
		concurrency = len(inputs)
	}

	outcomes := make([]Outcome, len(inputs))
	errs := make([]error, len(inputs))

	// Conversions are independent, so the runner gets nodes with no edges.
	nodes := map[int][]int{}
	for i := range inputs {
		nodes[i] = nil
	}
	r := &graph.Runner{
		Concurrency: concurrency,
		Nodes:       nodes,
		Logger:      logger,
		Process: func(ctx context.Context, i int) error {
			out, err := c.Compile(ctx, inputs[i])
			if err != nil {
				errs[i] = fmt.Errorf("hermes: %s: %w", inputs[i].Filename, err)
				return errs[i]
			}
			outcomes[i] = out
			return nil
		},
	}
	if err := r.Solve(ctx); err != nil {
		var merr *multierror.Error
		for _, e := range errs {
			if e != nil {
				merr = multierror.Append(merr, e)
			}
		}
		if merr != nil {
			return nil, merr.ErrorOrNil()
		}
		return nil, err
	}
	return outcomes, nil
}

// CachingCompiler memoizes conversions keyed by content hash. Conversion is
// expensive and artifact content repeats across serializer calls in a dev
// server, so the boundary keeps a small per-process LRU. The serializer core
// itself stays stateless.
type CachingCompiler struct {
	inner Compiler
	cache *lru.Cache[[32]byte, Outcome]
}

// NewCachingCompiler wraps inner with an LRU of the given size.
func NewCachingCompiler(inner Compiler, size int) (*CachingCompiler, error) {
	cache, err := lru.New[[32]byte, Outcome](size)
	if err != nil {
		return nil, err
	}
	return &CachingCompiler{inner: inner, cache: cache}, nil
}

// Compile consults the cache before invoking the wrapped compiler. Errors
// are never cached. The key covers every compiler-visible input: the same
// code compiled with a different minify setting or under a different
// filename (which the compiler may embed in the emitted map) is a distinct
// conversion.
func (c *CachingCompiler) Compile(ctx context.Context, in Input) (Outcome, error) {
	minify := "0"
	if in.Minify {
		minify = "1"
	}
	key := sha256.Sum256([]byte(in.Filename + "\x00" + minify + "\x00" + in.Code + "\x00" + in.Map))
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}
	out, err := c.inner.Compile(ctx, in)
	if err != nil {
		return Outcome{}, err
	}
	c.cache.Add(key, out)
	return out, nil
}
