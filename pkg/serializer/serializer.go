// Package serializer runs the output stage of the bundler: it composes
// user-supplied serializer plugins with the built-in artifact assembler and
// turns a resolved module graph into one or more output artifacts.
//
// Architecture:
// - Plugins fold left to right over the (entry, preModules, graph, options)
//   tuple; the built-in stage is always the last link unless a plugin
//   terminates the chain by producing artifacts itself.
// - The built-in stage splits the graph into bundles, emits each bundle's
//   modules, annotates source maps and optionally hands artifacts to the
//   bytecode compiler.
package serializer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dopplerDistortion/expo/pkg/graph"
	"github.com/dopplerDistortion/expo/pkg/hermes"
)

// OutputMode selects between a single artifact and the static multi-artifact
// split.
type OutputMode string

const (
	// OutputSingle produces one artifact holding every module.
	OutputSingle OutputMode = "single"
	// OutputStatic splits async boundaries into their own artifacts.
	OutputStatic OutputMode = "static"
)

// ArtifactType tags what an artifact's Source holds.
type ArtifactType string

const (
	// TypeJS is plain javascript source.
	TypeJS ArtifactType = "js"
	// TypeBytecode is precompiled bytecode.
	TypeBytecode ArtifactType = "bytecode"
)

// Metadata travels with an artifact into the manifest written by the caller.
type Metadata struct {
	// IsAsync marks artifacts fetched on demand by the async loader.
	IsAsync bool
	// Requires lists artifact filenames that must be loaded before this one
	// executes.
	Requires []string
}

// Artifact is one externally visible output unit.
type Artifact struct {
	Filename       string
	Source         string
	SourceMap      string
	OriginFilename string
	Type           ArtifactType
	Metadata       Metadata
}

// Options is the per-call configuration. It is resolved once per
// serialization and never mutated.
type Options struct {
	// Platform is "web" or a native identifier such as "ios".
	Platform string
	// Dev marks a development-server build.
	Dev bool
	// Minify requests artifact minification through the configured minifier.
	Minify bool
	// SourceMaps requests source map annotations.
	SourceMaps bool
	// Bytecode requests precompiled bytecode artifacts (production only).
	Bytecode bool
	// OutputMode selects single or static output. Anything other than
	// OutputStatic behaves as single.
	OutputMode OutputMode
	// BaseURL is an absolute URL or root-relative prefix for map URLs.
	BaseURL string
	// SourceURL is the request URL the bundle was fetched from.
	SourceURL string
}

// Static reports whether the options select the static split.
func (o Options) Static() bool { return o.OutputMode == OutputStatic }

// Params is the 4-tuple every plugin observes and produces.
type Params struct {
	EntryFile  string
	PreModules []*graph.Module
	Graph      *graph.Graph
	Options    Options
}

// Output is a terminal result. A plugin returning a non-nil Output ends the
// chain; the built-in stage always returns one.
type Output struct {
	Artifacts []Artifact
}

// Plugin transforms the tuple, or terminates the chain by returning a
// non-nil Output. A plugin that has nothing to change must return its
// arguments unchanged so downstream links observe a stable shape.
type Plugin func(ctx context.Context, p Params) (Params, *Output, error)

// Serializer is a composed, callable output stage.
type Serializer func(ctx context.Context, p Params) (*Output, error)

// Compose chains plugins left to right in front of base. Each plugin is
// invoked with the previous link's output tuple; any error aborts the whole
// call with no partial output.
func Compose(base Serializer, plugins ...Plugin) Serializer {
	return func(ctx context.Context, p Params) (*Output, error) {
		for i, plugin := range plugins {
			next, out, err := plugin(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("serializer: plugin %d: %w", i, err)
			}
			if out != nil {
				return out, nil
			}
			p = next
		}
		return base(ctx, p)
	}
}

// Config carries the collaborators the built-in stage may call out to.
type Config struct {
	logger   zerolog.Logger
	minifier Minifier
	bytecode hermes.Compiler
}

// Minifier is the external transform seam used when Options.Minify is set.
// The core never minifies on its own.
type Minifier interface {
	Minify(ctx context.Context, filename, source string) (string, error)
}

// Option configures the built-in serializer stage.
type Option func(*Config)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithMinifier wires the external minify transform.
func WithMinifier(m Minifier) Option {
	return func(c *Config) { c.minifier = m }
}

// WithBytecodeCompiler wires the bytecode compiler invoked when
// Options.Bytecode is set on a production build.
func WithBytecodeCompiler(b hermes.Compiler) Option {
	return func(c *Config) { c.bytecode = b }
}

// New builds the built-in serializer stage.
func New(opts ...Option) Serializer {
	cfg := &Config{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg.serialize
}
