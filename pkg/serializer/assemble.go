package serializer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dopplerDistortion/expo/pkg/emitter"
	"github.com/dopplerDistortion/expo/pkg/graph"
	"github.com/dopplerDistortion/expo/pkg/hermes"
	"github.com/dopplerDistortion/expo/pkg/sourcemap"
	"github.com/dopplerDistortion/expo/pkg/splitter"
)

const header = "\"use strict\";\n(function() {\n"
const footer = "})();\n"

// staticPrefix roots content-addressed artifact paths.
const staticPrefix = "_expo/static/js"

// appRoot prefixes dev and single-bundle artifact names.
const appRoot = "/app/"

const bytecodeConcurrency = 4

// serialize is the built-in stage: split, emit, annotate, convert.
func (c *Config) serialize(ctx context.Context, p Params) (*Output, error) {
	opts := p.Options

	res, err := splitter.Split(p.Graph, opts.Static(), c.logger)
	if err != nil {
		return nil, err
	}

	// Bytecode never ships in dev; the dev server always serves plain js.
	bytecode := opts.Bytecode && !opts.Dev
	if bytecode && c.bytecode == nil {
		return nil, fmt.Errorf("serializer: options request bytecode but no compiler is configured")
	}

	names := make(map[*splitter.Bundle]string, len(res.Bundles))
	for _, b := range res.Bundles {
		names[b] = c.filename(p, b, bytecode)
	}

	artifacts := make([]Artifact, 0, len(res.Bundles))
	for _, b := range res.Bundles {
		source := c.assemble(p, b, res, names)

		if opts.Minify && c.minifier != nil {
			source, err = c.minifier.Minify(ctx, names[b], source)
			if err != nil {
				return nil, fmt.Errorf("serializer: minify %s: %w", names[b], err)
			}
		}

		var mapText string
		if opts.SourceMaps {
			mapText = bundleMap(p, b)
		}
		if mapURL, ok := sourcemap.URL(sourcemap.Opts{
			Platform:   opts.Platform,
			Dev:        opts.Dev,
			SourceMaps: opts.SourceMaps,
			Bytecode:   bytecode,
			BaseURL:    opts.BaseURL,
			SourceURL:  opts.SourceURL,
			AssetPath:  names[b],
		}); ok {
			source = sourcemap.Annotate(source, mapURL)
		}

		var requires []string
		for _, req := range b.Requires {
			requires = append(requires, names[req])
		}

		artifacts = append(artifacts, Artifact{
			Filename:       names[b],
			Source:         source,
			SourceMap:      mapText,
			OriginFilename: appRoot + displayName(p, b),
			Type:           TypeJS,
			Metadata: Metadata{
				IsAsync:  b.Kind == splitter.KindAsync,
				Requires: requires,
			},
		})
		c.logger.Debug().
			Str("filename", names[b]).
			Str("kind", string(b.Kind)).
			Msg("serializer: artifact")
	}

	if bytecode {
		if err := c.convert(ctx, artifacts, opts.Minify); err != nil {
			return nil, err
		}
	}
	return &Output{Artifacts: artifacts}, nil
}

// convert runs every artifact through the bytecode compiler in place.
func (c *Config) convert(ctx context.Context, artifacts []Artifact, minify bool) error {
	inputs := make([]hermes.Input, len(artifacts))
	for i, a := range artifacts {
		inputs[i] = hermes.Input{
			Filename: a.Filename,
			Code:     a.Source,
			Map:      a.SourceMap,
			Minify:   minify,
		}
	}
	outcomes, err := hermes.Convert(ctx, inputs, c.bytecode, bytecodeConcurrency, c.logger)
	if err != nil {
		return err
	}
	for i := range artifacts {
		artifacts[i].Source = string(outcomes[i].Bytecode)
		if outcomes[i].SourceMap != nil {
			artifacts[i].SourceMap = string(outcomes[i].SourceMap)
		}
		artifacts[i].Type = TypeBytecode
	}
	return nil
}

// filename computes a bundle's artifact name. Static production artifacts
// are content addressed under the static prefix; dev and single-bundle
// artifacts mirror the bundle root's path under the app root.
func (c *Config) filename(p Params, b *splitter.Bundle, bytecode bool) string {
	ext := ".js"
	if bytecode {
		ext = ".hbc"
	}
	name := displayName(p, b)
	if !p.Options.Static() || p.Options.Dev {
		return appRoot + strings.TrimSuffix(name, ".js") + ext
	}
	base := strings.Split(filepath.Base(name), ".")[0]
	return fmt.Sprintf("%s/%s/%s-%s%s", staticPrefix, p.Options.Platform, base, contentHash(p, b), ext)
}

// contentHash digests the bundle's member sources so identical input yields
// an identical filename. Member content is hashed rather than the assembled
// artifact text because artifacts embed each other's filenames.
func contentHash(p Params, b *splitter.Bundle) string {
	h := sha256.New()
	h.Write([]byte(string(b.Kind)))
	if b.Kind == splitter.KindMain {
		for _, m := range p.PreModules {
			fmt.Fprintf(h, "\x00pre:%d:%s\x00", m.ID, m.Path)
			h.Write([]byte(m.Source))
		}
	}
	for _, m := range b.Modules {
		fmt.Fprintf(h, "\x00%d:%s\x00", m.ID, m.Path)
		h.Write([]byte(m.Source))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// displayName is the origin-relative name of the bundle's root module.
func displayName(p Params, b *splitter.Bundle) string {
	if b.Root == nil {
		return filepath.Base(p.EntryFile)
	}
	if b.Root.Name != "" {
		return b.Root.Name
	}
	return filepath.Base(b.Root.Path)
}

// assemble concatenates a bundle into artifact source: runtime preamble,
// pre-modules (main only), members in graph order, then the execution
// trigger for entry-capable bundles. Shared bundles get no trigger.
func (c *Config) assemble(p Params, b *splitter.Bundle, res *splitter.Result, names map[*splitter.Bundle]string) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString(emitter.Runtime)

	if b.Kind == splitter.KindMain {
		for _, m := range p.PreModules {
			sb.WriteString(emitter.Emit(m.ID, m.Path, m.Source, nil))
		}
	}
	for _, m := range b.Modules {
		sb.WriteString(emitter.Emit(m.ID, m.Path, m.Source, depTable(p.Graph, m, b, res, names)))
	}

	if b.RunEntry {
		var requires []string
		for _, req := range b.Requires {
			requires = append(requires, names[req])
		}
		entryPath := p.EntryFile
		entryID := -1
		if b.Root != nil {
			entryPath = b.Root.Path
			entryID = b.Root.ID
		}
		sb.WriteString(emitter.Trigger(requires, entryPath, entryID))
	}
	sb.WriteString(footer)
	return sb.String()
}

// depTable builds a module's local dependency index for the bundle it is
// being serialized into. Keys are the module's specifiers in declaration
// order; only values depend on the bundle context.
func depTable(g *graph.Graph, m *graph.Module, b *splitter.Bundle, res *splitter.Result, names map[*splitter.Bundle]string) *emitter.DepTable {
	tbl := &emitter.DepTable{}
	for _, d := range m.Deps {
		target := g.Module(d.Path)
		if target == nil {
			continue
		}
		tbl.Add(d.Specifier, emitter.StaticRef{ID: target.ID})
	}
	for _, d := range m.AsyncDeps {
		target := g.Module(d.Path)
		if target == nil {
			continue
		}
		ref := emitter.AsyncRef{ID: target.ID, Specifier: d.Specifier, Bundles: map[string]string{}}
		// Only async bundles need fetching: main is already running and
		// shared bundles load with it. Same-bundle targets resolve locally.
		// The target bundle's own async requires ride along so every module
		// it reaches statically is registered before it runs.
		if tb := res.BundleFor(target); tb != nil && tb != b && tb.Kind == splitter.KindAsync {
			ref.Bundles[target.Path] = names[tb]
			for _, req := range tb.Requires {
				if req.Kind == splitter.KindAsync && req != b {
					ref.Bundles[req.Root.Path] = names[req]
				}
			}
		}
		tbl.Add(d.Specifier, ref)
	}
	return tbl
}

// bundleMap is the artifact's source map text. The per-module maps composed
// upstream are out of scope here; the artifact-level map records the member
// sources in order so external tooling can stitch the rest.
func bundleMap(p Params, b *splitter.Bundle) string {
	sources := []string{}
	if b.Kind == splitter.KindMain {
		for _, m := range p.PreModules {
			sources = append(sources, m.Path)
		}
	}
	for _, m := range b.Modules {
		sources = append(sources, m.Path)
	}
	data, _ := json.Marshal(map[string]any{
		"version":  3,
		"sources":  sources,
		"names":    []string{},
		"mappings": "",
	})
	return string(data)
}
