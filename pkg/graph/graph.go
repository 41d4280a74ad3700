// Package graph holds the resolved module graph handed to the serializer by
// the resolver, the scanner that finds dynamic import call sites, and a small
// dependency-ordered concurrent runner.
//
// The graph is read-only input: modules are immutable once constructed and
// nothing in this repository mutates a graph after New returns.
package graph

import (
	"fmt"
)

// Dependency is one resolved edge out of a module. Specifier is the literal
// string that appeared in source; Path is the absolute path the resolver
// mapped it to.
type Dependency struct {
	Specifier string
	Path      string
}

// Module is a single source file node produced by the resolver.
type Module struct {
	// Path is the absolute path of the file, unique within a graph.
	Path string
	// ID is the resolver-assigned numeric id, unique within a graph.
	ID int
	// Source is the final (transformed) source text.
	Source string
	// Deps are the statically required dependencies, in source order.
	Deps []Dependency
	// AsyncDeps are the dynamically imported dependencies, in source order.
	AsyncDeps []Dependency
	// Name is the origin-relative display name used for output filenames.
	Name string
}

// Graph is the set of modules reachable from one entry point.
type Graph struct {
	entryPath string
	modules   []*Module
	byPath    map[string]*Module
	byID      map[int]*Module
}

// New builds a graph over the given modules. Module order is preserved and is
// the resolver's deterministic traversal order. Duplicate paths or ids are a
// resolver bug and are rejected.
func New(entryPath string, modules []*Module) (*Graph, error) {
	g := &Graph{
		entryPath: entryPath,
		modules:   modules,
		byPath:    make(map[string]*Module, len(modules)),
		byID:      make(map[int]*Module, len(modules)),
	}
	for _, m := range modules {
		if _, ok := g.byPath[m.Path]; ok {
			return nil, fmt.Errorf("graph: duplicate module path %q", m.Path)
		}
		if _, ok := g.byID[m.ID]; ok {
			return nil, fmt.Errorf("graph: duplicate module id %d (%q)", m.ID, m.Path)
		}
		g.byPath[m.Path] = m
		g.byID[m.ID] = m
	}
	return g, nil
}

// EntryPath returns the path of the entry module.
func (g *Graph) EntryPath() string { return g.entryPath }

// Entry returns the entry module, or nil for an empty graph.
func (g *Graph) Entry() *Module { return g.byPath[g.entryPath] }

// Module looks a module up by path.
func (g *Graph) Module(path string) *Module { return g.byPath[path] }

// ModuleByID looks a module up by numeric id.
func (g *Graph) ModuleByID(id int) *Module { return g.byID[id] }

// Modules returns the modules in resolver order. Callers must not modify the
// returned slice.
func (g *Graph) Modules() []*Module { return g.modules }

// Len returns the number of modules in the graph.
func (g *Graph) Len() int { return len(g.modules) }
