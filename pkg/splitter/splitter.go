// Package splitter partitions a resolved module graph into the bundles that
// become output artifacts: one main bundle, one async bundle per dynamic
// import boundary, and shared bundles for modules pulled in by two or more
// async boundaries.
package splitter

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dopplerDistortion/expo/pkg/graph"
)

// Kind classifies a bundle.
type Kind string

const (
	// KindMain is the entry bundle.
	KindMain Kind = "main"
	// KindAsync is a bundle rooted at a dynamic import target, loaded on
	// demand.
	KindAsync Kind = "async"
	// KindShared holds modules needed by two or more async bundles. It is
	// loaded with main and never executed directly.
	KindShared Kind = "shared"
)

// Bundle is an ordered group of modules destined for one artifact.
type Bundle struct {
	Kind Kind
	// Root names the bundle and, for main and async bundles, is the module
	// the execution trigger runs. For shared bundles it is only the naming
	// module (lowest id member); nil for an empty main bundle.
	Root    *graph.Module
	Modules []*graph.Module
	// Requires are bundles that must be loaded before this one executes.
	// For main these are the shared bundles, loaded eagerly so async
	// bundles can take them for granted. For an async bundle these are the
	// other async bundles its members reach over static edges, which are
	// not otherwise loaded when the bundle runs.
	Requires []*Bundle
	// RunEntry marks bundles that end with an execution trigger.
	RunEntry bool
}

// Contains reports whether m is a member of the bundle.
func (b *Bundle) Contains(m *graph.Module) bool {
	for _, member := range b.Modules {
		if member == m {
			return true
		}
	}
	return false
}

// Result is a complete assignment of every graph module to exactly one
// bundle. Bundles are ordered main first, then async bundles in discovery
// order, then shared bundles.
type Result struct {
	Bundles []*Bundle
	Main    *Bundle
}

// Split partitions g. With static false a single main bundle holds every
// module (async imports still go through the async-loader convention, they
// just resolve into the same artifact). With static true the full
// main/async/shared algorithm runs.
//
// Dynamic import call sites are validated against the source in static mode:
// a non-literal argument is fatal, splitting has no concrete target to cut at.
func Split(g *graph.Graph, static bool, logger zerolog.Logger) (*Result, error) {
	if !static {
		return singleBundle(g), nil
	}

	for _, m := range g.Modules() {
		if _, err := graph.ScanAsyncImports(m.Source); err != nil {
			return nil, fmt.Errorf("splitter: %s: %w", m.Path, err)
		}
	}

	s := &split{g: g, claims: map[int]map[int]bool{}}
	s.markMain()
	s.discoverAsyncRoots()
	s.claimAsyncClosures()
	s.extractShared()

	res := s.build(logger)
	if err := checkTotality(g, res); err != nil {
		return nil, err
	}
	return res, nil
}

func singleBundle(g *graph.Graph) *Result {
	b := &Bundle{Kind: KindMain, Root: g.Entry(), RunEntry: true}
	seen := map[int]bool{}
	var visit func(m *graph.Module)
	visit = func(m *graph.Module) {
		if m == nil || seen[m.ID] {
			return
		}
		seen[m.ID] = true
		b.Modules = append(b.Modules, m)
		for _, d := range m.Deps {
			visit(g.Module(d.Path))
		}
		for _, d := range m.AsyncDeps {
			visit(g.Module(d.Path))
		}
	}
	visit(g.Entry())
	// Anything the resolver included but the walk missed still ships.
	for _, m := range g.Modules() {
		if !seen[m.ID] {
			seen[m.ID] = true
			b.Modules = append(b.Modules, m)
		}
	}
	return &Result{Bundles: []*Bundle{b}, Main: b}
}

type split struct {
	g          *graph.Graph
	main       map[int]bool
	mainOrder  []*graph.Module
	asyncRoots []*graph.Module
	isRoot     map[int]bool
	// claims maps module id -> set of async root ids whose closure reached it.
	claims map[int]map[int]bool
	// members maps async root id -> closure members in DFS preorder
	// (extracted modules are filtered out later).
	members map[int][]*graph.Module
	// rootRequires maps async root id -> foreign async root ids its closure
	// reaches over static edges, in first-encounter order.
	rootRequires map[int][]int
	// extracted modules grouped into shared bundles.
	sharedGroups [][]*graph.Module
	extracted    map[int]bool
}

// markMain computes the synchronous transitive closure of the entry over
// static edges only, in DFS preorder.
func (s *split) markMain() {
	s.main = map[int]bool{}
	var visit func(m *graph.Module)
	visit = func(m *graph.Module) {
		if m == nil || s.main[m.ID] {
			return
		}
		s.main[m.ID] = true
		s.mainOrder = append(s.mainOrder, m)
		for _, d := range m.Deps {
			visit(s.g.Module(d.Path))
		}
	}
	visit(s.g.Entry())
}

// discoverAsyncRoots walks outward from the main set: every dynamic import
// edge spawns an async root, and modules inside async closures can spawn
// further roots. First discovery wins, giving a deterministic bundle order.
func (s *split) discoverAsyncRoots() {
	s.isRoot = map[int]bool{}
	queue := append([]*graph.Module{}, s.mainOrder...)
	visited := map[int]bool{}
	for _, m := range queue {
		visited[m.ID] = true
	}
	for i := 0; i < len(queue); i++ {
		m := queue[i]
		for _, d := range m.AsyncDeps {
			target := s.g.Module(d.Path)
			if target == nil {
				continue
			}
			if !s.isRoot[target.ID] && !s.main[target.ID] {
				s.isRoot[target.ID] = true
				s.asyncRoots = append(s.asyncRoots, target)
			}
			if !visited[target.ID] {
				visited[target.ID] = true
				queue = append(queue, target)
			}
		}
		// Static edges continue the walk so roots buried behind sync deps of
		// async closures are still found.
		for _, d := range m.Deps {
			target := s.g.Module(d.Path)
			if target != nil && !visited[target.ID] {
				visited[target.ID] = true
				queue = append(queue, target)
			}
		}
	}
}

// claimAsyncClosures computes each async root's synchronous closure over
// static edges, stopping at main members and at other async roots. A stop at
// a foreign root is remembered: that root's bundle must be loaded before this
// one executes, since nothing else guarantees it is present.
func (s *split) claimAsyncClosures() {
	s.members = map[int][]*graph.Module{}
	s.rootRequires = map[int][]int{}
	for _, root := range s.asyncRoots {
		seen := map[int]bool{}
		required := map[int]bool{}
		var visit func(m *graph.Module)
		visit = func(m *graph.Module) {
			if m == nil || seen[m.ID] {
				return
			}
			if s.main[m.ID] {
				return
			}
			if s.isRoot[m.ID] && m.ID != root.ID {
				if !required[m.ID] {
					required[m.ID] = true
					s.rootRequires[root.ID] = append(s.rootRequires[root.ID], m.ID)
				}
				return
			}
			seen[m.ID] = true
			s.members[root.ID] = append(s.members[root.ID], m)
			if s.claims[m.ID] == nil {
				s.claims[m.ID] = map[int]bool{}
			}
			s.claims[m.ID][root.ID] = true
			for _, d := range m.Deps {
				visit(s.g.Module(d.Path))
			}
		}
		visit(root)
	}
}

// extractShared pulls modules claimed by two or more async roots into shared
// groups. Extracted modules merge into one group when a chain of static
// edges through extracted modules connects them.
func (s *split) extractShared() {
	s.extracted = map[int]bool{}
	var ids []int
	for id, roots := range s.claims {
		if len(roots) >= 2 && !s.isRoot[id] {
			s.extracted[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	// Connected components under static adjacency restricted to extracted
	// modules.
	adj := map[int][]int{}
	for _, id := range ids {
		m := s.g.ModuleByID(id)
		for _, d := range m.Deps {
			t := s.g.Module(d.Path)
			if t != nil && s.extracted[t.ID] {
				adj[id] = append(adj[id], t.ID)
				adj[t.ID] = append(adj[t.ID], id)
			}
		}
	}
	grouped := map[int]bool{}
	for _, id := range ids {
		if grouped[id] {
			continue
		}
		var group []int
		stack := []int{id}
		grouped[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			group = append(group, cur)
			for _, next := range adj[cur] {
				if !grouped[next] {
					grouped[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Ints(group)
		modules := make([]*graph.Module, len(group))
		for i, gid := range group {
			modules[i] = s.g.ModuleByID(gid)
		}
		s.sharedGroups = append(s.sharedGroups, modules)
	}
	// Order groups by lowest member id for a stable artifact order.
	sort.Slice(s.sharedGroups, func(i, j int) bool {
		return s.sharedGroups[i][0].ID < s.sharedGroups[j][0].ID
	})
}

func (s *split) build(logger zerolog.Logger) *Result {
	main := &Bundle{Kind: KindMain, Root: s.g.Entry(), Modules: s.mainOrder, RunEntry: true}

	var shared []*Bundle
	for _, group := range s.sharedGroups {
		shared = append(shared, &Bundle{Kind: KindShared, Root: group[0], Modules: group})
	}
	main.Requires = shared

	bundles := []*Bundle{main}
	byRoot := map[int]*Bundle{}
	for _, root := range s.asyncRoots {
		b := &Bundle{Kind: KindAsync, Root: root, RunEntry: true}
		for _, m := range s.members[root.ID] {
			if !s.extracted[m.ID] {
				b.Modules = append(b.Modules, m)
			}
		}
		byRoot[root.ID] = b
		bundles = append(bundles, b)
	}
	for _, root := range s.asyncRoots {
		b := byRoot[root.ID]
		for _, id := range s.requiredRoots(root.ID) {
			b.Requires = append(b.Requires, byRoot[id])
		}
	}
	for _, b := range shared {
		bundles = append(bundles, b)
	}

	for _, b := range bundles {
		logger.Debug().
			Str("kind", string(b.Kind)).
			Str("root", rootPath(b)).
			Int("modules", len(b.Modules)).
			Msg("splitter: bundle")
	}
	return &Result{Bundles: bundles, Main: main}
}

// requiredRoots expands rootRequires transitively for one root: a required
// bundle's own static prerequisites must load too. First-encounter order,
// the root itself excluded.
func (s *split) requiredRoots(rootID int) []int {
	var out []int
	seen := map[int]bool{rootID: true}
	var visit func(id int)
	visit = func(id int) {
		for _, next := range s.rootRequires[id] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			visit(next)
		}
	}
	visit(rootID)
	return out
}

func rootPath(b *Bundle) string {
	if b.Root == nil {
		return ""
	}
	return b.Root.Path
}

// checkTotality verifies the assignment covers every module exactly once.
func checkTotality(g *graph.Graph, res *Result) error {
	assigned := map[int]int{}
	for _, b := range res.Bundles {
		for _, m := range b.Modules {
			assigned[m.ID]++
		}
	}
	for _, m := range g.Modules() {
		switch assigned[m.ID] {
		case 1:
		case 0:
			return fmt.Errorf("splitter: module %q assigned to no bundle", m.Path)
		default:
			return fmt.Errorf("splitter: module %q assigned to %d bundles", m.Path, assigned[m.ID])
		}
	}
	return nil
}

// BundleFor returns the bundle containing m, or nil.
func (r *Result) BundleFor(m *graph.Module) *Bundle {
	for _, b := range r.Bundles {
		if b.Contains(m) {
			return b
		}
	}
	return nil
}
