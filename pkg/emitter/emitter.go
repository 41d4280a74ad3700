// Package emitter turns one module into its wrapped, registered form inside
// an artifact: a __d registration keyed by the module's id and path, the
// module's source as the factory body, and a local dependency index table
// that maps each import specifier to how it resolves from this bundle.
package emitter

import (
	"strconv"
	"strings"

	"github.com/dopplerDistortion/expo/pkg/util"
)

// Ref resolves one dependency slot.
type Ref interface {
	render() string
}

// StaticRef points at a module present in this bundle or in a bundle that is
// guaranteed loaded first. It renders as the bare module id.
type StaticRef struct {
	ID int
}

func (r StaticRef) render() string {
	return strconv.Itoa(r.ID)
}

// AsyncRef routes a dynamic import through the async loader. It carries the
// target id, the path to artifact-filename table for every bundle that must
// be fetched, and the literal specifier for fallback resolution.
type AsyncRef struct {
	ID        int
	Bundles   map[string]string
	Specifier string
}

func (r AsyncRef) render() string {
	var b strings.Builder
	b.WriteString("__ra(")
	b.WriteString(strconv.Itoa(r.ID))
	b.WriteString(", {")
	for i, path := range util.SortedKeys(r.Bundles) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(util.QuoteJS(path))
		b.WriteString(": ")
		b.WriteString(util.QuoteJS(r.Bundles[path]))
	}
	b.WriteString("}, ")
	b.WriteString(util.QuoteJS(r.Specifier))
	b.WriteString(")")
	return b.String()
}

// DepTable is a module's local dependency index: specifier to resolution.
// Keys are stable for a given module regardless of which bundle it is
// serialized into; only the values change between bundle contexts.
type DepTable struct {
	keys []string
	refs map[string]Ref
}

// Add appends one slot. First add wins for a duplicated specifier.
func (t *DepTable) Add(specifier string, ref Ref) {
	if t.refs == nil {
		t.refs = map[string]Ref{}
	}
	if _, ok := t.refs[specifier]; ok {
		return
	}
	t.keys = append(t.keys, specifier)
	t.refs[specifier] = ref
}

func (t *DepTable) render() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range t.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(util.QuoteJS(k))
		b.WriteString(": ")
		b.WriteString(t.refs[k].render())
	}
	b.WriteString("}")
	return b.String()
}

// Emit wraps a module into its registration statement.
func Emit(id int, path, source string, tbl *DepTable) string {
	var b strings.Builder
	b.Grow(len(source) + 128)
	b.WriteString("__d(")
	b.WriteString(strconv.Itoa(id))
	b.WriteString(", ")
	b.WriteString(util.QuoteJS(path))
	b.WriteString(", ")
	if tbl != nil {
		b.WriteString(tbl.render())
	} else {
		b.WriteString("{}")
	}
	b.WriteString(", function(module, exports, require, requireAsync) {\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("});\n")
	return b.String()
}

// Trigger is the execution-trigger statement closing an entry-capable
// artifact. requires lists artifact filenames that are loaded alongside this
// one; entryPath names the module to run and entryID is its id (negative when
// the graph is empty and there is nothing to run).
func Trigger(requires []string, entryPath string, entryID int) string {
	var b strings.Builder
	b.WriteString("__s([")
	for i, r := range requires {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(util.QuoteJS(r))
	}
	b.WriteString("], ")
	b.WriteString(util.QuoteJS(entryPath))
	if entryID >= 0 {
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(entryID))
	}
	b.WriteString(");\n")
	return b.String()
}
