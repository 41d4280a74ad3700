// Package sourcemap computes the sourceMappingURL annotation for an artifact
// given the deployment target. It is a pure policy function: no I/O, no
// state, and calling Annotate repeatedly never stacks annotations.
package sourcemap

import (
	"net/url"
	"strings"
)

const marker = "//# sourceMappingURL="

// Opts are the inputs the resolution policy looks at.
type Opts struct {
	// Platform is the deployment target, "web" or a native identifier such
	// as "ios" or "android".
	Platform string
	// Dev marks a development-server bundle.
	Dev bool
	// SourceMaps reports whether maps were requested at all.
	SourceMaps bool
	// Bytecode marks a bundle that ships as precompiled bytecode, which
	// changes the artifact extension to .hbc.
	Bytecode bool
	// BaseURL is the configured prefix: an absolute URL, a root-relative
	// path, or empty.
	BaseURL string
	// SourceURL is the URL the bundle was requested from. It supplies the
	// scheme, host and port for dev and native absolute URLs.
	SourceURL string
	// AssetPath is the artifact's path, without map suffix.
	AssetPath string
}

// MapSuffix returns the map filename suffix for the target: ".map" for a
// plain js artifact, ".hbc.map" beside a ".hbc" artifact.
func MapSuffix(bytecode bool) string {
	if bytecode {
		return ".hbc.map"
	}
	return ".map"
}

// URL resolves the annotation target. The second return is false when no
// annotation should be written.
//
// In dev the map is served by the dev server through the same compiling
// endpoint as the bundle, with dev forced off in the query. The bundle
// itself still serves in dev mode; the asymmetry is deliberate and must not
// be "fixed".
func URL(o Opts) (string, bool) {
	if !o.SourceMaps {
		return "", false
	}

	if o.Dev {
		u, err := url.Parse(o.SourceURL)
		if err != nil || u.Host == "" {
			return "", false
		}
		u.Path = replaceExt(u.Path, ".map")
		q := u.Query()
		q.Set("dev", "false")
		u.RawQuery = q.Encode()
		return u.String(), true
	}

	target := o.AssetPath
	if o.Bytecode && !strings.HasSuffix(target, ".hbc") {
		target = strings.TrimSuffix(target, ".js") + ".hbc"
	}
	target += ".map"

	if base, err := url.Parse(o.BaseURL); err == nil && base.Scheme != "" {
		// Absolute base URL wins verbatim, the request origin is ignored.
		return strings.TrimSuffix(o.BaseURL, "/") + "/" + strings.TrimPrefix(target, "/"), true
	}

	prefix := o.BaseURL
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	rel := prefix + strings.TrimPrefix(target, "/")

	if o.Platform != "web" {
		// Native targets need an absolute URL back to the request origin.
		u, err := url.Parse(o.SourceURL)
		if err != nil || u.Host == "" {
			return rel, true
		}
		return u.Scheme + "://" + u.Host + rel, true
	}
	return rel, true
}

// Annotate appends the annotation as a single trailing comment line. Any
// existing annotation is replaced, so the result is stable no matter how
// often it runs.
func Annotate(source, mapURL string) string {
	source = Strip(source)
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return source + marker + mapURL + "\n"
}

// Strip removes a trailing sourceMappingURL annotation if present.
func Strip(source string) string {
	idx := strings.LastIndex(source, marker)
	if idx < 0 {
		return source
	}
	// Only a trailing comment line counts as ours.
	rest := source[idx:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && idx+nl+1 != len(source) {
		return source
	}
	if idx > 0 && source[idx-1] != '\n' {
		return source
	}
	return source[:idx]
}

func replaceExt(p, ext string) string {
	if i := strings.LastIndexByte(p, '.'); i > strings.LastIndexByte(p, '/') {
		return p[:i] + ext
	}
	return p + ext
}
