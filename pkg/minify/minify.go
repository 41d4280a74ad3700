// Package minify adapts esbuild's transform API to the serializer's Minifier
// seam. Minification is not part of the serializer core; callers who want it
// wire this in with serializer.WithMinifier.
package minify

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// Minifier minifies artifact source with esbuild.
type Minifier struct{}

// New returns a Minifier.
func New() *Minifier { return &Minifier{} }

// Minify transforms source, collapsing whitespace, syntax and identifiers.
func (m *Minifier) Minify(ctx context.Context, filename, source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		Sourcefile:        filename,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("minify: %s: %s", filename, result.Errors[0].Text)
	}
	return string(result.Code), nil
}
