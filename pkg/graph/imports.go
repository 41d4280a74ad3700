package graph

import (
	"errors"
	"fmt"
)

// ErrNonLiteralImport indicates a dynamic import whose argument is not a
// plain string literal. Splitting cannot proceed without a concrete target,
// so this is fatal.
var ErrNonLiteralImport = errors.New("graph: dynamic import with non-literal argument")

// ImportCall is one dynamic import call site found in a module's source.
type ImportCall struct {
	// Specifier is the literal string passed to the import call.
	Specifier string
	// Offset is the byte offset of the 'i' of the import keyword.
	Offset int
}

const importKeyword = "import"

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ScanAsyncImports performs a single pass over source and returns every
// dynamic import call site in order of appearance. An efficient parsing
// function maintaining a bit of ugly state below for a fast implementation:
//
//  1. Match the bare word "import" not embedded in a longer identifier.
//  2. Expect an opening paren (a following identifier or "from" means a
//     static import statement, which is skipped).
//  3. Read the quoted literal argument; anything other than a string
//     literal is a fatal ErrNonLiteralImport.
func ScanAsyncImports(source string) ([]ImportCall, error) {
	var calls []ImportCall

	i := 0
	for i < len(source) {
		c := source[i]
		if c != 'i' {
			i++
			continue
		}
		if len(source)-i < len(importKeyword) || source[i:i+len(importKeyword)] != importKeyword {
			i++
			continue
		}
		// Word boundaries: "reimport" and "imports" are not the keyword.
		if i > 0 && (isIdentByte(source[i-1]) || source[i-1] == '.') {
			i++
			continue
		}
		after := i + len(importKeyword)
		if after < len(source) && isIdentByte(source[after]) {
			i = after
			continue
		}

		j := after
		for j < len(source) && isSpaceByte(source[j]) {
			j++
		}
		if j >= len(source) || source[j] != '(' {
			// A static "import x from ..." statement, not a call site.
			i = after
			continue
		}
		j++
		for j < len(source) && isSpaceByte(source[j]) {
			j++
		}
		if j >= len(source) {
			return calls, fmt.Errorf("%w at offset %d: unterminated call", ErrNonLiteralImport, i)
		}
		quote := source[j]
		if quote != '\'' && quote != '"' && quote != '`' {
			return calls, fmt.Errorf("%w at offset %d", ErrNonLiteralImport, i)
		}
		j++
		start := j
		for j < len(source) && source[j] != quote {
			j++
		}
		if j >= len(source) {
			return calls, fmt.Errorf("%w at offset %d: unterminated literal", ErrNonLiteralImport, i)
		}
		spec := source[start:j]
		// A template literal with interpolation is not statically known.
		if quote == '`' {
			for k := 0; k+1 < len(spec); k++ {
				if spec[k] == '$' && spec[k+1] == '{' {
					return calls, fmt.Errorf("%w at offset %d", ErrNonLiteralImport, i)
				}
			}
		}
		calls = append(calls, ImportCall{Specifier: spec, Offset: i})
		i = j + 1
	}
	return calls, nil
}
