// Package scope maps source lines to the qualified name of the innermost
// enclosing function.
package scope

import "errors"

// ErrUnresolvableScope is returned when a line is not inside any function
var ErrUnresolvableScope = errors.New("line is not inside a function scope")

// Resolver answers scope lookups for a single source file
type Resolver interface {
	// QualifiedNameAt returns the dotted name of the innermost function
	// enclosing line (1-based), e.g. "Handler.get" or "outer.inner".
	QualifiedNameAt(line int) (string, error)
}

// Provider returns the resolver for a source file
type Provider interface {
	ResolverFor(path string) (Resolver, error)
}
