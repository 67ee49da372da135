// Package backend defines the contracts the cache needs from the reactive
// query backend: resolving a function reference to its stable identity,
// one-shot fetches, and streamed subscriptions.
package backend

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned by a Source that has no result for a query.
	ErrNotFound = errors.New("backend: query not found")

	// ErrUnresolved is returned when a function reference has no identity.
	ErrUnresolved = errors.New("backend: unresolvable function reference")
)

// FunctionRef points at one exported backend function.
type FunctionRef struct {
	Module string // source module path relative to the functions directory
	Export string // exported name within the module
}

func (r FunctionRef) String() string {
	return r.Module + "." + r.Export
}

// Resolver turns a function reference into the identity shared by clients
// and servers. Identical functions must resolve to identical names.
type Resolver interface {
	ResolveIdentity(ref FunctionRef) (string, error)
}

// Source is the live query backend.
type Source interface {
	// Fetch runs the query once and returns its JSON result.
	Fetch(ctx context.Context, identity string, args any) ([]byte, error)

	// Subscribe streams every result the backend pushes for the query.
	// The channel is closed when ctx is done.
	Subscribe(ctx context.Context, identity string, args any) (<-chan []byte, error)
}

// NameResolver resolves references the way the backend names functions:
// "<module>:<export>", with the default export named by its module alone.
// Module paths use forward slashes and carry no file extension.
type NameResolver struct{}

func (NameResolver) ResolveIdentity(ref FunctionRef) (string, error) {
	module := filepath.ToSlash(ref.Module)
	module = strings.TrimSuffix(module, path.Ext(module))
	if module == "" || ref.Export == "" {
		return "", fmt.Errorf("%w: %q", ErrUnresolved, ref.String())
	}
	if ref.Export == "default" {
		return module, nil
	}
	return module + ":" + ref.Export, nil
}
