// Package module defines the module-loading collaborator boundary: the
// interface the VM calls through to turn an import path into a loaded
// object.Module, and a minimal in-memory registry implementing it.
//
// Parsing and compiling Kos source into bytecode is out of scope here
// (spec.md §1); this package only resolves already-built *object.Module
// values by path, the way a real checkout would wire in its compiler's
// output without the VM needing to know how it got there.
package module

import (
	"fmt"

	"github.com/koslang/kosvm/pkg/object"
)

// Loader resolves an import path to a loaded module. Implementations are
// free to compile on demand, read from a bytecode cache, or (as with
// InMemoryLoader) simply serve modules registered ahead of time.
type Loader interface {
	Load(path string) (*object.Module, error)
}

// InMemoryLoader is a Loader backed by a fixed set of modules supplied by
// the embedder, useful for tests and for any program assembled entirely
// with pkg/kasm rather than loaded from disk.
type InMemoryLoader struct {
	modules map[string]*object.Module
}

// NewInMemoryLoader builds a loader with no modules registered yet.
func NewInMemoryLoader() *InMemoryLoader {
	return &InMemoryLoader{modules: make(map[string]*object.Module)}
}

// Register adds or replaces the module served for path.
func (l *InMemoryLoader) Register(path string, m *object.Module) {
	l.modules[path] = m
}

func (l *InMemoryLoader) Load(path string) (*object.Module, error) {
	m, ok := l.modules[path]
	if !ok {
		return nil, fmt.Errorf("module not found: %s", path)
	}
	return m, nil
}

// Paths lists every module path currently registered.
func (l *InMemoryLoader) Paths() []string {
	paths := make([]string, 0, len(l.modules))
	for p := range l.modules {
		paths = append(paths, p)
	}
	return paths
}

// Resolver ties a Loader to the running instance's module registry: it
// loads a module on first reference and remembers it under the same path
// for GET_MOD / GET_MOD_ELEM lookups thereafter, mirroring how imports in
// the original runtime are resolved once and cached for the lifetime of
// the context.
type Resolver struct {
	loader Loader
	put    func(path string, m *object.Module)
	get    func(path string) (*object.Module, bool)
}

// NewResolver wires a Loader to an instance-wide registry's Get/Put
// methods (see vm.Registry), without pkg/module importing pkg/vm.
func NewResolver(loader Loader, get func(string) (*object.Module, bool), put func(string, *object.Module)) *Resolver {
	return &Resolver{loader: loader, get: get, put: put}
}

// Resolve returns the module for path, loading and caching it on first
// use.
func (r *Resolver) Resolve(path string) (*object.Module, error) {
	if m, ok := r.get(path); ok {
		return m, nil
	}
	m, err := r.loader.Load(path)
	if err != nil {
		return nil, err
	}
	r.put(path, m)
	return m, nil
}
