package module

import (
	"testing"

	"github.com/koslang/kosvm/pkg/object"
)

func TestInMemoryLoaderRoundTrip(t *testing.T) {
	loader := NewInMemoryLoader()
	mod := object.NewModule("math", "math.kos")
	loader.Register("math", mod)

	got, err := loader.Load("math")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != mod {
		t.Fatalf("Load returned a different module than was registered")
	}
}

func TestInMemoryLoaderUnknownPath(t *testing.T) {
	loader := NewInMemoryLoader()
	if _, err := loader.Load("missing"); err == nil {
		t.Fatalf("expected an error loading an unregistered path")
	}
}

func TestInMemoryLoaderPaths(t *testing.T) {
	loader := NewInMemoryLoader()
	loader.Register("a", object.NewModule("a", "a.kos"))
	loader.Register("b", object.NewModule("b", "b.kos"))

	paths := loader.Paths()
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
}

func TestResolverCachesAfterFirstLoad(t *testing.T) {
	loader := NewInMemoryLoader()
	mod := object.NewModule("math", "math.kos")
	loader.Register("math", mod)

	cache := make(map[string]*object.Module)
	get := func(path string) (*object.Module, bool) { m, ok := cache[path]; return m, ok }
	put := func(path string, m *object.Module) { cache[path] = m }

	r := NewResolver(loader, get, put)

	first, err := r.Resolve("math")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != mod {
		t.Fatalf("Resolve did not return the loaded module")
	}
	if _, ok := cache["math"]; !ok {
		t.Fatalf("Resolve did not populate the cache via put")
	}

	// Replace the loader's registration; a cached resolve must not
	// re-invoke Load.
	loader.Register("math", object.NewModule("math", "different.kos"))
	second, err := r.Resolve("math")
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if second != mod {
		t.Fatalf("Resolve re-loaded instead of using the cache")
	}
}

func TestResolverPropagatesLoadError(t *testing.T) {
	loader := NewInMemoryLoader()
	cache := make(map[string]*object.Module)
	get := func(path string) (*object.Module, bool) { m, ok := cache[path]; return m, ok }
	put := func(path string, m *object.Module) { cache[path] = m }

	r := NewResolver(loader, get, put)
	if _, err := r.Resolve("nope"); err == nil {
		t.Fatalf("expected an error resolving an unregistered module")
	}
}
