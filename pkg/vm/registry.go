package vm

import (
	"golang.org/x/exp/maps"

	"github.com/koslang/kosvm/pkg/object"
)

// Registry is the instance-wide table of loaded modules, keyed by module
// path. Populating it is a collaborator's job (the module loader/compiler,
// out of scope here); GET_MOD and GET_MOD_ELEM do not consult it, they
// index the owning module's Modules table.
type Registry struct {
	byPath map[string]*object.Module
}

func NewRegistry() Registry {
	return Registry{byPath: make(map[string]*object.Module)}
}

func (r Registry) Get(path string) (*object.Module, bool) {
	m, ok := r.byPath[path]
	return m, ok
}

func (r Registry) Put(path string, m *object.Module) {
	r.byPath[path] = m
}

// Paths lists every loaded module path, in no particular order (Go map
// iteration order).
func (r Registry) Paths() []string {
	return maps.Keys(r.byPath)
}
