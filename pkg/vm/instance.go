// Package vm is the bytecode interpreter: shared-instance state, the
// per-context call stack, instruction dispatch, call/exception handling,
// and the arithmetic/comparison rules the bytecode relies on.
package vm

import (
	"fmt"
	"sync"

	"github.com/koslang/kosvm/pkg/heap"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// Limits bounds a single run the way KOS_INSTANCE's configuration knobs
// do: a heap ceiling and a maximum call-stack depth, both enforced as
// raised exceptions rather than process-fatal conditions.
type Limits struct {
	MaxHeapBytes    int64
	MaxStackDepth   uint32
}

// DefaultLimits mirrors the conservative defaults compiled into the
// reference runtime.
func DefaultLimits() Limits {
	return Limits{
		MaxHeapBytes:  256 << 20,
		MaxStackDepth: 2000,
	}
}

// Instance is the state shared by every Context created against it: the
// heap arena, the language's built-in prototypes, and the interned
// string/module tables. Exactly one Instance per independent VM; it is
// not safe to run two Contexts belonging to the same Instance
// concurrently on goroutines without external synchronization beyond
// what the property map and heap already provide (the spec's §5 scopes
// concurrent execution within one context out as a Non-goal; what is
// supported is one context at a time, with the lock-free property maps
// and atomic stack bookkeeping only there to let a *second* context
// observe published state safely, e.g. a debugger attached mid-run).
type Instance struct {
	mu sync.Mutex

	Arena *heap.Arena
	Limits Limits

	// Prototypes holds the built-in prototype objects (object_proto,
	// array_proto, string_proto, function_proto, generator_proto,
	// exception_proto, ...) that LOAD_ARRAY/LOAD_OBJ/NEW and friends
	// hang new instances off.
	Prototypes map[string]*object.Object

	// internedStrings avoids reallocating identical string constants
	// across modules loaded into the same instance.
	internedStrings map[string]*object.String

	Modules Registry

	oomPending bool
}

// NewInstance creates a fresh Instance with its built-in prototypes
// wired up (each a plain Object whose own Prototype link is value.Bad,
// i.e. no prototype, matching the root-of-chain convention used
// throughout the object model).
func NewInstance(limits Limits) *Instance {
	inst := &Instance{
		Arena:           heap.NewArena(limits.MaxHeapBytes),
		Limits:          limits,
		Prototypes:      make(map[string]*object.Object),
		internedStrings: make(map[string]*object.String),
		Modules:         NewRegistry(),
	}
	for _, name := range []string{
		"object", "array", "string", "buffer", "number", "integer", "float",
		"boolean", "function", "class", "generator", "exception", "iterator",
		"module",
	} {
		inst.Prototypes[name] = object.NewObject(value.Bad)
	}
	return inst
}

// Prototype looks up a built-in prototype by name, panicking only if the
// name is not one NewInstance registered -- a programmer error in the
// interpreter, never a user-triggerable condition.
func (inst *Instance) Prototype(name string) *object.Object {
	p, ok := inst.Prototypes[name]
	if !ok {
		panic(fmt.Sprintf("vm: unknown built-in prototype %q", name))
	}
	return p
}

// Intern returns a shared *object.String for s, allocating and caching
// it on first use, so equal strings interned through it share one heap
// object, the way the reference runtime's string table does. Module
// constant pools built with pkg/kasm are not routed through it.
func (inst *Instance) Intern(s string) *object.String {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if v, ok := inst.internedStrings[s]; ok {
		return v
	}
	v := object.NewConstString(s)
	inst.internedStrings[s] = v
	return v
}

// RaiseOutOfMemory implements heap.Raiser, letting the arena signal
// allocation failure without importing this package. Contexts running
// against this instance pick the condition up at their next Step, via
// Context.CheckPendingFailures.
func (inst *Instance) RaiseOutOfMemory() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.oomPending = true
}

// TakeOOMPending reports and clears a pending out-of-memory condition
// raised by the arena since the last call, letting a Context turn it
// into a language-level exception at its next safe point.
func (inst *Instance) TakeOOMPending() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	pending := inst.oomPending
	inst.oomPending = false
	return pending
}
