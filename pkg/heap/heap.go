// Package heap implements the allocation interface the interpreter and
// object constructors consume: sized, typed allocation with a movable/
// immovable split, and the out-of-memory signalling contract. It deliberately
// does not implement a tracing collector -- that is an external collaborator
// per the engine's scope -- but it does provide the object-visitation hook
// a real collector would need, and it guarantees the one property the
// engine depends on: immovable allocations have a stable address for the
// lifetime of the context.
package heap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koslang/kosvm/pkg/value"
)

// ErrOutOfMemory is the error value for an exceeded memory ceiling.
// Allocate does not return it: Allocate reports failure as ok=false after
// calling Raiser.RaiseOutOfMemory.
var ErrOutOfMemory = fmt.Errorf("out of memory")

// Raiser lets the allocator set a pending exception on the owning context
// without the heap package depending on the vm package (which in turn
// depends on heap). The vm.Context implements this.
type Raiser interface {
	RaiseOutOfMemory()
}

// Arena owns every allocation made by one Instance. Byte accounting is
// guarded by mu because multiple contexts backed by the same instance may
// allocate concurrently (see the concurrency model: the heap is shared and
// the allocator is responsible for its own synchronization).
type Arena struct {
	mu sync.Mutex

	maxBytes   int64
	movable    []value.Ref
	immovable  []value.Ref
	usedBytes  int64
	allocCount int64
}

// NewArena creates an arena with an optional byte ceiling (0 means
// unbounded, useful for tests that don't want to reason about capacity).
func NewArena(maxBytes int64) *Arena {
	return &Arena{maxBytes: maxBytes}
}

// Stats summarizes arena occupancy for diagnostics/--verbose output.
type Stats struct {
	UsedBytes      int64
	Allocations    int64
	MovableCount   int
	ImmovableCount int
}

func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		UsedBytes:      atomic.LoadInt64(&a.usedBytes),
		Allocations:    atomic.LoadInt64(&a.allocCount),
		MovableCount:   len(a.movable),
		ImmovableCount: len(a.immovable),
	}
}

// Allocate reserves sizeBytes for an object of type t with the requested
// movability, returning the pre-registered header so the caller can
// initialize the remainder of the object. On failure it calls
// raiser.RaiseOutOfMemory and returns (nil, false); the caller must
// propagate that as an exception rather than retry.
//
// Allocate does not initialize reference fields beyond zero value: Go's
// own allocator already zero-initializes new objects, which satisfies the
// "zero-initialised for reference fields" contract. Numeric and flag
// fields remain the caller's responsibility to set.
func Allocate[T value.Ref](a *Arena, raiser Raiser, movability value.Movability, t value.Type, size uint32, obj T) (T, bool) {
	a.mu.Lock()
	if a.maxBytes > 0 && a.usedBytes+int64(size) > a.maxBytes {
		a.mu.Unlock()
		if raiser != nil {
			raiser.RaiseOutOfMemory()
		}
		var zero T
		return zero, false
	}
	a.usedBytes += int64(size)
	a.allocCount++
	switch movability {
	case value.Immovable:
		a.immovable = append(a.immovable, obj)
	default:
		a.movable = append(a.movable, obj)
	}
	a.mu.Unlock()

	*obj.ObjHeader() = value.NewHeader(t, size)
	return obj, true
}

// Visitor is the hook a tracing collector would call for every live
// reference reachable from an object; Walk visits every allocation the
// arena currently owns. The engine itself never calls this -- it exists so
// an external GC (out of scope) has a stable entry point to build on.
type Visitor func(value.Ref)

// Walk invokes visit for every allocation currently tracked by the arena,
// movable objects first, then immovable ones.
func (a *Arena) Walk(visit Visitor) {
	a.mu.Lock()
	movable := append([]value.Ref(nil), a.movable...)
	immovable := append([]value.Ref(nil), a.immovable...)
	a.mu.Unlock()

	for _, r := range movable {
		visit(r)
	}
	for _, r := range immovable {
		visit(r)
	}
}
