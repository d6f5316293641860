package vm

import (
	"github.com/koslang/kosvm/pkg/heap"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// Context is one logical thread of execution against an Instance: its
// own call stack (a chain of Segments) and its own in-flight exception
// slot. Multiple Contexts may share an Instance (and therefore its heap
// and prototypes); running them concurrently on separate goroutines is
// outside this package's contract -- see the note on Instance.
type Context struct {
	Inst *Instance

	Stack      *object.Segment
	StackDepth uint32

	Exception    value.Value
	HasException bool

	// yieldDepth is not written or read anywhere: YIELD does not record
	// the caller's stack depth.
	yieldDepth uint32
}

// NewContext creates a context with an empty stack, ready for its first
// StackPush.
func NewContext(inst *Instance) *Context {
	return &Context{Inst: inst}
}

// AllocMovable allocates a GC-movable object of type t and size
// sizeBytes, raising OutOfMemory and returning ok=false if the arena is
// at its ceiling.
func AllocMovable[T value.Ref](ctx *Context, t value.Type, size uint32, obj T) (T, bool) {
	out, ok := heap.Allocate(ctx.Inst.Arena, ctx.Inst, value.Movable, t, size, obj)
	if !ok {
		ctx.RaiseOutOfMemory()
	}
	return out, ok
}

// AllocImmovable allocates a pinned object (stack segments, huge
// trackers) that the collector never relocates.
func AllocImmovable[T value.Ref](ctx *Context, t value.Type, size uint32, obj T) (T, bool) {
	out, ok := heap.Allocate(ctx.Inst.Arena, ctx.Inst, value.Immovable, t, size, obj)
	if !ok {
		ctx.RaiseOutOfMemory()
	}
	return out, ok
}

// CheckPendingFailures surfaces an OOM condition the arena recorded
// asynchronously (from another context sharing this instance) as this
// context's own exception, if one is not already in flight.
func (ctx *Context) CheckPendingFailures() {
	if !ctx.HasException && ctx.Inst.TakeOOMPending() {
		ctx.RaiseOutOfMemory()
	}
}
