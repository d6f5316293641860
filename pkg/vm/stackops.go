package vm

import "github.com/koslang/kosvm/pkg/object"
import "github.com/koslang/kosvm/pkg/value"

// normalSegmentCapacity is how many frames a freshly chained normal
// segment reserves before another one has to be chained. Sized well
// above typical call depth between allocations so ordinary recursion
// does not thrash the allocator; tune freely, nothing depends on this
// exact figure.
const normalSegmentCapacity = 64

// StackPush installs a new frame for a call to fn, mirroring
// kos_stack_push: ordinary calls grow the current segment (chaining a
// new one if it is full), while a closure or a freshly instantiated
// generator gets its own single-frame reentrant segment that is
// detached again on StackPop so it survives independently of whatever
// the caller's stack does afterward. Resuming an already-instantiated
// generator rechains its preserved segment instead of allocating one.
func (ctx *Context) StackPush(fn value.Value, this value.Value, retReg, genReg uint8) bool {
	callable, ok := fn.Ref().(object.Callable)
	if !ok {
		ctx.RaiseNotCallable()
		return false
	}

	if ctx.StackDepth+1 > ctx.Inst.Limits.MaxStackDepth {
		ctx.RaiseStackOverflow()
		return false
	}

	core := callable.Core()
	state := callable.GetState()

	numRegs := int(core.Opts.NumRegs)
	if core.Handler != nil {
		numRegs = 1
	}

	usesThis := false
	if !this.IsBad() && state == object.FunCtor && core.Handler == nil {
		numRegs++
		usesThis = true
	}
	if numRegs == 0 {
		numRegs = 1
	}

	regs := make([]value.Value, numRegs)
	for i := range regs {
		regs[i] = object.Void()
	}
	if usesThis {
		regs[numRegs-1] = this
	}

	frame := object.Frame{
		Func:      fn,
		InstrOffs: core.InstrOffs,
		Regs:      regs,
		RetReg:    retReg,
		GenReg:    genReg,
	}

	switch {
	case state > object.FunGenInit:
		// Resuming a suspended generator: rechain its preserved segment
		// onto the current stack and push the fresh call frame onto it.
		genFn, ok := fn.Ref().(*object.Function)
		if !ok || genFn.GeneratorStackFrame == nil {
			ctx.RaiseNotCallable()
			return false
		}
		genSeg, ok := genFn.GeneratorStackFrame.(*object.Segment)
		if !ok {
			ctx.RaiseNotCallable()
			return false
		}
		genSeg.Backlink = ctx.Stack
		ctx.Stack = genSeg
		genSeg.PushFrame(frame)

	case state == object.FunGenInit || core.Opts.NumBinds > 0:
		// First call into a generator, or any call that needs a closure
		// frame outliving the caller's segment: a dedicated reentrant
		// segment of its own.
		seg, ok := AllocImmovable(ctx, value.TypeStack, 96, object.NewSegment(object.ReentrantStack, 1, ctx.Stack))
		if !ok {
			return false
		}
		ctx.Stack = seg
		seg.PushFrame(frame)
		if genFn, ok := fn.Ref().(*object.Function); ok && state == object.FunGenInit {
			genFn.GeneratorStackFrame = seg
			genFn.State = object.FunGenReady
		}

	default:
		if ctx.Stack == nil || !ctx.Stack.HasRoom(1) {
			seg, ok := AllocImmovable(ctx, value.TypeStack, 96, object.NewSegment(object.NormalStack, normalSegmentCapacity, ctx.Stack))
			if !ok {
				return false
			}
			ctx.Stack = seg
		}
		ctx.Stack.PushFrame(frame)
	}

	ctx.StackDepth++
	return true
}

// StackPop removes the innermost frame, mirroring kos_stack_pop: a
// reentrant segment (closure/generator) detaches from the chain so the
// caller's stack continues without it, leaving the segment itself
// reachable only through the function object that owns it (for a
// generator, ready for the next resume); an exhausted normal segment is
// dropped from the chain entirely.
func (ctx *Context) StackPop() (object.Frame, bool) {
	seg := ctx.Stack
	if seg == nil {
		return object.Frame{}, false
	}
	frame, ok := seg.PopFrame()
	if !ok {
		return object.Frame{}, false
	}
	ctx.StackDepth--

	if seg.Flags == object.ReentrantStack {
		ctx.Stack = seg.Backlink
		seg.Backlink = nil
	} else if seg.Size() == 0 {
		ctx.Stack = seg.Backlink
	}

	return frame, true
}
