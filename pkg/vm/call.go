package vm

import (
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// bindArgs copies positional arguments from args into the callee's
// register window per its ArgLayout: a fixed run of required/defaulted
// parameters, an optional "rest" array for anything beyond them, and an
// optional ellipsis array duplicating the full argument list.
func bindArgs(ctx *Context, core *object.FunctionCore, frame *object.Frame, args *object.Array) {
	n := 0
	if args != nil {
		n = args.Len()
	}

	fixed := int(core.Opts.MinArgs) + int(core.Opts.NumDefArgs)
	if core.Opts.ArgsReg != object.NoReg {
		base := int(core.Opts.ArgsReg)
		for i := 0; i < fixed && i < len(frame.Regs)-base; i++ {
			if i < n {
				v, _ := args.Get(i)
				frame.Regs[base+i] = v
			} else if core.Defaults != nil && i-int(core.Opts.MinArgs) >= 0 && i-int(core.Opts.MinArgs) < core.Defaults.Len() {
				v, _ := core.Defaults.Get(i - int(core.Opts.MinArgs))
				frame.Regs[base+i] = v
			} else {
				frame.Regs[base+i] = object.Void()
			}
		}
	}

	if core.Opts.RestReg != object.NoReg && int(core.Opts.RestReg) < len(frame.Regs) {
		rest := object.NewArray(0)
		for i := fixed; i < n; i++ {
			v, _ := args.Get(i)
			rest.Push(v)
		}
		frame.Regs[core.Opts.RestReg] = value.NewHeapRef(rest)
	}

	if core.Opts.EllipsisReg != object.NoReg && int(core.Opts.EllipsisReg) < len(frame.Regs) {
		all := object.NewArray(0)
		for i := 0; i < n; i++ {
			v, _ := args.Get(i)
			all.Push(v)
		}
		frame.Regs[core.Opts.EllipsisReg] = value.NewHeapRef(all)
	}

	if core.Opts.MinArgs > 0 && n < int(core.Opts.MinArgs) {
		ctx.Raise("not enough arguments")
	}
}

func bindClosure(core *object.FunctionCore, frame *object.Frame) {
	if core.Closures == nil || core.Opts.BindReg == object.NoReg {
		return
	}
	base := int(core.Opts.BindReg)
	for i := 0; i < core.Closures.Len() && base+i < len(frame.Regs); i++ {
		v, _ := core.Closures.Get(i)
		frame.Regs[base+i] = v
	}
}

// Call implements CALL/CALL_N/CALL_FUN/TAIL_CALL*: invoking fn(this,
// args). Calling a generator-init function only instantiates a
// suspended generator object rather than running its body -- the body
// first runs on the first CallGen resume -- matching the reference
// runtime's split between "create generator" and "advance generator".
func (ctx *Context) Call(fn, this value.Value, args *object.Array, retReg uint8) (value.Value, bool) {
	callable, ok := fn.Ref().(object.Callable)
	if !ok {
		ctx.RaiseNotCallable()
		return value.Value{}, false
	}
	core := callable.Core()

	if f, ok := fn.Ref().(*object.Function); ok && f.State == object.FunGenInit {
		return ctx.instantiateGenerator(f, args)
	}

	if core.Handler != nil {
		result, err := core.Handler(ctx, this, args)
		if err != nil {
			ctx.Raise(err.Error())
			return value.Value{}, false
		}
		return result, true
	}

	if !ctx.StackPush(fn, this, retReg, object.NoReg) {
		return value.Value{}, false
	}
	frame := ctx.Stack.Top()
	bindClosure(core, frame)
	bindArgs(ctx, core, frame, args)
	if ctx.HasException {
		return value.Value{}, false
	}
	return ctx.Run()
}

// instantiateGenerator binds the call's arguments into a fresh closure
// snapshot and produces a FunGenReady function value without running
// any of the generator's own bytecode yet.
func (ctx *Context) instantiateGenerator(descr *object.Function, args *object.Array) (value.Value, bool) {
	bound := object.NewArray(0)
	if args != nil {
		for i := 0; i < args.Len(); i++ {
			v, _ := args.Get(i)
			bound.Push(v)
		}
	}
	core := descr.FunctionCore
	core.Closures = bound

	inst := object.NewFunction(core)
	inst.State = object.FunGenReady
	gv, ok := AllocMovable(ctx, value.TypeFunction, 96, inst)
	if !ok {
		return value.Value{}, false
	}
	return value.NewHeapRef(gv), true
}

// CallGen implements CALL_GEN: advancing a generator one step. Calling a
// done generator raises, matching the language convention that
// exhausted iteration is a thrown condition rather than a sentinel
// value.
func (ctx *Context) CallGen(genVal value.Value, retReg uint8) (value.Value, bool) {
	gen, ok := genVal.Ref().(*object.Function)
	if !ok {
		ctx.RaiseNotCallable()
		return value.Value{}, false
	}
	switch gen.State {
	case object.FunGenDone:
		ctx.Raise("generator is done")
		return value.Value{}, false
	case object.FunGenReady:
		// ok
	default:
		ctx.Raise("generator is already running")
		return value.Value{}, false
	}

	if gen.GeneratorStackFrame == nil {
		seg, ok := AllocImmovable(ctx, value.TypeStack, 96, object.NewSegment(object.ReentrantStack, 1, nil))
		if !ok {
			return value.Value{}, false
		}
		gen.GeneratorStackFrame = seg
	}

	gen.State = object.FunGenActive
	if !ctx.StackPush(genVal, value.Bad, retReg, object.NoReg) {
		return value.Value{}, false
	}
	frame := ctx.Stack.Top()
	bindClosure(&gen.FunctionCore, frame)
	bindArgs(ctx, &gen.FunctionCore, frame, gen.FunctionCore.Closures)
	if ctx.HasException {
		return value.Value{}, false
	}
	gen.State = object.FunGenRunning
	return ctx.Run()
}

// New implements the NEW opcode: allocate an instance bound to class's
// prototype, run the constructor with that instance as `this`, and return
// that instance. Only a native handler constructor may override the
// returned value with an object of its own; a bytecode constructor's
// RETURN can never substitute for `this`.
func (ctx *Context) New(classVal value.Value, args *object.Array, retReg uint8) (value.Value, bool) {
	class, ok := classVal.Ref().(*object.Class)
	if !ok {
		ctx.RaiseNotCallable()
		return value.Value{}, false
	}

	inst := object.NewObject(class.Prototype())
	instVal, ok := AllocMovable(ctx, value.TypeObject, 32, inst)
	if !ok {
		return value.Value{}, false
	}
	thisVal := value.NewHeapRef(instVal)

	if class.Handler != nil {
		result, err := class.Handler(ctx, thisVal, args)
		if err != nil {
			ctx.Raise(err.Error())
			return value.Value{}, false
		}
		if value.GetType(result) == value.TypeObject {
			return result, true
		}
		return thisVal, true
	}

	if !ctx.StackPush(classVal, thisVal, retReg, object.NoReg) {
		return value.Value{}, false
	}
	frame := ctx.Stack.Top()
	bindClosure(&class.FunctionCore, frame)
	bindArgs(ctx, &class.FunctionCore, frame, args)
	if ctx.HasException {
		return value.Value{}, false
	}
	if _, ok := ctx.Run(); !ok {
		return value.Value{}, false
	}
	return thisVal, true
}

// TailCall implements TAIL_CALL*: the current frame is discarded before
// the new one is pushed, so a self-recursive tail call runs in constant
// stack depth instead of growing one frame per iteration.
func (ctx *Context) TailCall(fn, this value.Value, args *object.Array) (value.Value, bool) {
	prev, ok := ctx.StackPop()
	if !ok {
		ctx.Raise("tail call with no caller frame")
		return value.Value{}, false
	}
	return ctx.Call(fn, this, args, prev.RetReg)
}
