package vm

import (
	"github.com/koslang/kosvm/pkg/bytecode"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// Run executes instructions from the frame StackPush most recently
// pushed onto ctx.Stack until that exact frame returns, yields, or its
// exception escapes uncaught. It is reentered recursively: every CALL
// family opcode pushes a callee frame and calls Run again for it, so
// the Go call stack mirrors the Kos call stack one level per nested
// call, and RETURN/YIELD simply returning from the innermost Run
// unwinds exactly one level -- the same way a native recursive
// interpreter works, just with the frame's registers and instruction
// pointer kept in the explicit Segment/Frame rather than Go locals, so
// a generator's frame can be detached and later resumed by a distinct
// Run invocation.
func (ctx *Context) Run() (value.Value, bool) {
	seg := ctx.Stack
	idx := int(seg.Size()) - 1
	if idx < 0 {
		return value.Value{}, false
	}

	for {
		r := ctx.Step()
		if r.Done {
			return r.Value, !r.Exception
		}
		if r.Returned && r.Seg == seg && r.FrameIdx == idx {
			return r.Value, true
		}
	}
}

// StepResult reports the outcome of a single Step call.
type StepResult struct {
	Value     value.Value
	Done      bool // the whole Run invocation driving this Step should stop
	Exception bool // Done because of an exception escaping uncaught
	Returned  bool // a frame returned or yielded this step; Seg/FrameIdx name it
	Seg       *object.Segment
	FrameIdx  int
}

// Step executes exactly one bytecode instruction against whatever frame
// currently sits on top of ctx.Stack. CALL-family opcodes still run to
// completion inside the one Step call, since dispatch recurses into Run
// internally -- Step gives a debugger single-instruction granularity at
// the calling frame's level, not step-into-callee granularity, which
// matches the interpreter's own synchronous call semantics. Run is built
// by looping Step until the frame it started for reports Done or
// Returned against its own (seg, idx).
func (ctx *Context) Step() StepResult {
	seg := ctx.Stack
	if seg == nil || seg.Size() == 0 {
		return StepResult{Done: true}
	}
	idx := int(seg.Size()) - 1

	ctx.CheckPendingFailures()
	if ctx.HasException {
		v, ok := ctx.unwindOrPropagate(seg, idx)
		if !ok {
			return StepResult{Done: true, Value: v, Exception: true}
		}
		return StepResult{}
	}

	frame := &seg.Frames[idx]
	callable, ok := frame.Func.Ref().(object.Callable)
	if !ok {
		ctx.Raise("stack frame has no callable")
		return StepResult{}
	}
	core := callable.Core()

	instr, next, ok := bytecode.Decode(core.Bytecode, frame.InstrOffs)
	if !ok {
		ctx.Raise("invalid instruction")
		return StepResult{}
	}
	frame.InstrOffs = next

	switch result := ctx.exec(frame, core, instr); result.kind {
	case execReturn:
		ctx.popReturn(seg)
		return StepResult{Returned: true, Value: result.value, Seg: seg, FrameIdx: idx}

	case execYield:
		ctx.popYield(seg)
		return StepResult{Returned: true, Value: result.value, Seg: seg, FrameIdx: idx}
	}

	if ctx.HasException {
		v, ok := ctx.unwindOrPropagate(seg, idx)
		if !ok {
			return StepResult{Done: true, Value: v, Exception: true}
		}
		// A local CATCH consumed the exception; InstrOffs was rewritten
		// to the catch target and execution continues from there.
	}
	return StepResult{}
}

// popReturn detaches seg's top frame because it returned (or an
// exception unwound through it), rechaining ctx.Stack to the caller
// segment and marking a generator permanently done in either case.
func (ctx *Context) popReturn(seg *object.Segment) object.Frame {
	frame, _ := seg.PopFrame()
	ctx.StackDepth--
	caller := seg.Backlink
	if seg.Flags == object.ReentrantStack {
		seg.Backlink = nil
		if fn, ok := frame.Func.Ref().(*object.Function); ok && fn.State > object.FunGenInit {
			fn.State = object.FunGenDone
		}
		ctx.Stack = caller
	} else if seg.Size() == 0 {
		ctx.Stack = caller
	}
	return frame
}

// popYield detaches seg's top frame because it yielded, leaving the
// generator suspended and resumable rather than done.
func (ctx *Context) popYield(seg *object.Segment) object.Frame {
	frame, _ := seg.PopFrame()
	ctx.StackDepth--
	if fn, ok := frame.Func.Ref().(*object.Function); ok {
		fn.State = object.FunGenReady
	}
	ctx.Stack = seg.Backlink
	seg.Backlink = nil
	return frame
}

// unwindOrPropagate checks whether the in-flight exception is caught by
// the frame at (seg, idx). If so it rewrites that frame's instruction
// pointer to the catch target and reports ok=true so the caller
// continues from there; otherwise it pops that frame (one level of
// unwinding) and returns ok=false so the exception keeps propagating.
func (ctx *Context) unwindOrPropagate(seg *object.Segment, idx int) (value.Value, bool) {
	fSeg, fIdx, found := ctx.FindCatch()
	if found && fSeg == seg && fIdx == idx {
		frame := &seg.Frames[idx]
		exc := ctx.Exception
		frame.InstrOffs = frame.Catch.Offset
		if frame.Catch.Reg != object.NoReg {
			frame.Regs[frame.Catch.Reg] = exc
		}
		frame.Catch.Armed = false
		ctx.ClearException()
		return value.Value{}, true
	}

	ctx.popReturn(seg)
	return value.Value{}, false
}

type execKind uint8

const (
	execContinue execKind = iota
	execReturn
	execYield
)

type execResult struct {
	kind  execKind
	value value.Value
}

func cont() execResult { return execResult{kind: execContinue} }

// exec executes a single decoded instruction against frame, returning
// whether the frame should keep running, return, or yield. Register
// indices are trusted to be within frame.Regs -- the compiler (out of
// scope) is responsible for emitting bytecode whose register operands
// fit the function's declared num_regs.
func (ctx *Context) exec(frame *object.Frame, core *object.FunctionCore, ins bytecode.Instr) execResult {
	regs := frame.Regs

	switch ins.Op {
	case bytecode.OpNop:

	case bytecode.OpLoadInt8, bytecode.OpLoadInt32:
		regs[ins.A] = value.NewSmallInt(ins.Imm)

	case bytecode.OpLoadInt64:
		regs[ins.A] = ctx.asInt(ins.Imm)

	case bytecode.OpLoadFloat:
		regs[ins.A] = ctx.asFloat(floatFromBits(ins.Imm))

	case bytecode.OpLoadTrue:
		regs[ins.A] = object.Bool(true)
	case bytecode.OpLoadFalse:
		regs[ins.A] = object.Bool(false)
	case bytecode.OpLoadVoid:
		regs[ins.A] = object.Void()

	case bytecode.OpLoadConst, bytecode.OpLoadConst8:
		regs[ins.A] = ctx.constant(core, int(ins.Imm))

	case bytecode.OpLoadFun, bytecode.OpLoadFun8:
		regs[ins.A] = ctx.materializeCallable(core, int(ins.Imm), frame, false)

	case bytecode.OpLoadClass, bytecode.OpLoadClass8:
		regs[ins.A] = ctx.materializeCallable(core, int(ins.Imm), frame, true)

	case bytecode.OpLoadArray, bytecode.OpLoadArray8:
		arr, ok := AllocMovable(ctx, value.TypeArray, 32, object.NewArray(int(ins.Imm)))
		if !ok {
			return cont()
		}
		regs[ins.A] = value.NewHeapRef(arr)

	case bytecode.OpLoadObj:
		obj, ok := AllocMovable(ctx, value.TypeObject, 32, object.NewObject(value.NewHeapRef(ctx.Inst.Prototype("object"))))
		if !ok {
			return cont()
		}
		regs[ins.A] = value.NewHeapRef(obj)

	case bytecode.OpLoadIter:
		regs[ins.A] = ctx.makeIterator(regs[ins.B])

	case bytecode.OpMove:
		regs[ins.A] = regs[ins.B]

	case bytecode.OpGetGlobal:
		if mod, ok := core.Module.Ref().(*object.Module); ok && int(ins.B) < len(mod.Globals) {
			regs[ins.A] = mod.Globals[ins.B]
		} else {
			regs[ins.A] = object.Void()
		}
	case bytecode.OpSetGlobal:
		if mod, ok := core.Module.Ref().(*object.Module); ok && int(ins.B) < len(mod.Globals) {
			mod.Globals[ins.B] = regs[ins.A]
		}

	case bytecode.OpGetMod:
		regs[ins.A] = ctx.getModule(core, int(ins.Imm))
	case bytecode.OpGetModElem:
		regs[ins.A] = ctx.getModuleElem(core, int(ins.Imm))

	case bytecode.OpGet:
		regs[ins.A] = ctx.PropGet(regs[ins.B], regs[ins.C])
	case bytecode.OpGetProp8:
		name := ctx.constantString(core, int(ins.Imm))
		regs[ins.A] = ctx.PropGet(regs[ins.B], value.NewHeapRef(name))
	case bytecode.OpGetElem:
		regs[ins.A] = ctx.ElemGet(regs[ins.B], ins.Imm)
	case bytecode.OpGetRange:
		regs[ins.A] = ctx.RangeGet(regs[ins.B], regs[ins.C])

	case bytecode.OpSet:
		ctx.PropSet(regs[ins.A], regs[ins.B], regs[ins.C])
	case bytecode.OpSetProp8:
		name := ctx.constantString(core, int(ins.Imm))
		ctx.PropSet(regs[ins.A], value.NewHeapRef(name), regs[ins.B])
	case bytecode.OpSetElem:
		ctx.ElemSet(regs[ins.A], ins.Imm, regs[ins.B])

	case bytecode.OpHas:
		regs[ins.A] = object.Bool(ctx.PropHas(regs[ins.B], regs[ins.C], true))
	case bytecode.OpHasShProp8:
		name := ctx.constantString(core, int(ins.Imm))
		regs[ins.A] = object.Bool(ctx.PropHas(regs[ins.B], value.NewHeapRef(name), false))
	case bytecode.OpHasDpProp8:
		name := ctx.constantString(core, int(ins.Imm))
		regs[ins.A] = object.Bool(ctx.PropHas(regs[ins.B], value.NewHeapRef(name), true))

	case bytecode.OpDel:
		ctx.PropDel(regs[ins.A], regs[ins.B])
	case bytecode.OpDelProp8:
		name := ctx.constantString(core, int(ins.Imm))
		ctx.PropDel(regs[ins.A], value.NewHeapRef(name))

	case bytecode.OpGetProto:
		regs[ins.A] = ctx.getProto(regs[ins.A])

	case bytecode.OpPush:
		ctx.ArrayPush(regs[ins.A], regs[ins.B])
	case bytecode.OpPushEx:
		ctx.ArrayPushExpand(regs[ins.A], regs[ins.B])

	case bytecode.OpAdd:
		regs[ins.A] = ctx.Arith('A', regs[ins.B], regs[ins.C])
	case bytecode.OpSub:
		regs[ins.A] = ctx.Arith('S', regs[ins.B], regs[ins.C])
	case bytecode.OpMul:
		regs[ins.A] = ctx.Arith('M', regs[ins.B], regs[ins.C])
	case bytecode.OpDiv:
		regs[ins.A] = ctx.Arith('D', regs[ins.B], regs[ins.C])
	case bytecode.OpMod:
		regs[ins.A] = ctx.Arith('R', regs[ins.B], regs[ins.C])
	case bytecode.OpAnd:
		regs[ins.A] = ctx.Arith('&', regs[ins.B], regs[ins.C])
	case bytecode.OpOr:
		regs[ins.A] = ctx.Arith('|', regs[ins.B], regs[ins.C])
	case bytecode.OpXor:
		regs[ins.A] = ctx.Arith('^', regs[ins.B], regs[ins.C])
	case bytecode.OpShl:
		regs[ins.A] = ctx.Arith('<', regs[ins.B], regs[ins.C])
	case bytecode.OpShr:
		regs[ins.A] = ctx.Arith('>', regs[ins.B], regs[ins.C])
	case bytecode.OpSsr:
		regs[ins.A] = ctx.Arith('s', regs[ins.B], regs[ins.C])
	case bytecode.OpNeg:
		regs[ins.A] = ctx.Neg(regs[ins.B])
	case bytecode.OpNot:
		regs[ins.A] = object.Bool(!value.Truthy(regs[ins.B]))

	case bytecode.OpCmpEq:
		regs[ins.A] = object.Bool(ctx.Equal(regs[ins.B], regs[ins.C]))
	case bytecode.OpCmpNe:
		regs[ins.A] = object.Bool(!ctx.Equal(regs[ins.B], regs[ins.C]))
	case bytecode.OpCmpLt:
		regs[ins.A] = object.Bool(ctx.Compare(regs[ins.B], regs[ins.C]) < 0)
	case bytecode.OpCmpLe:
		regs[ins.A] = object.Bool(ctx.Compare(regs[ins.B], regs[ins.C]) <= 0)
	case bytecode.OpCmpGt:
		regs[ins.A] = object.Bool(ctx.Compare(regs[ins.B], regs[ins.C]) > 0)
	case bytecode.OpCmpGe:
		regs[ins.A] = object.Bool(ctx.Compare(regs[ins.B], regs[ins.C]) >= 0)

	case bytecode.OpJump:
		frame.InstrOffs = uint32(int64(frame.InstrOffs) + int64(ins.Delta))
	case bytecode.OpJumpCond:
		if value.Truthy(regs[ins.A]) {
			frame.InstrOffs = uint32(int64(frame.InstrOffs) + int64(ins.Delta))
		}
	case bytecode.OpJumpNotCond:
		if !value.Truthy(regs[ins.A]) {
			frame.InstrOffs = uint32(int64(frame.InstrOffs) + int64(ins.Delta))
		}

	case bytecode.OpType:
		regs[ins.A] = value.NewSmallInt(int64(value.GetType(regs[ins.B])))
	case bytecode.OpInstanceof:
		regs[ins.A] = object.Bool(ctx.InstanceOf(regs[ins.B], regs[ins.C]))

	case bytecode.OpCall, bytecode.OpCallFun:
		args, _ := regs[ins.D].Ref().(*object.Array)
		var thisVal value.Value
		if ins.C != object.NoReg {
			thisVal = regs[ins.C]
		} else {
			thisVal = value.Bad
		}
		result, ok := ctx.Call(regs[ins.B], thisVal, args, ins.A)
		if ok {
			regs[ins.A] = result
		}

	case bytecode.OpCallN:
		n := int(ins.D)
		args := object.NewArray(0)
		for i := 0; i < n; i++ {
			args.Push(regs[int(ins.C)+i])
		}
		result, ok := ctx.Call(regs[ins.B], value.Bad, args, ins.A)
		if ok {
			regs[ins.A] = result
		}

	case bytecode.OpTailCall, bytecode.OpTailCallFun:
		args, _ := regs[ins.D].Ref().(*object.Array)
		var thisVal value.Value
		if ins.C != object.NoReg {
			thisVal = regs[ins.C]
		} else {
			thisVal = value.Bad
		}
		result, ok := ctx.TailCall(regs[ins.B], thisVal, args)
		if ok {
			return execResult{kind: execReturn, value: result}
		}
		return execResult{kind: execReturn, value: value.Value{}}

	case bytecode.OpTailCallN:
		n := int(ins.D)
		args := object.NewArray(0)
		for i := 0; i < n; i++ {
			args.Push(regs[int(ins.C)+i])
		}
		result, ok := ctx.TailCall(regs[ins.B], value.Bad, args)
		if ok {
			return execResult{kind: execReturn, value: result}
		}
		return execResult{kind: execReturn, value: value.Value{}}

	case bytecode.OpNew:
		args, _ := regs[ins.D].Ref().(*object.Array)
		result, ok := ctx.New(regs[ins.B], args, ins.A)
		if ok {
			regs[ins.A] = result
		}

	case bytecode.OpCallGen:
		result, ok := ctx.CallGen(regs[ins.B], ins.A)
		if ok {
			regs[ins.A] = result
		}

	case bytecode.OpBindSelf:
		if fn, ok := regs[ins.A].Ref().(object.Callable); ok {
			fnCore := fn.Core()
			if fnCore.Closures == nil {
				fnCore.Closures = object.NewArray(0)
			}
			fnCore.Closures.EnsureLen(int(ins.B) + 1)
			fnCore.Closures.Set(int(ins.B), value.NewHeapRef(object.NewRegWindow(frame.Regs)))
		}
	case bytecode.OpBind:
		if fn, ok := regs[ins.A].Ref().(object.Callable); ok {
			fnCore := fn.Core()
			if fnCore.Closures == nil {
				fnCore.Closures = object.NewArray(0)
			}
			fnCore.Closures.EnsureLen(int(ins.B) + 1)
			fnCore.Closures.Set(int(ins.B), regs[ins.C])
		}
	case bytecode.OpBindDefaults:
		if fn, ok := regs[ins.A].Ref().(*object.Function); ok {
			fn.Defaults, _ = regs[ins.B].Ref().(*object.Array)
		}

	case bytecode.OpCatch:
		frame.Catch = object.CatchInfo{
			Armed:  true,
			Offset: uint32(int64(frame.InstrOffs) + int64(ins.Delta)),
			Reg:    ins.A,
		}
	case bytecode.OpCancel:
		frame.Catch.Armed = false

	case bytecode.OpThrow:
		ctx.ThrowValue(regs[ins.A])

	case bytecode.OpReturn:
		return execResult{kind: execReturn, value: regs[ins.A]}

	case bytecode.OpYield:
		return execResult{kind: execYield, value: regs[ins.A]}

	case bytecode.OpNext:
		regs[ins.A] = ctx.IterNext(regs[ins.B])
	case bytecode.OpNextJump:
		v, done := ctx.iterStep(regs[ins.B])
		if done {
			frame.InstrOffs = uint32(int64(frame.InstrOffs) + int64(ins.Delta))
		} else {
			regs[ins.A] = v
		}

	default:
		ctx.Raise("unimplemented opcode")
	}

	return cont()
}

func floatFromBits(bits int64) float64 {
	return int64ToFloat(bits)
}
