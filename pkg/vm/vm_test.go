package vm_test

import (
	"testing"

	"github.com/koslang/kosvm/pkg/kasm"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
	"github.com/koslang/kosvm/pkg/vm"
)

func newInstanceCtx() (*vm.Instance, *vm.Context) {
	inst := vm.NewInstance(vm.DefaultLimits())
	return inst, vm.NewContext(inst)
}

// buildMainModule assembles a single-function module whose main body is
// built by fn, with numRegs registers available.
func buildMainModule(t *testing.T, numRegs uint8, fn func(b *kasm.Builder)) *object.Module {
	t.Helper()
	mb := kasm.NewModuleBuilder("test", "test.kos")
	b := kasm.NewBuilder()
	fn(b)
	f, err := b.BuildFunction(object.ArgLayout{NumRegs: numRegs})
	if err != nil {
		t.Fatalf("BuildFunction: %v", err)
	}
	idx := mb.AddFunctionConstant(f)
	mb.SetMain(idx)
	return mb.Module()
}

func TestRunModuleReturnsConstant(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 1, func(b *kasm.Builder) {
		b.LoadInt8(0, 42)
		b.Return(0)
	})

	result, ok := ctx.RunModule(mod)
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if !result.IsSmallInt() || value.GetSmallInt(result) != 42 {
		t.Fatalf("got %v, want small int 42", result)
	}
}

func TestRunModuleArithmetic(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 3, func(b *kasm.Builder) {
		b.LoadInt8(0, 5)
		b.LoadInt8(1, 7)
		b.Add(2, 0, 1)
		b.Return(2)
	})

	result, ok := ctx.RunModule(mod)
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if value.GetSmallInt(result) != 12 {
		t.Fatalf("got %d, want 12", value.GetSmallInt(result))
	}
}

func TestRunModuleConditionalJump(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 2, func(b *kasm.Builder) {
		b.LoadFalse(0)
		b.JumpCond(0, "true_branch")
		b.LoadInt8(1, 0)
		b.Jump("done")
		b.Label("true_branch")
		b.LoadInt8(1, 1)
		b.Label("done")
		b.Return(1)
	})

	result, ok := ctx.RunModule(mod)
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if value.GetSmallInt(result) != 0 {
		t.Fatalf("took the true branch despite a false condition: got %d", value.GetSmallInt(result))
	}
}

func TestRunModuleCatchClearsException(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 2, func(b *kasm.Builder) {
		b.Catch(1, "handler")
		b.LoadInt8(0, 99)
		b.Throw(0)
		b.LoadInt8(0, -1) // unreachable
		b.Label("handler")
		b.Return(1)
	})

	result, ok := ctx.RunModule(mod)
	if !ok {
		t.Fatalf("RunModule reported failure after a caught exception; exception=%v", ctx.Exception)
	}
	if ctx.HasException {
		t.Fatalf("exception still pending after CATCH handled it")
	}
	caught, ok := result.Ref().(*object.Object)
	if !ok {
		t.Fatalf("caught value is not a wrapped exception object: %v", result)
	}
	payload, ok := caught.GetOwn("value")
	if !ok || value.GetSmallInt(payload) != 99 {
		t.Fatalf("caught exception's value property = %v, want 99", payload)
	}
}

func TestRunModuleUncaughtExceptionPropagates(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 1, func(b *kasm.Builder) {
		b.LoadInt8(0, 1)
		b.Throw(0)
		b.Return(0)
	})

	_, ok := ctx.RunModule(mod)
	if ok {
		t.Fatalf("expected RunModule to report failure for an uncaught exception")
	}
	if !ctx.HasException {
		t.Fatalf("expected ctx.HasException to be true")
	}
}

func TestStepExecutesOneInstructionAtATime(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 2, func(b *kasm.Builder) {
		b.LoadInt8(0, 3)
		b.LoadInt8(1, 4)
		b.Add(0, 0, 1)
		b.Return(0)
	})

	mainDesc, ok := mod.Constants[mod.MainIdx].Ref().(*object.Function)
	if !ok {
		t.Fatalf("module main constant is not a function")
	}
	fn := object.NewFunction(mainDesc.FunctionCore)
	fv, ok := vm.AllocMovable(ctx, value.TypeFunction, 96, fn)
	if !ok {
		t.Fatalf("alloc failed")
	}
	if !ctx.StackPush(value.NewHeapRef(fv), value.Bad, object.NoReg, object.NoReg) {
		t.Fatalf("StackPush failed")
	}

	steps := 0
	var final vm.StepResult
	for {
		r := ctx.Step()
		steps++
		if r.Done || r.Returned {
			final = r
			break
		}
		if steps > 10 {
			t.Fatalf("did not terminate within 10 steps")
		}
	}

	if steps != 4 {
		t.Fatalf("expected exactly 4 Step calls (2 loads, 1 add, 1 return), got %d", steps)
	}
	if value.GetSmallInt(final.Value) != 7 {
		t.Fatalf("final step value = %v, want 7", final.Value)
	}
}

func TestRunModuleRecursiveCall(t *testing.T) {
	_, ctx := newInstanceCtx()

	mb := kasm.NewModuleBuilder("test", "test.kos")

	// countdown(n): if n == 0 return 0; else return countdown(n-1) via a
	// self-referencing constant loaded with LOAD_FUN.
	cb := kasm.NewBuilder()
	cb.LoadInt8(1, 0)
	cb.CmpEq(2, 0, 1)
	cb.JumpCond(2, "base")
	cb.LoadFun8(3, 0) // self
	cb.LoadInt8(4, 1)
	cb.Sub(5, 0, 4) // n-1
	cb.LoadArray8(6, 0)
	cb.Push(6, 5)
	cb.Call(7, 3, 8, 6)
	cb.Return(7)
	cb.Label("base")
	cb.Return(1)

	fn, err := cb.BuildFunction(object.ArgLayout{
		NumRegs: 9,
		MinArgs: 1,
		ArgsReg: 0,
	})
	if err != nil {
		t.Fatalf("BuildFunction: %v", err)
	}
	selfIdx := mb.AddFunctionConstant(fn)

	mainB := kasm.NewBuilder()
	mainB.LoadFun8(0, selfIdx)
	mainB.LoadArray8(1, 0)
	mainB.LoadInt8(2, 5)
	mainB.Push(1, 2)
	mainB.Call(3, 0, 4, 1)
	mainB.Return(3)
	mainFn, err := mainB.BuildFunction(object.ArgLayout{NumRegs: 5})
	if err != nil {
		t.Fatalf("BuildFunction: %v", err)
	}
	mainIdx := mb.AddFunctionConstant(mainFn)
	mb.SetMain(mainIdx)

	result, ok := ctx.RunModule(mb.Module())
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if value.GetSmallInt(result) != 0 {
		t.Fatalf("countdown(5) = %d, want 0", value.GetSmallInt(result))
	}
}

func TestBindCapturesSourceRegisterIntoClosureSlot(t *testing.T) {
	_, ctx := newInstanceCtx()

	mb := kasm.NewModuleBuilder("test", "test.kos")

	// inner(): returns whatever landed in its one bound (closure) register.
	inner := kasm.NewBuilder()
	inner.Return(0)
	innerFn, err := inner.BuildFunction(object.ArgLayout{NumRegs: 1, BindReg: 0, NumBinds: 1})
	if err != nil {
		t.Fatalf("BuildFunction(inner): %v", err)
	}
	innerIdx := mb.AddFunctionConstant(innerFn)

	// outer(): loads inner, binds a captured value (99) into its closure
	// slot 0, calls it, and returns whatever it returned.
	outer := kasm.NewBuilder()
	outer.LoadFun8(0, innerIdx)
	outer.LoadInt8(1, 99)
	outer.Bind(0, 0, 1)
	outer.Call(2, 0, 3, 4)
	outer.Return(2)
	outerFn, err := outer.BuildFunction(object.ArgLayout{NumRegs: 5})
	if err != nil {
		t.Fatalf("BuildFunction(outer): %v", err)
	}
	outerIdx := mb.AddFunctionConstant(outerFn)
	mb.SetMain(outerIdx)

	result, ok := ctx.RunModule(mb.Module())
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if value.GetSmallInt(result) != 99 {
		t.Fatalf("bound closure value = %d, want 99 (BIND must capture r.src, not r.fun)", value.GetSmallInt(result))
	}
}

func TestBindSelfCapturesOwnRegisterWindow(t *testing.T) {
	_, ctx := newInstanceCtx()

	mb := kasm.NewModuleBuilder("test", "test.kos")

	inner := kasm.NewBuilder()
	inner.Return(0)
	innerFn, err := inner.BuildFunction(object.ArgLayout{NumRegs: 1, BindReg: 0, NumBinds: 1})
	if err != nil {
		t.Fatalf("BuildFunction(inner): %v", err)
	}
	innerIdx := mb.AddFunctionConstant(innerFn)

	outer := kasm.NewBuilder()
	outer.LoadFun8(0, innerIdx)
	outer.LoadInt8(1, 7)
	outer.BindSelf(0, 0) // bind slot 0 in reg 0's (inner's) descriptor: the current frame's window
	outer.Call(2, 0, 3, 4)
	outer.Return(2)
	outerFn, err := outer.BuildFunction(object.ArgLayout{NumRegs: 5})
	if err != nil {
		t.Fatalf("BuildFunction(outer): %v", err)
	}
	outerIdx := mb.AddFunctionConstant(outerFn)
	mb.SetMain(outerIdx)

	result, ok := ctx.RunModule(mb.Module())
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if _, ok := result.Ref().(*object.RegWindow); !ok {
		t.Fatalf("bound closure value = %v, want a *object.RegWindow over the enclosing frame", result)
	}
}

func TestDivTruncatesIntegerDivisionInsteadOfPromotingToFloat(t *testing.T) {
	_, ctx := newInstanceCtx()
	mod := buildMainModule(t, 3, func(b *kasm.Builder) {
		b.LoadInt8(0, 7)
		b.LoadInt8(1, 2)
		b.Div(2, 0, 1)
		b.Return(2)
	})

	result, ok := ctx.RunModule(mod)
	if !ok {
		t.Fatalf("RunModule reported failure; exception=%v", ctx.Exception)
	}
	if !result.IsSmallInt() {
		t.Fatalf("7 / 2 produced %v, want a truncating integer result, not a float", result)
	}
	if value.GetSmallInt(result) != 3 {
		t.Fatalf("7 / 2 = %d, want 3", value.GetSmallInt(result))
	}
}
