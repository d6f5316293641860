package vm_test

import (
	"testing"

	"github.com/koslang/kosvm/pkg/kasm"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
	"github.com/koslang/kosvm/pkg/vm"
)

// TestNewIgnoresConstructorReturnValue builds a constructor that explicitly
// returns an object of its own rather than `this`, and checks that NEW
// still produces the freshly allocated instance: a bytecode constructor's
// RETURN can never override `this`.
func TestNewIgnoresConstructorReturnValue(t *testing.T) {
	_, ctx := newInstanceCtx()

	ctor := kasm.NewBuilder()
	ctor.LoadObj(0) // a fresh, unrelated object -- NOT `this`
	ctor.Return(0)
	built, err := ctor.BuildFunction(object.ArgLayout{NumRegs: 1})
	if err != nil {
		t.Fatalf("BuildFunction: %v", err)
	}

	core := object.FunctionCore{Opts: built.Opts, Bytecode: built.Code}
	class := object.NewClass(core, value.Bad)
	classVal, ok := vm.AllocMovable(ctx, value.TypeClass, 96, class)
	if !ok {
		t.Fatalf("AllocMovable(class) failed")
	}

	result, ok := ctx.New(value.NewHeapRef(classVal), nil, object.NoReg)
	if !ok {
		t.Fatalf("New reported failure; exception=%v", ctx.Exception)
	}

	resultObj, ok := result.Ref().(*object.Object)
	if !ok {
		t.Fatalf("New result is not an object: %v", result)
	}
	if resultObj.Prototype != class.Prototype() {
		t.Fatalf("New returned an object not linked to the class prototype -- the constructor's own return value leaked through instead of `this`")
	}
}
