package vm

import (
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// RunModule is the context lifecycle entry point named in the external
// interface: materialize the module's main function descriptor and call
// it with no arguments and no `this`, returning its result or reporting
// that an exception is now pending on ctx.
func (ctx *Context) RunModule(mod *object.Module) (value.Value, bool) {
	if int(mod.MainIdx) >= len(mod.Constants) {
		ctx.Raise("module has no main function")
		return value.Value{}, false
	}
	mainDesc, ok := mod.Constants[mod.MainIdx].Ref().(*object.Function)
	if !ok {
		ctx.Raise("module main constant is not a function")
		return value.Value{}, false
	}

	fn := object.NewFunction(mainDesc.FunctionCore)
	fv, ok := AllocMovable(ctx, value.TypeFunction, 96, fn)
	if !ok {
		return value.Value{}, false
	}

	return ctx.Call(value.NewHeapRef(fv), value.Bad, object.NewArray(0), object.NoReg)
}
