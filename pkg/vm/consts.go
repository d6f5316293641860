package vm

import (
	"math"

	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

func int64ToFloat(bits int64) float64 {
	return math.Float64frombits(uint64(bits))
}

// constant reads module.Constants[idx] for LOAD_CONST/LOAD_CONST8.
func (ctx *Context) constant(core *object.FunctionCore, idx int) value.Value {
	mod, ok := core.Module.Ref().(*object.Module)
	if !ok || idx < 0 || idx >= len(mod.Constants) {
		ctx.Raise("invalid constant index")
		return value.Value{}
	}
	return mod.Constants[idx]
}

func (ctx *Context) constantString(core *object.FunctionCore, idx int) *object.String {
	v := ctx.constant(core, idx)
	s, ok := v.Ref().(*object.String)
	if !ok {
		return object.NewConstString("")
	}
	return s
}

// materializeCallable implements LOAD_FUN/LOAD_FUN8/LOAD_CLASS/LOAD_CLASS8:
// every load of a function or class descriptor produces a fresh instance
// so BIND_SELF/BIND can attach closure state specific to that
// instantiation. A freshly loaded class keeps the descriptor's prototype
// object, so instances built through any load of it share one prototype.
func (ctx *Context) materializeCallable(core *object.FunctionCore, idx int, frame *object.Frame, isClass bool) value.Value {
	descVal := ctx.constant(core, idx)
	if ctx.HasException {
		return value.Value{}
	}

	if isClass {
		descClass, ok := descVal.Ref().(*object.Class)
		if !ok {
			ctx.Raise("constant is not a class descriptor")
			return value.Value{}
		}
		cv, ok := AllocMovable(ctx, value.TypeClass, 96, object.NewClass(descClass.FunctionCore, descClass.Prototype()))
		if !ok {
			return value.Value{}
		}
		return value.NewHeapRef(cv)
	}

	descFn, ok := descVal.Ref().(*object.Function)
	if !ok {
		ctx.Raise("constant is not a function descriptor")
		return value.Value{}
	}
	fn := object.NewFunction(descFn.FunctionCore)
	fv, ok := AllocMovable(ctx, value.TypeFunction, 96, fn)
	if !ok {
		return value.Value{}
	}
	return value.NewHeapRef(fv)
}

// getModule implements GET_MOD: idx indexes core's owning module's
// Modules table (the direct-import list the loader populated).
func (ctx *Context) getModule(core *object.FunctionCore, idx int) value.Value {
	mod, ok := core.Module.Ref().(*object.Module)
	if !ok || idx < 0 || idx >= len(mod.Modules) {
		ctx.Raise("invalid module index")
		return value.Value{}
	}
	m := mod.Modules[idx]
	return value.NewHeapRef(m)
}

// getModuleElem implements GET_MOD_ELEM: idx packs a module index and a
// global index the loader resolved at compile time
// (moduleIdx<<16|globalIdx), avoiding a name lookup on every access.
func (ctx *Context) getModuleElem(core *object.FunctionCore, packed int) value.Value {
	modIdx := packed >> 16
	globalIdx := packed & 0xFFFF
	mod, ok := core.Module.Ref().(*object.Module)
	if !ok || modIdx < 0 || modIdx >= len(mod.Modules) {
		ctx.Raise("invalid module index")
		return value.Value{}
	}
	target := mod.Modules[modIdx]
	if globalIdx < 0 || globalIdx >= len(target.Globals) {
		ctx.Raise("invalid global index")
		return value.Value{}
	}
	return target.Globals[globalIdx]
}
