package vm

import (
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// Raise sets msg as a new thrown exception: a plain object with a
// `value` property holding the message string and a `backtrace` array
// built by walking the current call stack, mirroring
// kos_wrap_exception/dump_stack. Raise is idempotent if an exception is
// already in flight -- the first one wins, matching THROW-inside-THROW
// semantics where only the outermost propagates to the next catch.
func (ctx *Context) Raise(msg string) {
	if ctx.HasException {
		return
	}
	ctx.ThrowValue(value.NewHeapRef(object.NewLocalString(msg)))
}

func (ctx *Context) RaiseOutOfMemory() {
	if ctx.HasException {
		return
	}
	ctx.ThrowValue(value.NewHeapRef(object.NewConstString("out of memory")))
}

func (ctx *Context) RaiseNotCallable() {
	ctx.Raise("object is not callable")
}

func (ctx *Context) RaiseStackOverflow() {
	ctx.Raise("stack overflow")
}

// ThrowValue raises an arbitrary value (THROW's operand need not be a
// string), wrapping it with a backtrace the first time it is thrown
// through this context. Re-throwing an already-wrapped exception
// (propagating past a frame with no matching CATCH) does not rewrap it
// a second time.
func (ctx *Context) ThrowValue(v value.Value) {
	if ctx.HasException {
		return
	}
	wrapped, alreadyWrapped := asException(v)
	if !alreadyWrapped {
		wrapped = ctx.wrapException(v)
	}
	ctx.Exception = value.NewHeapRef(wrapped)
	ctx.HasException = true
}

func asException(v value.Value) (*object.Object, bool) {
	if !v.IsHeap() {
		return nil, false
	}
	o, ok := v.Ref().(*object.Object)
	if !ok {
		return nil, false
	}
	if _, ok := o.GetOwn("backtrace"); ok {
		return o, true
	}
	return nil, false
}

// ClearException resets the in-flight exception after a CATCH handler
// has consumed it.
func (ctx *Context) ClearException() {
	ctx.Exception = value.Value{}
	ctx.HasException = false
}

func (ctx *Context) wrapException(payload value.Value) *object.Object {
	exc := object.NewObject(value.NewHeapRef(ctx.Inst.Prototype("exception")))
	exc.SetOwn("value", payload)
	exc.SetOwn("backtrace", value.NewHeapRef(ctx.captureBacktrace()))
	return exc
}

// frameDesc names one entry of a captured backtrace: the owning
// module's name, the function's name, and the source line the
// instruction offset at capture time maps to.
type frameDesc struct {
	Module   string
	Function string
	Line     uint32
}

// captureBacktrace walks every live frame of every segment in the
// current stack chain, innermost first, the way kos_wrap_exception's
// walk_stack does, and turns it into a Kos array of small objects the
// language layer can print or inspect.
func (ctx *Context) captureBacktrace() *object.Array {
	var frames []frameDesc

	for seg := ctx.Stack; seg != nil; seg = seg.Backlink {
		n := int(seg.Size())
		for i := n - 1; i >= 0; i-- {
			f := seg.Frames[i]
			frames = append(frames, describeFrame(f))
		}
	}

	arr := object.NewArray(len(frames))
	for i, fd := range frames {
		entry := object.NewObject(value.Bad)
		entry.SetOwn("module", value.NewHeapRef(object.NewLocalString(fd.Module)))
		entry.SetOwn("function", value.NewHeapRef(object.NewLocalString(fd.Function)))
		entry.SetOwn("line", value.NewSmallInt(int64(fd.Line)))
		arr.Set(i, value.NewHeapRef(entry))
	}
	return arr
}

func describeFrame(f Frame) frameDesc {
	fd := frameDesc{Module: "?", Function: "<builtin>"}

	callable, ok := f.Func.Ref().(object.Callable)
	if !ok {
		return fd
	}
	core := callable.Core()
	if name, ok := core.Name.Ref().(*object.String); ok {
		fd.Function = name.String()
	}
	if mod, ok := core.Module.Ref().(*object.Module); ok {
		if modName, ok := mod.Name.Ref().(*object.String); ok {
			fd.Module = modName.String()
		}
		fd.Line = mod.AddrToLineFor(f.InstrOffs)
	}
	return fd
}

// Frame is a local alias so this file reads naturally without importing
// object.Frame under two names; object.Segment.Frames is exactly this
// type.
type Frame = object.Frame

// FindCatch searches outward from the current frame for an armed CATCH
// target, returning the stack segment and frame index it lives in. It
// does not itself unwind the stack -- the interpreter's exception
// dispatch does that once it knows where execution resumes.
func (ctx *Context) FindCatch() (seg *object.Segment, frameIdx int, found bool) {
	for s := ctx.Stack; s != nil; s = s.Backlink {
		for i := int(s.Size()) - 1; i >= 0; i-- {
			if s.Frames[i].Catch.Armed {
				return s, i, true
			}
		}
	}
	return nil, 0, false
}
