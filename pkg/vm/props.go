package vm

import (
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

func keyString(key value.Value) (string, bool) {
	s, ok := key.Ref().(*object.String)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// PropGet implements GET/GET_PROP8: a deep (prototype-chain) property
// lookup that redirects through a getter call when the stored value is
// a *object.DynamicProp, per the property engine's "invoke setter with
// these args" directive -- dynamic properties are never handed back as
// plain values to bytecode that did not ask for them.
func (ctx *Context) PropGet(container, key value.Value) value.Value {
	switch c := container.Ref().(type) {
	case *object.Object:
		name, ok := keyString(key)
		if !ok {
			ctx.Raise("property name must be a string")
			return value.Value{}
		}
		v, found := object.Get(ctx, c, name)
		if !found {
			ctx.Raise("no such property: " + name)
			return value.Value{}
		}
		if dp, ok := v.Ref().(*object.DynamicProp); ok {
			return ctx.invokeDynamic(dp.Getter, container, nil)
		}
		return v
	case *object.Class:
		name, ok := keyString(key)
		if !ok {
			ctx.Raise("property name must be a string")
			return value.Value{}
		}
		v, found := c.Props().GetOwn(name)
		if !found {
			ctx.Raise("no such property: " + name)
			return value.Value{}
		}
		return v
	default:
		ctx.Raise("value has no properties")
		return value.Value{}
	}
}

// PropSet implements SET/SET_PROP8, redirecting through a setter call
// when the existing slot holds a *object.DynamicProp.
func (ctx *Context) PropSet(container, key, v value.Value) {
	o, ok := container.Ref().(*object.Object)
	if !ok {
		ctx.Raise("value does not support property assignment")
		return
	}
	name, ok := keyString(key)
	if !ok {
		ctx.Raise("property name must be a string")
		return
	}
	if existing, found := o.GetOwn(name); found {
		if dp, ok := existing.Ref().(*object.DynamicProp); ok {
			ctx.invokeDynamic(dp.Setter, container, v)
			return
		}
	}
	o.SetOwn(name, v)
}

func (ctx *Context) invokeDynamic(handler value.Value, this value.Value, arg interface{}) value.Value {
	var args *object.Array
	if arg != nil {
		args = object.NewArray(0)
		args.Push(arg.(value.Value))
	} else {
		args = object.NewArray(0)
	}
	result, ok := ctx.Call(handler, this, args, object.NoReg)
	if !ok {
		return value.Value{}
	}
	return result
}

// PropHas implements HAS/HAS_SH_PROP8/HAS_DP_PROP8.
func (ctx *Context) PropHas(container, key value.Value, deep bool) bool {
	o, ok := container.Ref().(*object.Object)
	if !ok {
		return false
	}
	name, ok := keyString(key)
	if !ok {
		return false
	}
	return object.Has(o, name, deep)
}

// PropDel implements DEL/DEL_PROP8.
func (ctx *Context) PropDel(container, key value.Value) {
	o, ok := container.Ref().(*object.Object)
	if !ok {
		return
	}
	name, ok := keyString(key)
	if !ok {
		return
	}
	o.DeleteOwn(name)
}

func (ctx *Context) getProto(v value.Value) value.Value {
	o, ok := v.Ref().(*object.Object)
	if !ok {
		return object.Void()
	}
	return o.Prototype
}

// ElemGet implements GET_ELEM: array/buffer/string indexing with
// negative-index support.
func (ctx *Context) ElemGet(container value.Value, idx int64) value.Value {
	switch c := container.Ref().(type) {
	case *object.Array:
		v, ok := c.Get(int(idx))
		if !ok {
			ctx.Raise("array index out of range")
			return value.Value{}
		}
		return v
	case *object.String:
		ch, ok := c.CharAt(int(idx))
		if !ok {
			ctx.Raise("string index out of range")
			return value.Value{}
		}
		return value.NewHeapRef(ch)
	case *object.Buffer:
		b, ok := c.GetByte(int(idx))
		if !ok {
			ctx.Raise("buffer index out of range")
			return value.Value{}
		}
		return value.NewSmallInt(int64(b))
	default:
		ctx.Raise("value is not indexable")
		return value.Value{}
	}
}

func (ctx *Context) ElemSet(container value.Value, idx int64, v value.Value) {
	switch c := container.Ref().(type) {
	case *object.Array:
		if !c.Set(int(idx), v) {
			ctx.Raise("array index out of range")
		}
	case *object.Buffer:
		bv, ok := v.Ref().(interface{ IntValue() int64 })
		n := int64(0)
		if v.IsSmallInt() {
			n = value.GetSmallInt(v)
		} else if ok {
			n = bv.IntValue()
		}
		if !c.SetByte(int(idx), byte(n)) {
			ctx.Raise("buffer index out of range")
		}
	default:
		ctx.Raise("value does not support indexed assignment")
	}
}

// RangeGet implements GET_RANGE: container[begin:end] slicing. The
// range operand arrives as a 2-element array of (possibly void) bounds,
// matching the compiler's convention for an a[x:y] expression.
func (ctx *Context) RangeGet(container, rangeVal value.Value) value.Value {
	ra, ok := rangeVal.Ref().(*object.Array)
	if !ok || ra.Len() != 2 {
		ctx.Raise("invalid slice range")
		return value.Value{}
	}
	loV, _ := ra.Get(0)
	hiV, _ := ra.Get(1)
	hasLo := value.GetType(loV) != value.TypeVoid
	hasHi := value.GetType(hiV) != value.TypeVoid
	lo, hi := 0, 0
	if hasLo {
		lo = int(value.GetSmallInt(loV))
	}
	if hasHi {
		hi = int(value.GetSmallInt(hiV))
	}

	switch c := container.Ref().(type) {
	case *object.Array:
		return value.NewHeapRef(c.Slice(lo, hi, hasLo, hasHi))
	case *object.String:
		return value.NewHeapRef(c.Slice(lo, hi, hasLo, hasHi))
	case *object.Buffer:
		return value.NewHeapRef(c.Slice(lo, hi, hasLo, hasHi))
	default:
		ctx.Raise("value does not support slicing")
		return value.Value{}
	}
}

// ArrayPush implements PUSH: append a single value.
func (ctx *Context) ArrayPush(arr, v value.Value) {
	a, ok := arr.Ref().(*object.Array)
	if !ok {
		ctx.Raise("value is not an array")
		return
	}
	a.Push(v)
}

// ArrayPushExpand implements PUSH_EX: append every element of another
// array (array literal spread).
func (ctx *Context) ArrayPushExpand(arr, other value.Value) {
	a, ok := arr.Ref().(*object.Array)
	if !ok {
		ctx.Raise("value is not an array")
		return
	}
	src, ok := other.Ref().(*object.Array)
	if !ok {
		ctx.Raise("spread operand is not an array")
		return
	}
	for i := 0; i < src.Len(); i++ {
		v, _ := src.Get(i)
		a.Push(v)
	}
}

// InstanceOf walks inst's prototype chain looking for proto, which is
// INSTANCEOF's definition of membership (two objects sharing a
// prototype further up the chain are both instances of it).
func (ctx *Context) InstanceOf(inst, proto value.Value) bool {
	o, ok := inst.Ref().(*object.Object)
	if !ok {
		return false
	}
	for cur := o.Prototype; !cur.IsBad(); {
		if cur == proto {
			return true
		}
		next, ok := cur.Ref().(*object.Object)
		if !ok {
			return false
		}
		cur = next.Prototype
	}
	return false
}

func (ctx *Context) makeIterator(container value.Value) value.Value {
	var kind object.IteratorKind
	switch container.Ref().(type) {
	case *object.Array:
		kind = object.IterArray
	case *object.String:
		kind = object.IterString
	case *object.Buffer:
		kind = object.IterBuffer
	case *object.Object:
		kind = object.IterObjectKeys
	case *object.Function:
		kind = object.IterGenerator
	default:
		ctx.Raise("value is not iterable")
		return value.Value{}
	}
	it := object.NewIterator(kind, object.DepthDeep, container)
	if kind == object.IterObjectKeys {
		if o, ok := container.Ref().(*object.Object); ok {
			it.KeyTable = o.Keys()
		}
	}
	iv, ok := AllocMovable(ctx, value.TypeIterator, 48, it)
	if !ok {
		return value.Value{}
	}
	return value.NewHeapRef(iv)
}

// IterNext implements NEXT: advance and raise if exhausted.
func (ctx *Context) IterNext(iterVal value.Value) value.Value {
	v, done := ctx.iterStep(iterVal)
	if done {
		ctx.Raise("iterator is done")
		return value.Value{}
	}
	return v
}

// iterStep advances it one position, reporting whether iteration is
// exhausted. Generator iterators delegate to CallGen so `for x in gen()`
// and explicit `.next()` calls share one code path.
func (ctx *Context) iterStep(iterVal value.Value) (value.Value, bool) {
	it, ok := iterVal.Ref().(*object.Iterator)
	if !ok {
		ctx.Raise("value is not an iterator")
		return value.Value{}, true
	}
	if it.Done {
		return value.Value{}, true
	}

	switch it.Kind {
	case object.IterArray:
		a, _ := it.Obj.Ref().(*object.Array)
		if a == nil || int(it.Index) >= a.Len() {
			it.Done = true
			return value.Value{}, true
		}
		v, _ := a.Get(int(it.Index))
		it.Index++
		return v, false

	case object.IterString:
		s, _ := it.Obj.Ref().(*object.String)
		if s == nil || int(it.Index) >= s.Len() {
			it.Done = true
			return value.Value{}, true
		}
		ch, _ := s.CharAt(int(it.Index))
		it.Index++
		return value.NewHeapRef(ch), false

	case object.IterBuffer:
		b, _ := it.Obj.Ref().(*object.Buffer)
		if b == nil || int(it.Index) >= b.Len() {
			it.Done = true
			return value.Value{}, true
		}
		by, _ := b.GetByte(int(it.Index))
		it.Index++
		return value.NewSmallInt(int64(by)), false

	case object.IterObjectKeys:
		if int(it.Index) >= len(it.KeyTable) {
			it.Done = true
			return value.Value{}, true
		}
		key := it.KeyTable[it.Index]
		it.Index++
		return value.NewHeapRef(object.NewLocalString(key)), false

	case object.IterGenerator:
		fn, _ := it.Obj.Ref().(*object.Function)
		if fn == nil || fn.State == object.FunGenDone {
			it.Done = true
			return value.Value{}, true
		}
		v, ok := ctx.CallGen(it.Obj, object.NoReg)
		if !ok {
			it.Done = true
			return value.Value{}, true
		}
		if fn.State == object.FunGenDone {
			it.Done = true
		}
		return v, false

	default:
		it.Done = true
		return value.Value{}, true
	}
}
