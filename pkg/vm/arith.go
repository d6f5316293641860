package vm

import (
	"math"

	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// numKind classifies an operand for the promotion rules below: a
// small-int tag, a heap Integer, or a heap Float are the only numeric
// shapes arithmetic accepts.
type numKind uint8

const (
	numNone numKind = iota
	numInt
	numFloat
)

func classify(v value.Value) (numKind, int64, float64) {
	if v.IsSmallInt() {
		return numInt, value.GetSmallInt(v), 0
	}
	if !v.IsHeap() {
		return numNone, 0, 0
	}
	switch r := v.Ref().(type) {
	case *object.Integer:
		return numInt, r.Value, 0
	case *object.Float:
		return numFloat, 0, r.Value
	default:
		return numNone, 0, 0
	}
}

// asInt promotes an overflowing int64 result to a heap Integer when it
// no longer fits a small int, keeping it a small int otherwise -- the
// "arithmetic that overflows promotes to a heap integer" rule.
func (ctx *Context) asInt(n int64) value.Value {
	if value.FitsSmallInt(n) {
		return value.NewSmallInt(n)
	}
	i, ok := AllocMovable(ctx, value.TypeInteger, 24, &object.Integer{Value: n})
	if !ok {
		return value.Value{}
	}
	return value.NewHeapRef(i)
}

func (ctx *Context) asFloat(f float64) value.Value {
	v, ok := AllocMovable(ctx, value.TypeFloat, 16, &object.Float{Value: f})
	if !ok {
		return value.Value{}
	}
	return value.NewHeapRef(v)
}

// Arith evaluates a binary arithmetic/bitwise opcode over a and b,
// applying int/float promotion (mixed operands compute in float) and
// raising a type exception for non-numeric operands. Division and
// modulo by zero raise per the reference semantics rather than trapping
// the host process.
func (ctx *Context) Arith(op byte, a, b value.Value) value.Value {
	ka, ia, fa := classify(a)
	kb, ib, fb := classify(b)
	if ka == numNone || kb == numNone {
		ctx.Raise("operand is not a number")
		return value.Value{}
	}

	bothInt := ka == numInt && kb == numInt
	if !bothInt {
		if ka == numInt {
			fa = float64(ia)
		}
		if kb == numInt {
			fb = float64(ib)
		}
	}

	switch op {
	case 'A': // ADD
		if bothInt {
			return ctx.asInt(ia + ib)
		}
		return ctx.asFloat(fa + fb)
	case 'S': // SUB
		if bothInt {
			return ctx.asInt(ia - ib)
		}
		return ctx.asFloat(fa - fb)
	case 'M': // MUL
		if bothInt {
			return ctx.asInt(ia * ib)
		}
		return ctx.asFloat(fa * fb)
	case 'D': // DIV
		if bothInt {
			if ib == 0 {
				ctx.Raise("division by zero")
				return value.Value{}
			}
			return ctx.asInt(ia / ib)
		}
		if fb == 0 {
			ctx.Raise("division by zero")
			return value.Value{}
		}
		return ctx.asFloat(fa / fb)
	case 'R': // MOD
		if bothInt {
			if ib == 0 {
				ctx.Raise("division by zero")
				return value.Value{}
			}
			return ctx.asInt(ia % ib)
		}
		if fb == 0 {
			ctx.Raise("division by zero")
			return value.Value{}
		}
		return ctx.asFloat(math.Mod(fa, fb))
	case '&':
		if !bothInt {
			ctx.Raise("bitwise operand must be an integer")
			return value.Value{}
		}
		return ctx.asInt(ia & ib)
	case '|':
		if !bothInt {
			ctx.Raise("bitwise operand must be an integer")
			return value.Value{}
		}
		return ctx.asInt(ia | ib)
	case '^':
		if !bothInt {
			ctx.Raise("bitwise operand must be an integer")
			return value.Value{}
		}
		return ctx.asInt(ia ^ ib)
	case '<': // SHL
		if !bothInt {
			ctx.Raise("shift operand must be an integer")
			return value.Value{}
		}
		return ctx.asInt(ia << (uint(ib) & 63))
	case '>': // SHR (arithmetic)
		if !bothInt {
			ctx.Raise("shift operand must be an integer")
			return value.Value{}
		}
		return ctx.asInt(ia >> (uint(ib) & 63))
	case 's': // SSR (logical/unsigned shift right)
		if !bothInt {
			ctx.Raise("shift operand must be an integer")
			return value.Value{}
		}
		return ctx.asInt(int64(uint64(ia) >> (uint(ib) & 63)))
	default:
		ctx.Raise("unsupported arithmetic operator")
		return value.Value{}
	}
}

// Neg evaluates unary negation.
func (ctx *Context) Neg(a value.Value) value.Value {
	k, ia, fa := classify(a)
	switch k {
	case numInt:
		return ctx.asInt(-ia)
	case numFloat:
		return ctx.asFloat(-fa)
	default:
		ctx.Raise("operand is not a number")
		return value.Value{}
	}
}

// Compare implements the total order comparisons CMP_* rely on: numeric
// operands compare by value across int/float, same-kind operands (two
// strings, two booleans) compare per their own rules, and otherwise
// operands of different type tags order by type tag, so CMP_LT/CMP_GT
// are always well-defined even across unrelated types.
func (ctx *Context) Compare(a, b value.Value) int {
	ka, ia, fa := classify(a)
	kb, ib, fb := classify(b)
	if ka != numNone && kb != numNone {
		if ka == numInt && kb == numInt {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			default:
				return 0
			}
		}
		if ka == numInt {
			fa = float64(ia)
		}
		if kb == numInt {
			fb = float64(ib)
		}
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	ta, tb := value.GetType(a), value.GetType(b)
	if ta == value.TypeString && tb == value.TypeString {
		sa, _ := a.Ref().(*object.String)
		sb, _ := b.Ref().(*object.String)
		if a.IsHeap() && b.IsHeap() && sa != nil && sb != nil {
			return sa.Compare(sb)
		}
	}
	if ta == value.TypeBoolean && tb == value.TypeBoolean {
		ba, bb := boolOf(a), boolOf(b)
		switch {
		case !ba && bb:
			return -1
		case ba && !bb:
			return 1
		default:
			return 0
		}
	}

	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	default:
		return 0
	}
}

func boolOf(v value.Value) bool {
	if b, ok := interface{}(v.Ref()).(interface{ BoolValue() bool }); ok {
		return b.BoolValue()
	}
	return false
}

// Equal is CMP_EQ/CMP_NE's notion of equality: same as Compare()==0 for
// numbers and strings, reference equality for everything else (two
// distinct objects are never equal even with identical properties).
func (ctx *Context) Equal(a, b value.Value) bool {
	ka, _, _ := classify(a)
	kb, _, _ := classify(b)
	if ka != numNone && kb != numNone {
		return ctx.Compare(a, b) == 0
	}
	ta, tb := value.GetType(a), value.GetType(b)
	if ta == value.TypeString && tb == value.TypeString {
		return ctx.Compare(a, b) == 0
	}
	if ta != tb {
		return false
	}
	if ta == value.TypeBoolean {
		return boolOf(a) == boolOf(b)
	}
	if ta == value.TypeVoid {
		return true
	}
	if a.IsSmallInt() || b.IsSmallInt() {
		return a == b
	}
	return a.Ref() == b.Ref()
}
