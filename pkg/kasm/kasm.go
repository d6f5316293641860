// Package kasm assembles Kos bytecode functions directly from Go code,
// standing in for the compiler (out of scope per spec.md §1) so tests
// can build valid object.Module/object.Function values without parsing
// Kos source. It mirrors the teacher's two-pass symbol-resolution
// assembler (labels recorded in a first pass, jump deltas fixed up in a
// second) applied to this instruction set instead of Z80 mnemonics.
package kasm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/koslang/kosvm/pkg/bytecode"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
)

// pending is one not-yet-encoded instruction. label, when non-empty,
// names the jump/catch target to resolve into a Delta during Assemble.
type pending struct {
	op         bytecode.Op
	a, b, c, d uint8
	imm        int64
	label      string
}

// Builder assembles one function body. Create one per function (or per
// module's main), emit instructions and labels in program order, then
// call Assemble.
type Builder struct {
	instrs []pending
	// labelAt maps a label name to the index into instrs where it was
	// declared (the instruction that follows it); len(instrs) if the
	// label sits at the very end of the stream.
	labelAt map[string]int
	err     error
}

// NewBuilder starts a fresh instruction stream.
func NewBuilder() *Builder {
	return &Builder{labelAt: make(map[string]int)}
}

func (b *Builder) emit(op bytecode.Op, a, b2, c, d uint8, imm int64) *Builder {
	b.instrs = append(b.instrs, pending{op: op, a: a, b: b2, c: c, d: d, imm: imm})
	return b
}

func (b *Builder) emitJump(op bytecode.Op, a uint8, label string) *Builder {
	b.instrs = append(b.instrs, pending{op: op, a: a, label: label})
	return b
}

// Label marks the position the next-emitted instruction will occupy,
// under name, for a later Jump/JumpCond/JumpNotCond/Catch/NextJump to
// target.
func (b *Builder) Label(name string) *Builder {
	if _, dup := b.labelAt[name]; dup {
		b.err = fmt.Errorf("label %q defined twice", name)
		return b
	}
	b.labelAt[name] = len(b.instrs)
	return b
}

// --- loads ---

func (b *Builder) LoadInt8(dst uint8, v int8) *Builder {
	return b.emit(bytecode.OpLoadInt8, dst, 0, 0, 0, int64(v))
}
func (b *Builder) LoadInt32(dst uint8, v int32) *Builder {
	return b.emit(bytecode.OpLoadInt32, dst, 0, 0, 0, int64(v))
}
func (b *Builder) LoadInt64(dst uint8, v int64) *Builder {
	return b.emit(bytecode.OpLoadInt64, dst, 0, 0, 0, v)
}
func (b *Builder) LoadFloat(dst uint8, v float64) *Builder {
	return b.emit(bytecode.OpLoadFloat, dst, 0, 0, 0, int64(floatBits(v)))
}
func (b *Builder) LoadTrue(dst uint8) *Builder  { return b.emit(bytecode.OpLoadTrue, dst, 0, 0, 0, 0) }
func (b *Builder) LoadFalse(dst uint8) *Builder { return b.emit(bytecode.OpLoadFalse, dst, 0, 0, 0, 0) }
func (b *Builder) LoadVoid(dst uint8) *Builder  { return b.emit(bytecode.OpLoadVoid, dst, 0, 0, 0, 0) }
func (b *Builder) LoadConst(dst uint8, idx uint32) *Builder {
	return b.emit(bytecode.OpLoadConst, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) LoadConst8(dst, idx uint8) *Builder {
	return b.emit(bytecode.OpLoadConst8, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) LoadFun(dst uint8, idx uint32) *Builder {
	return b.emit(bytecode.OpLoadFun, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) LoadFun8(dst, idx uint8) *Builder {
	return b.emit(bytecode.OpLoadFun8, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) LoadClass(dst uint8, idx uint32) *Builder {
	return b.emit(bytecode.OpLoadClass, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) LoadClass8(dst, idx uint8) *Builder {
	return b.emit(bytecode.OpLoadClass8, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) LoadArray(dst uint8, size uint32) *Builder {
	return b.emit(bytecode.OpLoadArray, dst, 0, 0, 0, int64(size))
}
func (b *Builder) LoadArray8(dst, size uint8) *Builder {
	return b.emit(bytecode.OpLoadArray8, dst, 0, 0, 0, int64(size))
}
func (b *Builder) LoadObj(dst uint8) *Builder  { return b.emit(bytecode.OpLoadObj, dst, 0, 0, 0, 0) }
func (b *Builder) LoadIter(dst, src uint8) *Builder {
	return b.emit(bytecode.OpLoadIter, dst, src, 0, 0, 0)
}

// --- moves & globals ---

func (b *Builder) Move(dst, src uint8) *Builder { return b.emit(bytecode.OpMove, dst, src, 0, 0, 0) }
func (b *Builder) GetGlobal(dst uint8, idx uint8) *Builder {
	return b.emit(bytecode.OpGetGlobal, dst, idx, 0, 0, 0)
}
func (b *Builder) SetGlobal(src uint8, idx uint8) *Builder {
	return b.emit(bytecode.OpSetGlobal, src, idx, 0, 0, 0)
}
func (b *Builder) GetMod(dst uint8, idx uint32) *Builder {
	return b.emit(bytecode.OpGetMod, dst, 0, 0, 0, int64(idx))
}
func (b *Builder) GetModElem(dst uint8, modIdx, globalIdx uint16) *Builder {
	return b.emit(bytecode.OpGetModElem, dst, 0, 0, 0, int64(modIdx)<<16|int64(globalIdx))
}

// --- property / element access ---

func (b *Builder) Get(dst, container, key uint8) *Builder {
	return b.emit(bytecode.OpGet, dst, container, key, 0, 0)
}
func (b *Builder) GetProp8(dst, container uint8, nameIdx uint8) *Builder {
	return b.emit(bytecode.OpGetProp8, dst, container, 0, 0, int64(nameIdx))
}
func (b *Builder) GetElem(dst, container uint8, idx int32) *Builder {
	return b.emit(bytecode.OpGetElem, dst, container, 0, 0, int64(idx))
}
func (b *Builder) GetRange(dst, container, rangeReg uint8) *Builder {
	return b.emit(bytecode.OpGetRange, dst, container, rangeReg, 0, 0)
}
func (b *Builder) Set(container, key, v uint8) *Builder {
	return b.emit(bytecode.OpSet, container, key, v, 0, 0)
}
func (b *Builder) SetProp8(container uint8, nameIdx uint8, v uint8) *Builder {
	return b.emit(bytecode.OpSetProp8, container, v, 0, 0, int64(nameIdx))
}
func (b *Builder) SetElem(container uint8, idx int32, v uint8) *Builder {
	return b.emit(bytecode.OpSetElem, container, v, 0, 0, int64(idx))
}
func (b *Builder) Has(dst, container, key uint8) *Builder {
	return b.emit(bytecode.OpHas, dst, container, key, 0, 0)
}
func (b *Builder) HasShProp8(dst, container uint8, nameIdx uint8) *Builder {
	return b.emit(bytecode.OpHasShProp8, dst, container, 0, 0, int64(nameIdx))
}
func (b *Builder) HasDpProp8(dst, container uint8, nameIdx uint8) *Builder {
	return b.emit(bytecode.OpHasDpProp8, dst, container, 0, 0, int64(nameIdx))
}
func (b *Builder) Del(container, key uint8) *Builder {
	return b.emit(bytecode.OpDel, container, key, 0, 0, 0)
}
func (b *Builder) DelProp8(container uint8, nameIdx uint8) *Builder {
	return b.emit(bytecode.OpDelProp8, container, 0, 0, 0, int64(nameIdx))
}
func (b *Builder) GetProto(reg uint8) *Builder { return b.emit(bytecode.OpGetProto, reg, 0, 0, 0, 0) }
func (b *Builder) Push(arr, v uint8) *Builder  { return b.emit(bytecode.OpPush, arr, v, 0, 0, 0) }
func (b *Builder) PushEx(arr, other uint8) *Builder {
	return b.emit(bytecode.OpPushEx, arr, other, 0, 0, 0)
}

// --- arithmetic, bitwise, comparison ---

func (b *Builder) Add(dst, x, y uint8) *Builder { return b.emit(bytecode.OpAdd, dst, x, y, 0, 0) }
func (b *Builder) Sub(dst, x, y uint8) *Builder { return b.emit(bytecode.OpSub, dst, x, y, 0, 0) }
func (b *Builder) Mul(dst, x, y uint8) *Builder { return b.emit(bytecode.OpMul, dst, x, y, 0, 0) }
func (b *Builder) Div(dst, x, y uint8) *Builder { return b.emit(bytecode.OpDiv, dst, x, y, 0, 0) }
func (b *Builder) Mod(dst, x, y uint8) *Builder { return b.emit(bytecode.OpMod, dst, x, y, 0, 0) }
func (b *Builder) And(dst, x, y uint8) *Builder { return b.emit(bytecode.OpAnd, dst, x, y, 0, 0) }
func (b *Builder) Or(dst, x, y uint8) *Builder  { return b.emit(bytecode.OpOr, dst, x, y, 0, 0) }
func (b *Builder) Xor(dst, x, y uint8) *Builder { return b.emit(bytecode.OpXor, dst, x, y, 0, 0) }
func (b *Builder) Shl(dst, x, y uint8) *Builder { return b.emit(bytecode.OpShl, dst, x, y, 0, 0) }
func (b *Builder) Shr(dst, x, y uint8) *Builder { return b.emit(bytecode.OpShr, dst, x, y, 0, 0) }
func (b *Builder) Ssr(dst, x, y uint8) *Builder { return b.emit(bytecode.OpSsr, dst, x, y, 0, 0) }
func (b *Builder) Neg(dst, x uint8) *Builder    { return b.emit(bytecode.OpNeg, dst, x, 0, 0, 0) }
func (b *Builder) Not(dst, x uint8) *Builder    { return b.emit(bytecode.OpNot, dst, x, 0, 0, 0) }

func (b *Builder) CmpEq(dst, x, y uint8) *Builder { return b.emit(bytecode.OpCmpEq, dst, x, y, 0, 0) }
func (b *Builder) CmpNe(dst, x, y uint8) *Builder { return b.emit(bytecode.OpCmpNe, dst, x, y, 0, 0) }
func (b *Builder) CmpLt(dst, x, y uint8) *Builder { return b.emit(bytecode.OpCmpLt, dst, x, y, 0, 0) }
func (b *Builder) CmpLe(dst, x, y uint8) *Builder { return b.emit(bytecode.OpCmpLe, dst, x, y, 0, 0) }
func (b *Builder) CmpGt(dst, x, y uint8) *Builder { return b.emit(bytecode.OpCmpGt, dst, x, y, 0, 0) }
func (b *Builder) CmpGe(dst, x, y uint8) *Builder { return b.emit(bytecode.OpCmpGe, dst, x, y, 0, 0) }

// --- control flow ---

func (b *Builder) Jump(label string) *Builder { return b.emitJump(bytecode.OpJump, 0, label) }
func (b *Builder) JumpCond(cond uint8, label string) *Builder {
	return b.emitJump(bytecode.OpJumpCond, cond, label)
}
func (b *Builder) JumpNotCond(cond uint8, label string) *Builder {
	return b.emitJump(bytecode.OpJumpNotCond, cond, label)
}

func (b *Builder) Type(dst, x uint8) *Builder { return b.emit(bytecode.OpType, dst, x, 0, 0, 0) }
func (b *Builder) Instanceof(dst, inst, proto uint8) *Builder {
	return b.emit(bytecode.OpInstanceof, dst, inst, proto, 0, 0)
}

// --- calls ---

func (b *Builder) Call(dst, fn, this, args uint8) *Builder {
	return b.emit(bytecode.OpCall, dst, fn, this, args, 0)
}
func (b *Builder) CallN(dst, fn, firstArg, count uint8) *Builder {
	return b.emit(bytecode.OpCallN, dst, fn, firstArg, count, 0)
}
func (b *Builder) CallFun(dst, fn, this, args uint8) *Builder {
	return b.emit(bytecode.OpCallFun, dst, fn, this, args, 0)
}
func (b *Builder) TailCall(dst, fn, this, args uint8) *Builder {
	return b.emit(bytecode.OpTailCall, dst, fn, this, args, 0)
}
func (b *Builder) TailCallN(dst, fn, firstArg, count uint8) *Builder {
	return b.emit(bytecode.OpTailCallN, dst, fn, firstArg, count, 0)
}
func (b *Builder) New(dst, class, args uint8) *Builder {
	return b.emit(bytecode.OpNew, dst, class, 0, args, 0)
}
func (b *Builder) CallGen(dst, gen uint8) *Builder {
	return b.emit(bytecode.OpCallGen, dst, gen, 0, 0, 0)
}

// --- closures ---

func (b *Builder) BindSelf(src, slot uint8) *Builder {
	return b.emit(bytecode.OpBindSelf, src, slot, 0, 0, 0)
}
func (b *Builder) Bind(fn, slot, src uint8) *Builder {
	return b.emit(bytecode.OpBind, fn, slot, src, 0, 0)
}
func (b *Builder) BindDefaults(fn, defaultsArr uint8) *Builder {
	return b.emit(bytecode.OpBindDefaults, fn, defaultsArr, 0, 0, 0)
}

// --- exceptions, return, generators ---

func (b *Builder) Catch(reg uint8, label string) *Builder {
	return b.emitJump(bytecode.OpCatch, reg, label)
}
func (b *Builder) Cancel() *Builder  { return b.emit(bytecode.OpCancel, 0, 0, 0, 0, 0) }
func (b *Builder) Throw(src uint8) *Builder { return b.emit(bytecode.OpThrow, src, 0, 0, 0, 0) }
func (b *Builder) Return(src uint8) *Builder {
	return b.emit(bytecode.OpReturn, src, 0, 0, 0, 0)
}
func (b *Builder) Yield(src uint8) *Builder { return b.emit(bytecode.OpYield, src, 0, 0, 0, 0) }

func (b *Builder) Next(dst, iter uint8) *Builder { return b.emit(bytecode.OpNext, dst, iter, 0, 0, 0) }
func (b *Builder) NextJump(dst, iter uint8, label string) *Builder {
	b.instrs = append(b.instrs, pending{op: bytecode.OpNextJump, a: dst, b: iter, label: label})
	return b
}

// Assemble encodes the instruction stream into a byte slice, resolving
// every label reference into a Delta measured the same way Decode reads
// it back: from the byte immediately following the jump/catch
// instruction's own bytes.
func (b *Builder) Assemble() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	offsets := make([]uint32, len(b.instrs)+1)
	var cur uint32
	for i, ins := range b.instrs {
		offsets[i] = cur
		cur += uint32(bytecode.Instr{Op: ins.op}.Width())
	}
	offsets[len(b.instrs)] = cur

	labelOffset := make(map[string]uint32, len(b.labelAt))
	for name, idx := range b.labelAt {
		if idx < 0 || idx > len(b.instrs) {
			return nil, fmt.Errorf("label %q points outside instruction stream", name)
		}
		labelOffset[name] = offsets[idx]
	}

	code := make([]byte, cur)
	for i, ins := range b.instrs {
		width := uint32(bytecode.Instr{Op: ins.op}.Width())
		start := offsets[i]
		end := start + width

		delta := int32(0)
		if ins.label != "" {
			target, ok := labelOffset[ins.label]
			if !ok {
				return nil, fmt.Errorf("undefined label %q", ins.label)
			}
			delta = int32(int64(target) - int64(end))
		}
		encodeInto(code[start:end], ins, delta)
	}
	return code, nil
}

// encodeInto writes ins's bytes into dst, which must be exactly
// Instr{Op: ins.op}.Width() bytes long. The layout for each opcode
// family mirrors bytecode.Decode exactly, byte for byte.
func encodeInto(dst []byte, ins pending, delta int32) {
	dst[0] = byte(ins.op)
	rest := dst[1:]

	switch ins.op {
	case bytecode.OpNop, bytecode.OpCancel:
		// no operands

	case bytecode.OpLoadTrue, bytecode.OpLoadFalse, bytecode.OpLoadVoid, bytecode.OpGetProto:
		rest[0] = ins.a

	case bytecode.OpLoadInt8:
		rest[0] = ins.a
		rest[1] = byte(int8(ins.imm))

	case bytecode.OpLoadInt32:
		rest[0] = ins.a
		binary.LittleEndian.PutUint32(rest[1:5], uint32(int32(ins.imm)))

	case bytecode.OpLoadInt64, bytecode.OpLoadFloat:
		rest[0] = ins.a
		binary.LittleEndian.PutUint64(rest[1:9], uint64(ins.imm))

	case bytecode.OpLoadConst, bytecode.OpLoadFun, bytecode.OpLoadClass, bytecode.OpLoadArray:
		rest[0] = ins.a
		binary.LittleEndian.PutUint32(rest[1:5], uint32(ins.imm))

	case bytecode.OpLoadConst8, bytecode.OpLoadFun8, bytecode.OpLoadClass8, bytecode.OpLoadArray8:
		rest[0] = ins.a
		rest[1] = byte(ins.imm)

	case bytecode.OpJump:
		binary.LittleEndian.PutUint32(rest[0:4], uint32(delta))

	case bytecode.OpJumpCond, bytecode.OpJumpNotCond, bytecode.OpNextJump, bytecode.OpCatch:
		rest[0] = ins.a
		binary.LittleEndian.PutUint32(rest[1:5], uint32(delta))

	case bytecode.OpGetProp8, bytecode.OpSetProp8, bytecode.OpHasShProp8, bytecode.OpHasDpProp8, bytecode.OpDelProp8:
		rest[0] = ins.a
		rest[1] = ins.b
		rest[2] = byte(ins.imm)

	case bytecode.OpGetElem, bytecode.OpSetElem:
		rest[0] = ins.a
		rest[1] = ins.b
		binary.LittleEndian.PutUint32(rest[2:6], uint32(int32(ins.imm)))

	case bytecode.OpGetRange:
		rest[0] = ins.a
		rest[1] = ins.b
		rest[2] = ins.c

	case bytecode.OpCall, bytecode.OpCallN, bytecode.OpCallFun, bytecode.OpTailCall,
		bytecode.OpTailCallN, bytecode.OpTailCallFun, bytecode.OpNew, bytecode.OpCallGen:
		rest[0] = ins.a
		rest[1] = ins.b
		rest[2] = ins.c
		rest[3] = ins.d

	case bytecode.OpBind:
		rest[0] = ins.a
		rest[1] = ins.b
		rest[2] = ins.c

	case bytecode.OpBindSelf, bytecode.OpBindDefaults, bytecode.OpReturn:
		rest[0] = ins.a
		rest[1] = ins.b

	case bytecode.OpThrow, bytecode.OpYield, bytecode.OpNeg, bytecode.OpNot, bytecode.OpGetGlobal,
		bytecode.OpSetGlobal, bytecode.OpLoadObj, bytecode.OpLoadIter, bytecode.OpType,
		bytecode.OpMove, bytecode.OpNext:
		rest[0] = ins.a
		rest[1] = ins.b

	case bytecode.OpGetMod, bytecode.OpGetModElem:
		rest[0] = ins.a
		binary.LittleEndian.PutUint32(rest[1:5], uint32(ins.imm))

	case bytecode.OpHas, bytecode.OpDel, bytecode.OpGet, bytecode.OpSet, bytecode.OpPush,
		bytecode.OpPushEx, bytecode.OpInstanceof, bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul,
		bytecode.OpDiv, bytecode.OpMod, bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor,
		bytecode.OpShl, bytecode.OpShr, bytecode.OpSsr, bytecode.OpCmpEq, bytecode.OpCmpNe,
		bytecode.OpCmpLt, bytecode.OpCmpLe, bytecode.OpCmpGt, bytecode.OpCmpGe:
		rest[0] = ins.a
		rest[1] = ins.b
		rest[2] = ins.c
	}
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

// Function bundles an assembled instruction stream with the descriptor
// fields a FunctionCore needs.
type Function struct {
	Code    []byte
	Opts    object.ArgLayout
	IsGen   bool
	Handler object.NativeHandler
}

// BuildFunction finishes b into a Function ready to be placed in a
// module's constant pool, or turned into the module's main function.
func (b *Builder) BuildFunction(opts object.ArgLayout) (Function, error) {
	code, err := b.Assemble()
	if err != nil {
		return Function{}, err
	}
	return Function{Code: code, Opts: opts}, nil
}

// ModuleBuilder assembles an object.Module: its constant pool, globals,
// and main function, the way a compiler's final emission pass would.
type ModuleBuilder struct {
	mod *object.Module
}

// NewModuleBuilder creates an empty module shell named name at path.
func NewModuleBuilder(name, path string) *ModuleBuilder {
	return &ModuleBuilder{mod: object.NewModule(name, path)}
}

// AddConstant appends v to the module's constant pool, returning its
// index for LOAD_CONST/LOAD_CONST8.
func (mb *ModuleBuilder) AddConstant(v value.Value) uint32 {
	idx := uint32(len(mb.mod.Constants))
	mb.mod.Constants = append(mb.mod.Constants, v)
	return idx
}

// AddFunctionConstant assembles fn into a *object.Function descriptor
// constant (FunRegular, or FunGenInit if fn.IsGen), owned by this
// module, and returns its constant index.
func (mb *ModuleBuilder) AddFunctionConstant(fn Function) uint32 {
	core := object.FunctionCore{
		Opts:      fn.Opts,
		Bytecode:  fn.Code,
		Module:    value.NewHeapRef(mb.mod),
		Handler:   fn.Handler,
		IsGenerator: fn.IsGen,
	}
	descr := object.NewFunction(core)
	return mb.AddConstant(value.NewHeapRef(descr))
}

// SetMain designates the constant at idx (built via AddFunctionConstant)
// as the module's entry point for RunModule.
func (mb *ModuleBuilder) SetMain(idx uint32) *ModuleBuilder {
	mb.mod.MainIdx = idx
	return mb
}

// DeclareGlobal adds a global slot with the given initial value.
func (mb *ModuleBuilder) DeclareGlobal(name string, initial value.Value) uint32 {
	return mb.mod.DeclareGlobal(name, initial)
}

// Module returns the finished module.
func (mb *ModuleBuilder) Module() *object.Module { return mb.mod }
