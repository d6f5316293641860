package object

import "github.com/koslang/kosvm/pkg/value"

// NoReg is the "no register"/"cannot yield" sentinel (KOS_NO_REG): a byte
// register index that can never be a real register because frames are
// capped well below 255 registers.
const NoReg uint8 = 255

// FunctionState enumerates the state machine a function/generator moves
// through. Plain functions and class constructors never leave FunRegular
// / FunCtor; only a function produced from a `generator_init` descriptor
// progresses through the Gen* states.
type FunctionState uint32

const (
	FunRegular FunctionState = iota
	FunCtor
	FunGenInit
	FunGenReady
	FunGenActive
	FunGenRunning
	FunGenDone
)

func (s FunctionState) String() string {
	switch s {
	case FunRegular:
		return "regular"
	case FunCtor:
		return "constructor"
	case FunGenInit:
		return "generator_init"
	case FunGenReady:
		return "generator_ready"
	case FunGenActive:
		return "generator_active"
	case FunGenRunning:
		return "generator_running"
	case FunGenDone:
		return "generator_done"
	default:
		return "unknown"
	}
}

// ArgLayout records where (by register index) a function's parameters
// land, matching KOS_FUNCTION_OPTS.
type ArgLayout struct {
	NumRegs     uint8 // registers used by the function body
	ClosureSize uint8 // registers preserved for a closure on RETURN
	MinArgs     uint8 // args without default values
	NumDefArgs  uint8 // args with default values
	NumBinds    uint8 // number of bound (closed-over) slots

	ArgsReg     uint8 // register of the first positional argument
	RestReg     uint8 // register receiving the "rest" array, or NoReg
	EllipsisReg uint8 // register receiving the ellipsis array, or NoReg
	ThisReg     uint8 // register receiving `this`, or NoReg
	BindReg     uint8 // register of the first bound (closure) slot
}

// NativeHandler is a builtin function body, invoked synchronously with
// (ctx, this, args) -- the call convention described in the external
// interface section. The concrete ctx type lives in package vm; it is
// threaded through as interface{} here to avoid an import cycle.
type NativeHandler func(ctx interface{}, this value.Value, args *Array) (value.Value, error)

// FunctionCore holds the fields shared verbatim between Function and
// Class descriptors.
type FunctionCore struct {
	Opts     ArgLayout
	Bytecode []byte // the function's instruction stream
	InstrOffs uint32
	Module   value.Value // owning module
	Name     value.Value // function name (a *String)
	Closures *Array      // bound closure register-window references
	Defaults *Array      // bound default argument values
	ArgMap   *Object     // argument name -> index

	Handler     NativeHandler
	IsGenerator bool // descriptor produces a generator-init function when loaded
}

// Function is a first-class function, generator instantiation, or
// generator instance (distinguished by State).
type Function struct {
	header value.Header

	FunctionCore
	State FunctionState

	// GeneratorStackFrame is the reentrant stack segment preserved across
	// suspension; set when a generator instance is first resumed
	// (vm.Context.CallGen allocates it) and read on every resume after.
	// Declared as value.Ref; callers type-assert to *Segment.
	GeneratorStackFrame value.Ref
}

func (f *Function) ObjHeader() *value.Header { return &f.header }

// NewFunction materializes a fresh function object from a constant
// descriptor. Every LOAD_FUN/LOAD_CLASS creates a new object so closures
// bound via BIND/BIND_SELF are per-instantiation, never shared.
func NewFunction(core FunctionCore) *Function {
	state := FunRegular
	if core.IsGenerator {
		state = FunGenInit
	}
	return &Function{
		header:       value.NewHeader(value.TypeFunction, 96),
		FunctionCore: core,
		State:        state,
	}
}

// Class is a constructor: a function descriptor that is also itself a
// property-bearing object (its static members, and the `prototype`
// property new instances link to).
type Class struct {
	header value.Header

	FunctionCore

	prototypeVal value.Value
	props        *Object // constructor's own static properties
}

func (c *Class) ObjHeader() *value.Header { return &c.header }

// NewClass materializes a class (constructor) object. protoObj becomes
// the prototype new instances created via NEW are linked to; if protoObj
// is value.Bad, a fresh prototype object is allocated, one per
// materialization, as LOAD_CLASS requires unless the descriptor already
// carries a shared one.
func NewClass(core FunctionCore, protoObj value.Value) *Class {
	c := &Class{
		header:       value.NewHeader(value.TypeClass, 96),
		FunctionCore: core,
		props:        NewObject(Void()),
	}
	if protoObj.IsBad() {
		protoObj = value.NewHeapRef(NewObject(Void()))
	}
	c.prototypeVal = protoObj
	return c
}

func (c *Class) Prototype() value.Value     { return c.prototypeVal }
func (c *Class) SetPrototype(v value.Value) { c.prototypeVal = v }
func (c *Class) Props() *Object             { return c.props }

// Callable exposes the shared descriptor fields of either a
// Function or a Class through one interface, so call dispatch does not
// need to type-switch at every access.
type Callable interface {
	value.Ref
	Core() *FunctionCore
	GetState() FunctionState
}

func (f *Function) Core() *FunctionCore    { return &f.FunctionCore }
func (f *Function) GetState() FunctionState { return f.State }

func (c *Class) Core() *FunctionCore    { return &c.FunctionCore }
func (c *Class) GetState() FunctionState { return FunCtor }
