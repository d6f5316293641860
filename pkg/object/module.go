package object

import "github.com/koslang/kosvm/pkg/value"

// Module is the runtime module object layout consumed from a collaborator
// (the lexer/parser/compiler, out of scope here): bytecode, a constant
// pool, globals, and enough metadata to turn an instruction offset back
// into a source line for backtraces.
type Module struct {
	header value.Header

	Name value.Value // *String
	Path value.Value // *String

	Constants []value.Value // string literals, nested function/class descriptors, numeric literals

	GlobalNames map[string]uint32 // global name -> index into Globals
	Globals     []value.Value

	// ModuleNames maps directly-referenced module names to the index this
	// module records them under, used by GET_MOD / GET_MOD_ELEM.
	ModuleNames map[string]uint32
	Modules     []*Module

	Priv     interface{}
	Finalize func()

	MainIdx uint32 // index of the constant holding the module's top-level function

	// AddrToLine maps instruction offsets to source lines, produced by the
	// compiler alongside the bytecode.
	AddrToLine []LineAddr
}

func (m *Module) ObjHeader() *value.Header { return &m.header }

// LineAddr is one entry of a module's addr2line table.
type LineAddr struct {
	Offset uint32
	Line   uint32
}

// NewModule creates an empty module shell; callers populate Constants,
// Globals, etc. before handing it to the VM.
func NewModule(name, path string) *Module {
	return &Module{
		header:      value.NewHeader(value.TypeModule, 64),
		Name:        value.NewHeapRef(NewLocalString(name)),
		Path:        value.NewHeapRef(NewLocalString(path)),
		GlobalNames: make(map[string]uint32),
		ModuleNames: make(map[string]uint32),
	}
}

// AddrToLineFor decodes an instruction offset into a source line number,
// returning 0 if the module carries no debug info for that offset (the
// external addr-to-line decoder is a collaborator; this is a reasonable,
// total default when none is available).
func (m *Module) AddrToLineFor(offs uint32) uint32 {
	line := uint32(0)
	for _, e := range m.AddrToLine {
		if e.Offset > offs {
			break
		}
		line = e.Line
	}
	return line
}

// DeclareGlobal adds a global slot, returning its index.
func (m *Module) DeclareGlobal(name string, initial value.Value) uint32 {
	idx := uint32(len(m.Globals))
	m.Globals = append(m.Globals, initial)
	m.GlobalNames[name] = idx
	return idx
}
