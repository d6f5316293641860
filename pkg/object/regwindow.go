package object

import "github.com/koslang/kosvm/pkg/value"

// RegWindow is a heap-visible reference to a live frame's register array,
// the Go counterpart of the original VM's stack_frame->registers: BIND_SELF
// closes over the whole of the enclosing call's register window (rather
// than a single already-resolved value, as BIND does) so a function can
// recurse through its own binding. It shares the backing slice with the
// frame that produced it, so any register write the enclosing frame makes
// afterward is visible through the window too.
type RegWindow struct {
	header value.Header
	Regs   []value.Value
}

func (w *RegWindow) ObjHeader() *value.Header { return &w.header }

// NewRegWindow wraps regs (a frame's live register slice) for storage as a
// closure slot.
func NewRegWindow(regs []value.Value) *RegWindow {
	return &RegWindow{header: value.NewHeader(value.TypeOpaque, 24), Regs: regs}
}
