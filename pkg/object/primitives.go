// Package object defines the closed set of heap, off-heap and static
// object types that make up the Kos object model: numbers, strings,
// containers, records, functions/classes, modules, iterators and the
// stack-segment object the call stack is built from.
package object

import (
	"math"

	"github.com/koslang/kosvm/pkg/value"
)

// Integer is a heap-allocated integer, used once a small int would
// overflow the inline 63-bit range (see value.FitsSmallInt).
type Integer struct {
	header value.Header
	Value  int64
}

func (i *Integer) ObjHeader() *value.Header { return &i.header }
func (i *Integer) IntValue() int64          { return i.Value }

// Float is a heap-allocated IEEE-754 double.
type Float struct {
	header value.Header
	Value  float64
}

func (f *Float) ObjHeader() *value.Header { return &f.header }
func (f *Float) FloatValue() float64      { return f.Value }

// Boolean wraps the two boolean singletons.
type Boolean struct {
	header value.Header
	Value  bool
}

func (b *Boolean) ObjHeader() *value.Header { return &b.header }
func (b *Boolean) BoolValue() bool          { return b.Value }

// VoidType is the single void singleton's backing object.
type VoidType struct {
	header value.Header
}

func (v *VoidType) ObjHeader() *value.Header { return &v.header }

// Opaque wraps binary user data the GC does not otherwise interpret.
type Opaque struct {
	header value.Header
	Data   []byte
}

func (o *Opaque) ObjHeader() *value.Header { return &o.header }

// Static singletons: allocated once at instance initialization and shared
// by every context, per "constant (static) objects are never scanned or
// moved by GC".
var (
	staticVoid    = &VoidType{header: value.NewHeader(value.TypeVoid, 0)}
	staticTrue    = &Boolean{header: value.NewHeader(value.TypeBoolean, 0), Value: true}
	staticFalse   = &Boolean{header: value.NewHeader(value.TypeBoolean, 0), Value: false}
)

// Void, True and False are the shared static singletons every instance
// sees; they are never placed on a movable arena, so GetType(Void) is
// stable across calls with no allocation involved.
func Void() value.Value  { return value.NewStaticRef(staticVoid) }
func True() value.Value  { return value.NewStaticRef(staticTrue) }
func False() value.Value { return value.NewStaticRef(staticFalse) }

// Bool returns the shared True/False static for b.
func Bool(b bool) value.Value {
	if b {
		return True()
	}
	return False()
}

// IsFinite reports whether f is neither NaN nor infinite -- used by the
// numeric promotion rules when deciding whether an arithmetic result can
// be safely represented.
func IsFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
