package object

import (
	"unicode/utf8"

	"github.com/koslang/kosvm/pkg/value"
)

// StringShape distinguishes the four storage strategies a Kos string can
// use. Element width (8/16/32-bit) is tracked separately in ElemSize.
type StringShape uint8

const (
	// ShapeLocal stores the string's code units inline in the object.
	ShapeLocal StringShape = iota
	// ShapeExternal points at memory whose lifetime the runtime guarantees
	// (e.g. a module's constant pool, or a caller-owned C buffer).
	ShapeExternal
	// ShapeRef is a slice into another string object (a sub-string view).
	ShapeRef
	// ShapeConst marks an immutable, GC-static constant string.
	ShapeConst
)

// String is the unicode string object. Internally, runes are always kept
// normalized to []rune for simplicity of indexing/slicing; ElemSize only
// affects the *reported* element width (kept for wire fidelity with the
// original 8/16/32-bit packed encodings, e.g. when asked to report
// whether this is an ASCII string).
type String struct {
	header value.Header

	Shape   StringShape
	ElemSize uint8 // 1, 2 or 4

	runes []rune // authoritative content for Local/External
	ref   *String
	refLo int // half-open [refLo, refHi) into ref's runes
	refHi int

	hash     uint32
	hashSet  bool
}

func (s *String) ObjHeader() *value.Header { return &s.header }

func elemSizeFor(runes []rune) uint8 {
	size := uint8(1)
	for _, r := range runes {
		switch {
		case r > 0xFFFF:
			return 4
		case r > 0xFF:
			size = 2
		}
	}
	return size
}

// NewLocalString builds an inline string from a Go string (decoded as
// UTF-8, per the string codec consumed from collaborators).
func NewLocalString(s string) *String {
	runes := []rune(s)
	return &String{
		header:   value.NewHeader(value.TypeString, uint32(utf8.RuneCountInString(s))),
		Shape:    ShapeLocal,
		ElemSize: elemSizeFor(runes),
		runes:    runes,
	}
}

// NewConstString builds a constant (static) string, as produced by a
// module's constant pool.
func NewConstString(s string) *String {
	str := NewLocalString(s)
	str.Shape = ShapeConst
	return str
}

// NewSliceString creates a ShapeRef string viewing [lo, hi) of parent.
// The parent must outlive the slice (guaranteed because Kos strings are
// immutable and the slice keeps a live reference to it).
func NewSliceString(parent *String, lo, hi int) *String {
	return &String{
		header: value.NewHeader(value.TypeString, uint32(hi-lo)),
		Shape:  ShapeRef,
		ref:    parent,
		refLo:  lo,
		refHi:  hi,
	}
}

// Runes returns the code points of s regardless of storage shape.
func (s *String) Runes() []rune {
	if s.Shape == ShapeRef {
		return s.ref.Runes()[s.refLo:s.refHi]
	}
	return s.runes
}

// Len returns the length of s in code units (== code points, since the
// engine treats a Kos string as a sequence of Unicode scalar values).
func (s *String) Len() int { return len(s.Runes()) }

func (s *String) String() string { return string(s.Runes()) }

// Hash computes (and caches) a stable polynomial hash over code points, so
// repeated lookups of the same string key in a property map don't re-walk
// the content every time.
func (s *String) Hash() uint32 {
	if s.hashSet {
		return s.hash
	}
	var h uint32 = 2166136261 // FNV-1a offset basis, applied over runes
	for _, r := range s.Runes() {
		h ^= uint32(r)
		h *= 16777619
	}
	s.hash = h
	s.hashSet = true
	return h
}

// Compare implements code-unit ordering between two strings, used by the
// CMP_* opcodes on same-kind operands.
func (s *String) Compare(other *String) int {
	a, b := s.Runes(), other.Runes()
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Slice returns a new string for Kos's GET_RANGE semantics: begin/end may
// be negative (counted from the end) and are clamped into range.
func (s *String) Slice(begin, end int, hasBegin, hasEnd bool) *String {
	n := s.Len()
	b := normalizeIndex(begin, n, hasBegin, 0)
	e := normalizeIndex(end, n, hasEnd, n)
	if b > e {
		b = e
	}
	return NewSliceString(s, b, e)
}

func normalizeIndex(idx, n int, has bool, def int) int {
	if !has {
		return def
	}
	if idx < 0 {
		idx += n
	}
	if idx < 0 {
		idx = 0
	}
	if idx > n {
		idx = n
	}
	return idx
}

// CharAt returns a 1-character string for numeric indexing on strings, or
// ok=false if idx is out of range (raises invalid_index in the VM).
func (s *String) CharAt(idx int) (*String, bool) {
	runes := s.Runes()
	if idx < 0 {
		idx += len(runes)
	}
	if idx < 0 || idx >= len(runes) {
		return nil, false
	}
	return NewSliceString(s, idx, idx+1), true
}
