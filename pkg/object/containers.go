package object

import "github.com/koslang/kosvm/pkg/value"

// ArrayStorage is the separately-allocated backing chunk an Array points
// at; resizing an array allocates fresh storage and copies forward,
// matching the "copies-forward" resize contract in the data model.
type ArrayStorage struct {
	header value.Header
	Data   []value.Value
}

func (s *ArrayStorage) ObjHeader() *value.Header { return &s.header }

// NewArrayStorage allocates backing storage with the given capacity, all
// slots initialized to the void value.
func NewArrayStorage(capacity int) *ArrayStorage {
	data := make([]value.Value, capacity)
	voidV := Void()
	for i := range data {
		data[i] = voidV
	}
	return &ArrayStorage{
		header: value.NewHeader(value.TypeArrayStorage, uint32(capacity*8)),
		Data:   data,
	}
}

// Array is the array object header: size+flags, and a pointer to storage.
type Array struct {
	header  value.Header
	size    uint32
	flags   uint32
	storage *ArrayStorage
}

func (a *Array) ObjHeader() *value.Header { return &a.header }

// NewArray creates an array of the given length, all elements void.
func NewArray(length int) *Array {
	return &Array{
		header:  value.NewHeader(value.TypeArray, 24),
		size:    uint32(length),
		storage: NewArrayStorage(length),
	}
}

func (a *Array) Len() int { return int(a.size) }

const (
	FlagReadOnly        uint32 = 1
	FlagExternalStorage uint32 = 2
)

func (a *Array) ReadOnly() bool { return a.flags&FlagReadOnly != 0 }
func (a *Array) SetReadOnly()   { a.flags |= FlagReadOnly }

// Get returns the element at idx, or ok=false if out of range.
func (a *Array) Get(idx int) (value.Value, bool) {
	if idx < 0 {
		idx += int(a.size)
	}
	if idx < 0 || idx >= int(a.size) {
		return value.Value{}, false
	}
	return a.storage.Data[idx], true
}

// Set writes v at idx. Returns false if idx is out of range or the array
// is read-only.
func (a *Array) Set(idx int, v value.Value) bool {
	if a.ReadOnly() {
		return false
	}
	if idx < 0 {
		idx += int(a.size)
	}
	if idx < 0 || idx >= int(a.size) {
		return false
	}
	a.storage.Data[idx] = v
	return true
}

// Push appends v, growing storage (copy-forward) if needed.
func (a *Array) Push(v value.Value) {
	if int(a.size) >= len(a.storage.Data) {
		a.grow(int(a.size) + 1)
	}
	a.storage.Data[a.size] = v
	a.size++
}

// EnsureLen grows the array's logical length to at least n, filling any
// newly exposed slots with void, matching KOS_array_resize's on-demand
// growth (used by BIND/BIND_SELF to extend a closures array up to the
// bound slot index).
func (a *Array) EnsureLen(n int) {
	if int(a.size) >= n {
		return
	}
	if n > len(a.storage.Data) {
		a.grow(n)
	}
	voidV := Void()
	for i := int(a.size); i < n; i++ {
		a.storage.Data[i] = voidV
	}
	a.size = uint32(n)
}

func (a *Array) grow(minCap int) {
	newCap := len(a.storage.Data)*2 + 4
	if newCap < minCap {
		newCap = minCap
	}
	newStorage := NewArrayStorage(newCap)
	copy(newStorage.Data, a.storage.Data[:a.size])
	a.storage = newStorage
}

// Slice implements GET_RANGE for arrays: returns a fresh array copy of the
// requested (possibly negative, possibly open) range.
func (a *Array) Slice(begin, end int, hasBegin, hasEnd bool) *Array {
	n := int(a.size)
	b := normalizeIndex(begin, n, hasBegin, 0)
	e := normalizeIndex(end, n, hasEnd, n)
	if b > e {
		b = e
	}
	out := NewArray(e - b)
	copy(out.storage.Data, a.storage.Data[b:e])
	return out
}

// Rotate rotates elements in [begin, end) by shift positions. Per the
// original source this operation was never implemented (it asserted
// false); the specification treats it as optional, so this is a
// straightforward correct implementation rather than a stub, to leave no
// unimplemented public entry point.
func (a *Array) Rotate(begin, end, shift int) {
	n := int(a.size)
	begin = normalizeIndex(begin, n, true, 0)
	end = normalizeIndex(end, n, true, n)
	if begin >= end {
		return
	}
	span := a.storage.Data[begin:end]
	l := len(span)
	shift = ((shift % l) + l) % l
	if shift == 0 {
		return
	}
	rotated := make([]value.Value, l)
	for i := 0; i < l; i++ {
		rotated[(i+shift)%l] = span[i]
	}
	copy(span, rotated)
}

// BufferStorage is the separately-allocated byte chunk a Buffer points at.
type BufferStorage struct {
	header value.Header
	Data   []byte
}

func (s *BufferStorage) ObjHeader() *value.Header { return &s.header }

func NewBufferStorage(capacity int) *BufferStorage {
	return &BufferStorage{
		header: value.NewHeader(value.TypeBufferStorage, uint32(capacity)),
		Data:   make([]byte, capacity),
	}
}

// Buffer is the buffer object: like Array but of raw bytes, and may be
// read-only or backed by externally-managed memory.
type Buffer struct {
	header  value.Header
	size    uint32
	flags   uint32
	storage *BufferStorage
}

func (b *Buffer) ObjHeader() *value.Header { return &b.header }

func NewBuffer(length int) *Buffer {
	return &Buffer{
		header:  value.NewHeader(value.TypeBuffer, 24),
		size:    uint32(length),
		storage: NewBufferStorage(length),
	}
}

func (b *Buffer) Len() int          { return int(b.size) }
func (b *Buffer) ReadOnly() bool    { return b.flags&FlagReadOnly != 0 }
func (b *Buffer) SetReadOnly()      { b.flags |= FlagReadOnly }
func (b *Buffer) External() bool    { return b.flags&FlagExternalStorage != 0 }

// GetByte returns the byte (as a small-int 0-255 value) at idx.
func (b *Buffer) GetByte(idx int) (byte, bool) {
	if idx < 0 {
		idx += int(b.size)
	}
	if idx < 0 || idx >= int(b.size) {
		return 0, false
	}
	return b.storage.Data[idx], true
}

// SetByte writes a raw byte value at idx; the caller is responsible for
// having validated 0 <= v <= 255 (raises invalid_byte_value otherwise).
func (b *Buffer) SetByte(idx int, v byte) bool {
	if b.ReadOnly() {
		return false
	}
	if idx < 0 {
		idx += int(b.size)
	}
	if idx < 0 || idx >= int(b.size) {
		return false
	}
	b.storage.Data[idx] = v
	return true
}

func (b *Buffer) Push(v byte) {
	if int(b.size) >= len(b.storage.Data) {
		b.grow(int(b.size) + 1)
	}
	b.storage.Data[b.size] = v
	b.size++
}

func (b *Buffer) grow(minCap int) {
	newCap := len(b.storage.Data)*2 + 16
	if newCap < minCap {
		newCap = minCap
	}
	ns := NewBufferStorage(newCap)
	copy(ns.Data, b.storage.Data[:b.size])
	b.storage = ns
}

func (b *Buffer) Slice(begin, end int, hasBegin, hasEnd bool) *Buffer {
	n := int(b.size)
	lo := normalizeIndex(begin, n, hasBegin, 0)
	hi := normalizeIndex(end, n, hasEnd, n)
	if lo > hi {
		lo = hi
	}
	out := NewBuffer(hi - lo)
	copy(out.storage.Data, b.storage.Data[lo:hi])
	return out
}

func (b *Buffer) Bytes() []byte { return b.storage.Data[:b.size] }
