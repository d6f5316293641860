package object

import (
	"sync/atomic"

	"golang.org/x/exp/maps"

	"github.com/koslang/kosvm/pkg/value"
)

// propMap is an immutable snapshot of an object's own properties. Updates
// are copy-on-write: a writer copies the current snapshot, mutates the
// copy, then publishes it with a release store so a concurrent reader
// (another context walking the prototype chain) either sees the old
// snapshot or the fully-formed new one, never a partial map.
type propMap struct {
	entries map[string]value.Value
}

func newPropMap() *propMap { return &propMap{entries: make(map[string]value.Value)} }

func (m *propMap) clone() *propMap {
	cp := make(map[string]value.Value, len(m.entries)+1)
	for k, v := range m.entries {
		cp[k] = v
	}
	return &propMap{entries: cp}
}

// ObjectStorage is the internal storage object backing an Object's
// property map pointer; kept as a distinct type per the data model's
// closed set of internal object types, even though PropMap above is what
// actually does the work -- ObjectStorage is the heap-visible wrapper.
type ObjectStorage struct {
	header value.Header
	snap   *propMap
}

func (s *ObjectStorage) ObjHeader() *value.Header { return &s.header }

// Object is a Kos record: a property map reached through a lock-free
// (atomic, copy-on-write) pointer, a prototype link for lookup fallback,
// and optional native-backed private data.
type Object struct {
	header value.Header

	props atomic.Pointer[propMap]

	Prototype value.Value // value.Bad for the root

	// PrivateClass tags objects backed by native data (e.g. a compiled
	// iterator or a module's private state); empty for plain objects.
	PrivateClass string
	Priv         interface{}
	Finalize     func(priv interface{})
}

func (o *Object) ObjHeader() *value.Header { return &o.header }

// NewObject creates an empty object with the given prototype (value.Bad
// for none).
func NewObject(prototype value.Value) *Object {
	o := &Object{header: value.NewHeader(value.TypeObject, 32), Prototype: prototype}
	o.props.Store(newPropMap())
	return o
}

// GetOwn looks up key among o's own properties only (KOS_SHALLOW).
func (o *Object) GetOwn(key string) (value.Value, bool) {
	m := o.props.Load()
	v, ok := m.entries[key]
	return v, ok
}

// Get looks up key, following the prototype chain (KOS_DEEP). It returns
// the raw stored value, which may be a *DynamicProp -- callers that must
// honor getter/setter redirection resolve that case themselves (package vm
// turns a *DynamicProp hit into a call rather than a plain load).
func Get(ctx ObjContext, o *Object, key string) (value.Value, bool) {
	for cur := o; cur != nil; {
		if v, ok := cur.GetOwn(key); ok {
			return v, true
		}
		proto := cur.Prototype
		if proto.IsBad() {
			return value.Value{}, false
		}
		next, ok := proto.Ref().(*Object)
		if !ok {
			return value.Value{}, false
		}
		cur = next
	}
	return value.Value{}, false
}

// Has reports existence without retrieving the value; deep controls
// whether the prototype chain is consulted (HAS vs HAS_SH_PROP8).
func Has(o *Object, key string, deep bool) bool {
	for cur := o; cur != nil; {
		if _, ok := cur.GetOwn(key); ok {
			return true
		}
		if !deep {
			return false
		}
		proto := cur.Prototype
		if proto.IsBad() {
			return false
		}
		next, ok := proto.Ref().(*Object)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// SetOwn writes key=v among o's own properties, publishing the updated
// snapshot with a CAS retry loop (the "lock-free hash table" the data
// model calls for).
func (o *Object) SetOwn(key string, v value.Value) {
	for {
		old := o.props.Load()
		next := old.clone()
		next.entries[key] = v
		if o.props.CompareAndSwap(old, next) {
			return
		}
	}
}

// DeleteOwn removes key from o's own properties, if present.
func (o *Object) DeleteOwn(key string) {
	for {
		old := o.props.Load()
		if _, ok := old.entries[key]; !ok {
			return
		}
		next := old.clone()
		delete(next.entries, key)
		if o.props.CompareAndSwap(old, next) {
			return
		}
	}
}

// Keys returns the object's own property names, unordered (map iteration
// order), for iterator support.
func (o *Object) Keys() []string {
	return maps.Keys(o.props.Load().entries)
}

// ObjContext is the minimal context surface the property engine needs: it
// lets Get/Set defer to the prototype chain without the object package
// importing the vm package (which would create an import cycle, since vm
// needs to construct and inspect Objects).
type ObjContext interface{}

// DynamicProp pairs a getter/setter; storing one as a property value
// means access to that property must be redirected through a call rather
// than treated as a plain value.
type DynamicProp struct {
	header value.Header
	Getter value.Value
	Setter value.Value
}

func (d *DynamicProp) ObjHeader() *value.Header { return &d.header }

func NewDynamicProp() *DynamicProp {
	return &DynamicProp{header: value.NewHeader(value.TypeDynamicProp, 24), Getter: Void(), Setter: Void()}
}

// IteratorKind enumerates what kind of container an Iterator walks.
type IteratorKind uint8

const (
	IterArray IteratorKind = iota
	IterString
	IterBuffer
	IterObjectKeys
	IterGenerator
)

// Depth mirrors KOS_DEPTH_E: whether property iteration includes the
// prototype chain, or walks container contents.
type Depth uint8

const (
	DepthDeep Depth = iota
	DepthShallow
	DepthContents
)

// Iterator is the runtime object LOAD_ITER produces and NEXT/NEXT_JUMP
// advance.
type Iterator struct {
	header value.Header

	Kind  IteratorKind
	Depth Depth

	Index   uint32
	Obj     value.Value // the container or generator instance being walked
	KeyTable []string    // snapshot of keys, for object iteration
	LastKey   value.Value
	LastValue value.Value
	Done      bool
}

func (it *Iterator) ObjHeader() *value.Header { return &it.header }

func NewIterator(kind IteratorKind, depth Depth, obj value.Value) *Iterator {
	return &Iterator{
		header: value.NewHeader(value.TypeIterator, 48),
		Kind:   kind,
		Depth:  depth,
		Obj:    obj,
	}
}
