package object

import "github.com/koslang/kosvm/pkg/value"

// HugeTracker is the heap-allocated tracker associated with an off-heap
// allocation (one made with malloc-equivalent semantics rather than
// through the managed arena, e.g. a buffer whose storage would be larger
// than a single page). The tracker itself lives on the heap so the
// collector can still find and free the off-heap memory it owns.
type HugeTracker struct {
	header value.Header

	Data   []byte      // the off-heap allocation
	Object value.Value // value.Value identifying the tracked object within Data
}

func (h *HugeTracker) ObjHeader() *value.Header { return &h.header }

func NewHugeTracker(size int) *HugeTracker {
	return &HugeTracker{
		header: value.NewHeader(value.TypeHugeTracker, 32),
		Data:   make([]byte, size),
	}
}
