package revwalk

import "github.com/emirpasic/gods/trees/binaryheap"

// entryHeap is a priority queue of *entry ordered by less, the way
// go-git's commitNodeHeap wraps github.com/emirpasic/gods/trees/binaryheap
// with a typed push/pop/size surface instead of interface{}.
type entryHeap struct {
	*binaryheap.Heap
}

func newEntryHeap(mode SortOrder) *entryHeap {
	return &entryHeap{binaryheap.NewWith(func(a, b interface{}) int {
		ea, eb := a.(*entry), b.(*entry)
		switch {
		case less(mode, ea, eb):
			return -1
		case less(mode, eb, ea):
			return 1
		default:
			return 0
		}
	})}
}

func (h *entryHeap) push(e *entry) { h.Heap.Push(e) }

func (h *entryHeap) pop() (*entry, bool) {
	v, ok := h.Heap.Pop()
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (h *entryHeap) size() int { return h.Heap.Size() }
