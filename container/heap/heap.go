// Package heap is an index-maintaining binary heap: on every sift-up/
// sift-down swap it calls back into a Locator so external indices (held by
// an idfactory.Factory handle) stay valid for O(1) cancellation.
//
// Grounded on deletable_heap/src/lib.rs (original_source) and
// heap/src/heap.rs / heap/src/slab_heap.rs: the Rust's HeapAction trait
// calls set_index(slotmap, arr, loc) after every element relocation, a
// pattern container/heap's stdlib interface doesn't expose directly (its
// Swap method has no natural hook for "which ids moved where" beyond the
// two indices given), so this is a small hand-rolled index-aware heap
// rather than sort.Interface/heap.Interface, matching the Rust's own
// departure from a plain binary-heap library for the same reason.
package heap

// Less reports whether a should be closer to the root than b. Pass a
// less-than comparator for a min-heap, or a greater-than comparator for a
// max-heap (spec.md §4.3: "min or max, chosen at construction").
type Less[T any] func(a, b T) bool

// Locator receives the new external slot/index for id whenever the heap
// moves it. idfactory.Factory.SetSlot satisfies this with ID=idfactory.Id.
type Locator[ID any] interface {
	SetSlot(id ID, location uint64)
}

type node[T any, ID any] struct {
	elem T
	id   ID
}

// Heap is a binary heap over (elem, id) pairs ordered by less.
type Heap[T any, ID any] struct {
	less  Less[T]
	nodes []node[T, ID]
}

// New creates an empty Heap using the given ordering.
func New[T any, ID any](less Less[T]) *Heap[T, ID] {
	return &Heap[T, ID]{less: less}
}

// Len returns the number of elements in the heap.
func (h *Heap[T, ID]) Len() int { return len(h.nodes) }

// Peek returns the root element without removing it.
func (h *Heap[T, ID]) Peek() (elem T, id ID, ok bool) {
	if len(h.nodes) == 0 {
		return elem, id, false
	}
	return h.nodes[0].elem, h.nodes[0].id, true
}

func (h *Heap[T, ID]) swap(loc Locator[ID], i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	if loc != nil {
		loc.SetSlot(h.nodes[i].id, uint64(i))
		loc.SetSlot(h.nodes[j].id, uint64(j))
	}
}

func (h *Heap[T, ID]) siftUp(loc Locator[ID], i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.nodes[i].elem, h.nodes[parent].elem) {
			break
		}
		h.swap(loc, i, parent)
		i = parent
	}
}

func (h *Heap[T, ID]) siftDown(loc Locator[ID], i int) {
	n := len(h.nodes)
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i
		if left < n && h.less(h.nodes[left].elem, h.nodes[smallest].elem) {
			smallest = left
		}
		if right < n && h.less(h.nodes[right].elem, h.nodes[smallest].elem) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(loc, i, smallest)
		i = smallest
	}
}

// Push inserts elem/id and restores the heap invariant, notifying loc of
// every index that changes (including elem's own final resting index).
func (h *Heap[T, ID]) Push(elem T, id ID, loc Locator[ID]) {
	h.nodes = append(h.nodes, node[T, ID]{elem: elem, id: id})
	i := len(h.nodes) - 1
	if loc != nil {
		loc.SetSlot(id, uint64(i))
	}
	h.siftUp(loc, i)
}

// Pop removes and returns the root element.
func (h *Heap[T, ID]) Pop(loc Locator[ID]) (elem T, id ID, ok bool) {
	n := len(h.nodes)
	if n == 0 {
		return elem, id, false
	}
	return h.Delete(0, loc)
}

// Delete removes and returns the element at heap index i, restoring the
// invariant. index must be in [0, Len()).
func (h *Heap[T, ID]) Delete(index int, loc Locator[ID]) (elem T, id ID, ok bool) {
	n := len(h.nodes)
	if index < 0 || index >= n {
		return elem, id, false
	}
	removed := h.nodes[index]
	last := n - 1
	if index != last {
		h.nodes[index] = h.nodes[last]
		h.nodes = h.nodes[:last]
		if loc != nil {
			loc.SetSlot(h.nodes[index].id, uint64(index))
		}
		// The moved-in element may need to go either way.
		h.siftDown(loc, index)
		h.siftUp(loc, index)
	} else {
		h.nodes = h.nodes[:last]
	}
	return removed.elem, removed.id, true
}
