// Package weighttree is a weighted-random selection tree: a complete binary
// tree kept in array form, ordered as a max-heap on each node's own weight,
// with every node additionally carrying the sum of its own weight and both
// subtrees' weights ("amount" in the original, "subtree sum" in spec
// terms). PopByWeight descends that subtree-sum structure to pick the
// element covering a given weight offset in O(log n), giving O(log n)
// weighted-random sampling when the caller draws offset uniformly from
// [0, TotalWeight()).
//
// Grounded on wtree/src/fast_wtree.rs (original_source): same sift-by-weight
// push/down/find/delete shape. The Rust tracks each swap's effect on
// "amount" incrementally via unsafe pointer tricks (transmute_copy, raw
// copy_to) to avoid recomputing sums from scratch; this port instead
// recomputes a node's amount directly from its two children whenever it
// changes position or weight, then walks that fix up to the root. Same
// complexity class, no unsafe code, and every step is independently
// checkable against the invariant amount == weight + left.amount +
// right.amount.
package weighttree

// Locator receives the new external slot/index for id whenever the tree
// moves it, mirroring container/heap.Locator.
type Locator[ID any] interface {
	SetSlot(id ID, location uint64)
}

type node[T any, ID any] struct {
	elem   T
	id     ID
	weight uint64
	amount uint64
}

// Tree is a weighted-random selection tree over (elem, weight, id) triples.
type Tree[T any, ID any] struct {
	nodes []node[T, ID]
}

// New creates an empty Tree.
func New[T any, ID any]() *Tree[T, ID] {
	return &Tree[T, ID]{}
}

// Len returns the number of elements in the tree.
func (t *Tree[T, ID]) Len() int { return len(t.nodes) }

// TotalWeight returns the sum of every element's weight, i.e. the root's
// amount. Callers drawing a weighted-random sample should pick an offset
// uniformly from [0, TotalWeight()).
func (t *Tree[T, ID]) TotalWeight() uint64 {
	if len(t.nodes) == 0 {
		return 0
	}
	return t.nodes[0].amount
}

// Peek returns the root element (the one with the greatest weight) without
// removing it.
func (t *Tree[T, ID]) Peek() (elem T, weight uint64, id ID, ok bool) {
	if len(t.nodes) == 0 {
		return elem, weight, id, false
	}
	n := t.nodes[0]
	return n.elem, n.weight, n.id, true
}

func (t *Tree[T, ID]) amountAt(i int) uint64 {
	if i < 0 || i >= len(t.nodes) {
		return 0
	}
	return t.nodes[i].amount
}

// recomputeAmount sets nodes[i].amount from its current weight and its
// children's current amounts. Requires the children's amounts to already be
// correct.
func (t *Tree[T, ID]) recomputeAmount(i int) {
	left := 2*i + 1
	right := left + 1
	t.nodes[i].amount = t.nodes[i].weight + t.amountAt(left) + t.amountAt(right)
}

// fixupFrom recomputes amounts from i up to the root, inclusive.
func (t *Tree[T, ID]) fixupFrom(i int) {
	for i >= 0 {
		t.recomputeAmount(i)
		if i == 0 {
			return
		}
		i = (i - 1) / 2
	}
}

func (t *Tree[T, ID]) swap(loc Locator[ID], i, j int) {
	t.nodes[i], t.nodes[j] = t.nodes[j], t.nodes[i]
	if loc != nil {
		loc.SetSlot(t.nodes[i].id, uint64(i))
		loc.SetSlot(t.nodes[j].id, uint64(j))
	}
}

// up sifts the element at cur upward while it outweighs its parent, then
// fixes every amount on the path from cur's starting index to the root
// (which covers every position a swap touched).
func (t *Tree[T, ID]) up(cur int, loc Locator[ID]) {
	start := cur
	for cur > 0 {
		parent := (cur - 1) / 2
		if t.nodes[cur].weight <= t.nodes[parent].weight {
			break
		}
		t.swap(loc, cur, parent)
		cur = parent
	}
	t.fixupFrom(start)
}

// down sifts the element at cur downward while a child outweighs it
// (ties favor the left child, matching fast_wtree.rs's "right only if
// strictly greater"), then fixes amounts on the settled path.
func (t *Tree[T, ID]) down(cur int, loc Locator[ID]) {
	n := len(t.nodes)
	for {
		left := 2*cur + 1
		if left >= n {
			break
		}
		right := left + 1
		child := left
		if right < n && t.nodes[right].weight > t.nodes[left].weight {
			child = right
		}
		if t.nodes[cur].weight >= t.nodes[child].weight {
			break
		}
		t.swap(loc, cur, child)
		cur = child
	}
	t.fixupFrom(cur)
}

// Push inserts elem with the given weight and restores the weight-heap
// property, notifying loc of every index that changes.
func (t *Tree[T, ID]) Push(elem T, weight uint64, id ID, loc Locator[ID]) {
	t.nodes = append(t.nodes, node[T, ID]{elem: elem, id: id, weight: weight, amount: weight})
	i := len(t.nodes) - 1
	if loc != nil {
		loc.SetSlot(id, uint64(i))
	}
	t.up(i, loc)
}

// find descends from cur, choosing the element whose weight interval
// covers the given offset: a node's own weight covers [0, weight); its left
// subtree then covers the next left.amount worth of offsets, and the right
// subtree the remainder. Requires weight < amountAt(cur).
func (t *Tree[T, ID]) find(weight uint64, cur int) int {
	w := t.nodes[cur].weight
	if weight < w {
		return cur
	}
	weight -= w
	left := 2*cur + 1
	if t.amountAt(left) <= weight {
		weight -= t.amountAt(left)
		return t.find(weight, left+1)
	}
	return t.find(weight, left)
}

// UpdateWeight changes the weight of the element at heap index index and
// restores the weight-heap property. index must be in [0, Len()).
func (t *Tree[T, ID]) UpdateWeight(index int, newWeight uint64, loc Locator[ID]) bool {
	if index < 0 || index >= len(t.nodes) {
		return false
	}
	old := t.nodes[index].weight
	t.nodes[index].weight = newWeight
	switch {
	case newWeight > old:
		t.up(index, loc)
	case newWeight < old:
		t.down(index, loc)
	default:
		t.fixupFrom(index)
	}
	return true
}

// Delete removes and returns the element at heap index index, restoring
// both the weight-heap property and every ancestor's amount. index must be
// in [0, Len()).
func (t *Tree[T, ID]) Delete(index int, loc Locator[ID]) (elem T, weight uint64, id ID, ok bool) {
	n := len(t.nodes)
	if index < 0 || index >= n {
		return elem, weight, id, false
	}
	removed := t.nodes[index]
	last := n - 1
	if index != last {
		t.nodes[index] = t.nodes[last]
		t.nodes = t.nodes[:last]
		if loc != nil {
			loc.SetSlot(t.nodes[index].id, uint64(index))
		}
		// The vacated last slot's ancestors still count the moved node.
		t.fixupFrom((last - 1) / 2)
		t.down(index, loc)
		t.up(index, loc)
	} else {
		t.nodes = t.nodes[:last]
		if index > 0 {
			t.fixupFrom((index - 1) / 2)
		}
	}
	return removed.elem, removed.weight, removed.id, true
}

// PopByWeight removes and returns the element covering offset weight, where
// weight must be drawn from [0, TotalWeight()) for a correctly weighted
// selection. Returns ok=false if the tree is empty or weight is out of
// range.
func (t *Tree[T, ID]) PopByWeight(weight uint64, loc Locator[ID]) (elem T, w uint64, id ID, ok bool) {
	if len(t.nodes) == 0 || weight >= t.nodes[0].amount {
		return elem, w, id, false
	}
	index := t.find(weight, 0)
	return t.Delete(index, loc)
}
