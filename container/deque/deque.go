// Package deque is an intrusive doubly-linked deque over a slot arena:
// push_front, push_back, pop_front, pop_back and remove(id) are all O(1),
// and the nodes live in a Slab that multiple independent Deques may share
// (spec.md §4.3: "used by the task pool's per-queue lists").
//
// Grounded on slot_deque/src/lib.rs (original_source): Deque itself is just
// a (head, tail) pair of ids; node storage and prev/next linkage are kept
// in a separate slab so several deques can be backed by one arena. The
// slab here is idfactory.Factory itself (C1) rather than a bespoke
// generational map — idfactory already provides exactly the stable,
// O(1)-addressable slots a linked node needs, so no second allocator is
// introduced.
package deque

import "github.com/arcspan/corekit/idfactory"

// linkedPayload is the per-node storage: the element plus its neighbors.
// idfactory's class parameter is unused here (struct{}); everything a node
// needs lives in its user value.
type linkedPayload[T any] struct {
	elem T
	prev idfactory.Id
	next idfactory.Id
}

// Slab is shared node storage for one or more Deques.
type Slab[T any] struct {
	factory *idfactory.Factory[struct{}, linkedPayload[T]]
}

// NewSlab creates an empty node arena.
func NewSlab[T any](opts ...idfactory.Option[struct{}, linkedPayload[T]]) *Slab[T] {
	return &Slab[T]{factory: idfactory.New[struct{}, linkedPayload[T]](opts...)}
}

func (s *Slab[T]) alloc(elem T, prev, next idfactory.Id) idfactory.Id {
	return s.factory.Alloc(struct{}{}, linkedPayload[T]{elem: elem, prev: prev, next: next})
}

func (s *Slab[T]) get(id idfactory.Id) (linkedPayload[T], bool) {
	e, ok := s.factory.Get(id)
	if !ok {
		return linkedPayload[T]{}, false
	}
	return e.User, true
}

func (s *Slab[T]) setPrev(id idfactory.Id, prev idfactory.Id) {
	e, ok := s.factory.Get(id)
	if !ok {
		return
	}
	e.User.prev = prev
	s.factory.SetUser(id, e.User)
}

func (s *Slab[T]) setNext(id idfactory.Id, next idfactory.Id) {
	e, ok := s.factory.Get(id)
	if !ok {
		return
	}
	e.User.next = next
	s.factory.SetUser(id, e.User)
}

func (s *Slab[T]) free(id idfactory.Id) {
	s.factory.Free(id)
}

// Deque is a doubly-linked list of node ids, backed by a Slab. The zero
// Deque is empty and ready to use.
type Deque[T any] struct {
	head  idfactory.Id
	tail  idfactory.Id
	count int
}

// New creates an empty Deque.
func New[T any]() *Deque[T] {
	return &Deque[T]{}
}

// Len returns the number of elements currently in the deque.
func (d *Deque[T]) Len() int { return d.count }

// Head returns the id of the first element, or the zero Id if empty.
func (d *Deque[T]) Head() idfactory.Id { return d.head }

// Tail returns the id of the last element, or the zero Id if empty.
func (d *Deque[T]) Tail() idfactory.Id { return d.tail }

// PushBack appends elem and returns its id.
func (d *Deque[T]) PushBack(elem T, slab *Slab[T]) idfactory.Id {
	if d.tail.IsNull() {
		id := slab.alloc(elem, idfactory.Id(0), idfactory.Id(0))
		d.head = id
		d.tail = id
		d.count++
		return id
	}
	id := slab.alloc(elem, d.tail, idfactory.Id(0))
	slab.setNext(d.tail, id)
	d.tail = id
	d.count++
	return id
}

// PushFront prepends elem and returns its id.
func (d *Deque[T]) PushFront(elem T, slab *Slab[T]) idfactory.Id {
	if d.head.IsNull() {
		id := slab.alloc(elem, idfactory.Id(0), idfactory.Id(0))
		d.head = id
		d.tail = id
		d.count++
		return id
	}
	id := slab.alloc(elem, idfactory.Id(0), d.head)
	slab.setPrev(d.head, id)
	d.head = id
	d.count++
	return id
}

// PeekFront returns the first element without removing it, or ok=false if
// empty.
func (d *Deque[T]) PeekFront(slab *Slab[T]) (elem T, ok bool) {
	node, found := slab.get(d.head)
	if !found {
		return elem, false
	}
	return node.elem, true
}

// PopBack removes and returns the last element, or ok=false if empty.
func (d *Deque[T]) PopBack(slab *Slab[T]) (elem T, ok bool) {
	node, found := slab.get(d.tail)
	if !found {
		return elem, false
	}
	slab.free(d.tail)
	d.tail = node.prev
	if d.tail.IsNull() {
		d.head = idfactory.Id(0)
	} else {
		slab.setNext(d.tail, idfactory.Id(0))
	}
	d.count--
	return node.elem, true
}

// PopFront removes and returns the first element, or ok=false if empty.
func (d *Deque[T]) PopFront(slab *Slab[T]) (elem T, ok bool) {
	node, found := slab.get(d.head)
	if !found {
		return elem, false
	}
	slab.free(d.head)
	d.head = node.next
	if d.head.IsNull() {
		d.tail = idfactory.Id(0)
	} else {
		slab.setPrev(d.head, idfactory.Id(0))
	}
	d.count--
	return node.elem, true
}

// Remove deletes the element at id from the deque, wherever it sits, and
// returns it. Reports ok=false if id is not currently in this deque's slab.
func (d *Deque[T]) Remove(id idfactory.Id, slab *Slab[T]) (elem T, ok bool) {
	node, found := slab.get(id)
	if !found {
		return elem, false
	}
	slab.free(id)
	d.repair(node.prev, node.next, slab)
	d.count--
	return node.elem, true
}

// repair relinks the neighbors of a just-removed node, fixing head/tail as
// needed.
func (d *Deque[T]) repair(prev, next idfactory.Id, slab *Slab[T]) {
	switch {
	case prev.IsNull() && next.IsNull():
		d.head = idfactory.Id(0)
		d.tail = idfactory.Id(0)
	case prev.IsNull():
		slab.setPrev(next, idfactory.Id(0))
		d.head = next
	case next.IsNull():
		slab.setNext(prev, idfactory.Id(0))
		d.tail = prev
	default:
		slab.setNext(prev, next)
		slab.setPrev(next, prev)
	}
}

// Clear removes every element from the deque, freeing each node's slot.
func (d *Deque[T]) Clear(slab *Slab[T]) {
	for !d.head.IsNull() {
		node, ok := slab.get(d.head)
		if !ok {
			break
		}
		slab.free(d.head)
		d.head = node.next
	}
	d.tail = idfactory.Id(0)
	d.count = 0
}

// Each calls fn for every element from head to tail, in order. fn must not
// mutate the deque.
func (d *Deque[T]) Each(slab *Slab[T], fn func(id idfactory.Id, elem T)) {
	cur := d.head
	for !cur.IsNull() {
		node, ok := slab.get(cur)
		if !ok {
			return
		}
		fn(cur, node.elem)
		cur = node.next
	}
}
