package asynclocks

import (
	"sync"

	"github.com/arcspan/corekit/container/deque"
	asyncrt "github.com/arcspan/corekit/runtime"
)

// MPSC is a multi-producer, single-consumer unbounded queue: any number of
// goroutines may Push; only one consumer task polls it at a time. Push
// wakes the consumer's stashed waker, if one is currently parked (spec.md
// §4.8 "consumers hand-off wakers to producers as needed" — read here as:
// the consumer hands its waker to the queue so a producer can hand it back
// a wakeup).
type MPSC[T any] struct {
	mu            sync.Mutex
	dq            *deque.Deque[T]
	slab          *deque.Slab[T]
	consumer      asyncrt.Waker
	hasConsumer   bool
}

// NewMPSC creates an empty MPSC queue.
func NewMPSC[T any]() *MPSC[T] {
	return &MPSC[T]{dq: deque.New[T](), slab: deque.NewSlab[T]()}
}

// Push enqueues v and wakes the parked consumer, if any.
func (q *MPSC[T]) Push(v T) {
	q.mu.Lock()
	q.dq.PushBack(v, q.slab)
	w := q.consumer
	has := q.hasConsumer
	q.hasConsumer = false
	q.mu.Unlock()
	if has {
		w.Wake()
	}
}

// Poll returns the head element if present; otherwise it parks w as the
// consumer waker and reports not-ready.
func (q *MPSC[T]) Poll(w asyncrt.Waker) (v T, ready bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if elem, ok := q.dq.PopFront(q.slab); ok {
		return elem, true
	}
	q.consumer = w
	q.hasConsumer = true
	return v, false
}

// Len reports the number of queued elements.
func (q *MPSC[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dq.Len()
}

// MPMC is a multi-producer, multi-consumer unbounded queue: any number of
// consumer tasks may be parked simultaneously; each Push wakes at most one
// of them.
type MPMC[T any] struct {
	mu         sync.Mutex
	dq         *deque.Deque[T]
	slab       *deque.Slab[T]
	waiters    *deque.Deque[asyncrt.Waker]
	waiterSlab *deque.Slab[asyncrt.Waker]
}

// NewMPMC creates an empty MPMC queue.
func NewMPMC[T any]() *MPMC[T] {
	return &MPMC[T]{
		dq:         deque.New[T](),
		slab:       deque.NewSlab[T](),
		waiters:    deque.New[asyncrt.Waker](),
		waiterSlab: deque.NewSlab[asyncrt.Waker](),
	}
}

// Push enqueues v and wakes the earliest-parked consumer, if any.
func (q *MPMC[T]) Push(v T) {
	q.mu.Lock()
	q.dq.PushBack(v, q.slab)
	w, ok := q.waiters.PopFront(q.waiterSlab)
	q.mu.Unlock()
	if ok {
		w.Wake()
	}
}

// Poll returns the head element if present; otherwise it parks w among the
// queue's waiters and reports not-ready.
func (q *MPMC[T]) Poll(w asyncrt.Waker) (v T, ready bool) {
	q.mu.Lock()
	if elem, ok := q.dq.PopFront(q.slab); ok {
		q.mu.Unlock()
		return elem, true
	}
	q.waiters.PushBack(w, q.waiterSlab)
	q.mu.Unlock()
	return v, false
}

// Len reports the number of queued elements.
func (q *MPMC[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dq.Len()
}

// StealDeque is a work-stealing deque: the owning worker pushes and pops
// its own end (LIFO, for cache locality on the hot path); any other worker
// may steal from the opposite end (FIFO, so a steal never races the
// owner's most recent push). Grounded on other_examples' ual worksteal.go
// WSDeque ("Owner pushes/pops from bottom (LIFO), thieves steal from top
// (FIFO)"), adapted onto container/deque rather than a ring buffer.
type StealDeque[T any] struct {
	mu   sync.Mutex
	dq   *deque.Deque[T]
	slab *deque.Slab[T]
}

// NewStealDeque creates an empty StealDeque.
func NewStealDeque[T any]() *StealDeque[T] {
	return &StealDeque[T]{dq: deque.New[T](), slab: deque.NewSlab[T]()}
}

// PushOwn adds v to the owner's end.
func (d *StealDeque[T]) PushOwn(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dq.PushBack(v, d.slab)
}

// PopOwn removes from the owner's end (LIFO).
func (d *StealDeque[T]) PopOwn() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dq.PopBack(d.slab)
}

// Steal removes from the opposite end (FIFO), for use by any worker other
// than the owner.
func (d *StealDeque[T]) Steal() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dq.PopFront(d.slab)
}

// Len reports the number of queued elements.
func (d *StealDeque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dq.Len()
}
