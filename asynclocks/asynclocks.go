// Package asynclocks provides the synchronization primitives spec.md §4.8
// names: a poll-based AsyncMutex and AsyncRwLock sized for use from a
// runtime.PollFunc body, a synchronous SpinLock for short, non-suspending
// critical sections, and MPSC/MPMC/steal-deque queues over a shared node
// slab.
//
// Grounded on the standard library's own sync.Mutex (vendored, with
// comments, in erlangtui-go1.17.13/src/sync/mutex.go): its starvation mode
// hands lock ownership directly from the unlocking goroutine to the
// front-of-queue waiter rather than releasing it back to open contention —
// that is exactly spec.md §4.8's "hand-off semantics", re-expressed here
// for a poll-based waiter instead of a blocked goroutine. The exponential
// backoff-then-park shape (mutexLocked fast path, runtime_canSpin/
// runtime_doSpin before falling back to a real wait) is the same shape
// AsyncMutex.Poll and SpinLock.Lock use, swapping the OS-level spin
// primitive for a plain bounded busy loop since this package has no access
// to the Go runtime's internal spin heuristics. The work-stealing deque
// (owner LIFO at one end, thief FIFO at the other) is grounded on
// other_examples' ual worksteal.go (WSDeque: "Owner pushes/pops from
// bottom (LIFO), thieves steal from top (FIFO)"), adapted here onto the
// already-grounded container/deque rather than a ring buffer. SpinLock and
// AsyncMutex are padded with golang.org/x/sys/cpu.CacheLinePad on both
// sides, the same false-sharing guard the teacher's eventloop/state.go
// FastState hand-rolls with raw byte arrays (and whose size the teacher's
// own align_test.go/sizeof_test.go check against cpu.CacheLinePad itself).
package asynclocks

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/arcspan/corekit/container/deque"
	asyncrt "github.com/arcspan/corekit/runtime"
)

// spinCap is the bounded geometric-backoff ceiling spec.md §4.8 names for
// both AsyncMutex's pre-park spin and SpinLock's pause loop.
const spinCap = 1 << 10

func spin(iter int) {
	n := 1
	for i := 0; i < iter && i < 10; i++ {
		n *= 2
	}
	if n > spinCap {
		n = spinCap
	}
	for i := 0; i < n; i++ {
		// busy-wait; no OS-level pause instruction available from pure Go,
		// so this is a plain bounded spin rather than runtime_doSpin.
	}
}

// AsyncMutex is a non-reentrant mutual-exclusion lock polled from within a
// runtime.PollFunc body rather than blocked on. Guards must be released
// from the same task that acquired them (spec.md §5 "Locking discipline").
type AsyncMutex struct {
	_          cpu.CacheLinePad // isolates this instance from neighbors packed in a slice/array
	mu         sync.Mutex
	locked     bool
	handoff    asyncrt.TaskId // non-null: the specific waiter Unlock handed the lock to
	waiters    *deque.Deque[asyncrt.Waker]
	waiterSlab *deque.Slab[asyncrt.Waker]
	_          cpu.CacheLinePad
}

// NewAsyncMutex creates an unlocked AsyncMutex.
func NewAsyncMutex() *AsyncMutex {
	return &AsyncMutex{
		waiters:    deque.New[asyncrt.Waker](),
		waiterSlab: deque.NewSlab[asyncrt.Waker](),
	}
}

// Poll attempts to acquire the lock on behalf of w's task. Returns true if
// acquired; otherwise the caller's poll function must itself return
// not-ready, having been arranged (by this call) to be woken once the lock
// is handed to it.
func (m *AsyncMutex) Poll(w asyncrt.Waker) bool {
	m.mu.Lock()
	if !m.handoff.IsNull() && m.handoff == w.TaskID() {
		m.handoff = 0
		m.mu.Unlock()
		return true
	}
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	for iter := 0; iter < 10; iter++ {
		spin(iter)
		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return true
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.waiters.PushBack(w, m.waiterSlab)
	m.mu.Unlock()
	return false
}

// Unlock releases the lock. If a waiter is queued, ownership is handed off
// directly to it (the lock stays logically held; only that waiter's next
// Poll call will succeed) rather than released back to open contention,
// matching spec.md §4.8's hand-off guarantee.
func (m *AsyncMutex) Unlock() {
	m.mu.Lock()
	w, ok := m.waiters.PopFront(m.waiterSlab)
	if !ok {
		m.locked = false
		m.mu.Unlock()
		return
	}
	m.handoff = w.TaskID()
	m.mu.Unlock()
	w.Wake()
}

// AsyncRwLock is a multiple-reader/single-writer lock with writer
// preference: once a writer is waiting, new readers queue behind it rather
// than continuing to acquire, so writers are never starved by a steady
// stream of readers (spec.md §4.8).
type AsyncRwLock struct {
	mu sync.Mutex

	readers       int
	writerActive  bool
	writersWaiting int

	handoffWrite asyncrt.TaskId
	handoffRead  map[asyncrt.TaskId]bool

	readWaiters  *deque.Deque[asyncrt.Waker]
	writeWaiters *deque.Deque[asyncrt.Waker]
	slab         *deque.Slab[asyncrt.Waker]
}

// NewAsyncRwLock creates an unlocked AsyncRwLock.
func NewAsyncRwLock() *AsyncRwLock {
	return &AsyncRwLock{
		handoffRead:  make(map[asyncrt.TaskId]bool),
		readWaiters:  deque.New[asyncrt.Waker](),
		writeWaiters: deque.New[asyncrt.Waker](),
		slab:         deque.NewSlab[asyncrt.Waker](),
	}
}

// PollRead attempts to acquire a read lock for w's task. New readers are
// refused (and queued) whenever a writer is active or waiting.
func (l *AsyncRwLock) PollRead(w asyncrt.Waker) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handoffRead[w.TaskID()] {
		delete(l.handoffRead, w.TaskID())
		l.readers++
		return true
	}
	if !l.writerActive && l.writersWaiting == 0 {
		l.readers++
		return true
	}
	l.readWaiters.PushBack(w, l.slab)
	return false
}

// PollWrite attempts to acquire the write lock for w's task.
func (l *AsyncRwLock) PollWrite(w asyncrt.Waker) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handoffWrite == w.TaskID() && !l.handoffWrite.IsNull() {
		l.handoffWrite = 0
		l.writerActive = true
		l.writersWaiting--
		return true
	}
	if !l.writerActive && l.readers == 0 && l.writersWaiting == 0 {
		l.writerActive = true
		return true
	}
	l.writersWaiting++
	l.writeWaiters.PushBack(w, l.slab)
	return false
}

// UnlockRead releases one read lock. If this was the last active reader,
// the next waiter (a writer, given preference, else every waiting reader)
// is handed off.
func (l *AsyncRwLock) UnlockRead() {
	l.mu.Lock()
	l.readers--
	var wake wakeSet
	if l.readers == 0 {
		wake = l.popNextLocked()
	}
	l.mu.Unlock()
	wake.run()
}

// UnlockWrite releases the write lock and hands it off to the next waiter.
func (l *AsyncRwLock) UnlockWrite() {
	l.mu.Lock()
	l.writerActive = false
	wake := l.popNextLocked()
	l.mu.Unlock()
	wake.run()
}

type wakeSet struct {
	writer    asyncrt.Waker
	hasWriter bool
	readers   []asyncrt.Waker
}

func (s wakeSet) run() {
	if s.hasWriter {
		s.writer.Wake()
	}
	for _, w := range s.readers {
		w.Wake()
	}
}

// popNextLocked decides who gets the lock next: a single waiting writer
// (preferred), or, if none, every currently waiting reader released at
// once. Caller must hold l.mu.
func (l *AsyncRwLock) popNextLocked() wakeSet {
	if w, ok := l.writeWaiters.PopFront(l.slab); ok {
		l.handoffWrite = w.TaskID()
		return wakeSet{writer: w, hasWriter: true}
	}

	var out []asyncrt.Waker
	for {
		w, ok := l.readWaiters.PopFront(l.slab)
		if !ok {
			break
		}
		l.handoffRead[w.TaskID()] = true
		out = append(out, w)
	}
	return wakeSet{readers: out}
}

// SpinLock is a synchronous, non-suspending lock: Lock busy-waits with a
// geometric backoff capped at 1<<10 iterations between CAS attempts. Not
// meant to be held across a task suspension point (spec.md §4.8
// "SpinLock").
type SpinLock struct {
	_      cpu.CacheLinePad // a SpinLock packed next to other hot fields must not false-share
	locked atomic.Bool
	_      cpu.CacheLinePad
}

// Lock blocks the calling goroutine until the lock is acquired.
func (s *SpinLock) Lock() {
	iter := 0
	for !s.locked.CompareAndSwap(false, true) {
		spin(iter)
		iter++
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *SpinLock) TryLock() bool {
	return s.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock.
func (s *SpinLock) Unlock() {
	s.locked.Store(false)
}
