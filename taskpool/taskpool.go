// Package taskpool is a heterogeneous scheduling pool over three kinds of
// queues — one dynamic-priority queue selected by weighted random draw, one
// static-priority queue ordered by an explicit priority number, and any
// number of named, individually lockable sync queues — unified behind a
// single Pop that picks at most one task per call according to spec.md
// §4.5's tie-break rules.
//
// Grounded on task_pool/src/enums.rs (original_source)'s QueueType/Task/
// Direction/FreeSign shape (DynSync/StaticSync/DynAsync/StaticAsync, and a
// queue push Direction of Front or Back), combined with the teacher's own
// mutex-guarded-state style (eventloop/loop.go) rather than the Rust's
// slotmap-addressed queue table, since this module already has
// idfactory/container/heap/container/weighttree doing that job.
package taskpool

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/arcspan/corekit/container/deque"
	"github.com/arcspan/corekit/container/heap"
	"github.com/arcspan/corekit/container/weighttree"
	"github.com/arcspan/corekit/corelog"
	"github.com/arcspan/corekit/coreopt"
	"github.com/arcspan/corekit/corerr"
	"github.com/arcspan/corekit/idfactory"
)

// Direction selects which end of a named sync queue a task is pushed to.
type Direction int

const (
	Back Direction = iota
	Front
)

// Source identifies which of the three queue kinds a popped task came from.
type Source int

const (
	SourceNone Source = iota
	SourceSync
	SourceStaticAsync
	SourceDynamicAsync
)

func (s Source) String() string {
	switch s {
	case SourceSync:
		return "sync"
	case SourceStaticAsync:
		return "static_async"
	case SourceDynamicAsync:
		return "dynamic_async"
	default:
		return "none"
	}
}

// lockState is a named sync queue's lock discipline (spec.md §4.5).
type lockState int

const (
	stateUnlocked lockState = iota
	stateLocked
	stateLockedEmpty
)

type syncTask[T any] struct {
	payload  T
	priority int
	seq      uint64
}

type syncQueue[T any] struct {
	name  string
	dq    *deque.Deque[syncTask[T]]
	state lockState
}

type dynEntry[T any] struct {
	payload T
}

type staticEntry[T any] struct {
	payload  T
	priority int
	seq      uint64
}

// Pool is a heterogeneous task scheduler: one weighted-random dynamic-async
// queue, one priority-ordered static-async queue, and a registry of named
// sync queues.
type Pool[T any] struct {
	mu     sync.Mutex
	logger corelog.Logger
	seq    uint64

	// dynPriority is the single "effective priority" representing the
	// entire dynamic-async pool when compared against sync-queue heads and
	// the static-async top, per spec.md §4.5 step 2. The source distilled
	// into spec.md gives weight and priority disjoint meanings (a pool-wide
	// weight vs. a per-task priority number) and never states a conversion
	// rule between them; resolved here (an Open Question decision, see
	// DESIGN.md) by giving the whole dynamic-async tier one configured
	// priority instead of inventing a weight-to-priority formula, so weight
	// only ever governs selection *within* that tier.
	dynPriority int
	dynCapacity int
	dynTree     *weighttree.Tree[dynEntry[T], idfactory.Id]

	staticCapacity int
	staticHeap     *heap.Heap[staticEntry[T], idfactory.Id]

	syncCapacity int
	syncSlab     *deque.Slab[syncTask[T]]
	syncQueues   map[string]*syncQueue[T]
}

// Option configures a Pool.
type Option[T any] = coreopt.Option[Pool[T]]

// WithLogger wires a structured logger for debug-level overload/double-free
// anomalies.
func WithLogger[T any](l corelog.Logger) Option[T] {
	return func(p *Pool[T]) { p.logger = l }
}

// New creates an empty Pool. dynPriority is the dynamic-async tier's
// effective priority (lower is more urgent, matching the static-async
// convention); dynCapacity and staticCapacity bound each async tier's task
// count and syncCapacity bounds each named sync queue's length (0 means
// unbounded).
func New[T any](dynPriority, dynCapacity, staticCapacity, syncCapacity int, opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		logger:         corelog.NoOp{},
		dynPriority:    dynPriority,
		dynCapacity:    dynCapacity,
		dynTree:        weighttree.New[dynEntry[T], idfactory.Id](),
		staticCapacity: staticCapacity,
		staticHeap:     heap.New[staticEntry[T], idfactory.Id](staticLess[T]),
		syncCapacity:   syncCapacity,
		syncSlab:       deque.NewSlab[syncTask[T]](),
		syncQueues:     make(map[string]*syncQueue[T]),
	}
	coreopt.Apply(p, opts...)
	return p
}

func staticLess[T any](a, b staticEntry[T]) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	// Tie-break by insertion order: spec.md §9 Open Questions, "assume
	// insertion order as above".
	return a.seq < b.seq
}

// SyncQueueNames returns every registered sync queue's name, sorted, for
// observability (spec.md §6: "the task pool exposes named sync queues").
func (p *Pool[T]) SyncQueueNames() []string {
	p.mu.Lock()
	names := maps.Keys(p.syncQueues)
	p.mu.Unlock()
	slices.Sort(names)
	return names
}

// RegisterSyncQueue creates a named sync queue, initially unlocked and
// empty. A no-op if the name is already registered.
func (p *Pool[T]) RegisterSyncQueue(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.syncQueues[name]; ok {
		return
	}
	p.syncQueues[name] = &syncQueue[T]{name: name, dq: deque.New[syncTask[T]]()}
}

// PushDynamic enqueues payload with the given weight into the dynamic-async
// pool. Weighted-random Pop selection is proportional to weight,
// independent of insertion order (spec.md §4.5 "Fairness").
func (p *Pool[T]) PushDynamic(payload T, weight uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dynCapacity > 0 && p.dynTree.Len() >= p.dynCapacity {
		return corerr.New(corerr.KindCapacityExceeded, "taskpool.push_dynamic", nil)
	}
	p.dynTree.Push(dynEntry[T]{payload: payload}, weight, idfactory.Id(0), nil)
	return nil
}

// PushStatic enqueues payload with the given priority (lower is more
// urgent) into the static-async heap.
func (p *Pool[T]) PushStatic(payload T, priority int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.staticCapacity > 0 && p.staticHeap.Len() >= p.staticCapacity {
		return corerr.New(corerr.KindCapacityExceeded, "taskpool.push_static", nil)
	}
	p.seq++
	p.staticHeap.Push(staticEntry[T]{payload: payload, priority: priority, seq: p.seq}, idfactory.Id(0), nil)
	return nil
}

// PushSync enqueues payload with the given priority into the named sync
// queue, at dir's end. Pushing into a LockedEmpty queue resumes it with the
// new task without changing lock ownership (spec.md §4.5 "Lock
// discipline"). The queue must already exist (see RegisterSyncQueue).
func (p *Pool[T]) PushSync(name string, payload T, priority int, dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.syncQueues[name]
	if !ok {
		return corerr.New(corerr.KindQueueShutdown, "taskpool.push_sync", nil)
	}
	if p.syncCapacity > 0 && q.dq.Len() >= p.syncCapacity {
		return corerr.New(corerr.KindCapacityExceeded, "taskpool.push_sync", nil)
	}

	p.seq++
	task := syncTask[T]{payload: payload, priority: priority, seq: p.seq}
	if dir == Front {
		q.dq.PushFront(task, p.syncSlab)
	} else {
		q.dq.PushBack(task, p.syncSlab)
	}
	if q.state == stateLockedEmpty {
		q.state = stateLocked
	}
	return nil
}

// Pop returns at most one task, chosen per spec.md §4.5's tie-break rules:
// an unlocked sync queue whose head priority is at least as urgent as the
// best async candidate wins (earliest-inserted head across qualifying
// queues), locking that queue; otherwise the static-async top wins if it
// beats the dynamic-async tier's effective priority, else a weighted-random
// draw from the dynamic-async pool. Callers that receive source==SourceSync
// must call Free(name) exactly once after handling the task.
func (p *Pool[T]) Pop(randOffset uint64) (payload T, source Source, queueName string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bestAsyncPriority, haveAsync := p.bestAsyncPriorityLocked()

	if q, task, found := p.bestSyncCandidateLocked(bestAsyncPriority, haveAsync); found {
		return task.payload, SourceSync, q.name, true
	}

	if top, _, found := p.staticHeap.Peek(); found && (p.dynTree.Len() == 0 || top.priority <= p.dynPriority) {
		p.staticHeap.Pop(nil)
		return top.payload, SourceStaticAsync, "", true
	}

	if p.dynTree.Len() > 0 {
		total := p.dynTree.TotalWeight()
		if total > 0 {
			offset := randOffset % total
			elem, _, _, popped := p.dynTree.PopByWeight(offset, nil)
			if popped {
				return elem.payload, SourceDynamicAsync, "", true
			}
		}
	}

	return payload, SourceNone, "", false
}

// bestAsyncPriorityLocked reports the more urgent of the static-async top's
// priority and the dynamic-async tier's configured effective priority,
// i.e. the "best async candidate" spec.md §4.5 step 1 compares sync heads
// against. Returns ok=false only if both async pools are empty.
func (p *Pool[T]) bestAsyncPriorityLocked() (priority int, ok bool) {
	staticTop, _, staticOK := p.staticHeap.Peek()
	dynOK := p.dynTree.Len() > 0

	switch {
	case staticOK && dynOK:
		if staticTop.priority <= p.dynPriority {
			return staticTop.priority, true
		}
		return p.dynPriority, true
	case staticOK:
		return staticTop.priority, true
	case dynOK:
		return p.dynPriority, true
	default:
		return 0, false
	}
}

// bestSyncCandidateLocked scans every unlocked, non-empty sync queue,
// considering each one's head task, and returns the earliest-inserted head
// among those whose priority is at least as urgent (numerically <=) as
// bestAsyncPriority. If no async candidate exists, every unlocked
// non-empty queue's head qualifies.
func (p *Pool[T]) bestSyncCandidateLocked(bestAsyncPriority int, haveAsync bool) (*syncQueue[T], syncTask[T], bool) {
	var winner *syncQueue[T]
	var winnerTask syncTask[T]
	found := false

	for _, q := range p.syncQueues {
		if q.state != stateUnlocked {
			continue
		}
		head, ok := q.dq.PeekFront(p.syncSlab)
		if !ok {
			continue
		}
		if haveAsync && head.priority > bestAsyncPriority {
			continue
		}
		if !found || head.seq < winnerTask.seq {
			winner = q
			winnerTask = head
			found = true
		}
	}

	if !found {
		return nil, syncTask[T]{}, false
	}

	popped, popOK := winner.dq.PopFront(p.syncSlab)
	if !popOK {
		return nil, syncTask[T]{}, false
	}
	if winner.dq.Len() == 0 {
		winner.state = stateLockedEmpty
	} else {
		winner.state = stateLocked
	}
	return winner, popped, true
}

// Free releases the lock held on name by a prior Pop that returned
// source==SourceSync. A queue locked empty by that pop (no intervening
// push) returns to Unlocked; one resumed by a push (already transitioned to
// Locked) also returns to Unlocked, ready for its next head to be
// considered. Freeing a queue that is not currently locked is a
// programmer error (spec.md §4.5: "double-free is an error").
func (p *Pool[T]) Free(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.syncQueues[name]
	if !ok {
		return corerr.New(corerr.KindDoubleFree, "taskpool.free", nil)
	}
	if q.state == stateUnlocked {
		p.logDoubleFree(name)
		return corerr.New(corerr.KindDoubleFree, "taskpool.free", nil)
	}
	q.state = stateUnlocked
	return nil
}

func (p *Pool[T]) logDoubleFree(name string) {
	if !p.logger.IsEnabled(corelog.LevelWarn) {
		return
	}
	p.logger.Log(corelog.Entry{
		Level:     corelog.LevelWarn,
		Component: "taskpool",
		Op:        "free",
		Message:   "double free of sync queue lock",
		Context:   map[string]any{"queue": name},
	})
}
