// Package runtime is a single-process, poll-based cooperative task
// scheduler: spawn a task, and the runtime calls its poll function
// repeatedly until it reports completion, never preempting between calls.
// A "multi-thread" Runtime is N such worker loops pulling from one shared
// ready-queue; a "single-thread" Runtime is the N=1 case.
//
// Grounded on spec.md §4.7's re-expression of coroutine control flow as
// explicit task objects: (id, state, waker), where await becomes "save the
// waker, return not-ready" and wakeup becomes "re-enqueue the task id".
// There is no Rust source file to port line-for-line here (pi_lib has no
// async runtime of its own); the mutex-guarded-state and atomic-counter
// idioms follow the teacher's own eventloop/loop.go, and the ready-queue is
// built from this module's own container/deque (C3) and idfactory (C1)
// rather than a new container, per spec.md §9's "arena + index" guidance.
// pollCount, the one hot counter every worker of a multi-thread Runtime
// increments outside the scheduling mutex, is padded with
// golang.org/x/sys/cpu.CacheLinePad the way the teacher's eventloop/state.go
// FastState pads its own lock-free counter against false sharing.
package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/arcspan/corekit/container/deque"
	"github.com/arcspan/corekit/corelog"
	"github.com/arcspan/corekit/coreopt"
	"github.com/arcspan/corekit/corerr"
	"github.com/arcspan/corekit/idfactory"
	"github.com/arcspan/corekit/timerwheel"
)

// TaskId identifies a spawned task, stable across its lifetime.
type TaskId = idfactory.Id

// Waker requeues the task it was handed to when the value or event it is
// waiting on becomes available. The zero Waker is inert: Wake is a no-op.
type Waker struct {
	rt *Runtime
	id TaskId
}

// TaskID returns the task this waker belongs to, for callers (e.g.
// asynclocks) that need to compare waker identity across poll calls.
func (w Waker) TaskID() TaskId { return w.id }

// Wake re-enqueues the waker's task on its home runtime's ready-queue. Safe
// to call from any goroutine, any number of times; calls after the first
// effective one are no-ops.
func (w Waker) Wake() {
	if w.rt == nil {
		return
	}
	w.rt.wakeup(w.id)
}

// PollFunc is one task's body. It is called repeatedly until it returns
// true (done). Each time it returns false, it must have arranged — by
// stashing w somewhere a timer, lock or bridge will find it — for Wake to
// be called later; the runtime will not poll the task again until then.
type PollFunc func(w Waker) bool

type taskRecord struct {
	poll      PollFunc
	cancelled bool
}

// Kind tags which of the two scheduling variants spec.md §4.7 describes a
// Runtime is: a single worker, or N workers sharing one ready-queue.
type Kind int

const (
	KindSingle Kind = iota
	KindMulti
)

func (k Kind) String() string {
	if k == KindMulti {
		return "multi"
	}
	return "single"
}

// Runtime is a cooperative task scheduler with an attached timer wheel for
// wait_timeout and a configurable worker count.
type Runtime struct {
	kind    Kind
	workers int
	logger  corelog.Logger

	mu           sync.Mutex
	tasks        *idfactory.Factory[struct{}, taskRecord]
	ready        *deque.Deque[TaskId]
	readySlab    *deque.Slab[TaskId]
	pendingTable map[TaskId]struct{}

	wheel        *timerwheel.Wheel[Waker]
	tickInterval time.Duration
	lastTick     time.Time

	outstanding []interruptible

	// pollCount is bumped by every worker on every successful pollOne call
	// (spec.md §6 observability), the one piece of state all of a
	// multi-worker Runtime's workers hit concurrently outside r.mu. Padded
	// on both sides so it doesn't false-share a cache line with the
	// mutex-guarded fields around it, the same concern the teacher's
	// eventloop/state.go FastState hand-pads for its own lock-free counter.
	_         cpu.CacheLinePad
	pollCount atomic.Uint64
	_         cpu.CacheLinePad

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// interruptible is implemented by *Bridge[V] for any V: a handle Stop can
// resolve with ErrCrossRuntimeInterrupted without knowing its value type.
type interruptible interface {
	resolveInterrupted()
}

// registerBridge tracks b as outstanding on r: a Wait/WaitAny participant
// whose body runs as a task on r. Stop resolves every still-outstanding
// entry with ErrCrossRuntimeInterrupted.
func (r *Runtime) registerBridge(b interruptible) {
	r.mu.Lock()
	r.outstanding = append(r.outstanding, b)
	r.mu.Unlock()
}

// unregisterBridge drops b from r's outstanding set once its task has
// resolved it through the normal path, so Stop does not re-resolve it.
func (r *Runtime) unregisterBridge(b interruptible) {
	r.mu.Lock()
	for i, x := range r.outstanding {
		if x == b {
			r.outstanding = append(r.outstanding[:i], r.outstanding[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

// Option configures a Runtime.
type Option = coreopt.Option[Runtime]

// WithLogger wires a structured logger for debug-level scheduling anomalies.
func WithLogger(l corelog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithWheelShape sets the timer wheel's (N0, N, L) shape (spec.md §6
// configuration list). Defaults to (64, 64, 3) if never set.
func WithWheelShape(n0, n, l int) Option {
	return func(r *Runtime) { r.wheel = timerwheel.New[Waker](n0, n, l) }
}

// WithTickInterval sets the wall-clock duration one wheel tick represents.
// Defaults to 1ms.
func WithTickInterval(d time.Duration) Option {
	return func(r *Runtime) { r.tickInterval = d }
}

func newRuntime(kind Kind, workers int, opts ...Option) *Runtime {
	if workers < 1 {
		workers = 1
	}
	r := &Runtime{
		kind:         kind,
		workers:      workers,
		logger:       corelog.NoOp{},
		tasks:        idfactory.New[struct{}, taskRecord](),
		ready:        deque.New[TaskId](),
		readySlab:    deque.NewSlab[TaskId](),
		pendingTable: make(map[TaskId]struct{}),
		wheel:        timerwheel.New[Waker](64, 64, 3),
		tickInterval: time.Millisecond,
		stopCh:       make(chan struct{}),
	}
	coreopt.Apply(r, opts...)
	return r
}

// NewSingle creates a single-threaded cooperative Runtime: one worker
// polling its own ready-queue.
func NewSingle(opts ...Option) *Runtime { return newRuntime(KindSingle, 1, opts...) }

// NewMulti creates a Runtime with workers cooperatively-scheduled workers
// sharing one ready-queue.
func NewMulti(workers int, opts ...Option) *Runtime { return newRuntime(KindMulti, workers, opts...) }

// Kind reports whether this is the single- or multi-worker variant.
func (r *Runtime) Kind() Kind { return r.kind }

// Spawn enqueues a new task and returns a handle usable with Cancel.
func (r *Runtime) Spawn(poll PollFunc) TaskId {
	r.mu.Lock()
	id := r.tasks.Alloc(struct{}{}, taskRecord{poll: poll})
	r.enqueueReadyLocked(id)
	r.mu.Unlock()
	return id
}

func (r *Runtime) enqueueReadyLocked(id TaskId) {
	r.ready.PushBack(id, r.readySlab)
}

func (r *Runtime) popReady() (TaskId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready.PopFront(r.readySlab)
}

// Pending records w as the waker to call back when id's task becomes
// runnable again (spec.md §4.7 "pending(task_id)"). Called automatically by
// the poll loop right after a task's poll returns not-ready; exposed so a
// task body that manages its own low-level waker bookkeeping (rather than
// going through a Future-style combinator) can call it directly.
func (r *Runtime) Pending(id TaskId, w Waker) {
	r.mu.Lock()
	r.pendingTable[id] = struct{}{}
	r.mu.Unlock()
	_ = w // the pending table only needs to know id is suspended; Wake
	// already knows its own (rt, id) and doesn't need a stored waker value.
}

// wakeup removes id from the pending table, if present, and re-enqueues it
// (spec.md §4.7 "wakeup(task_id)"). A second call before the task suspends
// again is a no-op: the pending-table entry is already gone.
func (r *Runtime) wakeup(id TaskId) {
	r.mu.Lock()
	_, wasPending := r.pendingTable[id]
	delete(r.pendingTable, id)
	if !r.tasks.Live(id) {
		r.mu.Unlock()
		r.logDebug("wakeup", id, "wakeup of dead or unknown task")
		return
	}
	if wasPending {
		r.enqueueReadyLocked(id)
	}
	r.mu.Unlock()
}

func (r *Runtime) logDebug(op string, id TaskId, msg string) {
	if !r.logger.IsEnabled(corelog.LevelDebug) {
		return
	}
	r.logger.Log(corelog.Entry{
		Level:     corelog.LevelDebug,
		Component: "runtime",
		Op:        op,
		Message:   msg,
		Context:   map[string]any{"task_id": uint64(id)},
	})
}

// Cancel marks id cancelled. A task cancellable only between suspension
// points (spec.md §4.7): if id is currently suspended (in the pending
// table), its waker is dropped without a wakeup and its slot is freed
// immediately; if id is still ready-queued or about to be polled for the
// first time, it is skipped and freed the next time the worker loop reaches
// it. Resources the task's own body holds are its responsibility to release
// — Go has no destructor to call on the runtime's behalf.
func (r *Runtime) Cancel(id TaskId) {
	r.mu.Lock()
	_, wasPending := r.pendingTable[id]
	delete(r.pendingTable, id)
	r.mu.Unlock()

	if wasPending {
		r.tasks.Free(id)
		return
	}
	if e, ok := r.tasks.Get(id); ok {
		e.User.cancelled = true
		r.tasks.SetUser(id, e.User)
	}
}

// WaitTimeout registers w in the timer wheel for delayTicks ticks, for use
// from within a task's own poll function when it wants to suspend until a
// relative deadline (spec.md §4.7 "wait_timeout(ms)": tick count here
// stands in for a millisecond delta already converted via tickInterval).
func (r *Runtime) WaitTimeout(w Waker, delayTicks uint64) error {
	_, err := r.wheel.Push(delayTicks, w)
	return err
}

// Heartbeat advances the runtime's timer wheel by the number of whole
// ticks elapsed since the previous Heartbeat call, waking every waker that
// became due. The first call only records the starting time and advances
// nothing. Drives
// wait_timeout; callers run this from an external ticker at least once per
// tickInterval (spec.md §4.7 "Heartbeat").
func (r *Runtime) Heartbeat(now time.Time) {
	r.mu.Lock()
	if r.lastTick.IsZero() {
		r.lastTick = now
		r.mu.Unlock()
		return
	}
	elapsed := now.Sub(r.lastTick)
	ticks := uint64(elapsed / r.tickInterval)
	if ticks == 0 {
		r.mu.Unlock()
		return
	}
	r.lastTick = r.lastTick.Add(time.Duration(ticks) * r.tickInterval)
	due := r.wheel.Advance(ticks)
	r.mu.Unlock()

	for _, w := range due {
		w.Wake()
	}
}

// pollOne drains and runs at most one ready task. Returns false if the
// ready-queue was empty.
func (r *Runtime) pollOne() bool {
	id, ok := r.popReady()
	if !ok {
		return false
	}
	r.pollCount.Add(1)
	r.pollTask(id)
	return true
}

// PollCount returns the total number of tasks this runtime's workers have
// taken off the ready-queue so far, for observability (spec.md §6). A
// cancelled task that is freed without being polled is counted as well.
func (r *Runtime) PollCount() uint64 { return r.pollCount.Load() }

func (r *Runtime) pollTask(id TaskId) {
	e, ok := r.tasks.Get(id)
	if !ok {
		return
	}
	if e.User.cancelled {
		r.tasks.Free(id)
		return
	}
	w := Waker{rt: r, id: id}
	done := e.User.poll(w)
	if done {
		r.tasks.Free(id)
		return
	}
	r.Pending(id, w)
}

// PollOnce drains and runs at most one ready task, without starting any
// worker goroutines. Lets an embedder drive a single-threaded Runtime from
// its own external loop tick instead of calling Run, the way the teacher's
// own event loop is driven by its caller rather than owning a thread.
func (r *Runtime) PollOnce() bool { return r.pollOne() }

// Run starts the runtime's worker loop(s) and blocks until Stop is called.
// Single-threaded runtimes run one worker; multi-threaded runtimes run
// Runtime's configured worker count, all pulling from the same
// ready-queue, the only synchronization point between them (spec.md §5).
func (r *Runtime) Run() {
	r.wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go r.workerLoop()
	}
	r.wg.Wait()
}

func (r *Runtime) workerLoop() {
	defer r.wg.Done()
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		if r.pollOne() {
			continue
		}
		select {
		case <-r.stopCh:
			return
		case <-idle.C:
		}
	}
}

// Stop signals every worker loop to exit and waits for them to do so, then
// resolves every outstanding Wait/WaitAny bridge spawned on r with
// ErrCrossRuntimeInterrupted (spec.md §8: "if rt_b is torn down, the
// awaiter on rt_a sees CrossRuntimeInterrupted"). A bridge that already
// resolved through its normal completion path is unaffected, since Resolve
// only ever honors the first call.
func (r *Runtime) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	pending := r.outstanding
	r.outstanding = nil
	r.mu.Unlock()
	for _, b := range pending {
		b.resolveInterrupted()
	}
}

// RunHeartbeat starts a background goroutine calling Heartbeat once per
// tickInterval until stopCh is closed.
func (r *Runtime) RunHeartbeat(stopCh <-chan struct{}) {
	ticker := time.NewTicker(r.tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case now := <-ticker.C:
				r.Heartbeat(now)
			}
		}
	}()
}

// Bridge is a one-shot, cross-runtime completion channel: a spawned task
// resolves it exactly once, and any task elsewhere polling it observes the
// value (or error) once set. It is the "bridge channel" spec.md §4.7's
// wait operation suspends on.
type Bridge[V any] struct {
	mu       sync.Mutex
	done     bool
	value    V
	err      error
	waker    Waker
	hasWaker bool
}

// NewBridge creates an unresolved Bridge.
func NewBridge[V any]() *Bridge[V] { return &Bridge[V]{} }

// Resolve sets the bridge's result and wakes whichever task is currently
// polling it, if any. Only the first call has any effect; later calls are
// silently dropped (this is exactly how wait_any discards a loser's result,
// spec.md §4.7 "others' results are dropped").
func (b *Bridge[V]) Resolve(v V, err error) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.value = v
	b.err = err
	w := b.waker
	has := b.hasWaker
	b.mu.Unlock()
	if has {
		w.Wake()
	}
}

// resolveInterrupted resolves b with ErrCrossRuntimeInterrupted, for a
// runtime's Stop to call on every bridge still outstanding against it.
func (b *Bridge[V]) resolveInterrupted() {
	var zero V
	b.Resolve(zero, errCrossRuntimeInterrupted)
}

// Poll reports the bridge's value once resolved; otherwise it records w as
// the waker to call back and reports not-ready.
func (b *Bridge[V]) Poll(w Waker) (value V, err error, ready bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return b.value, b.err, true
	}
	b.waker = w
	b.hasWaker = true
	return value, nil, false
}

// TaskBody polls one step of a value-producing computation, returning the
// final value and true once complete. It is the generic shape every
// Spawn/Wait/WaitAny helper here drives.
type TaskBody[V any] func(w Waker) (V, bool)

// SpawnFuture spawns body as a task on rt and returns a Bridge that
// resolves with body's final value once that task completes. The bridge is
// tracked as outstanding on rt until then, so rt.Stop can interrupt it.
func SpawnFuture[V any](rt *Runtime, body TaskBody[V]) (TaskId, *Bridge[V]) {
	b := NewBridge[V]()
	rt.registerBridge(b)
	id := rt.Spawn(func(w Waker) bool {
		v, done := body(w)
		if !done {
			return false
		}
		b.Resolve(v, nil)
		rt.unregisterBridge(b)
		return true
	})
	return id, b
}

// Wait spawns body on otherRT and returns a Bridge a task on any runtime
// can poll to suspend until it completes (spec.md §4.7 "wait(other_rt,
// future) -> Result<V>").
func Wait[V any](otherRT *Runtime, body TaskBody[V]) *Bridge[V] {
	_, b := SpawnFuture(otherRT, body)
	return b
}

// WaitEntry pairs a task body with the runtime it should run on, for
// WaitAny.
type WaitEntry[V any] struct {
	RT   *Runtime
	Body TaskBody[V]
}

// AnyResult is WaitAny's winning value: the value produced and the index
// into the entries slice that produced it.
type AnyResult[V any] struct {
	Value V
	Index int
}

// WaitAny spawns every entry on its respective runtime; the first one to
// complete resolves the returned Bridge, and every later completion
// (including all the losers', once they eventually finish) is dropped
// (spec.md §4.7 "wait_any ... first completion wins, others' results are
// dropped"). The bridge is tracked as outstanding on every participating
// runtime, so any one of them being torn down before a winner emerges
// interrupts the wait.
func WaitAny[V any](entries []WaitEntry[V]) *Bridge[AnyResult[V]] {
	result := NewBridge[AnyResult[V]]()
	for i, e := range entries {
		i, e := i, e
		e.RT.registerBridge(result)
		e.RT.Spawn(func(w Waker) bool {
			v, done := e.Body(w)
			if !done {
				return false
			}
			result.Resolve(AnyResult[V]{Value: v, Index: i}, nil)
			e.RT.unregisterBridge(result)
			return true
		})
	}
	return result
}

// errCrossRuntimeInterrupted is the sentinel a Runtime's Stop resolves its
// outstanding bridges with (spec.md §7 KindCrossRuntimeInterrupted).
var errCrossRuntimeInterrupted = corerr.New(corerr.KindCrossRuntimeInterrupted, "runtime.wait", nil)

// ErrCrossRuntimeInterrupted is the sentinel a torn-down wait target should
// resolve its outstanding bridges with.
func ErrCrossRuntimeInterrupted() error { return errCrossRuntimeInterrupted }
