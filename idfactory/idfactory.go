// Package idfactory mints stable opaque handles (Id) and maps them to
// (slot, class, user payload), detecting stale handles via a
// generation/liveness check.
//
// Grounded on index_class/src/lib.rs's IndexClassFactory (a generational
// slab storing an (index, class, value) triple per slot) and the
// generational-handle model described in spec.md §4.1 / §9 ("arena + index"
// instead of reference counting with weak-backs).
package idfactory

import (
	"sync"

	"github.com/arcspan/corekit/corelog"
	"github.com/arcspan/corekit/coreopt"
	"github.com/arcspan/corekit/corerr"
)

// generationBits is the number of low bits of Id reserved for the
// generation counter; the remainder addresses the slot index. spec.md
// requires at least 32 bits of generation.
const generationBits = 32

// genMask and generationBits split a 64-bit Id into (slotIndex, generation).
const genMask = (uint64(1) << generationBits) - 1

// Id is an opaque, comparable, 64-bit handle. The zero Id is never minted
// by Alloc and may be used by callers as a null sentinel.
type Id uint64

// SlotIndex returns the slab index encoded in the handle.
func (id Id) SlotIndex() uint64 { return uint64(id) >> generationBits }

// Generation returns the generation encoded in the handle.
func (id Id) Generation() uint32 { return uint32(uint64(id) & genMask) }

func makeID(slotIndex uint64, generation uint32) Id {
	return Id(slotIndex<<generationBits | uint64(generation))
}

func (id Id) IsNull() bool { return id == 0 }

// slotData is the payload stored per occupied slot: the external slot
// location, a classifier, and an opaque user value.
type slotData[C any, U any] struct {
	generation uint32
	occupied   bool
	location   uint64
	class      C
	user       U
}

// Entry is the (slot, class, user) triple returned by Get.
type Entry[C any, U any] struct {
	Location uint64
	Class    C
	User     U
}

// Factory is a generational slab: a free-list-backed slice of slots, each
// carrying a generation. Alloc pops the free list (or grows the slab) and
// bumps the generation; Free pushes the slot back onto the free list and
// bumps the generation again so previously-minted handles become stale.
//
// Not internally synchronized beyond the mutex below — spec.md §5 notes the
// IdFactory slab's synchronization is the owning component's decision; here
// we provide a safe-by-default mutex-guarded factory, matching the
// teacher's choice (mutex beats lock-free under the contention patterns
// this component sees — eventloop/loop.go's doc comment on ChunkedIngress).
type Factory[C any, U any] struct {
	mu        sync.Mutex
	slots     []slotData[C, U]
	freeList  []uint64 // stack of free slot indices, LIFO reuse
	logger    corelog.Logger
	liveCount int
}

// Option configures a Factory.
type Option[C any, U any] = coreopt.Option[Factory[C, U]]

// WithLogger wires a structured logger for debug-level stale/free anomalies.
func WithLogger[C any, U any](l corelog.Logger) Option[C, U] {
	return func(f *Factory[C, U]) { f.logger = l }
}

// New creates an empty Factory.
func New[C any, U any](opts ...Option[C, U]) *Factory[C, U] {
	f := &Factory[C, U]{logger: corelog.NoOp{}}
	coreopt.Apply(f, opts...)
	return f
}

// Alloc mints a new Id bound to the given class/user payload. The initial
// external location is 0 until the caller calls SetSlot.
func (f *Factory[C, U]) Alloc(class C, user U) Id {
	f.mu.Lock()
	defer f.mu.Unlock()

	var idx uint64
	if n := len(f.freeList); n > 0 {
		idx = f.freeList[n-1]
		f.freeList = f.freeList[:n-1]
	} else {
		idx = uint64(len(f.slots))
		f.slots = append(f.slots, slotData[C, U]{})
	}

	s := &f.slots[idx]
	s.generation++
	if s.generation == 0 {
		// Wrapped past 2^32-1 back to 0: bump again so 0 is never a live
		// generation (keeps the zero Id permanently non-live/null).
		s.generation = 1
	}
	s.occupied = true
	s.class = class
	s.user = user
	s.location = 0
	f.liveCount++

	return makeID(idx, s.generation)
}

// liveSlot returns the occupied slot for id, or nil if id is stale/unknown.
// Caller must hold f.mu.
func (f *Factory[C, U]) liveSlot(id Id) *slotData[C, U] {
	idx := id.SlotIndex()
	if idx >= uint64(len(f.slots)) {
		return nil
	}
	s := &f.slots[idx]
	if !s.occupied || s.generation != id.Generation() {
		return nil
	}
	return s
}

// Get looks up the (slot, class, user) triple for id. Returns ok=false for
// an unknown or stale handle; this is never an error, matching spec.md §7's
// "StaleHandle ... recovered locally (treated as nothing to do)".
func (f *Factory[C, U]) Get(id Id) (Entry[C, U], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.liveSlot(id)
	if s == nil {
		f.logDebug("get", id, corerr.ErrStaleHandle)
		return Entry[C, U]{}, false
	}
	return Entry[C, U]{Location: s.location, Class: s.class, User: s.user}, true
}

// SetSlot updates the external location stored for id. No-op on a stale
// handle.
func (f *Factory[C, U]) SetSlot(id Id, location uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.liveSlot(id); s != nil {
		s.location = location
	}
}

// SetClass updates the classifier stored for id. No-op on a stale handle.
func (f *Factory[C, U]) SetClass(id Id, class C) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.liveSlot(id); s != nil {
		s.class = class
	}
}

// SetUser updates the user payload stored for id. No-op on a stale handle.
func (f *Factory[C, U]) SetUser(id Id, user U) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.liveSlot(id); s != nil {
		s.user = user
	}
}

// Free releases id, making it and any future copies of the same value
// permanently stale. Freeing an already-stale handle is a no-op, logged at
// debug level (spec.md §4.1 "Failure").
func (f *Factory[C, U]) Free(id Id) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.liveSlot(id)
	if s == nil {
		f.logDebug("free", id, corerr.ErrStaleHandle)
		return
	}
	s.occupied = false
	var zeroC C
	var zeroU U
	s.class = zeroC
	s.user = zeroU
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	f.freeList = append(f.freeList, id.SlotIndex())
	f.liveCount--
}

// Live reports whether id currently refers to a live, occupied slot.
func (f *Factory[C, U]) Live(id Id) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveSlot(id) != nil
}

// Len returns the number of currently live (allocated, not yet freed)
// handles.
func (f *Factory[C, U]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveCount
}

func (f *Factory[C, U]) logDebug(op string, id Id, err error) {
	if !f.logger.IsEnabled(corelog.LevelDebug) {
		return
	}
	f.logger.Log(corelog.Entry{
		Level:     corelog.LevelDebug,
		Component: "idfactory",
		Op:        op,
		Message:   "stale handle",
		Err:       err,
		Context:   map[string]any{"id": uint64(id)},
	})
}

// MaxGeneration is the largest representable generation value, exposed so
// callers can reason about wrap detection (spec.md §9 Open Questions: CAS
// migration note does not apply here, but generation wrap is the analogous
// "detectable error in debug" concern).
const MaxGeneration = uint32(1)<<generationBits - 1
