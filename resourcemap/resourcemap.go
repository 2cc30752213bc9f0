// Package resourcemap is a content-addressed resource cache: a map from key
// to a reference-counted resource, where a resource with no external
// references is held in a per-group LRU instead of being freed immediately,
// and reclaimed once it ages past its group's timeout or the group's byte
// budget is exceeded.
//
// Grounded on res_mgr/src/res_map.rs (original_source): ResMap's map plus
// per-group ResCache deques, and ResCollect's three-pass sweep (garbage,
// timeout_collect, capacity_collect) kept here as three separate methods
// rather than one fused pass, matching the Rust's own public interface.
package resourcemap

import (
	"sync"
	"sync/atomic"

	"github.com/arcspan/corekit/container/deque"
	"github.com/arcspan/corekit/corelog"
	"github.com/arcspan/corekit/coreopt"
	"github.com/arcspan/corekit/idfactory"
)

// Res is implemented by every value a ResourceMap stores: a content key used
// to address it, a byte size used for capacity accounting, and a group
// classifier (spec.md §4.6: "group(T) -> {0..G}").
type Res[K comparable] interface {
	Key() K
	Size() int
	Group() int
}

// shared is the payload behind every Ref cloned from the same insertion.
type shared[T any] struct {
	value T
	count atomic.Int32
}

// Ref is a reference-counted handle to a T, modeling the source's Share<T>
// (an Rc/Arc clone) without relying on a destructor: every Clone must be
// balanced by exactly one Release, including the Ref returned by NewRef.
// ResourceMap.Garbage inspects StrongCount to decide whether a resource is
// still externally held.
type Ref[T any] struct {
	s *shared[T]
}

// NewRef wraps v in a fresh Ref with strong count 1.
func NewRef[T any](v T) Ref[T] {
	s := &shared[T]{value: v}
	s.count.Store(1)
	return Ref[T]{s: s}
}

// IsNull reports whether r is the zero Ref (never produced by NewRef or a
// successful Clone).
func (r Ref[T]) IsNull() bool { return r.s == nil }

// Value returns the wrapped value.
func (r Ref[T]) Value() T { return r.s.value }

// Clone increments the strong count and returns a new handle to the same
// underlying value.
func (r Ref[T]) Clone() Ref[T] {
	r.s.count.Add(1)
	return r
}

// Release decrements the strong count. ResourceMap never frees anything on
// its own account of a Release; the count only informs the next Garbage
// sweep.
func (r Ref[T]) Release() {
	r.s.count.Add(-1)
}

// StrongCount returns the number of live Refs sharing this value, including
// the ResourceMap's own copy while the value is inserted.
func (r Ref[T]) StrongCount() int32 {
	return r.s.count.Load()
}

// lruNode is one entry in a group's LRU deque: the map key plus the tick at
// which it was listed (used by TimeoutCollect).
type lruNode[K comparable] struct {
	key       K
	timestamp uint64
}

// group is one classifier bucket's LRU plus its configured budget.
type group[K comparable] struct {
	lru          *deque.Deque[lruNode[K]]
	size         int
	minBytes     int
	maxBytes     int
	curCapacity  int
	timeoutTicks uint64
}

type mapEntry[K comparable, T any] struct {
	ref     Ref[T]
	node    idfactory.Id // valid only while inCache
	inCache bool
}

// defaultGroupCount matches res_map.rs's ResMap::caches, a fixed 4-element
// array.
const defaultGroupCount = 4

// ResourceMap is a key -> Ref[T] store with G per-group LRU caches for
// resources that currently have no external reference.
type ResourceMap[K comparable, T Res[K]] struct {
	mu      sync.Mutex
	logger  corelog.Logger
	entries map[K]*mapEntry[K, T]
	slab    *deque.Slab[lruNode[K]]
	groups  []*group[K]
	size    int
}

// Option configures a ResourceMap.
type Option[K comparable, T Res[K]] = coreopt.Option[ResourceMap[K, T]]

// WithLogger wires a structured logger for debug-level sweep summaries.
func WithLogger[K comparable, T Res[K]](l corelog.Logger) Option[K, T] {
	return func(m *ResourceMap[K, T]) { m.logger = l }
}

// New creates an empty ResourceMap with groupCount LRU groups (0 selects the
// reference implementation's default of 4). Each group starts unconfigured
// (zero budgets); call Configure before relying on TimeoutCollect or
// CapacityCollect.
func New[K comparable, T Res[K]](groupCount int, opts ...Option[K, T]) *ResourceMap[K, T] {
	if groupCount <= 0 {
		groupCount = defaultGroupCount
	}
	m := &ResourceMap[K, T]{
		logger:  corelog.NoOp{},
		entries: make(map[K]*mapEntry[K, T]),
		slab:    deque.NewSlab[lruNode[K]](),
		groups:  make([]*group[K], groupCount),
	}
	for i := range m.groups {
		m.groups[i] = &group[K]{lru: deque.New[lruNode[K]]()}
	}
	coreopt.Apply(m, opts...)
	return m
}

// Configure sets group g's minimum/maximum byte budget and eviction timeout
// (in the caller's tick unit). curCapacity is reset to maxBytes, mirroring
// ResCache::config initializing cur_capacity to max_capacity; adjust it
// independently afterwards with SetCapacity.
func (m *ResourceMap[K, T]) Configure(g int, minBytes, maxBytes int, timeoutTicks uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grp := m.groups[g]
	grp.minBytes = minBytes
	grp.maxBytes = maxBytes
	grp.curCapacity = maxBytes
	grp.timeoutTicks = timeoutTicks
}

// SetCapacity adjusts group g's current capacity independent of its
// configured maximum (spec.md scenario 4: "shrinking cur_capacity to 5 KB").
func (m *ResourceMap[K, T]) SetCapacity(g int, curCapacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g].curCapacity = curCapacity
}

// Size returns the total byte size of every resource currently stored,
// cached or not.
func (m *ResourceMap[K, T]) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Stats reports (total_bytes, per_group_bytes, per_group_len) for
// observability (spec.md §6).
type Stats struct {
	TotalBytes   int
	PerGroupBytes []int
	PerGroupLen   []int
}

// Stats snapshots the map's current size and per-group LRU occupancy.
// PerGroupBytes/PerGroupLen count only resources currently cached (idle,
// no external reference); TotalBytes counts every resource stored, cached
// or not.
func (m *ResourceMap[K, T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		TotalBytes:    m.size,
		PerGroupBytes: make([]int, len(m.groups)),
		PerGroupLen:   make([]int, len(m.groups)),
	}
	for i, grp := range m.groups {
		s.PerGroupBytes[i] = grp.size
		s.PerGroupLen[i] = grp.lru.Len()
	}
	return s
}

// Insert stores a clone of ref (the map's own strong count) under its own
// key, overwriting and lifting out of cache any prior entry for that key.
// The caller still owns ref and must Release it.
func (m *ResourceMap[K, T]) Insert(ref Ref[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := ref.Value()
	key := v.Key()
	m.size += v.Size()

	if prev, ok := m.entries[key]; ok {
		m.size -= prev.ref.Value().Size()
		m.evictFromCacheLocked(prev)
	}
	m.entries[key] = &mapEntry[K, T]{ref: ref.Clone()}
}

// Get looks up key, lifting it out of its group's LRU if it was cached (an
// external reference now exists, strong count >= 2), and returns a cloned
// Ref. ok is false if key is unknown.
func (m *ResourceMap[K, T]) Get(key K) (ref Ref[T], ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.entries[key]
	if !found {
		return ref, false
	}
	m.evictFromCacheLocked(e)
	return e.ref.Clone(), true
}

// Remove deletes key from the map entirely, lifting it out of any LRU, and
// returns the map's own Ref. Callers must Release it once done.
func (m *ResourceMap[K, T]) Remove(key K) (ref Ref[T], ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.entries[key]
	if !found {
		return ref, false
	}
	m.evictFromCacheLocked(e)
	delete(m.entries, key)
	m.size -= e.ref.Value().Size()
	return e.ref, true
}

func (m *ResourceMap[K, T]) evictFromCacheLocked(e *mapEntry[K, T]) {
	if !e.inCache {
		return
	}
	grp := m.groups[e.ref.Value().Group()]
	grp.lru.Remove(e.node, m.slab)
	grp.size -= e.ref.Value().Size()
	e.inCache = false
}

// Garbage lists every entry whose strong count is exactly 1 (only the map
// itself holds it) at the tail of its group's LRU, stamped with now.
// Entries already listed, or still externally referenced, are left alone —
// a departure from the reference implementation's unconditional push, which
// would otherwise double-list (and double-count the size of) an entry swept
// more than once without an intervening Get or Insert.
func (m *ResourceMap[K, T]) Garbage(now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listed := 0
	for _, e := range m.entries {
		if e.inCache || e.ref.StrongCount() > 1 {
			continue
		}
		v := e.ref.Value()
		grp := m.groups[v.Group()]
		e.node = grp.lru.PushBack(lruNode[K]{key: v.Key(), timestamp: now}, m.slab)
		e.inCache = true
		grp.size += v.Size()
		listed++
	}
	m.logDebug("garbage", listed)
}

// TimeoutCollect evicts from each group's LRU head while the group's size
// exceeds its configured minimum and the head entry's timestamp + timeout
// is at or before now (spec.md §4.6).
func (m *ResourceMap[K, T]) TimeoutCollect(now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for _, grp := range m.groups {
		for grp.size > grp.minBytes {
			head, ok := grp.lru.PeekFront(m.slab)
			if !ok {
				break
			}
			if head.timestamp+grp.timeoutTicks > now {
				break
			}
			m.evictHeadLocked(grp)
			evicted++
		}
	}
	m.logDebug("timeout_collect", evicted)
}

// CapacityCollect evicts from each group's LRU head, oldest first, while
// the group's size exceeds its current capacity, regardless of timestamp
// (spec.md §4.6).
func (m *ResourceMap[K, T]) CapacityCollect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for _, grp := range m.groups {
		for grp.size > grp.curCapacity {
			if grp.lru.Len() == 0 {
				break
			}
			m.evictHeadLocked(grp)
			evicted++
		}
	}
	m.logDebug("capacity_collect", evicted)
}

func (m *ResourceMap[K, T]) evictHeadLocked(grp *group[K]) {
	node, ok := grp.lru.PopFront(m.slab)
	if !ok {
		return
	}
	e, found := m.entries[node.key]
	if !found {
		return
	}
	delete(m.entries, node.key)
	sz := e.ref.Value().Size()
	grp.size -= sz
	m.size -= sz
}

func (m *ResourceMap[K, T]) logDebug(op string, count int) {
	if !m.logger.IsEnabled(corelog.LevelDebug) {
		return
	}
	m.logger.Log(corelog.Entry{
		Level:     corelog.LevelDebug,
		Component: "resourcemap",
		Op:        op,
		Message:   "sweep complete",
		Context:   map[string]any{"evicted": count},
	})
}
