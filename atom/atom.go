// Package atom implements a process-wide deduplicated immutable string with
// a precomputed 64-bit hash: equal strings share one allocation for the
// lifetime of any live Atom holding them, and equality is O(1) pointer
// comparison.
//
// Grounded on two sources:
//   - eventloop/registry.go's use of Go's standard "weak" package (weak
//     pointers + lazy GC-driven reclamation) for the same "track live
//     instances without keeping them alive" problem the Rust uses
//     Arc/Weak for.
//   - atom/src/lib.rs (original_source), which resolves spec.md §4.2's
//     exact insert race protocol: read-lock scan, and on miss an
//     optimistic-upgrade to the write lock with a version re-check
//     (re-scanning only if another writer raced in first), compacting dead
//     weak entries whenever a new entry is added to an existing bucket.
package atom

import (
	"sync"
	"weak"

	"github.com/arcspan/corekit/coreopt"
	"github.com/arcspan/corekit/internal/corehash"
)

// data is the shared, immutable payload behind every Atom referencing the
// same string. Atom equality is pointer equality on *data.
type data struct {
	s    string
	hash uint64
}

// Atom is an interned immutable string with a precomputed 64-bit hash.
// The zero Atom is not a valid interned value; use Table.Intern (or the
// package-level Intern) to obtain one.
type Atom struct {
	d *data
}

// String returns the underlying string.
func (a Atom) String() string { return a.d.s }

// Hash returns the Atom's precomputed 64-bit hash. Never recomputed.
func (a Atom) Hash() uint64 { return a.d.hash }

// Len returns the length, in bytes, of the underlying string.
func (a Atom) Len() int { return len(a.d.s) }

// IsZero reports whether a is the zero Atom (never produced by Intern).
func (a Atom) IsZero() bool { return a.d == nil }

// Equal reports whether a and b reference the same interned allocation.
// O(1): pointer equality, not a string compare.
func (a Atom) Equal(b Atom) bool { return a.d == b.d }

// bucket holds every weak reference seen for one hash value, plus a
// version counter used to detect concurrent insertion between releasing
// the read lock and acquiring the write lock (spec.md §4.2).
type bucket struct {
	version uint64
	entries []weak.Pointer[data] // copy-on-write: Table.Intern never mutates in place
}

// Table is a hash -> bucket map guarded by a read-write lock. The package
// level functions operate on a single process-wide Table, matching
// atom/src/lib.rs's lazy_static singleton; a Table may also be constructed
// directly for isolated tests.
type Table struct {
	mu      sync.RWMutex
	buckets map[uint64]*bucket
}

// Option configures a Table.
type Option = coreopt.Option[Table]

// WithCapacityHint pre-sizes the bucket map (spec.md §6: "atom map capacity
// hint").
func WithCapacityHint(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.buckets = make(map[uint64]*bucket, n)
		}
	}
}

// NewTable creates an empty, independent interning table.
func NewTable(opts ...Option) *Table {
	t := &Table{buckets: make(map[uint64]*bucket)}
	coreopt.Apply(t, opts...)
	return t
}

// scan searches entries for a live weak pointer whose string equals s,
// upgrading the first match found. Also reports how many dead (reclaimed)
// entries were observed before the match.
func scan(entries []weak.Pointer[data], s string) (found *data, deadCount int) {
	for _, wp := range entries {
		d := wp.Value()
		if d == nil {
			deadCount++
			continue
		}
		if d.s == s {
			return d, deadCount
		}
	}
	return nil, deadCount
}

// Intern returns the Atom for s, creating and registering it if this is the
// first time s has been seen. At most one live strong allocation exists per
// unique string at any time.
func (t *Table) Intern(s string) Atom {
	h := corehash.Sum64String(s)

	t.mu.RLock()
	b, ok := t.buckets[h]
	var readVersion uint64
	if ok {
		readVersion = b.version
		if found, _ := scan(b.entries, s); found != nil {
			t.mu.RUnlock()
			return Atom{d: found}
		}
	}
	t.mu.RUnlock()

	// Miss under the read lock: build the candidate before taking the
	// write lock (no allocation while holding it), then re-check.
	candidate := &data{s: s, hash: h}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok = t.buckets[h]
	if !ok {
		t.buckets[h] = &bucket{version: 1, entries: []weak.Pointer[data]{weak.Make(candidate)}}
		return Atom{d: candidate}
	}

	if b.version != readVersion {
		// Another writer raced in between our read-unlock and write-lock:
		// rescan, since the winning insert may already be what we want.
		if found, _ := scan(b.entries, s); found != nil {
			return Atom{d: found}
		}
	}

	// Compact dead weak entries while building the new COW slice.
	next := make([]weak.Pointer[data], 0, len(b.entries)+1)
	for _, wp := range b.entries {
		if wp.Value() != nil {
			next = append(next, wp)
		}
	}
	next = append(next, weak.Make(candidate))

	t.buckets[h] = &bucket{version: b.version + 1, entries: next}
	return Atom{d: candidate}
}

// LiveCount scans every bucket and returns the number of currently live
// (not yet GC-reclaimed) interned strings. Intended for tests and
// diagnostics; it is not O(1).
func (t *Table) LiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, b := range t.buckets {
		for _, wp := range b.entries {
			if wp.Value() != nil {
				n++
			}
		}
	}
	return n
}

// global is the process-wide Table used by the package-level Intern.
var global = NewTable()

// Intern interns s in the process-wide table.
func Intern(s string) Atom { return global.Intern(s) }

// GlobalLiveCount reports the live count of the process-wide table.
func GlobalLiveCount() int { return global.LiveCount() }
