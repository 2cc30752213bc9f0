package heap_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcspan/corekit/container/heap"
	"github.com/arcspan/corekit/idfactory"
)

func less(a, b int) bool { return a < b }

func TestPushPopOrdering(t *testing.T) {
	h := heap.New[int, idfactory.Id](less)
	f := idfactory.New[struct{}, struct{}]()

	vals := []int{5, 3, 8, 1, 9, 2, 7, 4, 6, 0}
	for _, v := range vals {
		id := f.Alloc(struct{}{}, struct{}{})
		h.Push(v, id, f)
	}

	var out []int
	for h.Len() > 0 {
		v, _, ok := h.Pop(f)
		require.True(t, ok)
		out = append(out, v)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, out)
}

// TestPushDeletePopMatchesReferenceMultiset interleaves Push and Delete at
// random heap indices against a tracked reference set, then verifies the
// final drain-via-Pop order matches the sorted reference: the heap
// invariant (parent respects the order predicate) holds after arbitrary
// push/pop/delete sequences iff this always succeeds.
func TestPushDeletePopMatchesReferenceMultiset(t *testing.T) {
	h := heap.New[int, int](less)
	loc := newRecordingLocator[int]()
	live := map[int]int{} // id -> value, for ids still in the heap

	r := rand.New(rand.NewSource(42))
	nextID := 0
	for i := 0; i < 500; i++ {
		switch {
		case h.Len() == 0 || r.Intn(3) != 0:
			v := r.Intn(1000)
			id := nextID
			nextID++
			h.Push(v, id, loc)
			live[id] = v
		default:
			idx := r.Intn(h.Len())
			_, id, ok := h.Delete(idx, loc)
			require.True(t, ok)
			delete(live, id)
		}
	}

	var want []int
	for _, v := range live {
		want = append(want, v)
	}
	sort.Ints(want)

	var got []int
	for h.Len() > 0 {
		v, id, ok := h.Pop(loc)
		require.True(t, ok)
		got = append(got, v)
		delete(loc.pos, id)
	}

	assert.Equal(t, want, got)
}

func TestLocatorNotifiedOfFinalIndex(t *testing.T) {
	h := heap.New[int, string](less)
	loc := newRecordingLocator[string]()

	h.Push(10, "a", loc)
	h.Push(5, "b", loc)
	h.Push(1, "c", loc)

	// "c" (value 1) must have sifted to the root.
	_, id, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, "c", id)
	assert.Equal(t, uint64(0), loc.pos["c"])
}

// recordingLocator tracks the last-known index for every id, mirroring how
// idfactory.Factory.SetSlot is used in practice.
type recordingLocator[ID comparable] struct {
	pos map[ID]uint64
}

func newRecordingLocator[ID comparable]() *recordingLocator[ID] {
	return &recordingLocator[ID]{pos: make(map[ID]uint64)}
}

func (l *recordingLocator[ID]) SetSlot(id ID, location uint64) {
	l.pos[id] = location
}
