package deque_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcspan/corekit/container/deque"
	"github.com/arcspan/corekit/idfactory"
)

func TestPushBackPopFrontFIFO(t *testing.T) {
	slab := deque.NewSlab[string]()
	d := deque.New[string]()

	d.PushBack("a", slab)
	d.PushBack("b", slab)
	d.PushBack("c", slab)
	require.Equal(t, 3, d.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := d.PopFront(slab)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, d.Len())
	_, ok := d.PopFront(slab)
	assert.False(t, ok)
}

func TestPushFrontPopBackFIFO(t *testing.T) {
	slab := deque.NewSlab[int]()
	d := deque.New[int]()

	d.PushFront(1, slab)
	d.PushFront(2, slab)
	d.PushFront(3, slab)

	for _, want := range []int{1, 2, 3} {
		got, ok := d.PopBack(slab)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestRemoveArbitraryElement(t *testing.T) {
	slab := deque.NewSlab[string]()
	d := deque.New[string]()

	_ = d.PushBack("a", slab)
	idB := d.PushBack("b", slab)
	_ = d.PushBack("c", slab)
	require.Equal(t, 3, d.Len())

	got, ok := d.Remove(idB, slab)
	require.True(t, ok)
	assert.Equal(t, "b", got)
	assert.Equal(t, 2, d.Len())

	var order []string
	d.Each(slab, func(_ idfactory.Id, elem string) {
		order = append(order, elem)
	})
	assert.Equal(t, []string{"a", "c"}, order)
}

func TestRemoveHeadAndTail(t *testing.T) {
	slab := deque.NewSlab[int]()
	d := deque.New[int]()

	idA := d.PushBack(1, slab)
	d.PushBack(2, slab)
	idC := d.PushBack(3, slab)

	got, ok := d.Remove(idA, slab)
	require.True(t, ok)
	assert.Equal(t, 1, got)

	got, ok = d.Remove(idC, slab)
	require.True(t, ok)
	assert.Equal(t, 3, got)

	assert.Equal(t, 1, d.Len())
	got, ok = d.PopFront(slab)
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestSharedSlabAcrossDeques(t *testing.T) {
	slab := deque.NewSlab[string]()
	q1 := deque.New[string]()
	q2 := deque.New[string]()

	q1.PushBack("q1-a", slab)
	q2.PushBack("q2-a", slab)
	q1.PushBack("q1-b", slab)

	assert.Equal(t, 2, q1.Len())
	assert.Equal(t, 1, q2.Len())

	v, ok := q2.PopFront(slab)
	require.True(t, ok)
	assert.Equal(t, "q2-a", v)
	assert.Equal(t, 2, q1.Len())
}

func TestClearEmptiesDeque(t *testing.T) {
	slab := deque.NewSlab[int]()
	d := deque.New[int]()
	d.PushBack(1, slab)
	d.PushBack(2, slab)
	d.PushBack(3, slab)

	d.Clear(slab)
	assert.Equal(t, 0, d.Len())
	assert.True(t, d.Head().IsNull())
	assert.True(t, d.Tail().IsNull())

	_, ok := d.PopFront(slab)
	assert.False(t, ok)
}

func TestEachVisitsInOrder(t *testing.T) {
	slab := deque.NewSlab[int]()
	d := deque.New[int]()
	d.PushBack(1, slab)
	d.PushBack(2, slab)
	d.PushBack(3, slab)

	var seen []int
	d.Each(slab, func(_ idfactory.Id, elem int) {
		seen = append(seen, elem)
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
}
