package idfactory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcspan/corekit/idfactory"
)

func TestAllocGetFree(t *testing.T) {
	f := idfactory.New[string, int]()

	id := f.Alloc("heap-node", 42)
	require.False(t, id.IsNull())

	entry, ok := f.Get(id)
	require.True(t, ok)
	assert.Equal(t, "heap-node", entry.Class)
	assert.Equal(t, 42, entry.User)
	assert.Equal(t, uint64(0), entry.Location)

	f.SetSlot(id, 7)
	entry, ok = f.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint64(7), entry.Location)

	f.Free(id)
	_, ok = f.Get(id)
	assert.False(t, ok)
}

func TestStalenessAfterSlotReuse(t *testing.T) {
	f := idfactory.New[string, int]()

	a := f.Alloc("a", 1)
	f.Free(a)

	b := f.Alloc("b", 2)
	// In a LIFO free-list, b is very likely to reuse a's slot index.
	assert.Equal(t, a.SlotIndex(), b.SlotIndex())
	assert.NotEqual(t, a.Generation(), b.Generation())

	_, ok := f.Get(a)
	assert.False(t, ok, "freed handle must stay stale even after its slot is reused")

	entry, ok := f.Get(b)
	require.True(t, ok)
	assert.Equal(t, 2, entry.User)
}

func TestFreeOnStaleHandleIsNoOp(t *testing.T) {
	f := idfactory.New[string, int]()
	id := f.Alloc("a", 1)
	f.Free(id)

	assert.NotPanics(t, func() {
		f.Free(id)
	})
	assert.False(t, f.Live(id))
}

func TestLenTracksLiveHandles(t *testing.T) {
	f := idfactory.New[string, int]()
	assert.Equal(t, 0, f.Len())

	a := f.Alloc("a", 1)
	b := f.Alloc("b", 2)
	assert.Equal(t, 2, f.Len())

	f.Free(a)
	assert.Equal(t, 1, f.Len())

	f.Free(b)
	assert.Equal(t, 0, f.Len())
}
