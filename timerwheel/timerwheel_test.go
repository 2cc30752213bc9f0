package timerwheel_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcspan/corekit/idfactory"
	"github.com/arcspan/corekit/timerwheel"
)

// TestAscendingDeliveryWithCancel replays the literal reference scenario:
// push a spread of timeouts (in ticks, one tick modeling 10ms of wall
// clock), cancel one entry before any tick elapses, then advance through
// the whole span and confirm deliveries arrive in exactly ascending order
// with the cancelled entry never delivered.
func TestAscendingDeliveryWithCancel(t *testing.T) {
	// n0=100, n=60, l=3 => span = 100*60^3 = 21,600,000 ticks, comfortably
	// past the largest timeout below so this exercises cascades through
	// every level without ever touching the overflow heap.
	w := timerwheel.New[int](100, 60, 3)

	timeouts := []int{0, 1, 5, 10, 50, 100, 500, 1000, 3000, 3100, 60000, 61000, 3600000}

	var cancelHandle idfactory.Id
	for _, tm := range timeouts {
		h, err := w.Push(uint64(tm), tm)
		require.NoError(t, err)
		if tm == 61000 {
			cancelHandle = h
		}
	}

	payload, ok := w.Cancel(cancelHandle)
	require.True(t, ok)
	assert.Equal(t, 61000, payload)

	due := w.Advance(3_600_001)

	want := make([]int, 0, len(timeouts))
	for _, tm := range timeouts {
		if tm != 61000 {
			want = append(want, tm)
		}
	}
	sort.Ints(want)

	assert.Equal(t, want, due)

	// The cancelled entry must never be delivered, even past its own tick.
	assert.NotContains(t, due, 61000)

	// A second cancel attempt on the same (now freed) handle must fail.
	_, ok = w.Cancel(cancelHandle)
	assert.False(t, ok)
}

func TestZeroTimeoutFiresOnFirstAdvance(t *testing.T) {
	w := timerwheel.New[string](10, 4, 2)
	_, err := w.Push(0, "immediate")
	require.NoError(t, err)

	due := w.Advance(1)
	assert.Equal(t, []string{"immediate"}, due)
}

// TestOverflowFoldsBackIntoWheel forces a timeout past the wheel's
// representable span into the overflow heap, then verifies it fires at
// exactly the original tick count once the wheel completes enough full
// cycles to fold it back in.
func TestOverflowFoldsBackIntoWheel(t *testing.T) {
	// span = n0*n^l = 3*2 = 6 ticks.
	w := timerwheel.New[string](3, 2, 1)
	require.EqualValues(t, 6, w.Span())

	_, err := w.Push(10, "late")
	require.NoError(t, err)

	// An entry that becomes due after T completed rolls is drained on the
	// (T+1)th tick (matching slot_wheel.rs's pop-before-roll ordering: an
	// entry due right now is found before advancing any further), so a
	// timeout of 10 fires on the 11th tick.
	due := w.Advance(10)
	assert.Empty(t, due)

	due = w.Advance(1)
	assert.Equal(t, []string{"late"}, due)
}

// TestCancelDuringOverflow exercises Cancel while an entry still sits in
// the overflow heap, before any cascade has folded it into the wheel.
func TestCancelDuringOverflow(t *testing.T) {
	w := timerwheel.New[string](3, 2, 1)

	h, err := w.Push(100, "far-future")
	require.NoError(t, err)

	payload, ok := w.Cancel(h)
	require.True(t, ok)
	assert.Equal(t, "far-future", payload)

	due := w.Advance(100)
	assert.Empty(t, due)
}

func TestMultipleEntriesInSameSlotFireFIFO(t *testing.T) {
	w := timerwheel.New[string](10, 4, 2)
	_, err := w.Push(5, "first")
	require.NoError(t, err)
	_, err = w.Push(5, "second")
	require.NoError(t, err)
	_, err = w.Push(5, "third")
	require.NoError(t, err)

	// Fires on the 6th tick, same reasoning as TestOverflowFoldsBackIntoWheel.
	due := w.Advance(5)
	assert.Empty(t, due)
	due = w.Advance(1)
	assert.Equal(t, []string{"first", "second", "third"}, due)
}
