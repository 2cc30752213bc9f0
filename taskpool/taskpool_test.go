package taskpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcspan/corekit/corerr"
	"github.com/arcspan/corekit/taskpool"
)

// TestSyncQueueWinsWhenPriorityAtLeastAsUrgent replays spec.md scenario 5:
// a sync queue head at least as urgent as the best async candidate wins
// Pop, locking the queue until Free.
func TestSyncQueueWinsWhenPriorityAtLeastAsUrgent(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	p.RegisterSyncQueue("q")

	require.NoError(t, p.PushStatic("static-task", 0))
	require.NoError(t, p.PushSync("q", "sync-task", 0, taskpool.Back))

	payload, source, queue, ok := p.Pop(0)
	require.True(t, ok)
	assert.Equal(t, taskpool.SourceSync, source)
	assert.Equal(t, "q", queue)
	assert.Equal(t, "sync-task", payload)

	// Queue is locked: a second Pop must not see it again even though it's
	// now empty, and must fall through to the static-async task.
	payload, source, _, ok = p.Pop(0)
	require.True(t, ok)
	assert.Equal(t, taskpool.SourceStaticAsync, source)
	assert.Equal(t, "static-task", payload)

	require.NoError(t, p.Free("q"))

	// Double free is an error.
	err := p.Free("q")
	require.Error(t, err)
	assert.True(t, corerr.Is(err, corerr.KindDoubleFree))
}

func TestStaticAsyncBeatsLessUrgentSyncHead(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	p.RegisterSyncQueue("q")

	require.NoError(t, p.PushStatic("urgent-static", 0))
	require.NoError(t, p.PushSync("q", "low-priority-sync", 9, taskpool.Back))

	_, source, _, ok := p.Pop(0)
	require.True(t, ok)
	assert.Equal(t, taskpool.SourceStaticAsync, source)
}

func TestLockedQueueResumesOnPushWithoutUnlocking(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	p.RegisterSyncQueue("q")

	require.NoError(t, p.PushSync("q", "first", 0, taskpool.Back))
	_, source, queue, ok := p.Pop(0)
	require.True(t, ok)
	require.Equal(t, taskpool.SourceSync, source)
	require.Equal(t, "q", queue)

	// Queue drained to LockedEmpty; a push resumes it without changing lock
	// ownership, but it must still be invisible to Pop until Free.
	require.NoError(t, p.PushSync("q", "second", 0, taskpool.Back))

	_, _, _, ok = p.Pop(0)
	assert.False(t, ok, "locked queue must not be popped before Free")

	require.NoError(t, p.Free("q"))

	payload, source, _, ok := p.Pop(0)
	require.True(t, ok)
	assert.Equal(t, taskpool.SourceSync, source)
	assert.Equal(t, "second", payload)
}

func TestEarliestInsertedSyncHeadWinsAcrossQueues(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	p.RegisterSyncQueue("a")
	p.RegisterSyncQueue("b")

	require.NoError(t, p.PushSync("a", "a-task", 0, taskpool.Back))
	require.NoError(t, p.PushSync("b", "b-task", 0, taskpool.Back))

	_, _, queue, ok := p.Pop(0)
	require.True(t, ok)
	assert.Equal(t, "a", queue, "a-task was pushed first")
}

func TestDynamicAsyncWeightedSelectionFrequencyMatchesRatio(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	require.NoError(t, p.PushDynamic("heavy", 90))
	require.NoError(t, p.PushDynamic("light", 10))

	const draws = 10_000
	var heavy, light int
	for i := 0; i < draws; i++ {
		payload, source, _, ok := p.Pop(uint64(i * 97))
		require.True(t, ok)
		require.Equal(t, taskpool.SourceDynamicAsync, source)
		switch payload {
		case "heavy":
			heavy++
		case "light":
			light++
		}
		require.NoError(t, p.PushDynamic(payload, weightOf(payload)))
	}

	ratio := float64(heavy) / float64(heavy+light)
	assert.InDelta(t, 0.9, ratio, 0.03)
}

func weightOf(payload string) uint64 {
	if payload == "heavy" {
		return 90
	}
	return 10
}

func TestPushCapacityExceeded(t *testing.T) {
	p := taskpool.New[string](5, 1, 1, 1)
	p.RegisterSyncQueue("q")

	require.NoError(t, p.PushDynamic("a", 1))
	err := p.PushDynamic("b", 1)
	require.Error(t, err)
	assert.True(t, corerr.Is(err, corerr.KindCapacityExceeded))

	require.NoError(t, p.PushStatic("a", 0))
	err = p.PushStatic("b", 0)
	require.Error(t, err)

	require.NoError(t, p.PushSync("q", "a", 0, taskpool.Back))
	err = p.PushSync("q", "b", 0, taskpool.Back)
	require.Error(t, err)
}

func TestSyncQueueNamesSorted(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	p.RegisterSyncQueue("zeta")
	p.RegisterSyncQueue("alpha")
	p.RegisterSyncQueue("mid")

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, p.SyncQueueNames())
}

func TestPopOnEmptyPoolReportsNotFound(t *testing.T) {
	p := taskpool.New[string](5, 0, 0, 0)
	_, _, _, ok := p.Pop(0)
	assert.False(t, ok)
}
