package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersisterCoalescesToNewestRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.store.started = make(chan struct{})
	h.store.release = make(chan struct{})
	h.init(t)

	_, err := h.machine.ToggleValue("a")
	require.NoError(t, err)
	select {
	case <-h.store.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first save never started")
	}
	for _, id := range []string{"b", "c", "d"} {
		_, err := h.machine.ToggleValue(id)
		require.NoError(t, err)
	}
	close(h.store.release)
	h.flush(t)

	assert.Equal(t, 2, h.store.saveCount())
	assert.Equal(t, []string{"a", "b", "c", "d"}, h.store.snapshot().SelectedValues)
	versions := h.store.versions
	require.Len(t, versions, 2)
	assert.Less(t, versions[0], versions[1])
}

func TestPersisterFlushHonorsContext(t *testing.T) {
	h := newHarness(t, nil)
	h.store.started = make(chan struct{})
	h.store.release = make(chan struct{})
	h.init(t)
	_, err := h.machine.ToggleValue("a")
	require.NoError(t, err)
	<-h.store.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.machine.Flush(ctx), context.DeadlineExceeded)
	close(h.store.release)
	h.flush(t)
}

func TestRestartDiscardsQueuedWrites(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)
	for _, id := range []string{"a", "b"} {
		_, err := h.machine.ToggleValue(id)
		require.NoError(t, err)
	}
	require.NoError(t, h.machine.Restart(context.Background()))
	h.flush(t)
	assert.Empty(t, h.store.snapshot().SelectedValues)
}
