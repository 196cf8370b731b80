package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
)

func TestPublishAssignsIncreasingIDs(t *testing.T) {
	m := NewMediator(zap.NewNop(), nil)

	_, ok := m.Current()
	assert.False(t, ok)

	a := m.Publish("first")
	b := m.Publish("second")
	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, uint64(2), b.ID)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "second", cur.Content)
}

func TestConcurrentPublishesAreSerialized(t *testing.T) {
	m := NewMediator(nil, nil)

	const n = 200
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids <- m.Publish(fmt.Sprintf("content-%d", i)).ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	cur, _ := m.Current()
	assert.Equal(t, uint64(n), cur.ID)
}

func TestReceiverOutOfOrderDelivery(t *testing.T) {
	r := NewReceiver(nil)
	entries := map[uint64]Entry{
		1: {ID: 1, Content: "one"},
		2: {ID: 2, Content: "two"},
		3: {ID: 3, Content: "three"},
	}

	assert.True(t, r.Apply(entries[2]))
	assert.True(t, r.Apply(entries[3]))
	assert.False(t, r.Apply(entries[1]))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.ID)
	assert.Equal(t, "three", last.Content)
}

func TestReceiverRejectsReplay(t *testing.T) {
	r := NewReceiver(nil)
	e := Entry{ID: 7, Content: "x"}

	assert.True(t, r.Apply(e))
	assert.False(t, r.Apply(e))
}

func TestReceiverConcurrentApplyKeepsNewest(t *testing.T) {
	r := NewReceiver(nil)

	var wg sync.WaitGroup
	for i := uint64(1); i <= 500; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			r.Apply(Entry{ID: id})
		}(i)
	}
	wg.Wait()

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(500), last.ID)
}

func TestBroadcastDeliversToAllWindows(t *testing.T) {
	m := NewMediator(nil, monitoring.NewMetrics())

	var mu sync.Mutex
	got := map[string]string{}
	for _, w := range []string{"win_a", "win_b", "win_c"} {
		m.Register(w, NewReceiver(func(_ context.Context, e Entry) error {
			mu.Lock()
			defer mu.Unlock()
			got[w] = e.Content
			return nil
		}))
	}
	assert.Equal(t, 3, m.Receivers())

	m.Publish("answer")
	require.NoError(t, m.Broadcast(context.Background()))

	assert.Equal(t, map[string]string{"win_a": "answer", "win_b": "answer", "win_c": "answer"}, got)
}

func TestBroadcastReplayIsIdempotent(t *testing.T) {
	m := NewMediator(nil, nil)

	deliveries := 0
	var mu sync.Mutex
	m.Register("win", NewReceiver(func(context.Context, Entry) error {
		mu.Lock()
		deliveries++
		mu.Unlock()
		return nil
	}))

	first := m.Publish("a")
	m.Publish("b")
	require.NoError(t, m.Broadcast(context.Background()))
	require.NoError(t, m.Broadcast(context.Background()))
	require.NoError(t, m.BroadcastEntry(context.Background(), first))

	assert.Equal(t, 1, deliveries)
}

func TestBroadcastWithoutEntryIsNoop(t *testing.T) {
	m := NewMediator(nil, nil)
	called := false
	m.Register("win", NewReceiver(func(context.Context, Entry) error {
		called = true
		return nil
	}))

	require.NoError(t, m.Broadcast(context.Background()))
	assert.False(t, called)
}

func TestBroadcastReportsDeliveryFailure(t *testing.T) {
	m := NewMediator(nil, nil)
	failure := errors.New("frame not ready")

	m.Register("ok", NewReceiver(nil))
	m.Register("broken", NewReceiver(func(context.Context, Entry) error { return failure }))

	m.Publish("x")
	err := m.Broadcast(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "broken")
}

func TestUnregister(t *testing.T) {
	m := NewMediator(nil, nil)
	r := NewReceiver(nil)
	m.Register("win", r)
	m.Unregister("win")

	m.Publish("x")
	require.NoError(t, m.Broadcast(context.Background()))

	_, ok := r.Last()
	assert.False(t, ok)
	assert.Equal(t, 0, m.Receivers())
}
