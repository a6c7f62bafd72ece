package mirror

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"playforge/gateway"
)

var errBoom = errors.New("boom")

// scripted returns queued results in order and repeats the last one.
type scripted struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	data []string
	err  error
}

func (s *scripted) load(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	s.calls++
	return r.data, r.err
}

func TestGetLoadsLazily(t *testing.T) {
	src := &scripted{results: []result{{data: []string{"a"}}}}
	store := New("test", src.load)

	_, state := store.Snapshot()
	assert.Assert(t, !state.Loaded)

	data, state, err := store.Get(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, data, []string{"a"})
	assert.Assert(t, state.Loaded)
	assert.Equal(t, state.Generation, uint64(1))

	_, _, err = store.Get(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, src.calls, 1)
}

func TestFailedRefreshKeepsSnapshot(t *testing.T) {
	src := &scripted{results: []result{
		{data: []string{"a", "b"}},
		{err: errBoom},
		{data: []string{"c"}},
	}}
	store := New("test", src.load)
	ctx := context.Background()

	assert.NilError(t, store.Refresh(ctx))

	err := store.Refresh(ctx)
	var refreshErr *RefreshError
	assert.Assert(t, errors.As(err, &refreshErr))
	assert.ErrorIs(t, err, errBoom)

	data, state, err := store.Get(ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, data, []string{"a", "b"})
	assert.Assert(t, state.Stale())

	assert.NilError(t, store.Refresh(ctx))
	data, state = store.Snapshot()
	assert.DeepEqual(t, data, []string{"c"})
	assert.Assert(t, !state.Stale())
}

func TestGetReportsFirstLoadFailure(t *testing.T) {
	src := &scripted{results: []result{{err: errBoom}}}
	store := New("test", src.load)

	_, state, err := store.Get(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Assert(t, !state.Loaded)
}

func TestStaleResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	store := New("test", func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "old", nil
		}
		return "new", nil
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- store.Refresh(ctx) }()

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if calls.Load() == 1 {
			return poll.Success()
		}
		return poll.Continue("first refresh not started")
	}, poll.WithTimeout(2*time.Second))

	assert.NilError(t, store.Refresh(ctx))
	close(release)
	assert.NilError(t, <-done)

	data, state := store.Snapshot()
	assert.Equal(t, data, "new")
	assert.Equal(t, state.Generation, uint64(2))
}

func TestStaleFailureDoesNotMarkNewerSnapshot(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	store := New("test", func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "", errBoom
		}
		return "fresh", nil
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- store.Refresh(ctx) }()
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if calls.Load() == 1 {
			return poll.Success()
		}
		return poll.Continue("first refresh not started")
	}, poll.WithTimeout(2*time.Second))

	assert.NilError(t, store.Refresh(ctx))
	close(release)
	assert.ErrorIs(t, <-done, errBoom)

	_, state := store.Snapshot()
	assert.Assert(t, !state.Stale())
}

func TestOnChange(t *testing.T) {
	src := &scripted{results: []result{{data: []string{"a"}}, {data: []string{"b"}}}}
	store := New("test", src.load)
	ctx := context.Background()

	var seen [][]string
	cancel := store.OnChange(func(data []string) { seen = append(seen, data) })

	assert.NilError(t, store.Refresh(ctx))
	cancel()
	assert.NilError(t, store.Refresh(ctx))

	assert.DeepEqual(t, seen, [][]string{{"a"}})
}

func TestWatchRefreshesOnChange(t *testing.T) {
	gw := gateway.NewMemoryGateway(nil)
	defer gw.Close(context.Background())
	ctx := context.Background()

	store := New("folders", func(ctx context.Context) (int, error) {
		rows, err := gw.List(ctx, "folders", nil)
		return len(rows), err
	}, WithTimeout(time.Second))
	defer store.Close()

	assert.NilError(t, store.Watch(ctx, gw, "folders", nil))
	assert.NilError(t, store.Refresh(ctx))

	_, err := gw.Insert(ctx, "folders", gateway.Row{"name": "one"})
	assert.NilError(t, err)
	_, err = gw.Insert(ctx, "folders", gateway.Row{"name": "two"})
	assert.NilError(t, err)

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if n, _ := store.Snapshot(); n == 2 {
			return poll.Success()
		}
		n, _ := store.Snapshot()
		return poll.Continue("snapshot has %d folders", n)
	}, poll.WithTimeout(2*time.Second))
}

func TestCloseStopsWatching(t *testing.T) {
	gw := gateway.NewMemoryGateway(nil)
	defer gw.Close(context.Background())
	ctx := context.Background()

	var loads atomic.Int32
	store := New("folders", func(ctx context.Context) (int32, error) {
		return loads.Add(1), nil
	})
	assert.NilError(t, store.Watch(ctx, gw, "folders", nil))

	select {
	case <-store.Done():
		t.Fatal("Done closed before Close")
	default:
	}
	assert.NilError(t, store.Close())
	assert.NilError(t, store.Close())
	<-store.Done()

	_, err := gw.Insert(ctx, "folders", gateway.Row{"name": "ignored"})
	assert.NilError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, loads.Load(), int32(0))

	assert.ErrorIs(t, store.Refresh(ctx), ErrClosed)
	assert.ErrorIs(t, store.Watch(ctx, gw, "folders", nil), ErrClosed)
}
