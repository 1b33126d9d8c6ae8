package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/collection/memory"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

func testRunner() *Runner {
	return NewRunner(memory.New(), nil)
}

func TestRunSinksSequentialOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	task := func(name string) sinkRunnable {
		return sinkRunnable{stage: name, task: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}}
	}

	err := testRunner().runSinks(context.Background(), []sinkRunnable{task("one"), task("two"), task("three")}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, order)
}

func TestRunSinksSequentialStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var ran []string
	var mu sync.Mutex
	task := func(name string, err error) sinkRunnable {
		return sinkRunnable{stage: name, task: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, name)
			return err
		}}
	}

	err := testRunner().runSinks(context.Background(),
		[]sinkRunnable{task("one", nil), task("two", boom), task("three", nil)}, false)

	require.ErrorIs(t, err, boom)
	var sinkErr *conveyorerrors.SinkError
	require.ErrorAs(t, err, &sinkErr)
	require.Equal(t, "two", sinkErr.Stage)
	require.Equal(t, []string{"one", "two"}, ran)
}

func TestRunSinksParallelSurfacesFirstEnqueuedFailure(t *testing.T) {
	t.Parallel()

	errOne := errors.New("e1")
	errTwo := errors.New("e2")

	// sink two fails chronologically first, but sink one is first by
	// enqueue order, so its failure wins
	sinks := []sinkRunnable{
		{stage: "one", task: func(context.Context) error {
			time.Sleep(30 * time.Millisecond)
			return errOne
		}},
		{stage: "two", task: func(context.Context) error {
			return errTwo
		}},
	}

	err := testRunner().runSinks(context.Background(), sinks, true)
	require.ErrorIs(t, err, errOne)
	var sinkErr *conveyorerrors.SinkError
	require.ErrorAs(t, err, &sinkErr)
	require.Equal(t, "one", sinkErr.Stage)
}

func TestRunSinksParallelSuccess(t *testing.T) {
	t.Parallel()

	var completed sync.Map
	task := func(name string) sinkRunnable {
		return sinkRunnable{stage: name, task: func(context.Context) error {
			completed.Store(name, true)
			return nil
		}}
	}

	err := testRunner().runSinks(context.Background(), []sinkRunnable{task("a"), task("b"), task("c")}, true)
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		_, ok := completed.Load(name)
		require.True(t, ok)
	}
}

func TestRunSinksParallelCancelsRemainingAfterFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	released := make(chan struct{})

	sinks := []sinkRunnable{
		{stage: "fails", task: func(context.Context) error {
			return boom
		}},
		{stage: "slow", task: func(ctx context.Context) error {
			// waits for the pool shutdown triggered by the failure
			select {
			case <-ctx.Done():
				close(released)
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return errors.New("never canceled")
			}
		}},
	}

	err := testRunner().runSinks(context.Background(), sinks, true)
	require.ErrorIs(t, err, boom)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("remaining sink was not canceled")
	}
}

func TestRunSinksParallelInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	blocked := make(chan struct{})

	sinks := []sinkRunnable{
		{stage: "stuck", task: func(context.Context) error {
			<-blocked
			return nil
		}},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := testRunner().runSinks(ctx, sinks, true)
	require.ErrorIs(t, err, context.Canceled)
	close(blocked)
}

func TestRunSinksEmptyQueue(t *testing.T) {
	t.Parallel()

	require.NoError(t, testRunner().runSinks(context.Background(), nil, false))
	require.NoError(t, testRunner().runSinks(context.Background(), nil, true))
}
