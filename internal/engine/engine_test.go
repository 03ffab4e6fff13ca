package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/logx"
)

func noSleepRetrier(attempts int) *Retrier {
	r := NewRetrier(RetryOptions{MaxAttempts: attempts}, logx.Nop())
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRetrierRecoversFromTransientFailure(t *testing.T) {
	t.Parallel()
	r := noSleepRetrier(3)
	calls := 0
	err := r.Run(context.Background(), "CreateTask", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierGivesUpAfterBudget(t *testing.T) {
	t.Parallel()
	r := noSleepRetrier(3)
	transient := errors.New("timeout")
	calls := 0
	err := r.Run(context.Background(), "QuerySubtasks", func(context.Context) error {
		calls++
		return transient
	})
	assert.Equal(t, 3, calls)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "QuerySubtasks", se.Step)
	assert.Equal(t, 3, se.Attempts)
	assert.ErrorIs(t, err, transient)
}

func TestRetrierStopsOnNoRetry(t *testing.T) {
	t.Parallel()
	r := noSleepRetrier(3)
	permanent := errors.New("bad rule")
	calls := 0
	err := r.Run(context.Background(), "Evaluate", func(context.Context) error {
		calls++
		return NoRetry(permanent)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, permanent)
	assert.False(t, IsNoRetry(err), "marker is stripped from the step error")
}

func TestRetrierConvertsPanics(t *testing.T) {
	t.Parallel()
	r := noSleepRetrier(2)
	err := r.Run(context.Background(), "CloneSubtasks", func(context.Context) error {
		panic("nil map")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")
}

func TestRetrierHonorsContext(t *testing.T) {
	t.Parallel()
	r := NewRetrier(RetryOptions{MaxAttempts: 5, Base: time.Hour}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Run(ctx, "CountOccurrences", func(context.Context) error {
		calls++
		cancel()
		return errors.New("unavailable")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffIsBounded(t *testing.T) {
	t.Parallel()
	r := NewRetrier(RetryOptions{Base: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2}, logx.Nop())
	for retry := 1; retry <= 10; retry++ {
		d := r.backoff(retry)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestPoolRunsJobs(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{Workers: 4, QueueSize: 16}, logx.Nop())
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(ctx, Job{ID: "job", Run: func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}}))
	}
	wg.Wait()
	assert.EqualValues(t, 10, ran.Load())
}

func TestPoolSerializesSameKey(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{Workers: 4, QueueSize: 16}, logx.Nop())
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	var wg sync.WaitGroup
	var inside, maxInside atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(ctx, Job{ID: "completion", Key: "group-1", Run: func(context.Context) error {
			defer wg.Done()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			return nil
		}}))
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside.Load())
}

func TestPoolRejectsWhenStopped(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{}, logx.Nop())
	err := p.Enqueue(Job{ID: "x", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrStopped)

	p.Start(context.Background())
	p.Stop(context.Background())
	err = p.Submit(context.Background(), Job{ID: "x", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPoolSurvivesPanickingJob(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 4}, logx.Nop())
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	done := make(chan struct{})
	require.NoError(t, p.Enqueue(Job{ID: "bad", Run: func(context.Context) error { panic("boom") }}))
	require.NoError(t, p.Enqueue(Job{ID: "good", Run: func(context.Context) error { close(done); return nil }}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}
