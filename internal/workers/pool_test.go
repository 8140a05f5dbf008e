package workers

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPool_SubmitFuncRunsAllTasksConcurrently(t *testing.T) {
	pool := NewPool(zap.NewNop(), HighThroughputPoolConfig("test"))
	pool.Start()
	defer pool.Stop()

	var completed int64
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, pool.SubmitFunc(func() error {
			atomic.AddInt64(&completed, 1)
			return nil
		}))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&completed) == n
	}, time.Second, time.Millisecond)

	stats := pool.Stats()
	assert.Equal(t, int64(n), stats.TasksCompleted)
}

func TestPool_SubmitAfterStopReturnsError(t *testing.T) {
	pool := NewPool(zap.NewNop(), HighThroughputPoolConfig("test"))
	pool.Start()
	require.NoError(t, pool.Stop())

	err := pool.SubmitFunc(func() error { return nil })
	assert.True(t, errors.Is(err, ErrPoolStopped))
}

func TestPool_FailedTaskIsCountedAndNotFatal(t *testing.T) {
	pool := NewPool(zap.NewNop(), HighThroughputPoolConfig("test"))
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.SubmitFunc(func() error {
		return errors.New("boom")
	}))

	require.Eventually(t, func() bool {
		return pool.Stats().TasksFailed == 1
	}, time.Second, time.Millisecond)
}
