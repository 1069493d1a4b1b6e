package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

type countingRunner struct {
	calls       atomic.Int32
	hadDeadline atomic.Bool
}

func (r *countingRunner) RunCycle(ctx context.Context) (forecast.Document, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		r.hadDeadline.Store(true)
	}
	return forecast.Document{RunID: "run"}, nil
}

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 100*time.Millisecond, time.Second, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, runner.hadDeadline.Load())
}

func TestSchedulerStopsRunning(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 100*time.Millisecond, 0, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)

	s.Stop()
	stopped := runner.calls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, runner.calls.Load(), stopped+1)
}
