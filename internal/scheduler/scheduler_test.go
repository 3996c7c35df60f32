package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "castbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

type countingTicker struct {
	calls   atomic.Int32
	panicAt int32
	sawCtx  atomic.Bool
}

func (c *countingTicker) Tick(ctx context.Context) int {
	n := c.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		c.sawCtx.Store(true)
	}
	if n == c.panicAt {
		panic("boom")
	}
	return 2
}

func TestSpecAndDefaults(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &countingTicker{}, logx.Nop())
	require.Equal(t, "@every 15s", s.Spec())

	s = New(Config{Interval: 30 * time.Second}, &countingTicker{}, logx.Nop())
	require.Equal(t, "@every 30s", s.Spec())
}

func TestFireRunsOnePass(t *testing.T) {
	t.Parallel()
	tk := &countingTicker{}
	s := New(Config{Interval: time.Hour, Timeout: time.Minute}, tk, logx.Nop())

	require.Equal(t, 2, s.Fire())
	passes, ran := s.Stats()
	require.Equal(t, uint64(1), passes)
	require.Equal(t, uint64(2), ran)
	require.True(t, tk.sawCtx.Load())
}

func TestCronTriggersAndSurvivesPanic(t *testing.T) {
	t.Parallel()
	tk := &countingTicker{panicAt: 1}
	s := New(Config{Interval: time.Second, Location: time.UTC}, tk, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return tk.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	after := tk.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, after, tk.calls.Load())
}

func TestApplyChangesInterval(t *testing.T) {
	t.Parallel()
	s := New(Config{Interval: time.Hour, Location: time.UTC}, &countingTicker{}, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.Apply(Config{Interval: 5 * time.Minute}))
	require.Equal(t, "@every 5m0s", s.Spec())
}
