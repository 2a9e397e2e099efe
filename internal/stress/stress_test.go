package stress_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodamonte/blockingstack/internal/logger"
	"github.com/marcodamonte/blockingstack/internal/stress"
	"github.com/marcodamonte/blockingstack/stack"
)

func TestRunExactlyOnce(t *testing.T) {
	for _, tc := range []struct {
		name         string
		fair         bool
		offerTimeout bool
	}{
		{"unfair/push", false, false},
		{"fair/push", true, false},
		{"unfair/offer-timeout", false, true},
		{"fair/offer-timeout", true, true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var progress int64
			log := logger.NewMemoryLoggerWithLevel(logger.LogInfo)

			rep, err := stress.Run(context.Background(), stress.Config{
				Producers:       4,
				Consumers:       3,
				PerProducer:     250,
				Capacity:        8,
				Fair:            tc.fair,
				UseOfferTimeout: tc.offerTimeout,
				Progress:        func() { atomic.AddInt64(&progress, 1) },
			}, log)
			require.NoError(t, err)

			assert.True(t, rep.Clean(), "report: %+v", rep)
			assert.EqualValues(t, 1000, rep.Produced)
			assert.EqualValues(t, 1000, rep.Consumed)
			assert.EqualValues(t, 1000, atomic.LoadInt64(&progress))
			assert.LessOrEqual(t, rep.MaxDepth, 8)
			assert.Equal(t, tc.fair, rep.Fair)
			assert.False(t, rep.ID.IsNil())
			assert.True(t, log.Contains(rep.ID.String()))
		})
	}
}

func TestRunCapacityOne(t *testing.T) {
	t.Parallel()

	rep, err := stress.Run(context.Background(), stress.Config{
		Producers:       2,
		Consumers:       2,
		PerProducer:     100,
		Capacity:        1,
		UseOfferTimeout: true,
	}, logger.NewMemoryLoggerWithLevel(logger.LogError))
	require.NoError(t, err)
	assert.True(t, rep.Clean())
	assert.Equal(t, 1, rep.MaxDepth)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// A slow consumer keeps the stack full, so the deadline ends the run.
	rep, err := stress.Run(ctx, stress.Config{
		Producers:       1,
		Consumers:       1,
		PerProducer:     1000,
		Capacity:        1,
		UseOfferTimeout: true,
		Progress:        func() { time.Sleep(5 * time.Millisecond) },
	}, logger.NewMemoryLoggerWithLevel(logger.LogError))

	require.ErrorIs(t, err, stack.ErrCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, rep.Consumed, int64(1000))
	assert.NotZero(t, rep.Missing)
}

func TestRunFeedsObserver(t *testing.T) {
	t.Parallel()

	obs := &popCounter{}
	_, err := stress.Run(context.Background(), stress.Config{
		Producers:   2,
		Consumers:   2,
		PerProducer: 50,
		Capacity:    4,
		Observer:    obs,
	}, logger.NewMemoryLoggerWithLevel(logger.LogError))
	require.NoError(t, err)
	assert.EqualValues(t, 100, obs.pops.Load())
}

func TestReportThroughput(t *testing.T) {
	assert.Zero(t, stress.Report{}.Throughput())
	assert.InDelta(t, 500.0, stress.Report{Consumed: 1000, Elapsed: 2 * time.Second}.Throughput(), 0.001)
}

type popCounter struct {
	stack.NopObserver
	pops atomic.Int64
}

func (p *popCounter) Popped() { p.pops.Add(1) }
