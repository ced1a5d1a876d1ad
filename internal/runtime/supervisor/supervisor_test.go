package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecoversPanicAndPublishesError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("boom", func(ctx context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in boom")
	assert.Error(t, s.Context().Err(), "cancel-on-error must cancel the context")
}

func TestGoIgnoresCancellation(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.EqualValues(t, 0, s.Active())
}

func TestGoRestartRetriesUntilCleanExit(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("stream", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("dropped")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithPublishFirstError(true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream: dropped")
	assert.EqualValues(t, 3, runs.Load())
	assert.EqualValues(t, 2, s.Restarts())
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("nope")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, s.Wait(ctx))
	assert.EqualValues(t, 3, runs.Load())
}
