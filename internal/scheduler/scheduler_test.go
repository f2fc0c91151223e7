package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context) (string, error)

func (f fetchFunc) FetchLatest(ctx context.Context) (string, error) { return f(ctx) }

func TestRunOnceRecordsOutcome(t *testing.T) {
	fail := true
	s := New(fetchFunc(func(context.Context) (string, error) {
		if fail {
			return "", errors.New("wms unavailable")
		}
		return "2.tif", nil
	}), Config{Interval: time.Minute}, nil)

	err := s.RunOnce(context.Background())
	require.Error(t, err)

	st := s.Stats()
	assert.Equal(t, int64(1), st.Runs)
	assert.Equal(t, int64(1), st.Failures)
	assert.Equal(t, "wms unavailable", st.LastError)
	assert.NotEmpty(t, st.LastRunID)
	assert.False(t, st.LastRunAt.IsZero())

	firstRun := st.LastRunID
	fail = false
	require.NoError(t, s.RunOnce(context.Background()))

	st = s.Stats()
	assert.Equal(t, int64(2), st.Runs)
	assert.Equal(t, int64(1), st.Failures)
	assert.Equal(t, "2.tif", st.LastFrame)
	assert.Empty(t, st.LastError)
	assert.NotEqual(t, firstRun, st.LastRunID)
}

func TestRunOnceAppliesTimeout(t *testing.T) {
	s := New(fetchFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), Config{Timeout: 10 * time.Millisecond}, nil)

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), s.Stats().Failures)
}

func TestStartRunsImmediatelyOnInterval(t *testing.T) {
	var calls atomic.Int32
	s := New(fetchFunc(func(context.Context) (string, error) {
		calls.Add(1)
		return "1.tif", nil
	}), Config{Interval: time.Hour, Timeout: time.Second}, nil)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartRejectsBadCron(t *testing.T) {
	s := New(fetchFunc(func(context.Context) (string, error) { return "", nil }), Config{Cron: "not a cron"}, nil)

	assert.Error(t, s.Start())
}
