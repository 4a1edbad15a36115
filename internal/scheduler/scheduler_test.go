package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ctx context.Context, s *Scheduler, tasks []Task) ([]Result, error) {
	t.Helper()
	results, err := s.RunAll(ctx, tasks)
	return results, err
}

func TestRunAllSucceeds(t *testing.T) {
	s := New(nil, time.Millisecond)

	tasks := []Task{
		{Name: "a", Launcher: func(ctx context.Context) (any, error) { return 1, nil }},
		{Name: "b", Launcher: func(ctx context.Context) (any, error) { return 2, nil }},
	}

	results, err := collect(t, context.Background(), s, tasks)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRunAllBundlesErrors(t *testing.T) {
	s := New(nil, time.Millisecond)
	boom := errors.New("boom")

	tasks := []Task{
		{Name: "ok", Launcher: func(ctx context.Context) (any, error) { return nil, nil }},
		{Name: "bad", Launcher: func(ctx context.Context) (any, error) { return nil, boom }},
	}

	_, err := collect(t, context.Background(), s, tasks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom), "expected to unwrap to boom, got %v", err)
}

func TestRunRespectsCancellation(t *testing.T) {
	s := New(nil, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := make(chan struct{}, 3)
	tasks := []Task{
		{Name: "a", Launcher: func(ctx context.Context) (any, error) { started <- struct{}{}; return nil, nil }},
	}

	results, _ := collect(t, ctx, s, tasks)
	assert.Empty(t, results)
	assert.Len(t, started, 0)
}
