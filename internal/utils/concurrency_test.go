package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4, 16)

	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, pool.Submit(func() (interface{}, error) {
			return i, nil
		}))
	}
	pool.CloseAndDrain()

	seen := make(map[int]bool)
	for raw := range pool.Results() {
		seen[raw.(int)] = true
	}
	assert.Len(t, seen, 10)
}

func TestWorkerPoolSeparatesErrors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, 8)

	jobErr := errors.New("boom")
	require.NoError(t, pool.Submit(func() (interface{}, error) { return "ok", nil }))
	require.NoError(t, pool.Submit(func() (interface{}, error) { return nil, jobErr }))
	pool.CloseAndDrain()

	var results []interface{}
	var errs []error
	resultsCh, errorsCh := pool.Results(), pool.Errors()
	for resultsCh != nil || errorsCh != nil {
		select {
		case r, ok := <-resultsCh:
			if !ok {
				resultsCh = nil
				continue
			}
			results = append(results, r)
		case e, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			errs = append(errs, e)
		}
	}

	assert.Equal(t, []interface{}{"ok"}, results)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], jobErr)
}

func TestWorkerPoolRejectsSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 1)
	pool.CloseAndDrain()

	err := pool.Submit(func() (interface{}, error) { return nil, nil })
	assert.Error(t, err)
}

func TestWorkerPoolShutdownStopsWorkers(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 1)
	pool.Shutdown()

	select {
	case _, ok := <-pool.Results():
		assert.False(t, ok, "results channel must close after shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not shut down in time")
	}
}
