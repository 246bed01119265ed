package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDispatchesByType(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2})
	got := make(chan Job, 2)
	q.Register("payroll.recalculate", func(ctx context.Context, job Job) error {
		got <- job
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "payroll.recalculate", Payload: "2025-09"}))

	select {
	case job := <-got:
		assert.Equal(t, "2025-09", job.Payload)
		assert.NotEmpty(t, job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not dispatched")
	}
}

func TestQueueRetriesFailedJob(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	var calls int32
	done := make(chan struct{})
	q.Register("tuition.recalculate", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("downstream unavailable")
		}
		close(done)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "tuition.recalculate"}))

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed after retries")
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", QueueConfig{})
	assert.Error(t, q.Enqueue(Job{Type: "x"}))
}
