package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
)

func TestWebhookRecalculatorPostsPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		jobType  string
		received dto.RecalculationPayload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		jobType = r.Header.Get("X-Job-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	recalc := NewWebhookRecalculator(server.Client(), map[string]string{JobPayrollRecalculate: server.URL}, nil)
	err := recalc.Recalculate(context.Background(), JobPayrollRecalculate, dto.RecalculationPayload{Month: "2025-09", RunID: "run-1"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, JobPayrollRecalculate, jobType)
	assert.Equal(t, "2025-09", received.Month)
	assert.Equal(t, "run-1", received.RunID)
}

func TestWebhookRecalculatorFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	recalc := NewWebhookRecalculator(server.Client(), map[string]string{JobTuitionRecalculate: server.URL}, nil)
	err := recalc.Recalculate(context.Background(), JobTuitionRecalculate, dto.RecalculationPayload{Month: "2025-09"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookRecalculatorSkipsUnconfiguredJob(t *testing.T) {
	recalc := NewWebhookRecalculator(nil, nil, nil)
	assert.NoError(t, recalc.Recalculate(context.Background(), JobPayrollRecalculate, dto.RecalculationPayload{Month: "2025-09"}))
}

type recordingRecalculator struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]int
	done     chan string
}

func (r *recordingRecalculator) Recalculate(ctx context.Context, jobType string, payload dto.RecalculationPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, jobType+":"+payload.Month)
	if r.failures[jobType] > 0 {
		r.failures[jobType]--
		return errStorage
	}
	r.done <- jobType
	return nil
}

func TestDownstreamTriggerRunsBothJobsWithRetry(t *testing.T) {
	queue := jobs.NewQueue("downstream-test", jobs.QueueConfig{Workers: 2, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	recalc := &recordingRecalculator{failures: map[string]int{JobTuitionRecalculate: 1}, done: make(chan string, 4)}
	trigger := NewDownstreamTrigger(queue, recalc, NewMetricsService(), nil)

	queue.Start(context.Background())
	defer queue.Stop()

	failed := trigger.Fire(dto.RecalculationPayload{Month: "2025-09", RunID: "run-1"})
	assert.Zero(t, failed)

	completed := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(completed) < 2 {
		select {
		case jobType := <-recalc.done:
			completed[jobType] = true
		case <-timeout:
			t.Fatalf("downstream jobs did not finish, completed=%v", completed)
		}
	}
	assert.True(t, completed[JobPayrollRecalculate])
	assert.True(t, completed[JobTuitionRecalculate])

	recalc.mu.Lock()
	defer recalc.mu.Unlock()
	assert.Len(t, recalc.calls, 3, "tuition is retried once")
}

func TestDownstreamTriggerReportsEnqueueFailures(t *testing.T) {
	queue := jobs.NewQueue("stopped", jobs.QueueConfig{})
	trigger := NewDownstreamTrigger(queue, &recordingRecalculator{done: make(chan string, 2)}, nil, nil)

	assert.Equal(t, 2, trigger.Fire(dto.RecalculationPayload{Month: "2025-09"}))
}
